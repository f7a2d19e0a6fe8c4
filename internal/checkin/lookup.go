package checkin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-checkin/internal/metrics"
	"ms-checkin/internal/models"
	"ms-checkin/internal/tickets/db"
)

// TicketReader is the read side of the ticket store. Implementations return
// db.ErrTicketNotFound when a single-row read finds nothing.
type TicketReader interface {
	GetTicketByID(ctx context.Context, id string) (*models.Ticket, error)
	FindTicketsByEmail(ctx context.Context, eventID, email string) ([]models.Ticket, error)
	FindAnyTicketByEmail(ctx context.Context, email string) (*models.Ticket, error)
}

// Lookup resolves tickets from the store under a request timeout.
type Lookup struct {
	Store   TicketReader
	Timeout time.Duration
}

// Fetch reads a ticket by id only. A missing row is ErrNotFound; anything
// else that goes wrong, including a timeout or a row with no event, is
// ErrLookupFailed.
func (l *Lookup) Fetch(ctx context.Context, ticketID string) (*models.Ticket, error) {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	ticket, err := l.Store.GetTicketByID(ctx, ticketID)
	metrics.ObserveStore("get_ticket", start, ignoreNotFound(err))
	if err != nil {
		return nil, classifyLookupError(ticketID, err)
	}
	if err := checkBinding(ticket); err != nil {
		return nil, err
	}
	return ticket, nil
}

// FetchByEmail returns the event's tickets held under an attendee email.
func (l *Lookup) FetchByEmail(ctx context.Context, eventID, email string) ([]models.Ticket, error) {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	tickets, err := l.Store.FindTicketsByEmail(ctx, eventID, email)
	metrics.ObserveStore("find_by_email", start, err)
	if err != nil {
		return nil, fmt.Errorf("%w: tickets for %s: %w", ErrLookupFailed, email, err)
	}
	return tickets, nil
}

// FetchAnyByEmail returns one ticket for the email in any event.
func (l *Lookup) FetchAnyByEmail(ctx context.Context, email string) (*models.Ticket, error) {
	ctx, cancel := l.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	ticket, err := l.Store.FindAnyTicketByEmail(ctx, email)
	metrics.ObserveStore("find_any_by_email", start, ignoreNotFound(err))
	if err != nil {
		return nil, classifyLookupError(email, err)
	}
	if err := checkBinding(ticket); err != nil {
		return nil, err
	}
	return ticket, nil
}

func (l *Lookup) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.Timeout > 0 {
		return context.WithTimeout(ctx, l.Timeout)
	}
	return context.WithCancel(ctx)
}

func classifyLookupError(key string, err error) error {
	if errors.Is(err, db.ErrTicketNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return fmt.Errorf("%w: %s: %w", ErrLookupFailed, key, err)
}

// checkBinding rejects rows with no event. Guessing an event would defeat
// the wrong-event guard, so this is an upstream data failure.
func checkBinding(ticket *models.Ticket) error {
	if ticket == nil {
		return fmt.Errorf("%w: store returned no ticket and no error", ErrLookupFailed)
	}
	if ticket.EventID == "" {
		return fmt.Errorf("%w: ticket %s has no event binding", ErrLookupFailed, ticket.ID)
	}
	return nil
}

func ignoreNotFound(err error) error {
	if errors.Is(err, db.ErrTicketNotFound) {
		return nil
	}
	return err
}
