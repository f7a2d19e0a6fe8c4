package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ms-checkin/internal/models"

	"github.com/uptrace/bun"
)

// ErrTicketNotFound is returned when no row matches the lookup.
var ErrTicketNotFound = errors.New("ticket not found")

type DB struct {
	Bun *bun.DB
}

// GetTicketByID reads a ticket by id only; the event is checked by the caller.
func (d *DB) GetTicketByID(ctx context.Context, id string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// ConditionallyValidateTicket marks a confirmed ticket as checked in only if
// nobody did it first. The guard lives in the WHERE clause so concurrent
// scanners race inside the database, not in application code. It reports
// whether this call performed the transition.
func (d *DB) ConditionallyValidateTicket(ctx context.Context, id, validatorID string, now time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("validated_at = ?", now).
		Set("validated_by = ?", validatorID).
		Where("id = ?", id).
		Where("status = ?", models.TicketStatusConfirmed).
		Where("validated_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// FindTicketsByEmail returns the tickets held under an attendee email for one
// event, oldest first.
func (d *DB) FindTicketsByEmail(ctx context.Context, eventID, email string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("event_id = ?", eventID).
		Where("LOWER(attendee_email) = LOWER(?)", email).
		Order("issued_at ASC", "id ASC").
		Scan(ctx)
	return tickets, err
}

// FindAnyTicketByEmail returns one ticket for the email in any event.
func (d *DB) FindAnyTicketByEmail(ctx context.Context, email string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("LOWER(attendee_email) = LOWER(?)", email).
		Order("issued_at DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

// CreateTicket is used by seeding and tests; issuance belongs to the order service.
func (d *DB) CreateTicket(ctx context.Context, ticket models.Ticket) error {
	_, err := d.Bun.NewInsert().Model(&ticket).Exec(ctx)
	return err
}
