package checkin

import (
	"context"
	"fmt"
	"time"

	"ms-checkin/internal/metrics"
	"ms-checkin/internal/models"
)

type TicketCounter interface {
	CountConfirmedTickets(ctx context.Context, eventID string) (int, error)
	CountValidatedTickets(ctx context.Context, eventID string) (int, error)
}

// StatsCounter recomputes event stats from the store every time. Events are
// small enough that a rescan is cheap, and it never drifts.
type StatsCounter struct {
	Store   TicketCounter
	Timeout time.Duration
	Now     func() time.Time
}

func (s *StatsCounter) Refresh(ctx context.Context, eventID string) (models.EventStats, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	start := time.Now()
	total, err := s.Store.CountConfirmedTickets(ctx, eventID)
	metrics.ObserveStore("count_confirmed", start, err)
	if err != nil {
		return models.EventStats{}, fmt.Errorf("%w: count confirmed tickets for %s: %w", ErrLookupFailed, eventID, err)
	}

	start = time.Now()
	checkedIn, err := s.Store.CountValidatedTickets(ctx, eventID)
	metrics.ObserveStore("count_validated", start, err)
	if err != nil {
		return models.EventStats{}, fmt.Errorf("%w: count validated tickets for %s: %w", ErrLookupFailed, eventID, err)
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return models.NewEventStats(eventID, total, checkedIn, now().UTC()), nil
}
