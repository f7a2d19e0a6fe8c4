package checkin

import (
	"context"
	"fmt"
	"time"

	"ms-checkin/internal/metrics"
)

// TicketValidator performs the store-side compare-and-set. It must report
// true only when this call changed validated_at from NULL.
type TicketValidator interface {
	ConditionallyValidateTicket(ctx context.Context, id, validatorID string, now time.Time) (bool, error)
}

type CommitStatus string

const (
	Committed CommitStatus = "committed"
	Conflict  CommitStatus = "conflict"
)

type CommitResult struct {
	Status      CommitStatus
	ValidatedAt time.Time
}

// Recorder is the only code path that sets a ticket's validatedAt.
type Recorder struct {
	Store   TicketValidator
	Timeout time.Duration
	Now     func() time.Time
}

// Commit issues a single conditional write. Conflict means another scanner
// won; callers must re-read the ticket rather than assume success. The write
// is atomic, so an abandoned or timed-out commit either happened or did not.
func (r *Recorder) Commit(ctx context.Context, ticketID, scannerID string) (CommitResult, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	at := now().UTC()

	start := time.Now()
	ok, err := r.Store.ConditionallyValidateTicket(ctx, ticketID, scannerID, at)
	metrics.ObserveStore("validate_ticket", start, err)
	if err != nil {
		return CommitResult{}, fmt.Errorf("%w: ticket %s: %w", ErrCommitFailed, ticketID, err)
	}
	if !ok {
		metrics.CommitConflict()
		return CommitResult{Status: Conflict}, nil
	}
	return CommitResult{Status: Committed, ValidatedAt: at}, nil
}
