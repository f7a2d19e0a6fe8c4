package checkin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/metrics"
	"ms-checkin/internal/models"
	"ms-checkin/internal/tickets/qr"
)

// Store is everything the check-in path needs from the ticket store.
type Store interface {
	TicketReader
	TicketValidator
	TicketCounter
}

// Notifier is told about every successful check-in.
type Notifier interface {
	NotifyCheckin(ctx context.Context, event models.CheckinEvent) error
}

// Debouncer remembers the last outcome per scanner and ticket for a short
// window so a camera re-reading the same code does not hit the store again.
// A remembered admission is replayed as AlreadyCheckedIn, never as an admit.
type Debouncer interface {
	Recall(ctx context.Context, scannerID, eventID, ticketID string) (*Outcome, error)
	Remember(ctx context.Context, scannerID, eventID, ticketID string, outcome Outcome) error
}

type Service struct {
	Codec    *qr.Codec
	Lookup   *Lookup
	Recorder *Recorder
	Stats    *StatsCounter
	Notifier Notifier
	Debounce Debouncer
	Logger   *logger.Logger
}

func NewService(store Store, codec *qr.Codec, lookupTimeout, commitTimeout time.Duration, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		Codec:    codec,
		Lookup:   &Lookup{Store: store, Timeout: lookupTimeout},
		Recorder: &Recorder{Store: store, Timeout: commitTimeout},
		Stats:    &StatsCounter{Store: store, Timeout: lookupTimeout},
		Logger:   log,
	}
}

// Scan runs one QR scan through decode, lookup, validation and commit.
// Rejections come back as an Outcome with a nil error; the error is only
// set for store failures (ErrLookupFailed, ErrCommitFailed), which the
// operator may retry.
func (s *Service) Scan(ctx context.Context, raw, scannerID, eventID string) (Outcome, error) {
	_, out, err := s.scan(ctx, raw, scannerID, eventID)
	return out, err
}

func (s *Service) scan(ctx context.Context, raw, scannerID, eventID string) (models.TicketReference, Outcome, error) {
	ref, err := s.Codec.Decode(raw)
	if err != nil {
		s.Logger.LogScan(scannerID, eventID, fmt.Sprintf("rejected: %v", err))
		out := malformedOutcome()
		observe(out)
		return models.TicketReference{}, out, nil
	}

	if replay := s.recall(ctx, scannerID, eventID, ref.TicketID); replay != nil {
		s.Logger.Debug("SCAN", fmt.Sprintf("replaying %s outcome for ticket %s", replay.Verdict, ref.TicketID))
		return ref, *replay, nil
	}

	record, err := s.Lookup.Fetch(ctx, ref.TicketID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		s.Logger.Error("SCAN", fmt.Sprintf("lookup of ticket %s failed: %v", ref.TicketID, err))
		return ref, Outcome{}, err
	}
	if record != nil && record.EventID != ref.EventID {
		s.Logger.Warn("SCAN", fmt.Sprintf("ticket %s QR names event %s but store has %s", ref.TicketID, ref.EventID, record.EventID))
	}

	out, err := s.decideAndCommit(ctx, ref, record, scannerID, eventID, models.CheckinMethodQR)
	if err != nil {
		return ref, Outcome{}, err
	}
	s.remember(ctx, scannerID, eventID, ref.TicketID, out)
	return ref, out, nil
}

// CheckInByEmail admits an attendee who cannot show their QR code. It goes
// through the same guards and the same conditional write as a scan.
func (s *Service) CheckInByEmail(ctx context.Context, email, scannerID, eventID string) (Outcome, error) {
	_, out, err := s.checkInByEmail(ctx, email, scannerID, eventID)
	return out, err
}

func (s *Service) checkInByEmail(ctx context.Context, email, scannerID, eventID string) (models.TicketReference, Outcome, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		out := rejectedOutcome(models.TicketReference{}, nil, Decision{Reason: ReasonTicketNotFound})
		observe(out)
		return models.TicketReference{}, out, nil
	}

	tickets, err := s.Lookup.FetchByEmail(ctx, eventID, email)
	if err != nil {
		return models.TicketReference{}, Outcome{}, err
	}

	if len(tickets) == 0 {
		// Nothing for this event. A ticket elsewhere is worth telling the
		// operator about instead of a bare not-found.
		other, err := s.Lookup.FetchAnyByEmail(ctx, email)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return models.TicketReference{}, Outcome{}, err
		}
		var ref models.TicketReference
		if other != nil {
			ref = models.ReferenceFromTicket(*other)
		}
		out, err := s.decideAndCommit(ctx, ref, other, scannerID, eventID, models.CheckinMethodManual)
		return ref, out, err
	}

	pick := &tickets[0]
	for i := range tickets {
		if Validate(models.ReferenceFromTicket(tickets[i]), &tickets[i], eventID, scannerID).Admitted() {
			pick = &tickets[i]
			break
		}
	}
	ref := models.ReferenceFromTicket(*pick)
	out, err := s.decideAndCommit(ctx, ref, pick, scannerID, eventID, models.CheckinMethodManual)
	return ref, out, err
}

// EventStats recomputes the event's counters from the store.
func (s *Service) EventStats(ctx context.Context, eventID string) (models.EventStats, error) {
	return s.Stats.Refresh(ctx, eventID)
}

func (s *Service) decideAndCommit(ctx context.Context, ref models.TicketReference, record *models.Ticket, scannerID, eventID string, method models.CheckinMethod) (Outcome, error) {
	decision := Validate(ref, record, eventID, scannerID)
	if !decision.Admitted() {
		out := rejectedOutcome(ref, record, decision)
		s.Logger.LogScan(scannerID, eventID, fmt.Sprintf("ticket %s rejected: %s", out.TicketID, decision.Reason))
		observe(out)
		return out, nil
	}

	result, err := s.Recorder.Commit(ctx, record.ID, scannerID)
	if err != nil {
		s.Logger.Error("CHECKIN", fmt.Sprintf("commit of ticket %s failed: %v", record.ID, err))
		return Outcome{}, err
	}

	if result.Status == Conflict {
		// Someone else got there first, or the ticket changed under us.
		// Re-read and let the guards say which.
		s.Logger.LogCheckin(record.ID, scannerID, "lost check-in race, re-validating")
		fresh, err := s.Lookup.Fetch(ctx, record.ID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return Outcome{}, err
		}
		decision = Validate(ref, fresh, eventID, scannerID)
		if decision.Admitted() {
			decision = Decision{Reason: ReasonAlreadyCheckedIn, Status: fresh.Status}
		}
		out := rejectedOutcome(ref, fresh, decision)
		observe(out)
		return out, nil
	}

	admitted := *record
	admitted.ValidatedAt = &result.ValidatedAt
	admitted.ValidatedBy = scannerID
	out := admittedOutcome(&admitted)
	s.Logger.LogCheckin(admitted.ID, scannerID, fmt.Sprintf("checked in via %s", method))
	observe(out)

	s.notify(ctx, &admitted, scannerID, method)
	return out, nil
}

func (s *Service) notify(ctx context.Context, record *models.Ticket, scannerID string, method models.CheckinMethod) {
	if s.Notifier == nil {
		return
	}
	event := models.CheckinEvent{
		TicketID:     record.ID,
		EventID:      record.EventID,
		ScannerID:    scannerID,
		TicketType:   record.TicketType,
		AttendeeName: record.AttendeeName,
		Method:       method,
		ValidatedAt:  *record.ValidatedAt,
	}
	// The check-in is already committed; an abandoned request must not stop the notification.
	if err := s.Notifier.NotifyCheckin(context.WithoutCancel(ctx), event); err != nil {
		s.Logger.Warn("CHECKIN", fmt.Sprintf("failed to publish check-in of %s: %v", record.ID, err))
	}
}

func (s *Service) recall(ctx context.Context, scannerID, eventID, ticketID string) *Outcome {
	if s.Debounce == nil {
		return nil
	}
	out, err := s.Debounce.Recall(ctx, scannerID, eventID, ticketID)
	if err != nil {
		s.Logger.Warn("REDIS", fmt.Sprintf("debounce lookup failed, scanning normally: %v", err))
		return nil
	}
	if out == nil {
		return nil
	}
	replay := rescanOutcome(*out)
	replay.Replayed = true
	return &replay
}

func (s *Service) remember(ctx context.Context, scannerID, eventID, ticketID string, out Outcome) {
	if s.Debounce == nil {
		return
	}
	if err := s.Debounce.Remember(ctx, scannerID, eventID, ticketID, rescanOutcome(out)); err != nil {
		s.Logger.Warn("REDIS", fmt.Sprintf("failed to remember scan outcome: %v", err))
	}
}

func observe(out Outcome) {
	metrics.ObserveScan(string(out.Verdict), string(out.Reason))
}
