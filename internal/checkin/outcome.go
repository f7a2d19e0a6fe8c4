package checkin

import (
	"errors"
	"fmt"
	"time"

	"ms-checkin/internal/models"
)

// Infrastructure failures. They are retryable and never mean "invalid ticket".
var (
	ErrNotFound     = errors.New("ticket not found")
	ErrLookupFailed = errors.New("ticket lookup failed")
	ErrCommitFailed = errors.New("check-in commit failed")
)

// Reason says why a scan was rejected. Rejections are normal outcomes, not errors.
type Reason string

const (
	ReasonMalformedPayload Reason = "malformed_payload"
	ReasonTicketNotFound   Reason = "ticket_not_found"
	ReasonWrongEvent       Reason = "wrong_event"
	ReasonInvalidStatus    Reason = "invalid_status"
	ReasonAlreadyCheckedIn Reason = "already_checked_in"
)

type Verdict string

const (
	VerdictAdmitted Verdict = "admitted"
	VerdictRejected Verdict = "rejected"
)

// Outcome is what the door sees for one scan.
type Outcome struct {
	Verdict     Verdict             `json:"verdict"`
	Reason      Reason              `json:"reason,omitempty"`
	Message     string              `json:"message"`
	TicketID    string              `json:"ticket_id,omitempty"`
	EventID     string              `json:"event_id,omitempty"`
	TicketType  string              `json:"ticket_type,omitempty"`
	Status      models.TicketStatus `json:"status,omitempty"`
	ValidatedAt *time.Time          `json:"validated_at,omitempty"`
	ValidatedBy string              `json:"validated_by,omitempty"`
	Attendee    *models.Attendee    `json:"attendee,omitempty"`
	Replayed    bool                `json:"replayed,omitempty"`
}

func (o Outcome) Admitted() bool {
	return o.Verdict == VerdictAdmitted
}

func admittedOutcome(record *models.Ticket) Outcome {
	out := Outcome{
		Verdict:     VerdictAdmitted,
		Message:     "Ticket valid. Admit attendee.",
		TicketID:    record.ID,
		EventID:     record.EventID,
		TicketType:  record.TicketType,
		Status:      record.Status,
		ValidatedAt: record.ValidatedAt,
		ValidatedBy: record.ValidatedBy,
		Attendee:    record.Attendee(),
	}
	if name := attendeeName(record); name != "" {
		out.Message = fmt.Sprintf("Welcome, %s! Ticket valid.", name)
	}
	return out
}

func malformedOutcome() Outcome {
	return Outcome{
		Verdict: VerdictRejected,
		Reason:  ReasonMalformedPayload,
		Message: "QR code is not a recognizable ticket. Please rescan.",
	}
}

// rejectedOutcome describes a failed guard. record may be nil.
func rejectedOutcome(ref models.TicketReference, record *models.Ticket, d Decision) Outcome {
	out := Outcome{
		Verdict:  VerdictRejected,
		Reason:   d.Reason,
		TicketID: ref.TicketID,
		EventID:  ref.EventID,
	}
	if record != nil {
		out.TicketID = record.ID
		out.EventID = record.EventID
		out.TicketType = record.TicketType
		out.Status = record.Status
		out.Attendee = record.Attendee()
	}

	switch d.Reason {
	case ReasonTicketNotFound:
		out.Message = "Ticket not found. Rescan or look the attendee up by email."
	case ReasonWrongEvent:
		out.Message = "This ticket is for a different event."
	case ReasonInvalidStatus:
		out.Message = fmt.Sprintf("Ticket is %s and cannot be admitted.", d.Status)
	case ReasonAlreadyCheckedIn:
		out.ValidatedAt = d.ValidatedAt
		out.ValidatedBy = d.ValidatedBy
		out.Message = "Ticket was already checked in."
		if d.ValidatedAt != nil {
			out.Message = fmt.Sprintf("Ticket was already checked in at %s.", d.ValidatedAt.Format(time.Kitchen))
			if d.ValidatedBy != "" {
				out.Message = fmt.Sprintf("Ticket was already checked in at %s by %s.", d.ValidatedAt.Format(time.Kitchen), d.ValidatedBy)
			}
		}
	default:
		out.Message = "Ticket rejected."
	}
	return out
}

// rescanOutcome is what a repeat scan of the same ticket shows. An admission
// is never shown twice; it becomes AlreadyCheckedIn with the original scan.
func rescanOutcome(out Outcome) Outcome {
	if !out.Admitted() {
		return out
	}
	ref := models.TicketReference{TicketID: out.TicketID, EventID: out.EventID}
	again := rejectedOutcome(ref, nil, Decision{
		Reason:      ReasonAlreadyCheckedIn,
		Status:      out.Status,
		ValidatedAt: out.ValidatedAt,
		ValidatedBy: out.ValidatedBy,
	})
	again.TicketType = out.TicketType
	again.Status = out.Status
	again.Attendee = out.Attendee
	return again
}

func attendeeName(record *models.Ticket) string {
	if record.AttendeeName != "" {
		return record.AttendeeName
	}
	return record.AttendeeEmail
}
