package checkin

import (
	"time"

	"ms-checkin/internal/models"
)

// Decision is the result of running the admission guards. A zero Reason
// means admit.
type Decision struct {
	Reason      Reason
	Status      models.TicketStatus
	ValidatedAt *time.Time
	ValidatedBy string
}

func (d Decision) Admitted() bool {
	return d.Reason == ""
}

// Validate decides whether a scanned ticket may enter. It does no I/O.
// Guards run in order and the first failure wins, so a confirmed ticket for
// another event is reported as WrongEvent, and a cancelled ticket that was
// somehow validated is reported as InvalidStatus.
func Validate(ref models.TicketReference, record *models.Ticket, eventID, scannerID string) Decision {
	if record == nil {
		return Decision{Reason: ReasonTicketNotFound}
	}
	if record.EventID != eventID {
		return Decision{Reason: ReasonWrongEvent, Status: record.Status}
	}
	if record.Status != models.TicketStatusConfirmed {
		return Decision{Reason: ReasonInvalidStatus, Status: record.Status}
	}
	if record.CheckedIn() {
		return Decision{
			Reason:      ReasonAlreadyCheckedIn,
			Status:      record.Status,
			ValidatedAt: record.ValidatedAt,
			ValidatedBy: record.ValidatedBy,
		}
	}
	return Decision{Status: record.Status}
}
