package models

import "time"

// TicketReference is what a QR code carries. It is built once per scan and
// never mutated.
type TicketReference struct {
	TicketID   string    `json:"ticketId"`
	EventID    string    `json:"eventId"`
	EventTitle string    `json:"eventTitle,omitempty"`
	TicketType string    `json:"ticketType,omitempty"`
	HolderID   string    `json:"holderId,omitempty"`
	IssuedAt   time.Time `json:"issuedAt,omitempty"`
}

// ReferenceFromTicket builds the reference a QR code for t would carry.
// Manual check-ins use it so they run through the same validation path.
func ReferenceFromTicket(t Ticket) TicketReference {
	return TicketReference{
		TicketID:   t.ID,
		EventID:    t.EventID,
		TicketType: t.TicketType,
		HolderID:   t.HolderID,
		IssuedAt:   t.IssuedAt,
	}
}

// EventStats is a projection over the tickets table for one event.
type EventStats struct {
	EventID               string    `json:"event_id"`
	TotalConfirmedTickets int       `json:"total_confirmed_tickets"`
	CheckedIn             int       `json:"checked_in"`
	Pending               int       `json:"pending"`
	RefreshedAt           time.Time `json:"refreshed_at"`
}

// NewEventStats keeps Pending == TotalConfirmedTickets - CheckedIn. The two
// counts are separate reads, so a check-in landing between them can make
// checkedIn exceed total; total is raised to match in that case.
func NewEventStats(eventID string, total, checkedIn int, at time.Time) EventStats {
	if checkedIn < 0 {
		checkedIn = 0
	}
	if total < checkedIn {
		total = checkedIn
	}
	return EventStats{
		EventID:               eventID,
		TotalConfirmedTickets: total,
		CheckedIn:             checkedIn,
		Pending:               total - checkedIn,
		RefreshedAt:           at,
	}
}

type CheckinMethod string

const (
	CheckinMethodQR     CheckinMethod = "qr"
	CheckinMethodManual CheckinMethod = "manual"
)

// CheckinEvent is published after a ticket has been checked in.
type CheckinEvent struct {
	TicketID     string        `json:"ticket_id"`
	EventID      string        `json:"event_id"`
	ScannerID    string        `json:"scanner_id"`
	TicketType   string        `json:"ticket_type,omitempty"`
	AttendeeName string        `json:"attendee_name,omitempty"`
	Method       CheckinMethod `json:"method"`
	ValidatedAt  time.Time     `json:"validated_at"`
}
