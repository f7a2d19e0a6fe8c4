package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TicketStatus string

const (
	TicketStatusPending   TicketStatus = "pending"
	TicketStatusConfirmed TicketStatus = "confirmed"
	TicketStatusCancelled TicketStatus = "cancelled"
	TicketStatusRefunded  TicketStatus = "refunded"
)

// Ticket is the authoritative ticket row. It is issued by the ordering side;
// check-in only reads it and sets ValidatedAt/ValidatedBy once.
type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID            string       `bun:"id,pk" json:"id"`
	EventID       string       `bun:"event_id,notnull" json:"event_id"`
	HolderID      string       `bun:"holder_id" json:"holder_id"`
	TicketType    string       `bun:"ticket_type" json:"ticket_type"`
	Status        TicketStatus `bun:"status,notnull" json:"status"`
	ValidatedAt   *time.Time   `bun:"validated_at,nullzero" json:"validated_at,omitempty"`
	ValidatedBy   string       `bun:"validated_by,nullzero" json:"validated_by,omitempty"`
	Amount        float64      `bun:"amount" json:"amount"`
	Currency      string       `bun:"currency" json:"currency"`
	AttendeeName  string       `bun:"attendee_name" json:"attendee_name"`
	AttendeeEmail string       `bun:"attendee_email" json:"attendee_email"`
	IssuedAt      time.Time    `bun:"issued_at,nullzero" json:"issued_at"`
}

func (t *Ticket) CheckedIn() bool {
	return t.ValidatedAt != nil
}

// Attendee is the contact info door staff see next to an outcome.
type Attendee struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

func (t *Ticket) Attendee() *Attendee {
	if t.AttendeeName == "" && t.AttendeeEmail == "" {
		return nil
	}
	return &Attendee{Name: t.AttendeeName, Email: t.AttendeeEmail}
}
