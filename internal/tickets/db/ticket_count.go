package db

import (
	"context"

	"ms-checkin/internal/models"
)

// CountConfirmedTickets returns how many confirmed tickets an event has.
func (d *DB) CountConfirmedTickets(ctx context.Context, eventID string) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		Where("event_id = ?", eventID).
		Where("status = ?", models.TicketStatusConfirmed).
		Count(ctx)
}

// CountValidatedTickets returns how many of the event's confirmed tickets
// have been checked in.
func (d *DB) CountValidatedTickets(ctx context.Context, eventID string) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		Where("event_id = ?", eventID).
		Where("status = ?", models.TicketStatusConfirmed).
		Where("validated_at IS NOT NULL").
		Count(ctx)
}
