// Command seed-tickets creates the tickets table and fills it with demo
// tickets for one event.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"ms-checkin/internal/models"
	ticket_db "ms-checkin/internal/tickets/db"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

func main() {
	_ = godotenv.Load()

	dsn := flag.String("dsn", os.Getenv("POSTGRES_DSN"), "Postgres DSN")
	eventID := flag.String("event", "", "event id; a new uuid when empty")
	count := flag.Int("count", 20, "number of tickets")
	flag.Parse()

	if *dsn == "" {
		log.Fatal("POSTGRES_DSN not set")
	}
	if *eventID == "" {
		*eventID = uuid.NewString()
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(*dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	ctx := context.Background()
	if _, err := db.NewCreateTable().Model((*models.Ticket)(nil)).IfNotExists().Exec(ctx); err != nil {
		log.Fatalf("create tickets table: %v", err)
	}

	store := &ticket_db.DB{Bun: db}
	statuses := []models.TicketStatus{
		models.TicketStatusConfirmed,
		models.TicketStatusConfirmed,
		models.TicketStatusConfirmed,
		models.TicketStatusPending,
		models.TicketStatusCancelled,
	}
	for i := 0; i < *count; i++ {
		id := uuid.NewString()
		ticket := models.Ticket{
			ID:            id,
			EventID:       *eventID,
			HolderID:      uuid.NewString(),
			TicketType:    "General Admission",
			Status:        statuses[i%len(statuses)],
			Amount:        25,
			Currency:      "USD",
			AttendeeName:  fmt.Sprintf("Guest %d", i+1),
			AttendeeEmail: fmt.Sprintf("guest%d@example.com", i+1),
			IssuedAt:      time.Now().UTC(),
		}
		if err := store.CreateTicket(ctx, ticket); err != nil {
			log.Fatalf("insert ticket %d: %v", i+1, err)
		}
		fmt.Printf("%s\t%s\t%s\n", id, ticket.Status, ticket.AttendeeEmail)
	}
	log.Printf("seeded %d tickets for event %s", *count, *eventID)
}
