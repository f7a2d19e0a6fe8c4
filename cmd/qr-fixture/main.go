// Command qr-fixture prints the QR payload for a ticket and writes it as a PNG,
// for testing scanners against a known code.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"ms-checkin/internal/models"
	"ms-checkin/internal/tickets/qr"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	ticketID := flag.String("ticket", "", "ticket id (required)")
	eventID := flag.String("event", "", "event id (required)")
	title := flag.String("title", "", "event title")
	ticketType := flag.String("type", "", "ticket type")
	holder := flag.String("holder", "", "holder id")
	secret := flag.String("secret", os.Getenv("QR_SECRET_KEY"), "QR secret; empty writes plain JSON")
	out := flag.String("out", "", "PNG output path; empty skips the image")
	size := flag.Int("size", 256, "PNG size in pixels")
	flag.Parse()

	if *ticketID == "" || *eventID == "" {
		flag.Usage()
		os.Exit(2)
	}

	codec := qr.NewCodec(*secret)
	ref := models.TicketReference{
		TicketID:   *ticketID,
		EventID:    *eventID,
		EventTitle: *title,
		TicketType: *ticketType,
		HolderID:   *holder,
		IssuedAt:   time.Now().UTC(),
	}

	payload, err := codec.Encode(ref)
	if err != nil {
		log.Fatalf("encode: %v", err)
	}
	fmt.Println(payload)

	if *out == "" {
		return
	}
	png, err := codec.RenderPNG(ref, *size)
	if err != nil {
		log.Fatalf("render: %v", err)
	}
	if err := os.WriteFile(*out, png, 0644); err != nil {
		log.Fatalf("write %s: %v", *out, err)
	}
	log.Printf("wrote %s", *out)
}
