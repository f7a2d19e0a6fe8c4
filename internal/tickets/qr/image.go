package qr

import (
	"ms-checkin/internal/models"

	"github.com/skip2/go-qrcode"
)

// RenderPNG encodes the reference and draws it as a QR code image.
func (c *Codec) RenderPNG(ref models.TicketReference, size int) ([]byte, error) {
	payload, err := c.Encode(ref)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(payload, qrcode.Medium, size)
}
