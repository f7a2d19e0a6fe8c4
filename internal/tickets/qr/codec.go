package qr

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-checkin/internal/models"
)

// MaxPayloadSize bounds what we are willing to parse from a scanner.
const MaxPayloadSize = 4096

const sealedPrefix = "tkt1."

var ErrMalformedPayload = errors.New("malformed QR payload")

// wirePayload is the JSON shape inside a QR code. userId is what older
// tickets carried instead of holderId.
type wirePayload struct {
	TicketID   string `json:"ticketId"`
	EventID    string `json:"eventId"`
	EventTitle string `json:"eventTitle,omitempty"`
	TicketType string `json:"ticketType,omitempty"`
	HolderID   string `json:"holderId,omitempty"`
	UserID     string `json:"userId,omitempty"`
	IssuedAt   string `json:"issuedAt,omitempty"`
}

// Codec turns QR text into ticket references and back. With a secret it
// only speaks sealed payloads; without one it speaks plain JSON.
type Codec struct {
	key []byte
}

func NewCodec(secret string) *Codec {
	if secret == "" {
		return &Codec{}
	}
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &Codec{key: hashed[:]}
}

func (c *Codec) Sealed() bool {
	return len(c.key) > 0
}

// Decode never panics on scanner input; every failure wraps ErrMalformedPayload.
func (c *Codec) Decode(raw string) (models.TicketReference, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return models.TicketReference{}, malformed("empty payload")
	}
	if len(raw) > MaxPayloadSize {
		return models.TicketReference{}, malformed("payload exceeds %d bytes", MaxPayloadSize)
	}

	data := []byte(raw)
	if c.Sealed() {
		opened, err := c.open(raw)
		if err != nil {
			return models.TicketReference{}, err
		}
		data = opened
	}

	var wire wirePayload
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&wire); err != nil {
		return models.TicketReference{}, malformed("not a JSON object: %v", err)
	}
	if dec.More() {
		return models.TicketReference{}, malformed("trailing data after JSON object")
	}

	ref := models.TicketReference{
		TicketID:   strings.TrimSpace(wire.TicketID),
		EventID:    strings.TrimSpace(wire.EventID),
		EventTitle: wire.EventTitle,
		TicketType: wire.TicketType,
		HolderID:   wire.HolderID,
	}
	if ref.HolderID == "" {
		ref.HolderID = wire.UserID
	}
	if ref.TicketID == "" {
		return models.TicketReference{}, malformed("missing ticketId")
	}
	if ref.EventID == "" {
		return models.TicketReference{}, malformed("missing eventId")
	}
	if wire.IssuedAt != "" {
		issuedAt, err := time.Parse(time.RFC3339Nano, wire.IssuedAt)
		if err != nil {
			return models.TicketReference{}, malformed("bad issuedAt: %v", err)
		}
		ref.IssuedAt = issuedAt.UTC()
	}
	return ref, nil
}

// Encode is the inverse of Decode. It is deterministic, so fixtures built
// from the same reference are byte-identical.
func (c *Codec) Encode(ref models.TicketReference) (string, error) {
	ticketID, eventID := strings.TrimSpace(ref.TicketID), strings.TrimSpace(ref.EventID)
	if ticketID == "" || eventID == "" {
		return "", fmt.Errorf("encode reference: ticket and event ids are required")
	}
	wire := wirePayload{
		TicketID:   ticketID,
		EventID:    eventID,
		EventTitle: ref.EventTitle,
		TicketType: ref.TicketType,
		HolderID:   ref.HolderID,
	}
	if !ref.IssuedAt.IsZero() {
		wire.IssuedAt = ref.IssuedAt.UTC().Format(time.RFC3339Nano)
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return "", err
	}
	if !c.Sealed() {
		return string(data), nil
	}
	return c.seal(data)
}

func (c *Codec) seal(data []byte) (string, error) {
	gcm, err := c.aead()
	if err != nil {
		return "", err
	}
	// Nonce derived from the plaintext keeps Encode a pure function.
	mac := hmac.New(sha256.New, c.key)
	mac.Write(data)
	nonce := mac.Sum(nil)[:gcm.NonceSize()]

	sealed := gcm.Seal(nonce, nonce, data, nil)
	return sealedPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (c *Codec) open(raw string) ([]byte, error) {
	if !strings.HasPrefix(raw, sealedPrefix) {
		return nil, malformed("not a sealed ticket payload")
	}
	sealed, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(raw, sealedPrefix))
	if err != nil {
		return nil, malformed("bad encoding: %v", err)
	}
	gcm, err := c.aead()
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize()+gcm.Overhead() {
		return nil, malformed("sealed payload too short")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	data, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, malformed("payload failed authentication")
	}
	return data, nil
}

func (c *Codec) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedPayload, fmt.Sprintf(format, args...))
}
