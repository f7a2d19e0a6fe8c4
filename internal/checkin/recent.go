package checkin

import (
	"sync"
	"time"

	"ms-checkin/internal/models"
)

const DefaultRecentSize = 5

// ValidationAttempt is one scan as the operator saw it. It is kept only in
// memory for feedback at the door.
type ValidationAttempt struct {
	Reference      models.TicketReference `json:"reference"`
	ScannerUserID  string                 `json:"scanner_user_id"`
	ScannedEventID string                 `json:"scanned_event_id"`
	Timestamp      time.Time              `json:"timestamp"`
	Outcome        Outcome                `json:"outcome"`
}

// RecentValidations is a fixed-size ring of the latest attempts. The zero
// value holds DefaultRecentSize attempts.
type RecentValidations struct {
	mu    sync.Mutex
	items []ValidationAttempt
	next  int
	count int
}

func NewRecentValidations(size int) *RecentValidations {
	if size <= 0 {
		size = DefaultRecentSize
	}
	return &RecentValidations{items: make([]ValidationAttempt, size)}
}

func (r *RecentValidations) Add(attempt ValidationAttempt) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.items) == 0 {
		r.items = make([]ValidationAttempt, DefaultRecentSize)
	}
	r.items[r.next] = attempt
	r.next = (r.next + 1) % len(r.items)
	if r.count < len(r.items) {
		r.count++
	}
}

// List returns a copy, most recent first.
func (r *RecentValidations) List() []ValidationAttempt {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]ValidationAttempt, 0, r.count)
	for i := 1; i <= r.count; i++ {
		idx := (r.next - i + len(r.items)) % len(r.items)
		out = append(out, r.items[idx])
	}
	return out
}

func (r *RecentValidations) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
