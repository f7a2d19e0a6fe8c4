package checkin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ms-checkin/internal/metrics"
	"ms-checkin/internal/models"

	"github.com/google/uuid"
)

var (
	ErrSessionNotFound  = errors.New("scanning session not found")
	ErrSessionForbidden = errors.New("scanning session belongs to another scanner")
)

// Session is one scanner working one event's door. It owns the recent
// validations ring and the last stats snapshot; nothing else shares them.
type Session struct {
	ID        string
	EventID   string
	ScannerID string
	StartedAt time.Time

	service *Service
	recent  *RecentValidations

	mu        sync.Mutex
	lastStats *models.EventStats
	lastUsed  time.Time
}

func (s *Service) NewSession(eventID, scannerID string, recentSize int) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        uuid.NewString(),
		EventID:   eventID,
		ScannerID: scannerID,
		StartedAt: now,
		service:   s,
		recent:    NewRecentValidations(recentSize),
		lastUsed:  now,
	}
}

// Scan checks in a QR code at this session's event. Admissions refresh the
// session stats; a failed refresh keeps the previous snapshot.
func (sess *Session) Scan(ctx context.Context, raw string) (Outcome, error) {
	sess.touch()
	ref, out, err := sess.service.scan(ctx, raw, sess.ScannerID, sess.EventID)
	if err != nil {
		return Outcome{}, err
	}
	sess.record(ctx, ref, out)
	return out, nil
}

func (sess *Session) CheckInByEmail(ctx context.Context, email string) (Outcome, error) {
	sess.touch()
	ref, out, err := sess.service.checkInByEmail(ctx, email, sess.ScannerID, sess.EventID)
	if err != nil {
		return Outcome{}, err
	}
	sess.record(ctx, ref, out)
	return out, nil
}

// Stats recomputes the event stats from the store.
func (sess *Session) Stats(ctx context.Context) (models.EventStats, error) {
	sess.touch()
	stats, err := sess.service.EventStats(ctx, sess.EventID)
	if err != nil {
		return models.EventStats{}, err
	}
	sess.mu.Lock()
	sess.lastStats = &stats
	sess.mu.Unlock()
	return stats, nil
}

// LastStats returns the most recent snapshot without touching the store.
func (sess *Session) LastStats() (models.EventStats, bool) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.lastStats == nil {
		return models.EventStats{}, false
	}
	return *sess.lastStats, true
}

// Recent returns the latest attempts, most recent first.
func (sess *Session) Recent() []ValidationAttempt {
	return sess.recent.List()
}

func (sess *Session) record(ctx context.Context, ref models.TicketReference, out Outcome) {
	sess.recent.Add(ValidationAttempt{
		Reference:      ref,
		ScannerUserID:  sess.ScannerID,
		ScannedEventID: sess.EventID,
		Timestamp:      time.Now().UTC(),
		Outcome:        out,
	})
	if out.Admitted() && !out.Replayed {
		if _, err := sess.Stats(ctx); err != nil {
			sess.service.Logger.Warn("STATS", fmt.Sprintf("stats refresh for %s failed: %v", sess.EventID, err))
		}
	}
}

func (sess *Session) touch() {
	sess.mu.Lock()
	sess.lastUsed = time.Now()
	sess.mu.Unlock()
}

func (sess *Session) idleSince() time.Time {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.lastUsed
}

// Registry holds the open sessions of this process.
type Registry struct {
	mu         sync.RWMutex
	sessions   map[string]*Session
	service    *Service
	recentSize int
}

func NewRegistry(service *Service, recentSize int) *Registry {
	return &Registry{
		sessions:   make(map[string]*Session),
		service:    service,
		recentSize: recentSize,
	}
}

func (r *Registry) Open(eventID, scannerID string) *Session {
	sess := r.service.NewSession(eventID, scannerID, r.recentSize)

	r.mu.Lock()
	r.sessions[sess.ID] = sess
	n := len(r.sessions)
	r.mu.Unlock()

	metrics.SetActiveSessions(n)
	r.service.Logger.LogScan(scannerID, eventID, fmt.Sprintf("session %s opened", sess.ID))
	return sess
}

// Get returns the session if scannerID owns it.
func (r *Registry) Get(id, scannerID string) (*Session, error) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if sess.ScannerID != scannerID {
		return nil, ErrSessionForbidden
	}
	return sess, nil
}

func (r *Registry) Close(id, scannerID string) error {
	if _, err := r.Get(id, scannerID); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()

	metrics.SetActiveSessions(n)
	r.service.Logger.Info("SCAN", fmt.Sprintf("session %s closed", id))
	return nil
}

// Sweep drops sessions idle for longer than ttl and returns how many went.
func (r *Registry) Sweep(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	r.mu.Lock()
	removed := 0
	for id, sess := range r.sessions {
		if sess.idleSince().Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()

	if removed > 0 {
		metrics.SetActiveSessions(n)
		r.service.Logger.Info("SCAN", fmt.Sprintf("swept %d idle sessions", removed))
	}
	return removed
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
