package checkin_test

import (
	"context"
	"strings"
	"sync"
	"time"

	"ms-checkin/internal/models"
	"ms-checkin/internal/tickets/db"

	"github.com/stretchr/testify/mock"
)

// memStore keeps tickets in a map and applies the conditional write under a
// lock, the same contract the SQL store gives.
type memStore struct {
	mu      sync.Mutex
	tickets map[string]models.Ticket

	getErr    error
	commitErr error
	countErr  error
	getDelay  time.Duration
	getCalls  int
}

func newMemStore(tickets ...models.Ticket) *memStore {
	s := &memStore{tickets: make(map[string]models.Ticket)}
	for _, t := range tickets {
		s.tickets[t.ID] = t
	}
	return s
}

func (s *memStore) GetTicketByID(ctx context.Context, id string) (*models.Ticket, error) {
	s.mu.Lock()
	s.getCalls++
	delay, getErr := s.getDelay, s.getErr
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if getErr != nil {
		return nil, getErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return nil, db.ErrTicketNotFound
	}
	return &t, nil
}

func (s *memStore) ConditionallyValidateTicket(ctx context.Context, id, validatorID string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commitErr != nil {
		return false, s.commitErr
	}
	t, ok := s.tickets[id]
	if !ok || t.Status != models.TicketStatusConfirmed || t.ValidatedAt != nil {
		return false, nil
	}
	t.ValidatedAt = &now
	t.ValidatedBy = validatorID
	s.tickets[id] = t
	return true, nil
}

func (s *memStore) FindTicketsByEmail(ctx context.Context, eventID, email string) ([]models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Ticket
	for _, t := range s.tickets {
		if t.EventID == eventID && strings.EqualFold(t.AttendeeEmail, email) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memStore) FindAnyTicketByEmail(ctx context.Context, email string) (*models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tickets {
		if strings.EqualFold(t.AttendeeEmail, email) {
			return &t, nil
		}
	}
	return nil, db.ErrTicketNotFound
}

func (s *memStore) CountConfirmedTickets(ctx context.Context, eventID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countErr != nil {
		return 0, s.countErr
	}
	n := 0
	for _, t := range s.tickets {
		if t.EventID == eventID && t.Status == models.TicketStatusConfirmed {
			n++
		}
	}
	return n, nil
}

func (s *memStore) CountValidatedTickets(ctx context.Context, eventID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countErr != nil {
		return 0, s.countErr
	}
	n := 0
	for _, t := range s.tickets {
		if t.EventID == eventID && t.Status == models.TicketStatusConfirmed && t.ValidatedAt != nil {
			n++
		}
	}
	return n, nil
}

func (s *memStore) ticket(id string) models.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tickets[id]
}

func (s *memStore) gets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getCalls
}

// MockStore is a testify mock of the check-in store.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetTicketByID(ctx context.Context, id string) (*models.Ticket, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Ticket), args.Error(1)
}

func (m *MockStore) ConditionallyValidateTicket(ctx context.Context, id, validatorID string, now time.Time) (bool, error) {
	args := m.Called(ctx, id, validatorID, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockStore) FindTicketsByEmail(ctx context.Context, eventID, email string) ([]models.Ticket, error) {
	args := m.Called(ctx, eventID, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Ticket), args.Error(1)
}

func (m *MockStore) FindAnyTicketByEmail(ctx context.Context, email string) (*models.Ticket, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Ticket), args.Error(1)
}

func (m *MockStore) CountConfirmedTickets(ctx context.Context, eventID string) (int, error) {
	args := m.Called(ctx, eventID)
	return args.Int(0), args.Error(1)
}

func (m *MockStore) CountValidatedTickets(ctx context.Context, eventID string) (int, error) {
	args := m.Called(ctx, eventID)
	return args.Int(0), args.Error(1)
}

func confirmedTicket(id, eventID string) models.Ticket {
	return models.Ticket{
		ID:            id,
		EventID:       eventID,
		HolderID:      "holder-" + id,
		TicketType:    "General",
		Status:        models.TicketStatusConfirmed,
		AttendeeName:  "Ada " + id,
		AttendeeEmail: id + "@example.com",
		IssuedAt:      time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
	}
}
