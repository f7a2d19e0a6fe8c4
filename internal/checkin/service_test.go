package checkin_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ms-checkin/internal/checkin"
	"ms-checkin/internal/models"
	"ms-checkin/internal/tickets/qr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestService(store checkin.Store) *checkin.Service {
	return checkin.NewService(store, qr.NewCodec(""), time.Second, time.Second, nil)
}

func payloadFor(t *testing.T, svc *checkin.Service, tk models.Ticket) string {
	t.Helper()
	raw, err := svc.Codec.Encode(models.ReferenceFromTicket(tk))
	require.NoError(t, err)
	return raw
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []models.CheckinEvent
	err    error
}

func (n *recordingNotifier) NotifyCheckin(ctx context.Context, event models.CheckinEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

func TestScan_AdmitsConfirmedTicketOnce(t *testing.T) {
	store := newMemStore(confirmedTicket("t1", "E1"))
	svc := newTestService(store)
	notifier := &recordingNotifier{}
	svc.Notifier = notifier
	raw := payloadFor(t, svc, store.ticket("t1"))

	out, err := svc.Scan(context.Background(), raw, "scanner-A", "E1")
	require.NoError(t, err)
	assert.True(t, out.Admitted())
	assert.Equal(t, "t1", out.TicketID)
	require.NotNil(t, out.ValidatedAt)
	assert.Equal(t, "scanner-A", out.ValidatedBy)
	require.NotNil(t, out.Attendee)
	assert.Equal(t, "Ada t1", out.Attendee.Name)

	stored := store.ticket("t1")
	require.NotNil(t, stored.ValidatedAt)
	assert.Equal(t, "scanner-A", stored.ValidatedBy)
	assert.Equal(t, 1, notifier.count())
	assert.Equal(t, models.CheckinMethodQR, notifier.events[0].Method)

	// Second scan by another scanner sees the first check-in.
	out, err = svc.Scan(context.Background(), raw, "scanner-B", "E1")
	require.NoError(t, err)
	assert.False(t, out.Admitted())
	assert.Equal(t, checkin.ReasonAlreadyCheckedIn, out.Reason)
	assert.Equal(t, "scanner-A", out.ValidatedBy)
	assert.Equal(t, stored.ValidatedAt, out.ValidatedAt)
	assert.Equal(t, 1, notifier.count())
}

func TestScan_WrongEventLeavesTicketUntouched(t *testing.T) {
	store := newMemStore(confirmedTicket("t1", "E2"))
	svc := newTestService(store)
	raw := payloadFor(t, svc, store.ticket("t1"))

	out, err := svc.Scan(context.Background(), raw, "scanner-A", "E1")
	require.NoError(t, err)
	assert.Equal(t, checkin.ReasonWrongEvent, out.Reason)
	assert.Nil(t, store.ticket("t1").ValidatedAt)
}

func TestScan_UnconfirmedTickets(t *testing.T) {
	for _, status := range []models.TicketStatus{models.TicketStatusPending, models.TicketStatusCancelled, models.TicketStatusRefunded} {
		t.Run(string(status), func(t *testing.T) {
			tk := confirmedTicket("t1", "E1")
			tk.Status = status
			store := newMemStore(tk)
			svc := newTestService(store)

			out, err := svc.Scan(context.Background(), payloadFor(t, svc, tk), "scanner-A", "E1")
			require.NoError(t, err)
			assert.Equal(t, checkin.ReasonInvalidStatus, out.Reason)
			assert.Equal(t, status, out.Status)
			assert.Nil(t, store.ticket("t1").ValidatedAt)
		})
	}
}

func TestScan_UnknownTicket(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store)
	raw := payloadFor(t, svc, confirmedTicket("ghost", "E1"))

	out, err := svc.Scan(context.Background(), raw, "scanner-A", "E1")
	require.NoError(t, err)
	assert.Equal(t, checkin.ReasonTicketNotFound, out.Reason)
	assert.Equal(t, "ghost", out.TicketID)
}

func TestScan_MalformedPayloadSkipsStore(t *testing.T) {
	store := new(MockStore)
	svc := newTestService(store)

	for _, raw := range []string{"", "not-json", "hello", `{"eventId":"E1"}`, "{not json"} {
		out, err := svc.Scan(context.Background(), raw, "scanner-A", "E1")
		require.NoError(t, err)
		assert.Equal(t, checkin.ReasonMalformedPayload, out.Reason)
	}
	store.AssertNotCalled(t, "GetTicketByID", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "ConditionallyValidateTicket", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestScan_LookupFailureIsRetryable(t *testing.T) {
	store := newMemStore(confirmedTicket("t1", "E1"))
	store.getErr = errors.New("connection refused")
	svc := newTestService(store)

	_, err := svc.Scan(context.Background(), payloadFor(t, svc, store.ticket("t1")), "scanner-A", "E1")
	require.Error(t, err)
	assert.ErrorIs(t, err, checkin.ErrLookupFailed)
	assert.Nil(t, store.ticket("t1").ValidatedAt)
}

func TestScan_LookupTimeoutIsLookupFailed(t *testing.T) {
	store := newMemStore(confirmedTicket("t1", "E1"))
	store.getDelay = time.Second
	svc := checkin.NewService(store, qr.NewCodec(""), 20*time.Millisecond, time.Second, nil)

	_, err := svc.Scan(context.Background(), payloadFor(t, svc, store.ticket("t1")), "scanner-A", "E1")
	require.Error(t, err)
	assert.ErrorIs(t, err, checkin.ErrLookupFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestScan_TicketWithoutEventIsLookupFailed(t *testing.T) {
	tk := confirmedTicket("t1", "")
	store := new(MockStore)
	store.On("GetTicketByID", mock.Anything, "t1").Return(&tk, nil)
	svc := newTestService(store)

	raw, err := svc.Codec.Encode(models.TicketReference{TicketID: "t1", EventID: "E1"})
	require.NoError(t, err)

	_, err = svc.Scan(context.Background(), raw, "scanner-A", "E1")
	assert.ErrorIs(t, err, checkin.ErrLookupFailed)
	store.AssertNotCalled(t, "ConditionallyValidateTicket", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestScan_CommitFailureIsRetryable(t *testing.T) {
	store := newMemStore(confirmedTicket("t1", "E1"))
	store.commitErr = errors.New("write timeout")
	svc := newTestService(store)
	notifier := &recordingNotifier{}
	svc.Notifier = notifier

	_, err := svc.Scan(context.Background(), payloadFor(t, svc, store.ticket("t1")), "scanner-A", "E1")
	assert.ErrorIs(t, err, checkin.ErrCommitFailed)
	assert.Equal(t, 0, notifier.count())
}

func TestScan_LostRaceReportsAlreadyCheckedIn(t *testing.T) {
	tk := confirmedTicket("t1", "E1")
	won := tk
	at := time.Date(2026, 10, 1, 20, 0, 0, 0, time.UTC)
	won.ValidatedAt = &at
	won.ValidatedBy = "scanner-B"

	store := new(MockStore)
	store.On("GetTicketByID", mock.Anything, "t1").Return(&tk, nil).Once()
	store.On("ConditionallyValidateTicket", mock.Anything, "t1", "scanner-A", mock.Anything).Return(false, nil).Once()
	store.On("GetTicketByID", mock.Anything, "t1").Return(&won, nil).Once()
	svc := newTestService(store)

	out, err := svc.Scan(context.Background(), payloadFor(t, svc, tk), "scanner-A", "E1")
	require.NoError(t, err)
	assert.Equal(t, checkin.ReasonAlreadyCheckedIn, out.Reason)
	assert.Equal(t, "scanner-B", out.ValidatedBy)
	store.AssertExpectations(t)
}

func TestScan_LostRaceToCancellation(t *testing.T) {
	tk := confirmedTicket("t1", "E1")
	cancelled := tk
	cancelled.Status = models.TicketStatusCancelled

	store := new(MockStore)
	store.On("GetTicketByID", mock.Anything, "t1").Return(&tk, nil).Once()
	store.On("ConditionallyValidateTicket", mock.Anything, "t1", "scanner-A", mock.Anything).Return(false, nil).Once()
	store.On("GetTicketByID", mock.Anything, "t1").Return(&cancelled, nil).Once()
	svc := newTestService(store)

	out, err := svc.Scan(context.Background(), payloadFor(t, svc, tk), "scanner-A", "E1")
	require.NoError(t, err)
	assert.Equal(t, checkin.ReasonInvalidStatus, out.Reason)
}

func TestScan_ConcurrentScannersAdmitExactlyOnce(t *testing.T) {
	store := newMemStore(confirmedTicket("t1", "E1"), confirmedTicket("t2", "E1"))
	svc := newTestService(store)
	raw := payloadFor(t, svc, store.ticket("t1"))

	before, err := svc.EventStats(context.Background(), "E1")
	require.NoError(t, err)

	const scanners = 25
	outcomes := make([]checkin.Outcome, scanners)
	var wg sync.WaitGroup
	for i := 0; i < scanners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := svc.Scan(context.Background(), raw, "scanner-"+string(rune('A'+i)), "E1")
			assert.NoError(t, err)
			outcomes[i] = out
		}(i)
	}
	wg.Wait()

	admitted := 0
	for _, out := range outcomes {
		if out.Admitted() {
			admitted++
			continue
		}
		assert.Equal(t, checkin.ReasonAlreadyCheckedIn, out.Reason)
	}
	assert.Equal(t, 1, admitted)

	after, err := svc.EventStats(context.Background(), "E1")
	require.NoError(t, err)
	assert.Equal(t, before.CheckedIn+1, after.CheckedIn)
	assert.Equal(t, before.Pending-1, after.Pending)
	assert.Equal(t, after.TotalConfirmedTickets, after.CheckedIn+after.Pending)
}

func TestEventStats(t *testing.T) {
	validated := confirmedTicket("t3", "E1")
	at := time.Now()
	validated.ValidatedAt = &at
	cancelled := confirmedTicket("t4", "E1")
	cancelled.Status = models.TicketStatusCancelled

	store := newMemStore(confirmedTicket("t1", "E1"), confirmedTicket("t2", "E1"), validated, cancelled, confirmedTicket("t5", "E2"))
	svc := newTestService(store)

	stats, err := svc.EventStats(context.Background(), "E1")
	require.NoError(t, err)
	assert.Equal(t, "E1", stats.EventID)
	assert.Equal(t, 3, stats.TotalConfirmedTickets)
	assert.Equal(t, 1, stats.CheckedIn)
	assert.Equal(t, 2, stats.Pending)
	assert.False(t, stats.RefreshedAt.IsZero())

	store.countErr = errors.New("db down")
	_, err = svc.EventStats(context.Background(), "E1")
	assert.ErrorIs(t, err, checkin.ErrLookupFailed)
}

func TestScan_NotifierFailureDoesNotUndoCheckin(t *testing.T) {
	store := newMemStore(confirmedTicket("t1", "E1"))
	svc := newTestService(store)
	svc.Notifier = &recordingNotifier{err: errors.New("broker down")}

	out, err := svc.Scan(context.Background(), payloadFor(t, svc, store.ticket("t1")), "scanner-A", "E1")
	require.NoError(t, err)
	assert.True(t, out.Admitted())
	assert.NotNil(t, store.ticket("t1").ValidatedAt)
}

func TestCheckInByEmail(t *testing.T) {
	t.Run("admits the attendee's ticket", func(t *testing.T) {
		store := newMemStore(confirmedTicket("t1", "E1"))
		svc := newTestService(store)
		notifier := &recordingNotifier{}
		svc.Notifier = notifier

		out, err := svc.CheckInByEmail(context.Background(), "  T1@Example.com ", "scanner-A", "E1")
		require.NoError(t, err)
		assert.True(t, out.Admitted())
		assert.NotNil(t, store.ticket("t1").ValidatedAt)
		require.Equal(t, 1, notifier.count())
		assert.Equal(t, models.CheckinMethodManual, notifier.events[0].Method)
	})

	t.Run("prefers an admissible ticket", func(t *testing.T) {
		used := confirmedTicket("a", "E1")
		at := time.Now()
		used.ValidatedAt = &at
		fresh := confirmedTicket("b", "E1")
		fresh.AttendeeEmail = used.AttendeeEmail

		store := new(MockStore)
		store.On("FindTicketsByEmail", mock.Anything, "E1", used.AttendeeEmail).Return([]models.Ticket{used, fresh}, nil)
		store.On("ConditionallyValidateTicket", mock.Anything, "b", "scanner-A", mock.Anything).Return(true, nil)
		svc := newTestService(store)

		out, err := svc.CheckInByEmail(context.Background(), used.AttendeeEmail, "scanner-A", "E1")
		require.NoError(t, err)
		assert.True(t, out.Admitted())
		assert.Equal(t, "b", out.TicketID)
		store.AssertExpectations(t)
	})

	t.Run("second manual check-in is already checked in", func(t *testing.T) {
		store := newMemStore(confirmedTicket("t1", "E1"))
		svc := newTestService(store)

		_, err := svc.CheckInByEmail(context.Background(), "t1@example.com", "scanner-A", "E1")
		require.NoError(t, err)
		out, err := svc.CheckInByEmail(context.Background(), "t1@example.com", "scanner-B", "E1")
		require.NoError(t, err)
		assert.Equal(t, checkin.ReasonAlreadyCheckedIn, out.Reason)
	})

	t.Run("ticket for another event", func(t *testing.T) {
		store := newMemStore(confirmedTicket("t1", "E2"))
		svc := newTestService(store)

		out, err := svc.CheckInByEmail(context.Background(), "t1@example.com", "scanner-A", "E1")
		require.NoError(t, err)
		assert.Equal(t, checkin.ReasonWrongEvent, out.Reason)
		assert.Nil(t, store.ticket("t1").ValidatedAt)
	})

	t.Run("unknown email", func(t *testing.T) {
		svc := newTestService(newMemStore())

		out, err := svc.CheckInByEmail(context.Background(), "nobody@example.com", "scanner-A", "E1")
		require.NoError(t, err)
		assert.Equal(t, checkin.ReasonTicketNotFound, out.Reason)
	})

	t.Run("blank email", func(t *testing.T) {
		store := new(MockStore)
		svc := newTestService(store)

		out, err := svc.CheckInByEmail(context.Background(), "   ", "scanner-A", "E1")
		require.NoError(t, err)
		assert.Equal(t, checkin.ReasonTicketNotFound, out.Reason)
		store.AssertNotCalled(t, "FindTicketsByEmail", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("store failure", func(t *testing.T) {
		store := new(MockStore)
		store.On("FindTicketsByEmail", mock.Anything, "E1", "x@example.com").Return(nil, errors.New("db down"))
		svc := newTestService(store)

		_, err := svc.CheckInByEmail(context.Background(), "x@example.com", "scanner-A", "E1")
		assert.ErrorIs(t, err, checkin.ErrLookupFailed)
	})
}

// memDebouncer is a map-backed Debouncer.
type memDebouncer struct {
	mu       sync.Mutex
	outcomes map[string]checkin.Outcome
}

func (d *memDebouncer) key(scannerID, eventID, ticketID string) string {
	return scannerID + "|" + eventID + "|" + ticketID
}

func (d *memDebouncer) Recall(ctx context.Context, scannerID, eventID, ticketID string) (*checkin.Outcome, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out, ok := d.outcomes[d.key(scannerID, eventID, ticketID)]
	if !ok {
		return nil, nil
	}
	return &out, nil
}

func (d *memDebouncer) Remember(ctx context.Context, scannerID, eventID, ticketID string, out checkin.Outcome) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.outcomes == nil {
		d.outcomes = make(map[string]checkin.Outcome)
	}
	d.outcomes[d.key(scannerID, eventID, ticketID)] = out
	return nil
}

func TestScan_DebounceNeverReplaysAnAdmit(t *testing.T) {
	store := newMemStore(confirmedTicket("t1", "E1"))
	svc := newTestService(store)
	svc.Debounce = &memDebouncer{}
	raw := payloadFor(t, svc, store.ticket("t1"))

	first, err := svc.Scan(context.Background(), raw, "scanner-A", "E1")
	require.NoError(t, err)
	require.True(t, first.Admitted())
	assert.False(t, first.Replayed)
	calls := store.gets()

	again, err := svc.Scan(context.Background(), raw, "scanner-A", "E1")
	require.NoError(t, err)
	assert.False(t, again.Admitted())
	assert.Equal(t, checkin.ReasonAlreadyCheckedIn, again.Reason)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.ValidatedAt, again.ValidatedAt)
	assert.Equal(t, "scanner-A", again.ValidatedBy)
	assert.Contains(t, again.Message, "already checked in")
	assert.Equal(t, calls, store.gets())

	// Another scanner is not debounced and gets the real answer.
	other, err := svc.Scan(context.Background(), raw, "scanner-B", "E1")
	require.NoError(t, err)
	assert.Equal(t, checkin.ReasonAlreadyCheckedIn, other.Reason)
}

func TestScan_DebounceRecallOfStoredAdmitIsRejected(t *testing.T) {
	store := newMemStore(confirmedTicket("t1", "E1"))
	svc := newTestService(store)
	debounce := &memDebouncer{}
	svc.Debounce = debounce
	at := time.Date(2026, 10, 1, 19, 0, 0, 0, time.UTC)

	// A debouncer holding a raw admit must still not admit twice.
	require.NoError(t, debounce.Remember(context.Background(), "scanner-A", "E1", "t1", checkin.Outcome{
		Verdict:     checkin.VerdictAdmitted,
		TicketID:    "t1",
		EventID:     "E1",
		ValidatedAt: &at,
		ValidatedBy: "scanner-A",
	}))

	out, err := svc.Scan(context.Background(), payloadFor(t, svc, store.ticket("t1")), "scanner-A", "E1")
	require.NoError(t, err)
	assert.Equal(t, checkin.VerdictRejected, out.Verdict)
	assert.Equal(t, checkin.ReasonAlreadyCheckedIn, out.Reason)
	assert.Equal(t, &at, out.ValidatedAt)
	assert.True(t, out.Replayed)
}

func TestSession_DebouncedRescanRecordsRejection(t *testing.T) {
	store := newMemStore(confirmedTicket("t1", "E1"))
	svc := newTestService(store)
	svc.Debounce = &memDebouncer{}
	sess := svc.NewSession("E1", "scanner-A", 5)
	raw := payloadFor(t, svc, store.ticket("t1"))

	_, err := sess.Scan(context.Background(), raw)
	require.NoError(t, err)
	_, err = sess.Scan(context.Background(), raw)
	require.NoError(t, err)

	recent := sess.Recent()
	require.Len(t, recent, 2)
	assert.Equal(t, checkin.ReasonAlreadyCheckedIn, recent[0].Outcome.Reason)
	assert.True(t, recent[1].Outcome.Admitted())
}

func TestRecorder_SequentialDoubleCommit(t *testing.T) {
	store := newMemStore(confirmedTicket("t1", "E1"))
	fixed := time.Date(2026, 10, 1, 18, 0, 0, 0, time.FixedZone("X", 3600))
	rec := &checkin.Recorder{Store: store, Now: func() time.Time { return fixed }}

	first, err := rec.Commit(context.Background(), "t1", "scanner-A")
	require.NoError(t, err)
	assert.Equal(t, checkin.Committed, first.Status)
	assert.Equal(t, fixed.UTC(), first.ValidatedAt)
	assert.Equal(t, time.UTC, first.ValidatedAt.Location())

	second, err := rec.Commit(context.Background(), "t1", "scanner-B")
	require.NoError(t, err)
	assert.Equal(t, checkin.Conflict, second.Status)
	assert.Equal(t, "scanner-A", store.ticket("t1").ValidatedBy)
}
