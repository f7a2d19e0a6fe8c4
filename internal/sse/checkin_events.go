package sse

import (
	"context"
	"sync"

	"ms-checkin/internal/models"
)

const clientBuffer = 16

// CheckinEventEmitter fans check-in events out to live door dashboards,
// one list of subscribers per event.
type CheckinEventEmitter struct {
	mu      sync.RWMutex
	clients map[string][]chan models.CheckinEvent
}

func NewCheckinEventEmitter() *CheckinEventEmitter {
	return &CheckinEventEmitter{
		clients: make(map[string][]chan models.CheckinEvent),
	}
}

// SubscribeToEvent returns a channel of the event's check-ins. The channel is
// closed once ctx is done.
func (e *CheckinEventEmitter) SubscribeToEvent(ctx context.Context, eventID string) <-chan models.CheckinEvent {
	clientChan := make(chan models.CheckinEvent, clientBuffer)

	e.mu.Lock()
	e.clients[eventID] = append(e.clients[eventID], clientChan)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.remove(eventID, clientChan)
	}()

	return clientChan
}

// Emit sends to every subscriber of the event. Slow clients miss events
// instead of stalling the emitter.
func (e *CheckinEventEmitter) Emit(event models.CheckinEvent) {
	// Sends happen under the read lock so remove cannot close a channel mid-send.
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, clientChan := range e.clients[event.EventID] {
		select {
		case clientChan <- event:
		default:
		}
	}
}

// NotifyCheckin lets the emitter serve as the notifier when Kafka is off.
func (e *CheckinEventEmitter) NotifyCheckin(_ context.Context, event models.CheckinEvent) error {
	e.Emit(event)
	return nil
}

func (e *CheckinEventEmitter) remove(eventID string, clientChan chan models.CheckinEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	clients := e.clients[eventID]
	for i, ch := range clients {
		if ch == clientChan {
			e.clients[eventID] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}
	if len(e.clients[eventID]) == 0 {
		delete(e.clients, eventID)
	}
}

// ClientCount returns the number of live subscribers for an event.
func (e *CheckinEventEmitter) ClientCount(eventID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.clients[eventID])
}
