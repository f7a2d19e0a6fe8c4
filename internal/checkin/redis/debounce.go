package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-checkin/internal/checkin"
	"ms-checkin/internal/logger"

	"github.com/go-redis/redis/v8"
)

const DefaultWindow = 1500 * time.Millisecond

var _ checkin.Debouncer = (*Redis)(nil)

// Redis remembers the last outcome per scanner and ticket for a short
// window. Only business outcomes are stored; store failures are never cached.
type Redis struct {
	Client *redis.Client
	Window time.Duration
	Logger *logger.Logger
}

func NewRedis(client *redis.Client, window time.Duration, log *logger.Logger) *Redis {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Redis{Client: client, Window: window, Logger: log}
}

func outcomeKey(scannerID, eventID, ticketID string) string {
	return fmt.Sprintf("scan_outcome:%s:%s:%s", scannerID, eventID, ticketID)
}

// Recall returns the remembered outcome, or nil when the window has passed.
func (r *Redis) Recall(ctx context.Context, scannerID, eventID, ticketID string) (*checkin.Outcome, error) {
	data, err := r.Client.Get(ctx, outcomeKey(scannerID, eventID, ticketID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read scan outcome: %w", err)
	}

	var out checkin.Outcome
	if err := json.Unmarshal(data, &out); err != nil {
		// A corrupt entry is just a miss.
		r.Logger.Warn("REDIS", fmt.Sprintf("dropping unreadable scan outcome: %v", err))
		r.Client.Del(ctx, outcomeKey(scannerID, eventID, ticketID))
		return nil, nil
	}
	return &out, nil
}

// Remember stores the outcome unless one is already held, so the window runs
// from the first scan and is not extended by replays.
func (r *Redis) Remember(ctx context.Context, scannerID, eventID, ticketID string, out checkin.Outcome) error {
	out.Replayed = false
	data, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode scan outcome: %w", err)
	}
	if err := r.Client.SetNX(ctx, outcomeKey(scannerID, eventID, ticketID), data, r.Window).Err(); err != nil {
		return fmt.Errorf("store scan outcome: %w", err)
	}
	return nil
}
