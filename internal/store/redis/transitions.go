package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/ipwatch/internal/notify"
)

const (
	// DefaultTTL keeps mirrored keys from outliving an abandoned deployment
	DefaultTTL = 7 * 24 * time.Hour
)

// Store mirrors change events to Redis for external consumers.
// It is write-only: nothing is read back on startup.
type Store struct {
	client   redis.UniversalClient
	keys     Keys
	capacity int64
	ttl      time.Duration
}

// NewStore creates a Redis mirror keeping at most capacity transitions.
func NewStore(client redis.UniversalClient, prefix string, capacity int) *Store {
	if capacity <= 0 {
		capacity = 50
	}
	return &Store{
		client:   client,
		keys:     NewKeys(prefix),
		capacity: int64(capacity),
		ttl:      DefaultTTL,
	}
}

// Name implements notify.Notifier.
func (s *Store) Name() string { return "redis" }

// Notify implements notify.Notifier by recording and publishing the event.
func (s *Store) Notify(ctx context.Context, e notify.Event) error {
	return s.SaveTransition(ctx, e)
}

// SaveTransition writes the event in one pipeline: current hash, capped list, publish.
func (s *Store) SaveTransition(ctx context.Context, e notify.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal transition: %w", err)
	}

	pipe := s.client.TxPipeline()

	pipe.HSet(ctx, s.keys.Current(),
		"value", e.NewValue,
		"previous_value", e.OldValue,
		"observed_at", e.ObservedAt.UTC().Format(time.RFC3339Nano),
		"event_id", e.ID,
	)
	pipe.Expire(ctx, s.keys.Current(), s.ttl)

	pipe.LPush(ctx, s.keys.Transitions(), data)
	pipe.LTrim(ctx, s.keys.Transitions(), 0, s.capacity-1)
	pipe.Expire(ctx, s.keys.Transitions(), s.ttl)

	pipe.Publish(ctx, s.keys.Changes(), data)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save transition: %w", err)
	}
	return nil
}

// Ping reports whether Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
