package store

import (
	"context"
	"errors"
	"log"

	"github.com/redis/go-redis/v9"
)

// changeChannel is the pub/sub channel snapshot writes are announced
// on. Every SetItem/RemoveItem publishes the mutated key here, which
// plays the role the browser "storage" event played for the original
// site: other sessions learn about a write without polling.
const changeChannel = "vendor_store.changes"

// RedisStore implements Store on a Redis connection. Each key holds a
// whole snapshot string; there are no per-record structures, so the
// last full write wins by construction.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing Redis client. The client must be
// non-nil; callers that got nil from the connection helper should
// fall back to NewMemoryStore instead.
func NewRedisStore(client *redis.Client) *RedisStore {
	if client == nil {
		panic("nil redis client passed to NewRedisStore")
	}
	return &RedisStore{client: client}
}

// GetItem returns the snapshot stored under key.
func (s *RedisStore) GetItem(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// SetItem replaces the snapshot under key and announces the change.
func (s *RedisStore) SetItem(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return err
	}
	s.announce(ctx, key)
	return nil
}

// RemoveItem deletes key and announces the change.
func (s *RedisStore) RemoveItem(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return err
	}
	s.announce(ctx, key)
	return nil
}

// announce publishes the mutated key. Publish failures are logged and
// swallowed: the periodic fingerprint poll catches whatever a lost
// notification would have delivered.
func (s *RedisStore) announce(ctx context.Context, key string) {
	if err := s.client.Publish(ctx, changeChannel, key).Err(); err != nil {
		log.Printf("store: publish change for %q failed: %v", key, err)
	}
}

// Subscribe listens on the change channel and converts messages into
// Change values. The returned cancel function closes the subscription
// and the channel.
func (s *RedisStore) Subscribe(ctx context.Context) (<-chan Change, func(), error) {
	pubsub := s.client.Subscribe(ctx, changeChannel)
	// Force the subscription to be established before returning so a
	// write issued right after Subscribe is not missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}
	out := make(chan Change, 16)
	go func() {
		defer close(out)
		for msg := range pubsub.Channel() {
			select {
			case out <- Change{Key: msg.Payload}:
			case <-ctx.Done():
				return
			}
		}
	}()
	cancel := func() { _ = pubsub.Close() }
	return out, cancel, nil
}
