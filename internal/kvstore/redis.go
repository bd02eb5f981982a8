package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisChannel = "pai-progress:changes"
	redisTimeout        = 3 * time.Second
)

// envelope tags a published change with the publishing store so a store does
// not deliver its own changes twice.
type envelope struct {
	Origin string `json:"origin"`
	Change Change `json:"change"`
}

// RedisStore keeps records in Redis/Dragonfly and shares change notifications
// with every other RedisStore on the same channel (e.g. a second open view of
// the same learner).
type RedisStore struct {
	*Hub
	client  *redis.Client
	channel string
	origin  string
	cancel  context.CancelFunc
}

// NewRedisStore subscribes to channel and starts forwarding remote changes to
// local listeners until Close is called.
func NewRedisStore(ctx context.Context, client *redis.Client, channel string) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if channel == "" {
		channel = defaultRedisChannel
	}

	s := &RedisStore{
		Hub:     NewHub(),
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
	}

	fwdCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	sub := client.Subscribe(ctx, channel)
	// Receive confirms the subscription is live before we return.
	if _, err := sub.Receive(ctx); err != nil {
		cancel()
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	go s.forward(fwdCtx, sub)
	return s, nil
}

func (s *RedisStore) forward(ctx context.Context, sub *redis.PubSub) {
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok || m == nil {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
				slog.Warn("bad change payload", "channel", s.channel, "error", err)
				continue
			}
			if env.Origin == s.origin {
				continue
			}
			s.Hub.Publish(env.Change)
		}
	}
}

func (s *RedisStore) Get(key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *RedisStore) Set(key, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Remove(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// Publish notifies local listeners immediately and then broadcasts c to other
// stores on the channel. Broadcast failures are logged, not returned.
func (s *RedisStore) Publish(c Change) {
	s.Hub.Publish(c)

	raw, err := json.Marshal(envelope{Origin: s.origin, Change: c})
	if err != nil {
		slog.Warn("marshal change failed", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()
	if err := s.client.Publish(ctx, s.channel, raw).Err(); err != nil {
		slog.Warn("redis publish failed", "channel", s.channel, "error", err)
	}
}

// Close stops the forwarder. The client belongs to the caller.
func (s *RedisStore) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}
