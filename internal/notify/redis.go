// Package notify fans job state transitions out to external subscribers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"fetchd/internal/config"
	"fetchd/internal/jobs"
)

// Event is the message published for every job transition.
type Event struct {
	Type string    `json:"type"`
	Job  jobs.View `json:"job"`
	At   time.Time `json:"at"`
}

// RedisPublisher publishes job events to a Redis pub/sub channel. It
// satisfies jobs.Publisher.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher connects to the Redis server named by url. It does not
// dial; the first Publish or Ping does.
func NewRedisPublisher(url, channel string) (*RedisPublisher, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if channel == "" {
		channel = config.DefaultRedisChannel
	}
	return &RedisPublisher{client: redis.NewClient(opt), channel: channel}, nil
}

// FromConfig returns nil when no Redis URL is configured.
func FromConfig(cfg *config.Config) (*RedisPublisher, error) {
	if cfg.Redis.URL == "" {
		return nil, nil
	}
	return NewRedisPublisher(cfg.Redis.URL, cfg.Redis.Channel)
}

func (p *RedisPublisher) Channel() string {
	return p.channel
}

func (p *RedisPublisher) Publish(ctx context.Context, view jobs.View) error {
	payload, err := encodeEvent(view, time.Now().UTC())
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", p.channel, err)
	}
	return nil
}

// Ping checks connectivity; used by the deep health check.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

func encodeEvent(view jobs.View, at time.Time) ([]byte, error) {
	b, err := json.Marshal(Event{
		Type: "job." + string(view.State),
		Job:  view,
		At:   at,
	})
	if err != nil {
		return nil, fmt.Errorf("encode job event: %w", err)
	}
	return b, nil
}
