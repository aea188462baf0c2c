// Package backplane is the extension point for sharing presence across
// serving processes. The registry itself is in-process memory, so a
// multi-instance deployment needs an external pub/sub layer; publishers
// here announce presence transitions to that layer. Call sites never
// branch on which implementation is installed.
package backplane

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Publisher announces presence transitions beyond this process.
type Publisher interface {
	PresenceChanged(ctx context.Context, userID, status string) error
	Close() error
}

// Noop is the default publisher for single-instance deployments.
type Noop struct{}

var _ Publisher = Noop{}

func (Noop) PresenceChanged(context.Context, string, string) error { return nil }
func (Noop) Close() error                                          { return nil }

// Redis publishes presence transitions to a Redis pub/sub channel.
type Redis struct {
	client  *redis.Client
	channel string
}

var _ Publisher = (*Redis)(nil)

// NewRedis connects to the given Redis URL and verifies the connection.
func NewRedis(url, channel string) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("backplane: parse url: %w", err)
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("backplane: ping: %w", err)
	}
	return &Redis{client: c, channel: channel}, nil
}

type presenceEvent struct {
	UserID string `json:"user_id"`
	Status string `json:"status"`
	AtMs   int64  `json:"at_ms"`
}

func (r *Redis) PresenceChanged(ctx context.Context, userID, status string) error {
	data, err := json.Marshal(presenceEvent{
		UserID: userID,
		Status: status,
		AtMs:   time.Now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, data).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
