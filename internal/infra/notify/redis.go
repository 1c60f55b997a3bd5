package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/deepukochumon/ecg-analyzer/internal/domain/ecg"
)

const defaultChannel = "ecg:notifications"

// Redis publishes notifications as JSON on a pub/sub channel so other
// front ends can relay them to the user.
type Redis struct {
	inner   *redis.Client
	channel string
}

// NewRedis connects and pings the server.
func NewRedis(addr, password string, db int, channel string) (*Redis, error) {
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	if channel == "" {
		channel = defaultChannel
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{inner: client, channel: channel}, nil
}

func (r *Redis) Notify(ctx context.Context, n ecg.Notification) error {
	if r == nil || r.inner == nil {
		return errors.New("redis client not initialized")
	}
	b, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return r.inner.Publish(ctx, r.channel, b).Err()
}

// Channel returns the pub/sub channel name.
func (r *Redis) Channel() string {
	return r.channel
}

// Close closes client.
func (r *Redis) Close() error {
	if r == nil || r.inner == nil {
		return nil
	}
	return r.inner.Close()
}

// Check pings the server (health check).
func (r *Redis) Check(ctx context.Context) error {
	if r == nil || r.inner == nil {
		return errors.New("redis client not initialized")
	}
	return r.inner.Ping(ctx).Err()
}
