// Package notify publishes deployment lifecycle events for downstream consumers.
package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Lifecycle channels. The message is always the project identifier.
const (
	ChannelPublish = "publish"
	ChannelDelete  = "delete"
)

// Publisher broadcasts a message on a named channel. Delivery is at most once.
type Publisher interface {
	Publish(ctx context.Context, channel, message string) error
}

// RedisPublisher publishes through Redis PUBLISH.
type RedisPublisher struct {
	client redis.UniversalClient
}

var _ Publisher = (*RedisPublisher)(nil)

// NewRedisPublisher wraps an existing client. The client is owned by the caller.
func NewRedisPublisher(client redis.UniversalClient) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// Publish sends message on channel.
func (p *RedisPublisher) Publish(ctx context.Context, channel, message string) error {
	if err := p.client.Publish(ctx, channel, message).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}
