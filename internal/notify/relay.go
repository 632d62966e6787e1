package notify

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/splax/backendless/internal/ws"
)

// Broadcaster receives relayed events.
type Broadcaster interface {
	Broadcast(ws.Event)
}

// Relay forwards lifecycle messages from Redis to live websocket subscribers.
type Relay struct {
	client redis.UniversalClient
	target Broadcaster
	log    *slog.Logger
}

// NewRelay builds a relay.
func NewRelay(client redis.UniversalClient, target Broadcaster, log *slog.Logger) *Relay {
	if log == nil {
		log = slog.Default()
	}
	return &Relay{client: client, target: target, log: log}
}

// Run subscribes to the lifecycle channels and forwards messages until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, ChannelPublish, ChannelDelete)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	r.log.Info("event relay subscribed", "channels", []string{ChannelPublish, ChannelDelete})

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			r.forward(msg.Channel, msg.Payload)
		}
	}
}

func (r *Relay) forward(channel, projectID string) {
	if projectID == "" {
		r.log.Warn("ignoring lifecycle message without project id", "channel", channel)
		return
	}
	r.log.Debug("relaying lifecycle event", "channel", channel, "project_id", projectID)
	r.target.Broadcast(ws.Event{Event: channel, ProjectID: projectID})
}
