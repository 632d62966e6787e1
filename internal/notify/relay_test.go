package notify

import (
	"io"
	"log/slog"
	"testing"

	"github.com/splax/backendless/internal/ws"
)

type capture struct {
	events []ws.Event
}

func (c *capture) Broadcast(evt ws.Event) { c.events = append(c.events, evt) }

func TestRelayForwardsLifecycleMessages(t *testing.T) {
	target := &capture{}
	relay := NewRelay(nil, target, slog.New(slog.NewTextHandler(io.Discard, nil)))

	relay.forward(ChannelPublish, "p1")
	relay.forward(ChannelDelete, "")
	relay.forward(ChannelDelete, "p2")

	if len(target.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(target.events))
	}
	if target.events[0] != (ws.Event{Event: "publish", ProjectID: "p1"}) {
		t.Fatalf("unexpected first event %+v", target.events[0])
	}
	if target.events[1] != (ws.Event{Event: "delete", ProjectID: "p2"}) {
		t.Fatalf("unexpected second event %+v", target.events[1])
	}
}
