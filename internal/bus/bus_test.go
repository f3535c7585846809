package bus

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestInboundRoundTrip(t *testing.T) {
	b := NewMessageBus()
	b.PublishInbound(&InboundMessage{Channel: "webhook", Content: "/listadmin"})
	if b.InboundSize() != 1 {
		t.Fatalf("expected 1 pending inbound, got %d", b.InboundSize())
	}

	msg, err := b.ConsumeInbound(context.Background())
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if msg.Timestamp.IsZero() {
		t.Fatalf("expected timestamp to be set on publish")
	}
	if msg.EventKind() != KindMessage {
		t.Fatalf("expected default kind message, got %s", msg.EventKind())
	}
}

func TestConsumeInboundCancelled(t *testing.T) {
	b := NewMessageBus()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := b.ConsumeInbound(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDispatchOutboundRoutesByChannel(t *testing.T) {
	b := NewMessageBus()
	got := make(chan *OutboundMessage, 2)
	b.Subscribe("slack", func(m *OutboundMessage) { got <- m })
	b.Subscribe("webhook", func(m *OutboundMessage) { t.Errorf("unexpected delivery to webhook: %+v", m) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = b.DispatchOutbound(ctx) }()

	b.PublishOutbound(&OutboundMessage{Channel: "slack", ChatID: "C1", Content: "hi"})
	select {
	case m := <-got:
		if m.ChatID != "C1" || m.Content != "hi" {
			t.Fatalf("unexpected message: %+v", m)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for outbound dispatch")
	}
}

func TestFinishNeverBlocks(t *testing.T) {
	(&InboundMessage{}).Finish(nil)

	done := make(chan error, 1)
	msg := &InboundMessage{Done: done}
	msg.Finish(errors.New("first"))
	msg.Finish(errors.New("second"))
	if err := <-done; err == nil || err.Error() != "first" {
		t.Fatalf("expected first error, got %v", err)
	}
}
