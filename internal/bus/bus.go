// Package bus provides the async message bus between channels and the dispatcher.
package bus

import (
	"context"
	"sync"
	"time"
)

// Inbound event kinds.
const (
	KindMessage      = "message"
	KindMemberJoined = "member_joined"
	KindMemberLeft   = "member_left"
)

// Well-known metadata keys.
const (
	MetaKeyChatType = "chat_type"
	MetaKeyIsFromMe = "is_from_me"
)

// InboundMessage represents an event from a channel to the dispatcher.
type InboundMessage struct {
	Kind      string         `json:"kind"`
	Channel   string         `json:"channel"`
	SenderID  string         `json:"sender_id"`
	ChatID    string         `json:"chat_id"`
	GroupID   string         `json:"group_id,omitempty"`
	MessageID string         `json:"message_id,omitempty"`
	TraceID   string         `json:"trace_id"`
	Content   string         `json:"content"`
	Mentions  []string       `json:"mentions,omitempty"`
	Members   []string       `json:"members,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`

	// Done, when set, receives the processing error (nil on success). It
	// must be buffered; the dispatcher never blocks on it.
	Done chan error `json:"-"`
}

// EventKind returns the kind, defaulting to a text message.
func (m *InboundMessage) EventKind() string {
	if m.Kind == "" {
		return KindMessage
	}
	return m.Kind
}

// Finish reports the processing result to a waiting producer, if any.
func (m *InboundMessage) Finish(err error) {
	if m.Done == nil {
		return
	}
	select {
	case m.Done <- err:
	default:
	}
}

// OutboundMessage represents a reply or notice from the dispatcher to a channel.
type OutboundMessage struct {
	Channel string `json:"channel"`
	ChatID  string `json:"chat_id"`
	TraceID string `json:"trace_id"`
	// ReplyTo is the inbound message id being answered, when the platform
	// supports threaded replies.
	ReplyTo string `json:"reply_to,omitempty"`
	Content string `json:"content"`
}

// MessageBus decouples channels from the dispatcher.
type MessageBus struct {
	inbound  chan *InboundMessage
	outbound chan *OutboundMessage
	subs     map[string][]func(*OutboundMessage)
	running  bool
	mu       sync.RWMutex
}

// NewMessageBus creates a new message bus.
func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound:  make(chan *InboundMessage, 100),
		outbound: make(chan *OutboundMessage, 100),
		subs:     make(map[string][]func(*OutboundMessage)),
	}
}

// PublishInbound sends an event from a channel to the dispatcher.
func (b *MessageBus) PublishInbound(msg *InboundMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	b.inbound <- msg
}

// ConsumeInbound blocks until a message is available or context is cancelled.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (*InboundMessage, error) {
	select {
	case msg := <-b.inbound:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// PublishOutbound sends a message from the dispatcher to channels.
func (b *MessageBus) PublishOutbound(msg *OutboundMessage) {
	b.outbound <- msg
}

// Subscribe registers a callback for outbound messages to a specific channel.
func (b *MessageBus) Subscribe(channel string, callback func(*OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.subs[channel] = append(b.subs[channel], callback)
}

// DispatchOutbound runs the outbound message dispatcher.
// This should be run as a goroutine.
func (b *MessageBus) DispatchOutbound(ctx context.Context) error {
	b.mu.Lock()
	b.running = true
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-b.outbound:
			b.mu.RLock()
			callbacks := b.subs[msg.Channel]
			b.mu.RUnlock()

			for _, cb := range callbacks {
				cb(msg)
			}
		}
	}
}

// Running reports whether DispatchOutbound is active.
func (b *MessageBus) Running() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

// InboundSize returns the number of pending inbound messages.
func (b *MessageBus) InboundSize() int {
	return len(b.inbound)
}

// OutboundSize returns the number of pending outbound messages.
func (b *MessageBus) OutboundSize() int {
	return len(b.outbound)
}
