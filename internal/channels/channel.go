package channels

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/KafClaw/groupguard/internal/bus"
)

// ErrNoProfile is returned when a channel cannot resolve display names.
var ErrNoProfile = errors.New("profile lookup not supported")

// Channel defines the interface for chat platforms (Slack, WhatsApp, etc).
type Channel interface {
	// Name returns the channel name (e.g. "slack").
	Name() string
	// Start starts the channel listener.
	Start(ctx context.Context) error
	// Stop stops the channel listener.
	Stop() error
	// Send sends a message to a specific chat.
	Send(ctx context.Context, msg *bus.OutboundMessage) error
}

// ProfileResolver is implemented by channels that can look up display names.
type ProfileResolver interface {
	DisplayName(ctx context.Context, groupID, userID string) (string, error)
}

// MessageDeleter is implemented by channels that can remove a posted message.
type MessageDeleter interface {
	DeleteMessage(ctx context.Context, chatID, messageID string) error
}

// BaseChannel provides common functionality for channels.
type BaseChannel struct {
	Bus *bus.MessageBus
}

// Registry resolves channels and their optional capabilities by name.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]Channel
	order    []string
}

func NewRegistry() *Registry {
	return &Registry{channels: map[string]Channel{}}
}

func (r *Registry) Register(ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.channels[ch.Name()]; !ok {
		r.order = append(r.order, ch.Name())
	}
	r.channels[ch.Name()] = ch
}

func (r *Registry) Get(name string) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[name]
	return ch, ok
}

// Names returns registered channel names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Profiles returns the profile resolver of a channel, or nil.
func (r *Registry) Profiles(name string) ProfileResolver {
	ch, ok := r.Get(name)
	if !ok {
		return nil
	}
	p, _ := ch.(ProfileResolver)
	return p
}

// Deleter returns the message deleter of a channel, or nil.
func (r *Registry) Deleter(name string) MessageDeleter {
	ch, ok := r.Get(name)
	if !ok {
		return nil
	}
	d, _ := ch.(MessageDeleter)
	return d
}

// StartAll starts every channel. A failing channel is logged and skipped.
func (r *Registry) StartAll(ctx context.Context) {
	for _, name := range r.Names() {
		ch, _ := r.Get(name)
		if err := ch.Start(ctx); err != nil {
			slog.Error("channel start failed", "channel", name, "error", err)
		}
	}
}

func (r *Registry) StopAll() {
	for _, name := range r.Names() {
		ch, _ := r.Get(name)
		if err := ch.Stop(); err != nil {
			slog.Warn("channel stop failed", "channel", name, "error", err)
		}
	}
}
