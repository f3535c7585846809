package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/KafClaw/groupguard/internal/bus"
	"github.com/KafClaw/groupguard/internal/channels"
	"github.com/KafClaw/groupguard/internal/manage"
	"github.com/KafClaw/groupguard/internal/mention"
	"github.com/KafClaw/groupguard/internal/store"
	"github.com/samber/lo"
)

// Moderator runs commands against the moderation record.
type Moderator interface {
	Execute(ctx context.Context, req manage.Request) (manage.Response, error)
	Snapshot(ctx context.Context) (*store.Record, error)
}

// Capabilities resolves optional per-channel features.
type Capabilities interface {
	Profiles(name string) channels.ProfileResolver
	Deleter(name string) channels.MessageDeleter
}

// Roster records group membership changes.
type Roster interface {
	RecordJoin(channel, groupID, userID, displayName string, at time.Time) error
	RecordLeave(channel, groupID, userID string, at time.Time) error
}

type Options struct {
	BlockLinks    bool
	ReplyHelp     bool
	MemberNotices bool
}

// Dispatcher consumes inbound events and publishes replies.
type Dispatcher struct {
	bus    *bus.MessageBus
	mod    Moderator
	caps   Capabilities
	roster Roster
	opts   Options
}

// New creates a dispatcher. caps and roster may be nil.
func New(b *bus.MessageBus, mod Moderator, caps Capabilities, roster Roster, opts Options) *Dispatcher {
	return &Dispatcher{bus: b, mod: mod, caps: caps, roster: roster, opts: opts}
}

// Run processes inbound events until ctx is cancelled. Each event is
// handled to completion before the next one is taken.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		msg, err := d.bus.ConsumeInbound(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		err = d.Handle(ctx, msg)
		if err != nil {
			slog.Error("dispatch failed", "trace_id", msg.TraceID, "channel", msg.Channel, "kind", msg.EventKind(), "error", err)
		}
		msg.Finish(err)
	}
}

// Handle processes a single inbound event.
func (d *Dispatcher) Handle(ctx context.Context, msg *bus.InboundMessage) error {
	switch msg.EventKind() {
	case bus.KindMessage:
		return d.handleText(ctx, msg)
	case bus.KindMemberJoined:
		return d.handleJoined(ctx, msg)
	case bus.KindMemberLeft:
		return d.handleLeft(msg)
	}
	slog.Debug("dispatch ignored event", "kind", msg.Kind, "trace_id", msg.TraceID)
	return nil
}

func (d *Dispatcher) handleText(ctx context.Context, msg *bus.InboundMessage) error {
	text := strings.TrimSpace(msg.Content)
	if text == "" {
		return nil
	}

	if d.opts.BlockLinks && ContainsLink(text) {
		d.reply(msg, linkWarningText)
		if del := d.deleter(msg.Channel); del != nil && msg.MessageID != "" {
			if err := del.DeleteMessage(ctx, msg.ChatID, msg.MessageID); err != nil {
				slog.Debug("link message delete failed", "trace_id", msg.TraceID, "error", err)
			}
		}
		return nil
	}

	action, ok := Route(text)
	if !ok {
		if d.opts.ReplyHelp && strings.HasPrefix(text, "/") {
			d.reply(msg, helpText)
		}
		return nil
	}
	if strings.TrimSpace(msg.SenderID) == "" {
		slog.Warn("command without sender ignored", "trace_id", msg.TraceID, "action", string(action))
		return nil
	}

	req := manage.Request{
		Action:    action,
		Requester: strings.TrimSpace(msg.SenderID),
		Mentions:  mention.FromIDs(msg.Mentions...),
		Channel:   msg.Channel,
		ChatID:    msg.ChatID,
		GroupID:   groupOf(msg),
		TraceID:   msg.TraceID,
	}
	if p := d.profiles(msg.Channel); p != nil {
		req.Profiles = p
	}
	resp, err := d.mod.Execute(ctx, req)
	if err != nil {
		return err
	}
	d.reply(msg, resp.Reply)
	return nil
}

func (d *Dispatcher) handleJoined(ctx context.Context, msg *bus.InboundMessage) error {
	members := lo.Uniq(lo.Compact(msg.Members))
	if len(members) == 0 {
		return nil
	}
	for _, id := range members {
		d.recordJoin(ctx, msg, id)
	}
	if !d.opts.MemberNotices {
		return nil
	}

	notice := welcomeText(len(members))
	rec, err := d.mod.Snapshot(ctx)
	if err != nil {
		return err
	}
	if banned := lo.Filter(members, func(id string, _ int) bool { return rec.IsBlacklisted(id) }); len(banned) > 0 {
		notice += "\n—\n" + blacklistedJoinedText(banned)
	}
	d.push(msg, notice)
	return nil
}

func (d *Dispatcher) handleLeft(msg *bus.InboundMessage) error {
	if d.roster != nil {
		at := eventTime(msg)
		for _, id := range lo.Uniq(lo.Compact(msg.Members)) {
			if err := d.roster.RecordLeave(msg.Channel, groupOf(msg), id, at); err != nil {
				slog.Warn("roster leave failed", "trace_id", msg.TraceID, "user", id, "error", err)
			}
		}
	}
	if d.opts.MemberNotices {
		d.push(msg, memberLeftText)
	}
	return nil
}

func (d *Dispatcher) recordJoin(ctx context.Context, msg *bus.InboundMessage, id string) {
	if d.roster == nil {
		return
	}
	name := ""
	if p := d.profiles(msg.Channel); p != nil {
		if n, err := p.DisplayName(ctx, groupOf(msg), id); err == nil {
			name = n
		} else {
			slog.Debug("profile lookup failed", "trace_id", msg.TraceID, "user", id, "error", err)
		}
	}
	if err := d.roster.RecordJoin(msg.Channel, groupOf(msg), id, name, eventTime(msg)); err != nil {
		slog.Warn("roster join failed", "trace_id", msg.TraceID, "user", id, "error", err)
	}
}

// reply answers the triggering message.
func (d *Dispatcher) reply(msg *bus.InboundMessage, content string) {
	d.bus.PublishOutbound(&bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		TraceID: msg.TraceID,
		ReplyTo: msg.MessageID,
		Content: content,
	})
}

// push posts an unsolicited notice to the group.
func (d *Dispatcher) push(msg *bus.InboundMessage, content string) {
	d.bus.PublishOutbound(&bus.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  groupOf(msg),
		TraceID: msg.TraceID,
		Content: content,
	})
}

func (d *Dispatcher) profiles(channel string) channels.ProfileResolver {
	if d.caps == nil {
		return nil
	}
	return d.caps.Profiles(channel)
}

func (d *Dispatcher) deleter(channel string) channels.MessageDeleter {
	if d.caps == nil {
		return nil
	}
	return d.caps.Deleter(channel)
}

func groupOf(msg *bus.InboundMessage) string {
	if msg.GroupID != "" {
		return msg.GroupID
	}
	return msg.ChatID
}

func eventTime(msg *bus.InboundMessage) time.Time {
	if msg.Timestamp.IsZero() {
		return time.Now()
	}
	return msg.Timestamp
}
