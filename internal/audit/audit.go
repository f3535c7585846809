// Package audit records every moderation command to one or more sinks.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/KafClaw/groupguard/internal/timeline"
)

// Entry is one moderation command as seen by the audit stream.
type Entry struct {
	TraceID   string    `json:"trace_id"`
	Channel   string    `json:"channel,omitempty"`
	ChatID    string    `json:"chat_id,omitempty"`
	GroupID   string    `json:"group_id,omitempty"`
	Requester string    `json:"requester"`
	Action    string    `json:"action"`
	Outcome   string    `json:"outcome"`
	Reason    string    `json:"reason,omitempty"`
	Targets   []string  `json:"targets"`
	Changed   []string  `json:"changed"`
	CreatedAt time.Time `json:"created_at"`
}

// Sink receives audit entries.
type Sink interface {
	Record(ctx context.Context, e Entry) error
}

// Nop discards entries.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }

// Fanout forwards an entry to every sink. Sink failures are logged and
// never returned, so auditing cannot fail a command.
type Fanout []Sink

func (f Fanout) Record(ctx context.Context, e Entry) error {
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, e); err != nil {
			slog.Warn("audit sink failed", "trace_id", e.TraceID, "action", e.Action, "error", err)
		}
	}
	return nil
}

// TimelineSink writes entries into the timeline audit_log table.
type TimelineSink struct {
	Timeline *timeline.TimelineService
}

func NewTimelineSink(tl *timeline.TimelineService) *TimelineSink {
	return &TimelineSink{Timeline: tl}
}

func (s *TimelineSink) Record(_ context.Context, e Entry) error {
	return s.Timeline.AddAudit(&timeline.AuditRecord{
		TraceID:   e.TraceID,
		Channel:   e.Channel,
		ChatID:    e.ChatID,
		GroupID:   e.GroupID,
		Requester: e.Requester,
		Action:    e.Action,
		Outcome:   e.Outcome,
		Reason:    e.Reason,
		Targets:   e.Targets,
		Changed:   e.Changed,
		CreatedAt: e.CreatedAt,
	})
}
