package manage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/KafClaw/groupguard/internal/audit"
	"github.com/KafClaw/groupguard/internal/mention"
	"github.com/KafClaw/groupguard/internal/policy"
	"github.com/KafClaw/groupguard/internal/store"
	"github.com/google/uuid"
)

// ProfileLookup resolves a display name for a user in a group.
type ProfileLookup interface {
	DisplayName(ctx context.Context, groupID, userID string) (string, error)
}

// Request is one command invocation coming off a transport.
type Request struct {
	Action    policy.Action
	Requester string
	Mentions  []mention.Mention
	Channel   string
	ChatID    string
	GroupID   string
	TraceID   string
	// Profiles is optional; listings fall back to raw ids without it.
	Profiles ProfileLookup
}

// Response carries the handler result and the rendered reply.
type Response struct {
	Result Result
	Reply  string
}

// Service serializes load, handle and save against one store.
type Service struct {
	store  store.Store
	engine policy.Engine
	audit  audit.Sink
	logger *slog.Logger

	mu sync.Mutex
}

type Option func(*Service)

func WithAudit(sink audit.Sink) Option {
	return func(s *Service) {
		if sink != nil {
			s.audit = sink
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewService(st store.Store, eng policy.Engine, opts ...Option) *Service {
	if eng == nil {
		eng = policy.NewFirstUseBootstrap()
	}
	s := &Service{
		store:  st,
		engine: eng,
		audit:  audit.Nop{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute runs one command to completion. Only store failures are returned
// as errors; denials and usage problems become replies.
func (s *Service) Execute(ctx context.Context, req Request) (Response, error) {
	if req.TraceID == "" {
		req.TraceID = uuid.NewString()
	}
	targets := mention.Extract(req.Mentions)

	s.mu.Lock()
	rec, err := s.store.Load(ctx)
	if err != nil {
		s.mu.Unlock()
		return Response{}, fmt.Errorf("load moderation config: %w", err)
	}
	res := Handle(rec, s.engine, req.Action, Invocation{
		Requester: req.Requester,
		Targets:   targets,
		TraceID:   req.TraceID,
	})
	if res.ShouldPersist() {
		if err := s.store.Save(ctx, rec); err != nil {
			s.mu.Unlock()
			return Response{}, fmt.Errorf("save moderation config: %w", err)
		}
	}
	s.mu.Unlock()

	s.logger.Info("moderation command",
		"trace_id", req.TraceID,
		"channel", req.Channel,
		"requester", req.Requester,
		"action", string(res.Action),
		"outcome", string(res.Outcome),
		"reason", res.Reason,
	)
	_ = s.audit.Record(ctx, audit.Entry{
		TraceID:   req.TraceID,
		Channel:   req.Channel,
		ChatID:    req.ChatID,
		GroupID:   req.GroupID,
		Requester: req.Requester,
		Action:    string(res.Action),
		Outcome:   string(res.Outcome),
		Reason:    res.Reason,
		Targets:   targets,
		Changed:   changedIDs(res),
		CreatedAt: time.Now().UTC(),
	})

	return Response{Result: res, Reply: Render(res, s.nameFunc(ctx, req))}, nil
}

// Snapshot returns a copy of the current record.
func (s *Service) Snapshot(ctx context.Context) (*store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Load(ctx)
}

// Update applies fn to the record and saves it when fn reports a change.
// Used for out-of-band provisioning that bypasses the policy engine.
func (s *Service) Update(ctx context.Context, fn func(rec *store.Record) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load moderation config: %w", err)
	}
	changed, err := fn(rec)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	if err := s.store.Save(ctx, rec); err != nil {
		return fmt.Errorf("save moderation config: %w", err)
	}
	return nil
}

// SeedAdmins adds ids to the admin set without consulting the policy.
func (s *Service) SeedAdmins(ctx context.Context, ids []string) ([]string, error) {
	var added []string
	err := s.Update(ctx, func(rec *store.Record) (bool, error) {
		rec.Admins, added, _ = union(rec.Admins, mention.Extract(mention.FromIDs(ids...)))
		return len(added) > 0, nil
	})
	return added, err
}

func (s *Service) nameFunc(ctx context.Context, req Request) func(string) string {
	if req.Profiles == nil || req.GroupID == "" {
		return nil
	}
	return func(id string) string {
		name, err := req.Profiles.DisplayName(ctx, req.GroupID, id)
		if err != nil {
			s.logger.Debug("profile lookup failed", "trace_id", req.TraceID, "user", id, "error", err)
			return ""
		}
		return name
	}
}

func changedIDs(res Result) []string {
	if len(res.Removed) > 0 {
		return res.Removed
	}
	return res.Added
}
