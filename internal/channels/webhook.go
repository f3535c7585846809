package channels

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/KafClaw/groupguard/internal/bus"
	"github.com/KafClaw/groupguard/internal/config"
	"github.com/KafClaw/groupguard/internal/mention"
	"github.com/google/uuid"
)

const (
	WebhookEventsPath = "/api/v1/channels/webhook/events"

	webhookMaxBody     = 1 << 20
	webhookWaitTimeout = 30 * time.Second
)

// webhookPayload is the inbound envelope, modelled on group bot platforms
// that batch events per delivery.
type webhookPayload struct {
	Events []webhookEvent `json:"events"`
}

type webhookEvent struct {
	Type      string         `json:"type"`
	Timestamp int64          `json:"timestamp"`
	Source    webhookSource  `json:"source"`
	Message   webhookMessage `json:"message"`
	Joined    webhookMembers `json:"joined"`
	Left      webhookMembers `json:"left"`
}

type webhookSource struct {
	Type        string `json:"type"`
	UserID      string `json:"userId"`
	UserIDSnake string `json:"user_id"`
	GroupID     string `json:"groupId"`
	RoomID      string `json:"roomId"`
}

func (s webhookSource) user() string {
	if id := strings.TrimSpace(s.UserIDSnake); id != "" {
		return id
	}
	return strings.TrimSpace(s.UserID)
}

func (s webhookSource) chat() string {
	switch {
	case strings.TrimSpace(s.GroupID) != "":
		return strings.TrimSpace(s.GroupID)
	case strings.TrimSpace(s.RoomID) != "":
		return strings.TrimSpace(s.RoomID)
	}
	return s.user()
}

type webhookMessage struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Text    string `json:"text"`
	Mention struct {
		Mentionees []mention.Mention `json:"mentionees"`
	} `json:"mention"`
}

type webhookMembers struct {
	Members []mention.Mention `json:"members"`
}

// WebhookChannel accepts JSON events over HTTP and replies through an
// outbound HTTP endpoint.
type WebhookChannel struct {
	BaseChannel
	config config.WebhookConfig
	client *http.Client
}

func NewWebhookChannel(cfg config.WebhookConfig, messageBus *bus.MessageBus) *WebhookChannel {
	return &WebhookChannel{
		BaseChannel: BaseChannel{Bus: messageBus},
		config:      cfg,
		client:      &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *WebhookChannel) Name() string { return "webhook" }

func (c *WebhookChannel) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}
	c.Bus.Subscribe(c.Name(), func(msg *bus.OutboundMessage) {
		sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := c.Send(sendCtx, msg); err != nil {
			slog.Warn("webhook outbound failed", "chat_id", msg.ChatID, "trace_id", msg.TraceID, "error", err)
		}
	})
	return nil
}

func (c *WebhookChannel) Stop() error { return nil }

func (c *WebhookChannel) Send(ctx context.Context, msg *bus.OutboundMessage) error {
	return c.post(ctx, map[string]any{
		"action":   "reply",
		"chat_id":  strings.TrimSpace(msg.ChatID),
		"reply_to": strings.TrimSpace(msg.ReplyTo),
		"content":  msg.Content,
		"trace_id": msg.TraceID,
	})
}

// DeleteMessage asks the outbound endpoint to remove a message.
func (c *WebhookChannel) DeleteMessage(ctx context.Context, chatID, messageID string) error {
	if strings.TrimSpace(messageID) == "" {
		return nil
	}
	return c.post(ctx, map[string]any{
		"action":     "delete",
		"chat_id":    strings.TrimSpace(chatID),
		"message_id": strings.TrimSpace(messageID),
	})
}

// DisplayName fetches {"displayName": "..."} from the configured profile URL.
func (c *WebhookChannel) DisplayName(ctx context.Context, groupID, userID string) (string, error) {
	base := strings.TrimSpace(c.config.ProfileURL)
	if base == "" {
		return "", ErrNoProfile
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("groupId", groupID)
	q.Set("userId", userID)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", err
	}
	c.authorize(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("webhook profile status: %d", resp.StatusCode)
	}
	var profile struct {
		DisplayName string `json:"displayName"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, webhookMaxBody)).Decode(&profile); err != nil {
		return "", fmt.Errorf("decode profile: %w", err)
	}
	return strings.TrimSpace(profile.DisplayName), nil
}

func (c *WebhookChannel) post(ctx context.Context, payload map[string]any) error {
	target := strings.TrimSpace(c.config.OutboundURL)
	if target == "" {
		slog.Debug("webhook outbound url not configured, dropping", "action", payload["action"])
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook outbound status: %d", resp.StatusCode)
	}
	return nil
}

func (c *WebhookChannel) authorize(req *http.Request) {
	if tok := strings.TrimSpace(c.config.Token); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
}

// ServeHTTP authenticates a delivery, publishes its events and waits until
// each one is processed. A processing failure answers 500 so the sender can
// retry the delivery.
func (c *WebhookChannel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !c.authenticated(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var payload webhookPayload
	if err := json.NewDecoder(io.LimitReader(r.Body, webhookMaxBody)).Decode(&payload); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	var pending []*bus.InboundMessage
	for _, ev := range payload.Events {
		for _, msg := range c.toInbound(ev) {
			msg.Done = make(chan error, 1)
			c.Bus.PublishInbound(msg)
			pending = append(pending, msg)
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), webhookWaitTimeout)
	defer cancel()
	var errs []error
	for _, msg := range pending {
		select {
		case err := <-msg.Done:
			if err != nil {
				errs = append(errs, err)
			}
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
		}
	}
	if err := errors.Join(errs...); err != nil {
		slog.Error("webhook delivery failed", "events", len(pending), "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "events": len(pending)})
}

func (c *WebhookChannel) authenticated(r *http.Request) bool {
	want := strings.TrimSpace(c.config.Token)
	if want == "" {
		return true
	}
	got := strings.TrimSpace(r.Header.Get("X-Channel-Token"))
	if auth := strings.TrimSpace(r.Header.Get("Authorization")); got == "" && strings.HasPrefix(auth, "Bearer ") {
		got = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func (c *WebhookChannel) toInbound(ev webhookEvent) []*bus.InboundMessage {
	ts := time.Now()
	if ev.Timestamp > 0 {
		ts = time.UnixMilli(ev.Timestamp)
	}
	base := bus.InboundMessage{
		Channel:   c.Name(),
		SenderID:  ev.Source.user(),
		ChatID:    ev.Source.chat(),
		GroupID:   strings.TrimSpace(ev.Source.GroupID),
		TraceID:   uuid.NewString(),
		Timestamp: ts,
		Metadata: map[string]any{
			bus.MetaKeyChatType: ev.Source.Type,
		},
	}
	switch ev.Type {
	case "message":
		if ev.Message.Type != "" && ev.Message.Type != "text" {
			return nil
		}
		msg := base
		msg.Kind = bus.KindMessage
		msg.MessageID = strings.TrimSpace(ev.Message.ID)
		msg.Content = ev.Message.Text
		msg.Mentions = mention.Extract(ev.Message.Mention.Mentionees)
		return []*bus.InboundMessage{&msg}
	case "memberJoined", "member_joined":
		msg := base
		msg.Kind = bus.KindMemberJoined
		msg.Members = mention.Extract(ev.Joined.Members)
		return []*bus.InboundMessage{&msg}
	case "memberLeft", "member_left":
		msg := base
		msg.Kind = bus.KindMemberLeft
		msg.Members = mention.Extract(ev.Left.Members)
		return []*bus.InboundMessage{&msg}
	}
	slog.Debug("webhook event ignored", "type", ev.Type)
	return nil
}
