package channels

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/KafClaw/groupguard/internal/bus"
	"github.com/KafClaw/groupguard/internal/config"
	"github.com/KafClaw/groupguard/internal/mention"
	"github.com/google/uuid"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
)

const SlackEventsPath = "/api/v1/channels/slack/events"

// SlackChannel receives Events API callbacks and talks to the Web API.
type SlackChannel struct {
	BaseChannel
	config config.SlackConfig
	api    *slack.Client
}

func NewSlackChannel(cfg config.SlackConfig, messageBus *bus.MessageBus) *SlackChannel {
	opts := []slack.Option{slack.OptionHTTPClient(&http.Client{Timeout: 15 * time.Second})}
	if base := strings.TrimSpace(cfg.APIURL); base != "" {
		opts = append(opts, slack.OptionAPIURL(strings.TrimRight(base, "/")+"/"))
	}
	return &SlackChannel{
		BaseChannel: BaseChannel{Bus: messageBus},
		config:      cfg,
		api:         slack.New(strings.TrimSpace(cfg.BotToken), opts...),
	}
}

func (c *SlackChannel) Name() string { return "slack" }

func (c *SlackChannel) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}
	c.Bus.Subscribe(c.Name(), func(msg *bus.OutboundMessage) {
		sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := c.Send(sendCtx, msg); err != nil {
			slog.Warn("slack outbound failed", "chat_id", msg.ChatID, "trace_id", msg.TraceID, "error", err)
		}
	})
	return nil
}

func (c *SlackChannel) Stop() error { return nil }

func (c *SlackChannel) Send(ctx context.Context, msg *bus.OutboundMessage) error {
	_, _, err := c.api.PostMessageContext(ctx, strings.TrimSpace(msg.ChatID), slack.MsgOptionText(msg.Content, false))
	return err
}

// DeleteMessage removes a message by its timestamp id.
func (c *SlackChannel) DeleteMessage(ctx context.Context, chatID, messageID string) error {
	_, _, err := c.api.DeleteMessageContext(ctx, chatID, messageID)
	return err
}

// DisplayName prefers the profile display name, then the real name.
func (c *SlackChannel) DisplayName(ctx context.Context, _, userID string) (string, error) {
	u, err := c.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		return "", err
	}
	for _, n := range []string{u.Profile.DisplayName, u.RealName, u.Name} {
		if n = strings.TrimSpace(n); n != "" {
			return n, nil
		}
	}
	return "", nil
}

// ServeHTTP handles Events API deliveries. Callbacks are acknowledged
// immediately because Slack retries anything slower than three seconds.
func (c *SlackChannel) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, webhookMaxBody))
	if err != nil || !json.Valid(body) {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	// The token is checked here, before parsing, so unsupported inner
	// events from a verified sender can still be acknowledged.
	if !c.tokenMatches(body) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	ev, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		// Unsupported inner events fail to parse; acknowledge them anyway.
		slog.Debug("slack event ignored", "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	switch ev.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			http.Error(w, "invalid challenge", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(challenge.Challenge))
		return
	case slackevents.CallbackEvent:
		if msg := c.toInbound(ev.InnerEvent); msg != nil {
			c.Bus.PublishInbound(msg)
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (c *SlackChannel) tokenMatches(body []byte) bool {
	want := strings.TrimSpace(c.config.VerificationToken)
	if want == "" {
		return true
	}
	var outer struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &outer); err != nil {
		return false
	}
	cmp := slackevents.TokenComparator{VerificationToken: want}
	return cmp.Verify(outer.Token)
}

func (c *SlackChannel) toInbound(inner slackevents.EventsAPIInnerEvent) *bus.InboundMessage {
	switch in := inner.Data.(type) {
	case *slackevents.MessageEvent:
		if in == nil || in.BotID != "" || in.SubType != "" || strings.TrimSpace(in.User) == "" {
			return nil
		}
		return &bus.InboundMessage{
			Kind:      bus.KindMessage,
			Channel:   c.Name(),
			SenderID:  in.User,
			ChatID:    in.Channel,
			GroupID:   in.Channel,
			MessageID: in.TimeStamp,
			TraceID:   uuid.NewString(),
			Content:   in.Text,
			Mentions:  mention.Extract(mention.FromText(in.Text)),
			Metadata:  map[string]any{bus.MetaKeyChatType: in.ChannelType},
		}
	case *slackevents.MemberJoinedChannelEvent:
		if in == nil {
			return nil
		}
		return &bus.InboundMessage{
			Kind:     bus.KindMemberJoined,
			Channel:  c.Name(),
			SenderID: in.Inviter,
			ChatID:   in.Channel,
			GroupID:  in.Channel,
			TraceID:  uuid.NewString(),
			Members:  []string{in.User},
			Metadata: map[string]any{bus.MetaKeyChatType: in.ChannelType},
		}
	case *slackevents.MemberLeftChannelEvent:
		if in == nil {
			return nil
		}
		return &bus.InboundMessage{
			Kind:     bus.KindMemberLeft,
			Channel:  c.Name(),
			SenderID: in.User,
			ChatID:   in.Channel,
			GroupID:  in.Channel,
			TraceID:  uuid.NewString(),
			Members:  []string{in.User},
			Metadata: map[string]any{bus.MetaKeyChatType: in.ChannelType},
		}
	}
	return nil
}
