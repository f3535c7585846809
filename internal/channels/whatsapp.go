package channels

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/KafClaw/groupguard/internal/bus"
	"github.com/KafClaw/groupguard/internal/config"
	"github.com/KafClaw/groupguard/internal/timeline"
	"github.com/skip2/go-qrcode"

	_ "modernc.org/sqlite"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
)

// Timeline settings owned by the WhatsApp channel.
const (
	SettingWhatsAppJID    = "whatsapp_jid"
	SettingWhatsAppSilent = "whatsapp_silent_mode"
)

// WhatsAppChannel implements a native WhatsApp client.
type WhatsAppChannel struct {
	BaseChannel
	client    *whatsmeow.Client
	config    config.WhatsAppConfig
	container *sqlstore.Container
	timeline  *timeline.TimelineService
	sendFn    func(ctx context.Context, msg *bus.OutboundMessage) error
}

// NewWhatsAppChannel creates a new WhatsApp channel.
func NewWhatsAppChannel(cfg config.WhatsAppConfig, messageBus *bus.MessageBus, tl *timeline.TimelineService) *WhatsAppChannel {
	return &WhatsAppChannel{
		BaseChannel: BaseChannel{Bus: messageBus},
		config:      cfg,
		timeline:    tl,
	}
}

func (c *WhatsAppChannel) Name() string { return "whatsapp" }

func (c *WhatsAppChannel) open(ctx context.Context) error {
	if c.client != nil {
		return nil
	}
	level := c.config.LogLevel
	if level == "" {
		level = "WARN"
	}
	if err := os.MkdirAll(filepath.Dir(c.config.DBPath), 0o700); err != nil {
		return fmt.Errorf("create whatsapp dir: %w", err)
	}
	container, err := sqlstore.New(ctx, "sqlite", "file:"+c.config.DBPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", waLog.Stdout("Database", level, true))
	if err != nil {
		return fmt.Errorf("failed to init whatsapp db: %w", err)
	}
	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = container.Close()
		return fmt.Errorf("failed to get device: %w", err)
	}
	c.container = container
	c.client = whatsmeow.NewClient(deviceStore, waLog.Stdout("Client", level, true))
	c.client.AddEventHandler(c.eventHandler)
	return nil
}

func (c *WhatsAppChannel) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}
	if err := c.open(ctx); err != nil {
		return err
	}
	if c.client.Store.ID == nil {
		qrChan, err := c.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("whatsapp qr channel: %w", err)
		}
		if err := c.client.Connect(); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		go c.handleQR(qrChan, nil)
	} else {
		if err := c.client.Connect(); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		c.rememberJID()
		slog.Info("whatsapp connected", "jid", c.client.Store.ID.String())
	}

	c.Bus.Subscribe(c.Name(), func(msg *bus.OutboundMessage) {
		go c.handleOutbound(ctx, msg)
	})
	return nil
}

// Login pairs a new device and blocks until pairing succeeds or fails. The
// QR code is written as PNG to the configured path and echoed to out.
func (c *WhatsAppChannel) Login(ctx context.Context, out io.Writer) error {
	if err := c.open(ctx); err != nil {
		return err
	}
	if c.client.Store.ID != nil {
		fmt.Fprintf(out, "Already paired as %s\n", c.client.Store.ID.String())
		return nil
	}
	qrChan, err := c.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("whatsapp qr channel: %w", err)
	}
	if err := c.client.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	if !c.handleQR(qrChan, out) {
		return errors.New("whatsapp pairing did not complete")
	}
	return nil
}

func (c *WhatsAppChannel) handleQR(qrChan <-chan whatsmeow.QRChannelItem, out io.Writer) bool {
	if out == nil {
		out = io.Discard
	}
	for evt := range qrChan {
		switch evt.Event {
		case "code":
			if err := qrcode.WriteFile(evt.Code, qrcode.Medium, 512, c.config.QRPath); err != nil {
				slog.Warn("whatsapp qr write failed", "path", c.config.QRPath, "error", err)
				continue
			}
			slog.Info("whatsapp login qr code written", "path", c.config.QRPath)
			fmt.Fprintf(out, "WhatsApp login QR code saved to: %s\n", c.config.QRPath)
		case "success":
			c.rememberJID()
			_ = os.Remove(c.config.QRPath)
			fmt.Fprintln(out, "WhatsApp paired.")
			return true
		default:
			slog.Info("whatsapp login event", "event", evt.Event)
		}
	}
	return false
}

func (c *WhatsAppChannel) rememberJID() {
	if c.timeline == nil || c.client == nil || c.client.Store.ID == nil {
		return
	}
	_ = c.timeline.SetSetting(SettingWhatsAppJID, c.client.Store.ID.ToNonAD().String())
}

func (c *WhatsAppChannel) Stop() error {
	if c.client != nil {
		c.client.Disconnect()
	}
	if c.container != nil {
		return c.container.Close()
	}
	return nil
}

func (c *WhatsAppChannel) Send(ctx context.Context, msg *bus.OutboundMessage) error {
	if c.client == nil {
		return fmt.Errorf("client not initialized")
	}
	jid, err := types.ParseJID(msg.ChatID)
	if err != nil {
		return fmt.Errorf("invalid JID: %w", err)
	}
	_, err = c.client.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(msg.Content),
	})
	return err
}

// DeleteMessage revokes a message for everyone. messageID is "<sender>/<id>"
// as produced by the inbound handler.
func (c *WhatsAppChannel) DeleteMessage(ctx context.Context, chatID, messageID string) error {
	if c.client == nil {
		return fmt.Errorf("client not initialized")
	}
	chat, err := types.ParseJID(chatID)
	if err != nil {
		return fmt.Errorf("invalid JID: %w", err)
	}
	senderRaw, id, ok := strings.Cut(messageID, "/")
	if !ok {
		return fmt.Errorf("invalid message id %q", messageID)
	}
	sender, err := types.ParseJID(senderRaw)
	if err != nil {
		return fmt.Errorf("invalid sender JID: %w", err)
	}
	_, err = c.client.SendMessage(ctx, chat, c.client.BuildRevoke(chat, sender, id))
	return err
}

// DisplayName returns the stored contact name for a user JID.
func (c *WhatsAppChannel) DisplayName(ctx context.Context, _, userID string) (string, error) {
	if c.client == nil {
		return "", ErrNoProfile
	}
	jid, err := types.ParseJID(userID)
	if err != nil {
		return "", err
	}
	info, err := c.client.Store.Contacts.GetContact(ctx, jid)
	if err != nil {
		return "", err
	}
	for _, n := range []string{info.FullName, info.PushName, info.FirstName, info.BusinessName} {
		if n = strings.TrimSpace(n); n != "" {
			return n, nil
		}
	}
	return "", nil
}

func (c *WhatsAppChannel) silent() bool {
	if c.timeline == nil {
		return false
	}
	v, err := c.timeline.GetSetting(SettingWhatsAppSilent)
	return err == nil && strings.EqualFold(strings.TrimSpace(v), "true")
}

func (c *WhatsAppChannel) handleOutbound(ctx context.Context, msg *bus.OutboundMessage) {
	if c.silent() {
		slog.Info("whatsapp outbound suppressed", "chat_id", msg.ChatID, "reason", "silent_mode")
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	send := c.Send
	if c.sendFn != nil {
		send = c.sendFn
	}
	if err := send(sendCtx, msg); err != nil {
		slog.Warn("whatsapp outbound failed", "chat_id", msg.ChatID, "trace_id", msg.TraceID, "error", err)
	}
}

func (c *WhatsAppChannel) eventHandler(evt interface{}) {
	for _, msg := range c.toInbound(evt) {
		c.Bus.PublishInbound(msg)
	}
}

// toInbound maps a client event to bus events. A GroupInfo carrying both
// joins and leaves yields one event per list.
func (c *WhatsAppChannel) toInbound(evt interface{}) []*bus.InboundMessage {
	switch v := evt.(type) {
	case *events.Message:
		if msg := c.messageToInbound(v); msg != nil {
			return []*bus.InboundMessage{msg}
		}
	case *events.GroupInfo:
		var out []*bus.InboundMessage
		if len(v.Join) > 0 {
			out = append(out, c.membershipToInbound(v, bus.KindMemberJoined, v.Join))
		}
		if len(v.Leave) > 0 {
			out = append(out, c.membershipToInbound(v, bus.KindMemberLeft, v.Leave))
		}
		return out
	}
	return nil
}

func (c *WhatsAppChannel) messageToInbound(v *events.Message) *bus.InboundMessage {
	if v.Info.IsFromMe || !v.Info.IsGroup || v.Message == nil {
		return nil
	}
	content := v.Message.GetConversation()
	var mentioned []string
	if ext := v.Message.GetExtendedTextMessage(); ext != nil {
		if content == "" {
			content = ext.GetText()
		}
		for _, raw := range ext.GetContextInfo().GetMentionedJID() {
			if jid, err := types.ParseJID(raw); err == nil {
				mentioned = append(mentioned, jid.ToNonAD().String())
			}
		}
	}
	if strings.TrimSpace(content) == "" {
		return nil
	}
	sender := v.Info.Sender.ToNonAD().String()
	chat := v.Info.Chat.String()
	return &bus.InboundMessage{
		Kind:      bus.KindMessage,
		Channel:   c.Name(),
		SenderID:  sender,
		ChatID:    chat,
		GroupID:   chat,
		MessageID: sender + "/" + v.Info.ID,
		TraceID:   "wa-" + v.Info.ID,
		Content:   content,
		Mentions:  mentioned,
		Timestamp: v.Info.Timestamp,
		Metadata: map[string]any{
			bus.MetaKeyChatType: "group",
			bus.MetaKeyIsFromMe: v.Info.IsFromMe,
		},
	}
}

func (c *WhatsAppChannel) membershipToInbound(v *events.GroupInfo, kind string, members []types.JID) *bus.InboundMessage {
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ToNonAD().String())
	}
	sender := ""
	if v.Sender != nil {
		sender = v.Sender.ToNonAD().String()
	}
	chat := v.JID.String()
	return &bus.InboundMessage{
		Kind:      kind,
		Channel:   c.Name(),
		SenderID:  sender,
		ChatID:    chat,
		GroupID:   chat,
		TraceID:   fmt.Sprintf("wa-group-%s-%d", kind, v.Timestamp.UnixNano()),
		Members:   ids,
		Timestamp: v.Timestamp,
	}
}
