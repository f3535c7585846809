// Package config provides configuration types and loading for groupguard.
package config

// Config is the root configuration struct.
// Top-level groups: Gateway, Store, Timeline, Policy, Dispatch, Channels, Audit, Log.
type Config struct {
	Gateway  GatewayConfig  `json:"gateway"`
	Store    StoreConfig    `json:"store"`
	Timeline TimelineConfig `json:"timeline"`
	Policy   PolicyConfig   `json:"policy"`
	Dispatch DispatchConfig `json:"dispatch"`
	Channels ChannelsConfig `json:"channels"`
	Audit    AuditConfig    `json:"audit"`
	Log      LogConfig      `json:"log"`
}

// ---------------------------------------------------------------------------
// Gateway – HTTP server networking
// ---------------------------------------------------------------------------

// GatewayConfig contains gateway server settings.
type GatewayConfig struct {
	Host string `json:"host" envconfig:"GATEWAY_HOST" validate:"required"`
	Port int    `json:"port" envconfig:"GATEWAY_PORT" validate:"min=1,max=65535"`
}

// ---------------------------------------------------------------------------
// Store – moderation record persistence
// ---------------------------------------------------------------------------

const (
	StoreDriverFile   = "file"
	StoreDriverSQLite = "sqlite"
)

// StoreConfig selects where admins and the blacklist are kept.
type StoreConfig struct {
	Driver string `json:"driver" envconfig:"STORE_DRIVER" validate:"oneof=file sqlite"`
	// Path is the JSON file for the file driver. The sqlite driver shares
	// the timeline database.
	Path string `json:"path" envconfig:"STORE_PATH" validate:"required_if=Driver file"`
}

// TimelineConfig locates the audit and roster database.
type TimelineConfig struct {
	Path string `json:"path" envconfig:"TIMELINE_PATH" validate:"required"`
}

// ---------------------------------------------------------------------------
// Policy – who may moderate
// ---------------------------------------------------------------------------

const (
	PolicyModeFirstUse    = "first-use"
	PolicyModeProvisioned = "provisioned"
)

// PolicyConfig selects the authorization policy.
type PolicyConfig struct {
	Mode string `json:"mode" envconfig:"POLICY_MODE" validate:"oneof=first-use provisioned"`
	// SeedAdmins are added to the admin set on startup, bypassing the policy.
	SeedAdmins []string `json:"seedAdmins" envconfig:"POLICY_SEED_ADMINS" validate:"dive,required"`
}

// DispatchConfig toggles the group-side behaviour of the dispatcher.
type DispatchConfig struct {
	BlockLinks    bool `json:"blockLinks" envconfig:"DISPATCH_BLOCK_LINKS"`
	ReplyHelp     bool `json:"replyHelp" envconfig:"DISPATCH_REPLY_HELP"`
	MemberNotices bool `json:"memberNotices" envconfig:"DISPATCH_MEMBER_NOTICES"`
}

// ---------------------------------------------------------------------------
// Channels – messaging integrations
// ---------------------------------------------------------------------------

// ChannelsConfig contains all channel configurations.
type ChannelsConfig struct {
	Webhook  WebhookConfig  `json:"webhook"`
	Slack    SlackConfig    `json:"slack"`
	WhatsApp WhatsAppConfig `json:"whatsapp"`
}

// WebhookConfig configures the generic JSON webhook channel.
type WebhookConfig struct {
	Enabled     bool   `json:"enabled" envconfig:"WEBHOOK_ENABLED"`
	Token       string `json:"token" envconfig:"WEBHOOK_TOKEN" validate:"required_if=Enabled true"`
	OutboundURL string `json:"outboundUrl" envconfig:"WEBHOOK_OUTBOUND_URL" validate:"omitempty,url"`
	ProfileURL  string `json:"profileUrl" envconfig:"WEBHOOK_PROFILE_URL" validate:"omitempty,url"`
}

// SlackConfig configures the Slack Events API channel.
type SlackConfig struct {
	Enabled           bool   `json:"enabled" envconfig:"SLACK_ENABLED"`
	BotToken          string `json:"botToken" envconfig:"SLACK_BOT_TOKEN" validate:"required_if=Enabled true"`
	VerificationToken string `json:"verificationToken" envconfig:"SLACK_VERIFICATION_TOKEN"`
	APIURL            string `json:"apiUrl,omitempty" envconfig:"SLACK_API_URL" validate:"omitempty,url"`
}

// WhatsAppConfig configures the native WhatsApp channel.
type WhatsAppConfig struct {
	Enabled  bool   `json:"enabled" envconfig:"WHATSAPP_ENABLED"`
	DBPath   string `json:"dbPath" envconfig:"WHATSAPP_DB_PATH"`
	QRPath   string `json:"qrPath" envconfig:"WHATSAPP_QR_PATH"`
	LogLevel string `json:"logLevel" envconfig:"WHATSAPP_LOG_LEVEL" validate:"omitempty,oneof=DEBUG INFO WARN ERROR"`
}

// ---------------------------------------------------------------------------
// Audit – command history sinks
// ---------------------------------------------------------------------------

// AuditConfig configures additional audit sinks. The timeline sink is always on.
type AuditConfig struct {
	Kafka KafkaAuditConfig `json:"kafka"`
}

// KafkaAuditConfig publishes audit entries to Kafka when brokers are set.
type KafkaAuditConfig struct {
	Brokers []string `json:"brokers" envconfig:"AUDIT_KAFKA_BROKERS"`
	Topic   string   `json:"topic" envconfig:"AUDIT_KAFKA_TOPIC"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `json:"level" envconfig:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	Format string `json:"format" envconfig:"LOG_FORMAT" validate:"oneof=text json"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host: "127.0.0.1", // Secure default
			Port: 18880,
		},
		Store: StoreConfig{
			Driver: StoreDriverFile,
			Path:   "~/" + ConfigDir + "/moderation.json",
		},
		Timeline: TimelineConfig{
			Path: "~/" + ConfigDir + "/timeline.db",
		},
		Policy: PolicyConfig{
			Mode: PolicyModeFirstUse,
		},
		Dispatch: DispatchConfig{
			BlockLinks:    true,
			ReplyHelp:     true,
			MemberNotices: true,
		},
		Channels: ChannelsConfig{
			WhatsApp: WhatsAppConfig{
				DBPath:   "~/" + ConfigDir + "/whatsapp.db",
				QRPath:   "~/" + ConfigDir + "/whatsapp-qr.png",
				LogLevel: "WARN",
			},
		},
		Audit: AuditConfig{
			Kafka: KafkaAuditConfig{
				Topic: "groupguard.audit",
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
