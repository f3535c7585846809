// Package doctor runs configuration and connectivity diagnostics.
package doctor

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/KafClaw/groupguard/internal/config"
	"github.com/KafClaw/groupguard/internal/store"
	"github.com/KafClaw/groupguard/internal/timeline"
	"github.com/segmentio/kafka-go"
)

type Status string

const (
	Pass Status = "pass"
	Warn Status = "warn"
	Fail Status = "fail"
)

type Check struct {
	Name    string
	Status  Status
	Message string
}

type Report struct {
	Checks []Check
}

type Options struct {
	// Offline skips broker connectivity checks.
	Offline bool
	// KafkaTimeout bounds each broker check. Zero means 5s.
	KafkaTimeout time.Duration
}

func (r Report) HasFailures() bool {
	for _, c := range r.Checks {
		if c.Status == Fail {
			return true
		}
	}
	return false
}

func (r *Report) add(name string, status Status, format string, args ...any) {
	r.Checks = append(r.Checks, Check{Name: name, Status: status, Message: fmt.Sprintf(format, args...)})
}

// Run loads the configuration and checks it. Failures are reported as
// checks, not errors.
func Run(ctx context.Context, opts Options) Report {
	report := Report{Checks: make([]Check, 0, 12)}

	cfgPath, err := config.ConfigPath()
	if err != nil {
		report.add("config_path", Fail, "cannot resolve config path: %v", err)
		return report
	}
	if _, err := os.Stat(cfgPath); err != nil {
		if os.IsNotExist(err) {
			report.add("config_file", Warn, "config file not found at %s (defaults will be used)", cfgPath)
		} else {
			report.add("config_file", Fail, "cannot access config file: %v", err)
		}
	} else {
		report.add("config_file", Pass, "config file found at %s", cfgPath)
	}

	cfg, err := config.Load()
	if err != nil {
		report.add("config_load", Fail, "config load failed: %v", err)
		return report
	}
	report.add("config_load", Pass, "config loaded successfully")

	checkGateway(&report, cfg)
	checkChannels(&report, cfg)
	tl := checkTimeline(&report, cfg)
	if tl != nil {
		defer tl.Close()
	}
	checkRecord(ctx, &report, cfg, tl)
	if !opts.Offline {
		checkKafka(ctx, &report, cfg.Audit.Kafka, opts.KafkaTimeout)
	}
	return report
}

func checkGateway(r *Report, cfg *config.Config) {
	if isLoopbackHost(cfg.Gateway.Host) {
		r.add("gateway_host", Pass, "gateway.host is loopback (%s); expose it through a reverse proxy", cfg.Gateway.Host)
		return
	}
	r.add("gateway_host", Warn, "gateway.host is not loopback (%s)", cfg.Gateway.Host)
	if cfg.Channels.Slack.Enabled && strings.TrimSpace(cfg.Channels.Slack.VerificationToken) == "" {
		r.add("slack_verification", Fail, "slack events are accepted unauthenticated on a public listener; set channels.slack.verificationToken")
	}
}

func checkChannels(r *Report, cfg *config.Config) {
	ch := cfg.Channels
	if !ch.Webhook.Enabled && !ch.Slack.Enabled && !ch.WhatsApp.Enabled {
		r.add("channels", Warn, "no channel is enabled; the gateway will not receive events")
		return
	}
	if ch.Webhook.Enabled && strings.TrimSpace(ch.Webhook.OutboundURL) == "" {
		r.add("webhook_outbound", Warn, "channels.webhook.outboundUrl is empty; replies are dropped")
	}
	if ch.Slack.Enabled && strings.TrimSpace(ch.Slack.VerificationToken) == "" && isLoopbackHost(cfg.Gateway.Host) {
		r.add("slack_verification", Warn, "channels.slack.verificationToken is empty")
	}
	if ch.WhatsApp.Enabled {
		if _, err := os.Stat(ch.WhatsApp.DBPath); err != nil {
			r.add("whatsapp_session", Warn, "no WhatsApp session at %s; run 'groupguard whatsapp-login'", ch.WhatsApp.DBPath)
		} else {
			r.add("whatsapp_session", Pass, "WhatsApp session found")
		}
	}
}

func checkTimeline(r *Report, cfg *config.Config) *timeline.TimelineService {
	if _, err := os.Stat(cfg.Timeline.Path); err != nil {
		r.add("timeline", Warn, "timeline database not created yet (%s)", cfg.Timeline.Path)
		return nil
	}
	tl, err := timeline.NewTimelineService(cfg.Timeline.Path)
	if err != nil {
		r.add("timeline", Fail, "timeline open failed: %v", err)
		return nil
	}
	r.add("timeline", Pass, "timeline database at %s", cfg.Timeline.Path)
	return tl
}

func checkRecord(ctx context.Context, r *Report, cfg *config.Config, tl *timeline.TimelineService) {
	var (
		st       store.Store
		location = "sqlite"
	)
	switch cfg.Store.Driver {
	case config.StoreDriverSQLite:
		if tl == nil {
			return
		}
		s, err := store.NewSQLiteStore(tl.DB())
		if err != nil {
			r.add("store", Fail, "sqlite store init failed: %v", err)
			return
		}
		st = s
	default:
		fs := store.NewFileStore(cfg.Store.Path)
		st, location = fs, fs.Path()
	}

	rec, err := st.Load(ctx)
	if err != nil {
		r.add("store", Fail, "moderation record unreadable (%s): %v", location, err)
		return
	}
	r.add("store", Pass, "%s: %d admin(s), %d blacklisted", location, len(rec.Admins), len(rec.Blacklist))

	if len(rec.Admins) > 0 || len(cfg.Policy.SeedAdmins) > 0 {
		return
	}
	if cfg.Policy.Mode == config.PolicyModeProvisioned {
		r.add("admins", Fail, "provisioned policy with no admins; set policy.seedAdmins or run 'groupguard admins add'")
		return
	}
	r.add("admins", Warn, "no admins yet; the first /addadmin sender becomes admin")
}

func checkKafka(ctx context.Context, r *Report, cfg config.KafkaAuditConfig, timeout time.Duration) {
	if len(cfg.Brokers) == 0 {
		return
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	for _, broker := range cfg.Brokers {
		broker = strings.TrimSpace(broker)
		if broker == "" {
			continue
		}
		checkBroker(ctx, r, broker, cfg.Topic, timeout)
	}
}

func checkBroker(ctx context.Context, r *Report, broker, topic string, timeout time.Duration) {
	name := "kafka " + broker
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := kafka.DialContext(dialCtx, "tcp", broker)
	if err != nil {
		r.add(name, Fail, "broker dial failed: %v", err)
		return
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	if _, err := conn.ApiVersions(); err != nil {
		r.add(name, Fail, "ApiVersions failed: %v", err)
		return
	}
	parts, err := conn.ReadPartitions(topic)
	if err != nil || len(parts) == 0 {
		r.add(name, Warn, "topic %q not readable (auto-create may be required): %v", topic, err)
		return
	}
	r.add(name, Pass, "topic %q has %d partition(s)", topic, len(parts))
}

func isLoopbackHost(host string) bool {
	h := strings.TrimSpace(strings.ToLower(host))
	if h == "" {
		return false
	}
	if h == "localhost" {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
