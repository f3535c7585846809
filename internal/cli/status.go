package cli

import (
	"fmt"
	"os"

	"github.com/KafClaw/groupguard/internal/channels"
	"github.com/KafClaw/groupguard/internal/config"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		printHeader(cmd.OutOrStdout(), "🏷️ GroupGuard Version")
		fmt.Fprintf(cmd.OutOrStdout(), "Version: %s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and moderation state",
	Run: func(cmd *cobra.Command, args []string) {
		w := cmd.OutOrStdout()
		printHeader(w, "📊 GroupGuard Status")
		fmt.Fprintf(w, "Version: %s\n", version)

		ok := color.GreenString("✓")
		bad := color.RedString("✗")

		configPath, _ := config.ConfigPath()
		if _, err := os.Stat(configPath); err == nil {
			fmt.Fprintf(w, "Config:    %s Found (%s)\n", ok, configPath)
		} else {
			fmt.Fprintf(w, "Config:    %s Not found, using defaults (%s)\n", bad, configPath)
		}

		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(w, "Config:    %s %v\n", bad, err)
			return
		}
		fmt.Fprintf(w, "Policy:    %s\n", cfg.Policy.Mode)
		fmt.Fprintf(w, "Store:     %s (%s)\n", cfg.Store.Driver, storeLocation(cfg))
		fmt.Fprintf(w, "Timeline:  %s\n", cfg.Timeline.Path)

		for _, ch := range []struct {
			name    string
			enabled bool
		}{
			{"Webhook", cfg.Channels.Webhook.Enabled},
			{"Slack", cfg.Channels.Slack.Enabled},
			{"WhatsApp", cfg.Channels.WhatsApp.Enabled},
		} {
			mark, state := bad, "Disabled"
			if ch.enabled {
				mark, state = ok, "Enabled"
			}
			fmt.Fprintf(w, "%-10s %s %s\n", ch.name+":", mark, state)
		}
		if cfg.Channels.WhatsApp.Enabled {
			if _, err := os.Stat(cfg.Channels.WhatsApp.DBPath); err == nil {
				fmt.Fprintf(w, "WA Link:   %s Session found\n", ok)
			} else {
				fmt.Fprintf(w, "WA Link:   %s No session (run 'groupguard whatsapp-login')\n", bad)
			}
		}
		if len(cfg.Audit.Kafka.Brokers) > 0 {
			fmt.Fprintf(w, "Kafka:     %s topic %s\n", ok, cfg.Audit.Kafka.Topic)
		}

		setupLogging(cfg.Log, os.Stderr)
		rt, err := openRuntime(cfg)
		if err != nil {
			fmt.Fprintf(w, "Store:     %s %v\n", bad, err)
			return
		}
		defer rt.Close()
		rec, err := rt.service.Snapshot(cmd.Context())
		if err != nil {
			fmt.Fprintf(w, "Record:    %s %v\n", bad, err)
			return
		}
		fmt.Fprintf(w, "Admins:    %d\n", len(rec.Admins))
		fmt.Fprintf(w, "Blacklist: %d\n", len(rec.Blacklist))
		fmt.Fprintf(w, "Webhook:   %s\n", channels.WebhookEventsPath)
		fmt.Fprintf(w, "Slack:     %s\n", channels.SlackEventsPath)
	},
}

func storeLocation(cfg *config.Config) string {
	if cfg.Store.Driver == config.StoreDriverSQLite {
		return cfg.Timeline.Path
	}
	return cfg.Store.Path
}
