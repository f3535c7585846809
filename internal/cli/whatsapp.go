package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/KafClaw/groupguard/internal/bus"
	"github.com/KafClaw/groupguard/internal/channels"
	"github.com/spf13/cobra"
)

var whatsappLoginCmd = &cobra.Command{
	Use:   "whatsapp-login",
	Short: "Pair the WhatsApp device by scanning a QR code",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		printHeader(out, "📲 WhatsApp Login")
		return withRuntime(func(rt *runtime) error {
			waCfg := rt.cfg.Channels.WhatsApp
			if err := os.MkdirAll(filepath.Dir(waCfg.DBPath), 0o700); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			wa := channels.NewWhatsAppChannel(waCfg, bus.NewMessageBus(), rt.timeline)
			defer wa.Stop()
			return wa.Login(ctx, out)
		})
	},
}

var whatsappSilentCmd = &cobra.Command{
	Use:   "whatsapp-silent [on|off]",
	Short: "Show or toggle WhatsApp silent mode (replies are logged, not sent)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRuntime(func(rt *runtime) error {
			w := cmd.OutOrStdout()
			if len(args) == 1 {
				var value string
				switch strings.ToLower(args[0]) {
				case "on", "true":
					value = "true"
				case "off", "false":
					value = "false"
				default:
					return fmt.Errorf("expected on or off, got %q", args[0])
				}
				if err := rt.timeline.SetSetting(channels.SettingWhatsAppSilent, value); err != nil {
					return err
				}
			}
			v, _ := rt.timeline.GetSetting(channels.SettingWhatsAppSilent)
			state := "off"
			if strings.EqualFold(strings.TrimSpace(v), "true") {
				state = "on"
			}
			fmt.Fprintf(w, "WhatsApp silent mode: %s\n", state)
			if jid, err := rt.timeline.GetSetting(channels.SettingWhatsAppJID); err == nil && jid != "" {
				fmt.Fprintf(w, "Paired as: %s\n", jid)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(whatsappSilentCmd)
}
