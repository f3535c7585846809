package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/KafClaw/groupguard/internal/bus"
	"github.com/KafClaw/groupguard/internal/channels"
	"github.com/KafClaw/groupguard/internal/dispatch"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"gateway"},
	Short:   "Start the moderation gateway (webhook, Slack, WhatsApp)",
	RunE:    runServe,
}

var serveSignalNotify = signal.Notify
var serveSignalStop = signal.Stop

const shutdownTimeout = 5 * time.Second

func runServe(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	printHeader(out, "🛡️ GroupGuard Gateway")

	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()
	cfg := rt.cfg

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if added, err := rt.seed(ctx); err != nil {
		return fmt.Errorf("seed admins: %w", err)
	} else if len(added) > 0 {
		slog.Info("seeded admins", "added", added)
	}

	msgBus := bus.NewMessageBus()
	registry := channels.NewRegistry()
	mux := http.NewServeMux()

	if cfg.Channels.Webhook.Enabled {
		wh := channels.NewWebhookChannel(cfg.Channels.Webhook, msgBus)
		registry.Register(wh)
		mux.Handle(channels.WebhookEventsPath, wh)
	}
	if cfg.Channels.Slack.Enabled {
		sl := channels.NewSlackChannel(cfg.Channels.Slack, msgBus)
		registry.Register(sl)
		mux.Handle(channels.SlackEventsPath, sl)
	}
	if cfg.Channels.WhatsApp.Enabled {
		registry.Register(channels.NewWhatsAppChannel(cfg.Channels.WhatsApp, msgBus, rt.timeline))
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":   "ok",
			"version":  version,
			"channels": registry.Names(),
			"outbound": msgBus.Running(),
		})
	})

	sigChan := make(chan os.Signal, 1)
	serveSignalNotify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer serveSignalStop(sigChan)

	go func() { _ = msgBus.DispatchOutbound(ctx) }()
	registry.StartAll(ctx)
	defer registry.StopAll()

	disp := dispatch.New(msgBus, rt.service, registry, rt.timeline, dispatch.Options{
		BlockLinks:    cfg.Dispatch.BlockLinks,
		ReplyHelp:     cfg.Dispatch.ReplyHelp,
		MemberNotices: cfg.Dispatch.MemberNotices,
	})
	go func() {
		if err := disp.Run(ctx); err != nil {
			slog.Error("dispatcher stopped", "error", err)
		}
	}()

	addr := net.JoinHostPort(cfg.Gateway.Host, strconv.Itoa(cfg.Gateway.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(ln) }()

	fmt.Fprintf(out, "📡 Listening on http://%s\n", ln.Addr())
	slog.Info("gateway started", "addr", ln.Addr().String(), "channels", registry.Names())

	select {
	case sig := <-sigChan:
		slog.Info("shutting down", "signal", sig.String())
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "error", err)
	}
	cancel()
	fmt.Fprintln(out, "👋 Gateway stopped")
	return nil
}
