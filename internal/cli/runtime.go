package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/KafClaw/groupguard/internal/audit"
	"github.com/KafClaw/groupguard/internal/config"
	"github.com/KafClaw/groupguard/internal/manage"
	"github.com/KafClaw/groupguard/internal/policy"
	"github.com/KafClaw/groupguard/internal/store"
	"github.com/KafClaw/groupguard/internal/timeline"
)

// runtime holds the services shared by the gateway and the admin commands.
type runtime struct {
	cfg      *config.Config
	timeline *timeline.TimelineService
	store    store.Store
	service  *manage.Service
	closers  []io.Closer
}

func openRuntime(cfg *config.Config) (*runtime, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Timeline.Path), 0o700); err != nil {
		return nil, fmt.Errorf("create timeline dir: %w", err)
	}
	timeSvc, err := timeline.NewTimelineService(cfg.Timeline.Path)
	if err != nil {
		return nil, fmt.Errorf("init timeline: %w", err)
	}
	rt := &runtime{cfg: cfg, timeline: timeSvc, closers: []io.Closer{timeSvc}}

	switch cfg.Store.Driver {
	case config.StoreDriverSQLite:
		st, err := store.NewSQLiteStore(timeSvc.DB())
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("init sqlite store: %w", err)
		}
		rt.store = st
	default:
		rt.store = store.NewFileStore(cfg.Store.Path)
	}

	sinks := audit.Fanout{audit.NewTimelineSink(timeSvc)}
	if brokers := nonEmpty(cfg.Audit.Kafka.Brokers); len(brokers) > 0 {
		ks, err := audit.NewKafkaSink(brokers, cfg.Audit.Kafka.Topic)
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("init kafka audit: %w", err)
		}
		sinks = append(sinks, ks)
		rt.closers = append(rt.closers, ks)
	}

	rt.service = manage.NewService(rt.store, policy.ByMode(cfg.Policy.Mode),
		manage.WithAudit(sinks),
		manage.WithLogger(slog.Default()),
	)
	return rt, nil
}

// seed applies policy.seedAdmins.
func (rt *runtime) seed(ctx context.Context) ([]string, error) {
	if len(rt.cfg.Policy.SeedAdmins) == 0 {
		return nil, nil
	}
	return rt.service.SeedAdmins(ctx, rt.cfg.Policy.SeedAdmins)
}

// Close releases resources in reverse order of acquisition.
func (rt *runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// loadRuntime loads config, installs the logger and opens the runtime.
func loadRuntime() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	setupLogging(cfg.Log, os.Stderr)
	return openRuntime(cfg)
}

func setupLogging(cfg config.LogConfig, w io.Writer) {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	var h slog.Handler
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
