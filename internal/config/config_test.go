package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("GROUPGUARD_HOME", home)
	t.Setenv("GROUPGUARD_CONFIG", "")
	t.Setenv("GROUPGUARD_ENV_FILE", "")
	return home
}

func writeConfig(t *testing.T, home, body string) string {
	t.Helper()
	dir := filepath.Join(home, ConfigDir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	path := filepath.Join(dir, ConfigFile)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Gateway.Host != "127.0.0.1" {
		t.Errorf("expected gateway host 127.0.0.1, got %s", cfg.Gateway.Host)
	}
	if cfg.Store.Driver != StoreDriverFile {
		t.Errorf("expected file store driver, got %s", cfg.Store.Driver)
	}
	if cfg.Policy.Mode != PolicyModeFirstUse {
		t.Errorf("expected first-use policy, got %s", cfg.Policy.Mode)
	}
	if !cfg.Dispatch.BlockLinks || !cfg.Dispatch.ReplyHelp {
		t.Error("expected link guard and help replies on by default")
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	want := filepath.Join(home, ConfigDir, "moderation.json")
	if cfg.Store.Path != want {
		t.Errorf("expected store path %s, got %s", want, cfg.Store.Path)
	}
	if strings.HasPrefix(cfg.Timeline.Path, "~") {
		t.Errorf("expected timeline path expanded, got %s", cfg.Timeline.Path)
	}
}

func TestLoadFromFileWithIncludeAndEnvSubstitution(t *testing.T) {
	home := isolate(t)
	t.Setenv("TEST_WEBHOOK_SECRET", "s3cret")

	dir := filepath.Join(home, ConfigDir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "channels.json"), []byte(`{
		"channels": {"webhook": {"enabled": true, "token": "${TEST_WEBHOOK_SECRET}"}}
	}`), 0o600); err != nil {
		t.Fatalf("write include: %v", err)
	}
	writeConfig(t, home, `{
		"$include": "channels.json",
		"gateway": {"port": 19000},
		"policy": {"mode": "provisioned", "seedAdmins": ["U1"]},
		"channels": {"webhook": {"outboundUrl": "http://localhost:9000/reply"}}
	}`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Gateway.Port != 19000 {
		t.Errorf("expected port 19000, got %d", cfg.Gateway.Port)
	}
	if cfg.Gateway.Host != "127.0.0.1" {
		t.Errorf("expected default host kept, got %s", cfg.Gateway.Host)
	}
	if !cfg.Channels.Webhook.Enabled || cfg.Channels.Webhook.Token != "s3cret" {
		t.Errorf("include/env substitution failed: %+v", cfg.Channels.Webhook)
	}
	if cfg.Channels.Webhook.OutboundURL != "http://localhost:9000/reply" {
		t.Errorf("expected merged outbound url, got %q", cfg.Channels.Webhook.OutboundURL)
	}
	if cfg.Policy.Mode != PolicyModeProvisioned || !slices.Equal(cfg.Policy.SeedAdmins, []string{"U1"}) {
		t.Errorf("unexpected policy: %+v", cfg.Policy)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	home := isolate(t)
	writeConfig(t, home, `{"gateway": {"port": 19000}, "log": {"level": "info"}}`)
	t.Setenv("GROUPGUARD_GATEWAY_PORT", "19500")
	t.Setenv("GROUPGUARD_LOG_LEVEL", "DEBUG")
	t.Setenv("GROUPGUARD_AUDIT_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("GROUPGUARD_DISPATCH_BLOCK_LINKS", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Gateway.Port != 19500 {
		t.Errorf("expected env port 19500, got %d", cfg.Gateway.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected normalized log level debug, got %s", cfg.Log.Level)
	}
	if !slices.Equal(cfg.Audit.Kafka.Brokers, []string{"k1:9092", "k2:9092"}) {
		t.Errorf("unexpected brokers: %v", cfg.Audit.Kafka.Brokers)
	}
	if cfg.Dispatch.BlockLinks {
		t.Error("expected link guard disabled by env")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"policy mode":      `{"policy": {"mode": "anyone"}}`,
		"store driver":     `{"store": {"driver": "redis"}}`,
		"port":             `{"gateway": {"port": 70000}}`,
		"webhook no token": `{"channels": {"webhook": {"enabled": true}}}`,
		"slack no token":   `{"channels": {"slack": {"enabled": true}}}`,
		"bad url":          `{"channels": {"webhook": {"outboundUrl": "not a url"}}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			home := isolate(t)
			writeConfig(t, home, body)
			if _, err := Load(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadRejectsIncludeCycle(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, ConfigDir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a.json"), []byte(`{"$include": "config.json"}`), 0o600); err != nil {
		t.Fatalf("write include: %v", err)
	}
	writeConfig(t, home, `{"$include": ["a.json"]}`)

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("expected include cycle error, got %v", err)
	}
}

func TestConfigPathExplicit(t *testing.T) {
	home := isolate(t)
	t.Setenv("GROUPGUARD_CONFIG", "~/custom.json")

	path, err := ConfigPath()
	if err != nil {
		t.Fatalf("ConfigPath() error: %v", err)
	}
	if path != filepath.Join(home, "custom.json") {
		t.Fatalf("unexpected config path: %s", path)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	isolate(t)

	cfg := DefaultConfig()
	cfg.Gateway.Port = 18999
	cfg.Policy.SeedAdmins = []string{"U1", "U2"}
	if err := Save(cfg); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if loaded.Gateway.Port != 18999 || !slices.Equal(loaded.Policy.SeedAdmins, []string{"U1", "U2"}) {
		t.Fatalf("saved config not reloaded: %+v", loaded)
	}
}
