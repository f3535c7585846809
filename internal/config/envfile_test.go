package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnvFileCandidatesFromExplicitPath(t *testing.T) {
	isolate(t)
	envPath := filepath.Join(t.TempDir(), "groupguard.env")
	content := `
# comment
export EXPLICIT_KEY=42
QUOTED_KEY="hello world"
KEEP_KEY=from-file
`
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("GROUPGUARD_ENV_FILE", envPath)
	t.Setenv("KEEP_KEY", "existing")
	t.Setenv("EXPLICIT_KEY", "")
	t.Setenv("QUOTED_KEY", "")
	os.Unsetenv("EXPLICIT_KEY")
	os.Unsetenv("QUOTED_KEY")

	LoadEnvFileCandidates()

	if got := os.Getenv("EXPLICIT_KEY"); got != "42" {
		t.Fatalf("expected EXPLICIT_KEY loaded from explicit env file, got %q", got)
	}
	if got := os.Getenv("QUOTED_KEY"); got != "hello world" {
		t.Fatalf("expected QUOTED_KEY unquoted, got %q", got)
	}
	if got := os.Getenv("KEEP_KEY"); got != "existing" {
		t.Fatalf("expected existing KEEP_KEY preserved, got %q", got)
	}
}

func TestLoadEnvFileFeedsEnvOverrides(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, ConfigDir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("GROUPGUARD_POLICY_MODE=provisioned\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("GROUPGUARD_POLICY_MODE", "")
	os.Unsetenv("GROUPGUARD_POLICY_MODE")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Policy.Mode != PolicyModeProvisioned {
		t.Fatalf("expected policy mode from env file, got %s", cfg.Policy.Mode)
	}
}

func TestEnvFileCandidatesDeduplicates(t *testing.T) {
	home := isolate(t)
	t.Setenv("GROUPGUARD_ENV_FILE", filepath.Join(home, ConfigDir, "env"))

	got := envFileCandidates()
	seen := map[string]bool{}
	for _, p := range got {
		if seen[p] {
			t.Fatalf("duplicate candidate %s in %v", p, got)
		}
		seen[p] = true
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 unique candidates, got %v", got)
	}
}
