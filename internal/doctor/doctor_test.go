package doctor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("GROUPGUARD_HOME", home)
	t.Setenv("GROUPGUARD_CONFIG", "")
	t.Setenv("GROUPGUARD_ENV_FILE", "")
	return home
}

func writeConfig(t *testing.T, home, body string) {
	t.Helper()
	dir := filepath.Join(home, ".groupguard")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func find(r Report, name string) (Check, bool) {
	for _, c := range r.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return Check{}, false
}

func TestMissingConfigWarnsNoFailure(t *testing.T) {
	isolate(t)
	report := Run(context.Background(), Options{Offline: true})
	if report.HasFailures() {
		t.Fatalf("expected no failures with missing config, got %#v", report)
	}
	if c, ok := find(report, "config_file"); !ok || c.Status != Warn {
		t.Fatalf("expected config_file warning, got %#v", c)
	}
	if c, ok := find(report, "admins"); !ok || c.Status != Warn {
		t.Fatalf("expected admins warning, got %#v", c)
	}
}

func TestInvalidConfigFails(t *testing.T) {
	home := isolate(t)
	writeConfig(t, home, `{"store":`)
	report := Run(context.Background(), Options{Offline: true})
	if c, ok := find(report, "config_load"); !ok || c.Status != Fail {
		t.Fatalf("expected config_load failure, got %#v", report)
	}
}

func TestProvisionedWithoutAdminsFails(t *testing.T) {
	home := isolate(t)
	writeConfig(t, home, `{"policy":{"mode":"provisioned"}}`)
	report := Run(context.Background(), Options{Offline: true})
	c, ok := find(report, "admins")
	if !ok || c.Status != Fail || !strings.Contains(c.Message, "seedAdmins") {
		t.Fatalf("expected admins failure, got %#v", report)
	}
}

func TestCorruptRecordFails(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "moderation.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write record: %v", err)
	}
	writeConfig(t, home, `{"store":{"driver":"file","path":"`+path+`"}}`)
	report := Run(context.Background(), Options{Offline: true})
	c, ok := find(report, "store")
	if !ok || c.Status != Fail {
		t.Fatalf("expected store failure, got %#v", report)
	}
	if !strings.Contains(c.Message, path) {
		t.Fatalf("expected store path in message, got %q", c.Message)
	}
}

func TestStoreCheckReportsFilePath(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "moderation.json")
	if err := os.WriteFile(path, []byte(`{"admins":["U1"],"blacklist":[]}`), 0o600); err != nil {
		t.Fatalf("write record: %v", err)
	}
	writeConfig(t, home, `{"store":{"driver":"file","path":"`+path+`"}}`)
	report := Run(context.Background(), Options{Offline: true})
	c, ok := find(report, "store")
	if !ok || c.Status != Pass {
		t.Fatalf("expected store pass, got %#v", report)
	}
	if c.Message != path+": 1 admin(s), 0 blacklisted" {
		t.Fatalf("unexpected store message: %q", c.Message)
	}
}

func TestPublicSlackWithoutVerificationFails(t *testing.T) {
	home := isolate(t)
	writeConfig(t, home, `{"gateway":{"host":"0.0.0.0"},"channels":{"slack":{"enabled":true,"botToken":"xoxb-1"}}}`)
	report := Run(context.Background(), Options{Offline: true})
	if c, ok := find(report, "slack_verification"); !ok || c.Status != Fail {
		t.Fatalf("expected slack_verification failure, got %#v", report)
	}
}

func TestUnreachableBrokerFails(t *testing.T) {
	home := isolate(t)
	writeConfig(t, home, `{"audit":{"kafka":{"brokers":["127.0.0.1:1"],"topic":"groupguard.audit"}}}`)
	report := Run(context.Background(), Options{KafkaTimeout: time.Second})
	if c, ok := find(report, "kafka 127.0.0.1:1"); !ok || c.Status != Fail {
		t.Fatalf("expected kafka failure, got %#v", report)
	}
}
