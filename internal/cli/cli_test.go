package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/KafClaw/groupguard/internal/config"
	"github.com/KafClaw/groupguard/internal/manage"
	"github.com/KafClaw/groupguard/internal/mention"
	"github.com/KafClaw/groupguard/internal/policy"
	"github.com/KafClaw/groupguard/internal/timeline"
)

func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("GROUPGUARD_HOME", home)
	t.Setenv("GROUPGUARD_CONFIG", "")
	t.Setenv("GROUPGUARD_ENV_FILE", "")
	t.Setenv("GROUPGUARD_LOG_LEVEL", "error")
	return home
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCLI(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, "Version: "+version) {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestAdminsCommands(t *testing.T) {
	isolateHome(t)

	out, err := runCLI(t, "admins", "add", "U1", "U2", "U1")
	if err != nil {
		t.Fatalf("admins add: %v", err)
	}
	if !strings.Contains(out, "Added: U1, U2") {
		t.Fatalf("unexpected add output: %s", out)
	}
	out, err = runCLI(t, "admins", "add", "U2")
	if err != nil {
		t.Fatalf("admins add again: %v", err)
	}
	if !strings.Contains(out, "Unchanged: U2") {
		t.Fatalf("expected unchanged, got: %s", out)
	}

	if _, err := runCLI(t, "admins", "remove", "U1", "U2"); err == nil {
		t.Fatalf("expected removing every admin to fail")
	}
	out, err = runCLI(t, "admins", "remove", "U1")
	if err != nil {
		t.Fatalf("admins remove: %v", err)
	}
	if !strings.Contains(out, "Removed: U1") {
		t.Fatalf("unexpected remove output: %s", out)
	}

	out, err = runCLI(t, "admins", "list")
	if err != nil {
		t.Fatalf("admins list: %v", err)
	}
	if !strings.Contains(out, "Admins (1)") || !strings.Contains(out, "  U2") {
		t.Fatalf("unexpected list output: %s", out)
	}
}

func TestBlacklistCommands(t *testing.T) {
	isolateHome(t)
	if _, err := runCLI(t, "blacklist", "add", "B1", "B2"); err != nil {
		t.Fatalf("blacklist add: %v", err)
	}
	if _, err := runCLI(t, "blacklist", "remove", "B1", "B2"); err != nil {
		t.Fatalf("blacklist may become empty: %v", err)
	}
	out, err := runCLI(t, "blacklist", "list")
	if err != nil {
		t.Fatalf("blacklist list: %v", err)
	}
	if !strings.Contains(out, "Blacklist (0)") {
		t.Fatalf("unexpected list output: %s", out)
	}
}

func TestSQLiteStoreDriver(t *testing.T) {
	isolateHome(t)
	t.Setenv("GROUPGUARD_STORE_DRIVER", "sqlite")
	if _, err := runCLI(t, "admins", "add", "S1"); err != nil {
		t.Fatalf("admins add: %v", err)
	}
	out, err := runCLI(t, "admins", "list")
	if err != nil {
		t.Fatalf("admins list: %v", err)
	}
	if !strings.Contains(out, "  S1") {
		t.Fatalf("expected S1 in sqlite store, got: %s", out)
	}
}

func TestAuditCommandListsExecutedCommands(t *testing.T) {
	isolateHome(t)
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	rt, err := openRuntime(cfg)
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	_, err = rt.service.Execute(context.Background(), manage.Request{
		Action:    policy.ActionAddAdmin,
		Requester: "U1",
		Mentions:  mention.FromIDs("U1"),
		Channel:   "webhook",
		GroupID:   "G1",
	})
	_ = rt.Close()
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	out, err := runCLI(t, "audit", "--json", "--group", "G1")
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	var records []timeline.AuditRecord
	if err := json.Unmarshal([]byte(out), &records); err != nil {
		t.Fatalf("decode audit output: %v\n%s", err, out)
	}
	if len(records) != 1 || records[0].Action != string(policy.ActionAddAdmin) || records[0].Requester != "U1" {
		t.Fatalf("unexpected audit records: %+v", records)
	}
}

var (
	serveTestSignalMu sync.Mutex
	serveTestSignalCh chan<- os.Signal
)

func stubServeSignals(t *testing.T) {
	t.Helper()
	origNotify := serveSignalNotify
	origStop := serveSignalStop
	serveSignalNotify = func(c chan<- os.Signal, _ ...os.Signal) {
		serveTestSignalMu.Lock()
		serveTestSignalCh = c
		serveTestSignalMu.Unlock()
	}
	serveSignalStop = func(c chan<- os.Signal) {
		serveTestSignalMu.Lock()
		if serveTestSignalCh == c {
			serveTestSignalCh = nil
		}
		serveTestSignalMu.Unlock()
	}
	t.Cleanup(func() {
		serveSignalNotify = origNotify
		serveSignalStop = origStop
	})
}

func sendServeSignal(t *testing.T, sig os.Signal) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		serveTestSignalMu.Lock()
		ch := serveTestSignalCh
		serveTestSignalMu.Unlock()
		if ch != nil {
			ch <- sig
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for serve signal channel")
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func waitHealthy(t *testing.T, base string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(base + "/healthz")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatalf("gateway did not become healthy")
}

func TestServeHandlesWebhookCommandAndShutsDown(t *testing.T) {
	stubServeSignals(t)
	isolateHome(t)
	port := freePort(t)
	t.Setenv("GROUPGUARD_GATEWAY_PORT", strconv.Itoa(port))
	t.Setenv("GROUPGUARD_WEBHOOK_ENABLED", "true")
	t.Setenv("GROUPGUARD_WEBHOOK_TOKEN", "secret")

	done := make(chan error, 1)
	go func() {
		_, err := runCLI(t, "serve")
		done <- err
	}()

	base := "http://127.0.0.1:" + strconv.Itoa(port)
	waitHealthy(t, base)

	body := `{"events":[{"type":"message","source":{"type":"group","groupId":"G1","userId":"U1"},"message":{"id":"m1","type":"text","text":"/addadmin"}}]}`
	req, err := http.NewRequest(http.MethodPost, base+"/api/v1/channels/webhook/events", strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer secret")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post webhook: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	sendServeSignal(t, syscall.SIGTERM)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("serve did not stop")
	}

	out, err := runCLI(t, "admins", "list")
	if err != nil {
		t.Fatalf("admins list: %v", err)
	}
	if !strings.Contains(out, "  U1") {
		t.Fatalf("expected bootstrapped admin U1, got: %s", out)
	}
}

func TestDoctorCommandOffline(t *testing.T) {
	isolateHome(t)
	out, err := runCLI(t, "doctor", "--offline")
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	if !strings.Contains(out, "[WARN] config_file") || !strings.Contains(out, "[PASS] config_load") {
		t.Fatalf("unexpected doctor output: %s", out)
	}
}
