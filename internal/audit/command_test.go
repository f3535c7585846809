package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/KafClaw/groupguard/internal/audit"
	"github.com/KafClaw/groupguard/internal/manage"
	"github.com/KafClaw/groupguard/internal/mention"
	"github.com/KafClaw/groupguard/internal/policy"
	"github.com/KafClaw/groupguard/internal/store"
	"github.com/segmentio/kafka-go"
)

type unreachableBroker struct{}

func (unreachableBroker) WriteMessages(ctx context.Context, _ ...kafka.Message) error {
	<-ctx.Done()
	return ctx.Err()
}

func (unreachableBroker) Close() error { return nil }

func TestExecuteDoesNotWaitForKafka(t *testing.T) {
	ctx := context.Background()
	seed := []byte(`{"admins":["U1"],"blacklist":[]}`)
	req := manage.Request{Action: policy.ActionListAdmins, Requester: "U1", Channel: "slack", ChatID: "C1", Mentions: mention.FromIDs()}

	want, err := manage.NewService(store.NewMemoryStore(seed), policy.NewFirstUseBootstrap()).Execute(ctx, req)
	if err != nil {
		t.Fatalf("execute without audit: %v", err)
	}

	sink := audit.NewKafkaSinkForTest(unreachableBroker{}, audit.DefaultTopic, time.Second)
	defer sink.Close()
	svc := manage.NewService(store.NewMemoryStore(seed), policy.NewFirstUseBootstrap(),
		manage.WithAudit(audit.Fanout{sink}))

	start := time.Now()
	got, err := svc.Execute(ctx, req)
	if err != nil {
		t.Fatalf("execute with kafka audit: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Fatalf("execute blocked on kafka for %s", elapsed)
	}
	if got.Reply != want.Reply {
		t.Fatalf("reply changed: got %q, want %q", got.Reply, want.Reply)
	}
	if got.Result.Outcome != want.Result.Outcome {
		t.Fatalf("outcome changed: got %s, want %s", got.Result.Outcome, want.Result.Outcome)
	}
}
