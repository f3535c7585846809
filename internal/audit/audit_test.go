package audit

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/KafClaw/groupguard/internal/timeline"
	"github.com/segmentio/kafka-go"
)

type recordingSink struct {
	entries []Entry
	err     error
}

func (r *recordingSink) Record(_ context.Context, e Entry) error {
	r.entries = append(r.entries, e)
	return r.err
}

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// stalledWriter never answers; each write lasts until its context expires.
type stalledWriter struct {
	mu       sync.Mutex
	attempts int
}

func (w *stalledWriter) WriteMessages(ctx context.Context, _ ...kafka.Message) error {
	w.mu.Lock()
	w.attempts++
	w.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (w *stalledWriter) Close() error { return nil }

func (w *stalledWriter) Attempts() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.attempts
}

func TestFanoutSwallowsSinkErrors(t *testing.T) {
	failing := &recordingSink{err: errors.New("boom")}
	ok := &recordingSink{}
	f := Fanout{failing, nil, ok}

	if err := f.Record(context.Background(), Entry{TraceID: "t1", Action: "add_admin"}); err != nil {
		t.Fatalf("fanout returned error: %v", err)
	}
	if len(failing.entries) != 1 || len(ok.entries) != 1 {
		t.Fatalf("expected both sinks to receive the entry")
	}
}

func TestTimelineSink(t *testing.T) {
	tl, err := timeline.NewTimelineService(filepath.Join(t.TempDir(), "timeline.db"))
	if err != nil {
		t.Fatalf("open timeline: %v", err)
	}
	defer tl.Close()

	sink := NewTimelineSink(tl)
	err = sink.Record(context.Background(), Entry{
		TraceID:   "t1",
		GroupID:   "G",
		Requester: "U",
		Action:    "add_blacklist",
		Outcome:   "applied",
		Targets:   []string{"X", "Y"},
		Changed:   []string{"X"},
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	rows, err := tl.ListAudit(timeline.AuditFilter{TraceID: "t1"})
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(rows) != 1 || rows[0].Outcome != "applied" || len(rows[0].Targets) != 2 {
		t.Fatalf("unexpected audit rows: %+v", rows)
	}
}

func TestKafkaSinkKeysByGroup(t *testing.T) {
	w := &fakeWriter{}
	sink := newKafkaSink(w, DefaultTopic, time.Second)

	if err := sink.Record(context.Background(), Entry{TraceID: "t1", GroupID: "G1", Action: "add_admin"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := sink.Record(context.Background(), Entry{TraceID: "t2", ChatID: "C9", Action: "list_admins"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !w.closed {
		t.Fatalf("expected writer closed")
	}
	if len(w.msgs) != 2 {
		t.Fatalf("expected 2 messages after drain, got %d", len(w.msgs))
	}
	if string(w.msgs[0].Key) != "G1" || string(w.msgs[1].Key) != "C9" {
		t.Fatalf("unexpected keys: %q %q", w.msgs[0].Key, w.msgs[1].Key)
	}
	var decoded Entry
	if err := json.Unmarshal(w.msgs[0].Value, &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded.TraceID != "t1" || decoded.Action != "add_admin" {
		t.Fatalf("unexpected payload: %+v", decoded)
	}
	if err := sink.Record(context.Background(), Entry{TraceID: "t3"}); !errors.Is(err, ErrSinkClosed) {
		t.Fatalf("expected ErrSinkClosed after close, got %v", err)
	}
}

func TestKafkaSinkDoesNotWaitForStalledBroker(t *testing.T) {
	w := &stalledWriter{}
	sink := newKafkaSink(w, DefaultTopic, 200*time.Millisecond)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := sink.Record(context.Background(), Entry{TraceID: "t", GroupID: "G1", Action: "list_admins"}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Fatalf("record waited on the broker: %s", elapsed)
	}

	if err := sink.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if w.Attempts() != 3 {
		t.Fatalf("expected 3 write attempts before close returned, got %d", w.Attempts())
	}
}

func TestKafkaSinkQueueFull(t *testing.T) {
	w := &stalledWriter{}
	sink := newKafkaSink(w, DefaultTopic, time.Millisecond)
	defer sink.Close()

	var full bool
	for i := 0; i < kafkaQueueSize+2; i++ {
		if err := sink.Record(context.Background(), Entry{TraceID: "t"}); errors.Is(err, ErrQueueFull) {
			full = true
			break
		}
	}
	if !full {
		t.Fatalf("expected ErrQueueFull once the queue is saturated")
	}
}

func TestNewKafkaSinkRequiresBrokers(t *testing.T) {
	if _, err := NewKafkaSink([]string{" ", ""}, ""); err == nil {
		t.Fatalf("expected error without brokers")
	}
	s, err := NewKafkaSink([]string{"localhost:9092"}, "")
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	defer s.Close()
	if s.Topic() != DefaultTopic {
		t.Fatalf("expected default topic, got %s", s.Topic())
	}
}
