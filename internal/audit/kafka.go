package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	DefaultTopic = "groupguard.audit"

	kafkaQueueSize    = 256
	kafkaWriteTimeout = 5 * time.Second
)

var (
	ErrSinkClosed = errors.New("kafka audit sink closed")
	ErrQueueFull  = errors.New("kafka audit queue full")
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes entries as JSON, keyed by group id so one group's
// history stays on one partition. Record only enqueues; a background
// goroutine owns the broker write, so a slow broker never delays a command.
type KafkaSink struct {
	writer  messageWriter
	topic   string
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan kafka.Message
	done   chan struct{}
}

func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	var addrs []string
	for _, b := range brokers {
		if b = strings.TrimSpace(b); b != "" {
			addrs = append(addrs, b)
		}
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("kafka audit sink: no brokers configured")
	}
	if strings.TrimSpace(topic) == "" {
		topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(addrs...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
	return newKafkaSink(w, topic, kafkaWriteTimeout), nil
}

func newKafkaSink(w messageWriter, topic string, timeout time.Duration) *KafkaSink {
	s := &KafkaSink{
		writer:  w,
		topic:   topic,
		timeout: timeout,
		queue:   make(chan kafka.Message, kafkaQueueSize),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *KafkaSink) Topic() string { return s.topic }

// Record enqueues the entry without waiting for the broker. It fails only
// when the sink is closed or the queue is full.
func (s *KafkaSink) Record(_ context.Context, e Entry) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	key := e.GroupID
	if key == "" {
		key = e.ChatID
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  e.CreatedAt,
		Headers: []kafka.Header{
			{Key: "trace_id", Value: []byte(e.TraceID)},
			{Key: "action", Value: []byte(e.Action)},
		},
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}
	select {
	case s.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *KafkaSink) run() {
	defer close(s.done)
	for msg := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		err := s.writer.WriteMessages(ctx, msg)
		cancel()
		if err != nil {
			slog.Warn("kafka audit write failed", "topic", s.topic, "key", string(msg.Key), "error", err)
		}
	}
}

// Close drains queued entries and closes the writer.
func (s *KafkaSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	<-s.done
	return s.writer.Close()
}
