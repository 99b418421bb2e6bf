package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ignite/optin/internal/domain"
	"github.com/ignite/optin/internal/pkg/logger"
	"github.com/segmentio/kafka-go"
)

// messageWriter is the part of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes events as JSON, keyed by address so one subscriber's
// history stays on one partition.
type KafkaSink struct {
	mu     sync.Mutex
	writer messageWriter
	closed bool
}

// NewKafkaSink creates a synchronous writer for topic.
func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("audit: no kafka brokers configured")
	}
	if topic == "" {
		return nil, fmt.Errorf("audit: kafka topic is required")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		WriteTimeout:           10 * time.Second,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: false,
	}
	logger.Info("audit: kafka sink created", "topic", topic, "brokers", len(brokers))
	return &KafkaSink{writer: w}, nil
}

func (s *KafkaSink) Publish(ctx context.Context, events ...*domain.Event) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return fmt.Errorf("audit: kafka sink is closed")
	}
	if len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		value, err := json.Marshal(ev)
		if err != nil {
			logger.Warn("audit: skipping unencodable event", "uid", ev.UID, "error", err)
			continue
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(ev.Email),
			Value: value,
			Headers: []kafka.Header{
				{Key: "event-id", Value: []byte(ev.UID)},
				{Key: "event-type", Value: []byte(ev.Type)},
				{Key: "timestamp", Value: []byte(ev.CreatedAt.Format(time.RFC3339))},
			},
			Time: ev.CreatedAt,
		})
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("audit: write %d messages: %w", len(msgs), err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.writer.Close()
}
