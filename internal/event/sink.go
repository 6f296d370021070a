package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the sink needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireAll,
	}
}

// KafkaSink forwards bus events to a Kafka topic keyed by actor id.
type KafkaSink struct {
	writer MessageWriter
	logger *slog.Logger
}

func NewKafkaSink(writer MessageWriter, logger *slog.Logger) *KafkaSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaSink{writer: writer, logger: logger}
}

func (s *KafkaSink) Write(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(e.ActorID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s event: %w", e.Type, err)
	}
	return nil
}

// Run drains events until the channel closes or ctx is done. Write failures are
// logged and the event is dropped.
func (s *KafkaSink) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := s.Write(ctx, e); err != nil {
				s.logger.Error("failed to publish security event", "type", e.Type, "error", err)
				continue
			}
			s.logger.Debug("security event published", "type", e.Type, "event_id", e.ID)
		}
	}
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// LogSink only logs events; used when no brokers are configured.
func LogSink(ctx context.Context, events <-chan Event, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			logger.Debug("security event", "type", e.Type, "actor_id", e.ActorID, "payload", e.Payload)
		}
	}
}
