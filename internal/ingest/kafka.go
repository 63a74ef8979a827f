package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"courierwatch/internal/logging"
)

// messageReader is the subset of kafka.Reader used by KafkaSource.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSource consumes device telemetry from a topic in a consumer group.
type KafkaSource struct {
	r messageReader
	q Enqueuer
}

// NewKafkaSource creates a group reader on topic.
func NewKafkaSource(brokers []string, groupID, topic string, q Enqueuer) *KafkaSource {
	return &KafkaSource{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			GroupID:  groupID,
			Topic:    topic,
			MinBytes: 1,
			MaxBytes: 10_000_000,
			MaxWait:  250 * time.Millisecond,
		}),
		q: q,
	}
}

// Run fetches, enqueues and commits messages until ctx is done. Malformed
// messages are committed so they are not redelivered.
func (s *KafkaSource) Run(ctx context.Context) error {
	log := logging.FromContext(ctx)
	defer s.r.Close()
	for {
		msg, err := s.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				log.Info("kafka source stopped")
				return nil
			}
			return fmt.Errorf("kafka fetch: %w", err)
		}
		_, _ = HandlePayload(ctx, fmt.Sprintf("kafka:%s/%d", msg.Topic, msg.Partition), s.q, msg.Value)
		if err := s.r.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("kafka commit: %w", err)
		}
	}
}
