package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"courierwatch/internal/telemetry"
)

const kafkaWriteTimeout = 10 * time.Second

// messageWriter is the subset of kafka.Writer used by KafkaWriter.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaWriter publishes each tick's alerts to a topic, keyed by courier id.
type KafkaWriter struct {
	w messageWriter
}

// NewKafkaWriter creates a writer for topic on brokers.
func NewKafkaWriter(brokers []string, topic string) *KafkaWriter {
	return &KafkaWriter{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}}
}

// WritePublication sends one message per alert with the tick id as header.
func (k *KafkaWriter) WritePublication(p Publication) error {
	rows := AlertRows(p)
	if len(rows) == 0 {
		return nil
	}
	msgs, err := alertMessages(p.ID, rows)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), kafkaWriteTimeout)
	defer cancel()
	if err := k.w.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka write: %w", err)
	}
	return nil
}

func alertMessages(tickID string, rows []telemetry.AlertRow) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(rows))
	for _, r := range rows {
		value, err := json.Marshal(r)
		if err != nil {
			return nil, fmt.Errorf("marshal alert: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:     []byte(r.CourierID),
			Value:   value,
			Headers: []kafka.Header{{Key: "tickId", Value: []byte(tickID)}},
		})
	}
	return msgs, nil
}

// Close flushes and closes the underlying writer.
func (k *KafkaWriter) Close() error {
	return k.w.Close()
}
