// Package broadcast publishes audit events to external collaborators.
//
// The only implementation is a Kafka sink. Delivery is best-effort from the
// registry's point of view: the ledger, not the broadcast stream, is the
// source of truth, and a failed publish never fails a submit.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/roach88/attest/internal/audit"
)

// KafkaSink publishes audit events to a Kafka topic. Messages are keyed by
// fingerprint so all events for one fingerprint land on one partition.
type KafkaSink struct {
	writer *kafka.Writer
}

// NewKafkaSink creates a sink writing to the given brokers and topic.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Publish implements audit.Sink.
func (s *KafkaSink) Publish(ctx context.Context, ev audit.Event) error {
	msg, err := newMessage(ev)
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, msg)
}

// Close flushes and closes the underlying writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// newMessage builds the wire message for an event: fingerprint bytes as the
// key, JSON event as the value.
func newMessage(ev audit.Event) (kafka.Message, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal audit event: %w", err)
	}
	return kafka.Message{
		Key:   ev.Fingerprint[:],
		Value: value,
	}, nil
}
