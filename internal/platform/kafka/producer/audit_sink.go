package producer

import (
	"context"
	"encoding/json"
	"fmt"

	"praman/pkg/platform/audit"
)

// MessageProducer is the publishing half of Producer.
type MessageProducer interface {
	Produce(ctx context.Context, msg *Message) error
}

// AuditSink publishes audit events as JSON records. Records are keyed by the
// DID or credential id they concern so events for one artifact stay ordered
// within a partition.
type AuditSink struct {
	producer MessageProducer
	topic    string
}

func NewAuditSink(producer MessageProducer, topic string) *AuditSink {
	return &AuditSink{producer: producer, topic: topic}
}

func (s *AuditSink) Append(ctx context.Context, event audit.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	msg := &Message{
		Topic: s.topic,
		Key:   []byte(partitionKey(event)),
		Value: value,
		Headers: map[string]string{
			"action":  event.Action,
			"outcome": event.Outcome,
		},
	}
	if event.RequestID != "" {
		msg.Headers["request_id"] = event.RequestID
	}
	return s.producer.Produce(ctx, msg)
}

func partitionKey(event audit.Event) string {
	switch {
	case event.DID != "":
		return event.DID
	case event.CredentialID != "":
		return event.CredentialID
	default:
		return event.IssuerDID
	}
}

var _ audit.Sink = (*AuditSink)(nil)
