package audit

import (
	"context"
	"time"
)

// Event is emitted from domain logic to capture key actions. It carries
// identifiers of public artifacts only (DIDs, credential ids), never claims
// or personal attributes.
type Event struct {
	Timestamp    time.Time `json:"timestamp"`
	Action       string    `json:"action"`
	IssuerDID    string    `json:"issuer_did,omitempty"`
	CredentialID string    `json:"credential_id,omitempty"`
	DID          string    `json:"did,omitempty"`
	Outcome      string    `json:"outcome"`
	Reason       string    `json:"reason,omitempty"`
	State        string    `json:"state,omitempty"`
	RequestID    string    `json:"request_id,omitempty"`
	Actor        string    `json:"actor,omitempty"`
}

type AuditEvent string

const (
	EventCredentialIssued   AuditEvent = "credential_issued"
	EventCredentialVerified AuditEvent = "credential_verified"
	EventCredentialRevoked  AuditEvent = "credential_revoked"
	EventDIDRegistered      AuditEvent = "did_registered"
	EventDIDDeactivated     AuditEvent = "did_deactivated"
	EventEnrollmentStarted  AuditEvent = "enrollment_started"
	EventEnrollmentDone     AuditEvent = "enrollment_completed"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Sink persists or forwards events. Implementations: LogSink, the Kafka sink
// in internal/platform/kafka/producer.
type Sink interface {
	Append(ctx context.Context, event Event) error
}
