package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"praman/pkg/requestcontext"
)

type recordingEmitter struct {
	events    []Event
	shouldErr bool
}

func (m *recordingEmitter) Emit(_ context.Context, event Event) error {
	if m.shouldErr {
		return errors.New("emit failed")
	}
	m.events = append(m.events, event)
	return nil
}

type EmitSuite struct {
	suite.Suite
	emitter *recordingEmitter
	logs    *bytes.Buffer
	logger  *slog.Logger
}

func TestEmitSuite(t *testing.T) {
	suite.Run(t, new(EmitSuite))
}

func (s *EmitSuite) SetupTest() {
	s.emitter = &recordingEmitter{}
	s.logs = &bytes.Buffer{}
	s.logger = slog.New(slog.NewJSONHandler(s.logs, nil))
}

func (s *EmitSuite) TestEnrichesFromContext() {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithRequestID(context.Background(), "req-12345")
	ctx = requestcontext.WithTime(ctx, at)
	ctx = requestcontext.WithActorID(ctx, "ops-alice")

	Emit(ctx, s.emitter, s.logger, Event{Action: string(EventCredentialIssued), Outcome: OutcomeSuccess})

	s.Require().Len(s.emitter.events, 1)
	s.Equal("req-12345", s.emitter.events[0].RequestID)
	s.Equal(at, s.emitter.events[0].Timestamp)
	s.Equal("ops-alice", s.emitter.events[0].Actor)
}

func (s *EmitSuite) TestKeepsExplicitFields() {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithRequestID(context.Background(), "from-ctx")

	Emit(ctx, s.emitter, s.logger, Event{Action: "x", RequestID: "explicit", Timestamp: at})

	s.Require().Len(s.emitter.events, 1)
	s.Equal("explicit", s.emitter.events[0].RequestID)
	s.Equal(at, s.emitter.events[0].Timestamp)
}

func (s *EmitSuite) TestEmitFailureIsLogged() {
	s.emitter.shouldErr = true

	Emit(context.Background(), s.emitter, s.logger, Event{Action: string(EventDIDRegistered)})

	s.Contains(s.logs.String(), "failed to emit audit event")
}

func (s *EmitSuite) TestNilEmitterIsNoop() {
	s.NotPanics(func() {
		Emit(context.Background(), nil, s.logger, Event{Action: "x"})
	})
}

func (s *EmitSuite) TestLogSinkWritesAuditLine() {
	sink := NewLogSink(s.logger)
	err := sink.Append(context.Background(), Event{
		Action:       string(EventCredentialRevoked),
		CredentialID: "urn:uuid:1",
		Outcome:      OutcomeSuccess,
	})
	s.Require().NoError(err)

	var line map[string]any
	s.Require().NoError(json.Unmarshal(s.logs.Bytes(), &line))
	s.Equal("credential_revoked", line["msg"])
	s.Equal("audit", line["log_type"])
	s.Equal("urn:uuid:1", line["credential_id"])
}
