package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"praman/internal/did"
	"praman/internal/enrollment/device"
	"praman/internal/enrollment/models"
	"praman/internal/enrollment/ports"
	"praman/internal/enrollment/store"
	"praman/internal/platform/metrics"
	dErrors "praman/pkg/domain-errors"
	"praman/pkg/platform/audit"
	"praman/pkg/platform/sentinel"
	platformsync "praman/pkg/platform/sync"
	"praman/pkg/requestcontext"
)

// Enrollment outcomes recorded in metrics.
const (
	outcomeSuccess   = "success"
	outcomeDuplicate = "duplicate"
	outcomeExpired   = "expired"
	outcomeRejected  = "rejected"
	outcomeError     = "error"
)

const DefaultSessionTTL = 5 * time.Minute

// Config describes the relying party the ceremony is bound to.
type Config struct {
	RPID       string
	RPName     string
	Origin     string
	SessionTTL time.Duration
}

type Option func(*Service)

// Service runs the server half of WebAuthn registration and turns the
// resulting credential public key into a registered DID.
type Service struct {
	sessions  store.SessionStore
	registrar ports.Registrar
	deriver   *did.Deriver
	cfg       Config
	random    func([]byte) (int, error)
	userLocks *platformsync.ShardedMutex
	auditor   audit.Emitter
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func New(sessions store.SessionStore, registrar ports.Registrar, deriver *did.Deriver, cfg Config, opts ...Option) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	svc := &Service{
		sessions:  sessions,
		registrar: registrar,
		deriver:   deriver,
		cfg:       cfg,
		random:    rand.Read,
		userLocks: platformsync.NewShardedMutex(platformsync.DefaultShards),
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithAuditor(auditor audit.Emitter) Option {
	return func(s *Service) {
		s.auditor = auditor
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithRandom replaces the challenge entropy source.
func WithRandom(read func([]byte) (int, error)) Option {
	return func(s *Service) {
		if read != nil {
			s.random = read
		}
	}
}

// Start opens a registration ceremony for userID and returns the creation
// options. An empty userID gets a generated handle. A user with an
// unexpired pending ceremony gets Conflict until it is completed or expires.
func (s *Service) Start(ctx context.Context, userID string) (*models.CreationOptions, error) {
	userID = strings.TrimSpace(userID)
	if len(userID) > models.MaxUserIDLength {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "userId is too long")
	}
	if userID == "" {
		userID = "user-" + uuid.NewString()
	}

	raw := make([]byte, models.ChallengeSize)
	if _, err := s.random(raw); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate challenge")
	}

	now := requestcontext.Now(ctx)
	session := models.Session{
		UserID:    userID,
		Challenge: base64.RawURLEncoding.EncodeToString(raw),
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.SessionTTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "an enrollment is already pending for this user")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store enrollment session")
	}

	audit.Emit(ctx, s.auditor, s.logger, audit.Event{
		Action:  string(audit.EventEnrollmentStarted),
		Outcome: audit.OutcomeSuccess,
	})

	opts := models.NewCreationOptions(models.RelyingParty{ID: s.cfg.RPID, Name: s.cfg.RPName}, session)
	return &opts, nil
}

// Verify checks the authenticator response against the pending session,
// derives the DID from the credential public key and the hardware binding,
// and registers it with the resolver.
func (s *Service) Verify(ctx context.Context, cmd models.VerifyCommand) (*models.Result, error) {
	outcome := outcomeSuccess
	defer func() {
		s.metrics.IncrementEnrollment(outcome)
	}()

	if err := validateCommand(cmd); err != nil {
		outcome = outcomeRejected
		return nil, err
	}

	// Duplicate submissions from this process queue here and then fail fast
	// on the consumed session. Consume is what makes the challenge single use
	// across replicas.
	s.userLocks.Lock(cmd.UserID)
	defer s.userLocks.Unlock(cmd.UserID)

	now := requestcontext.Now(ctx)
	session, err := s.sessions.Find(ctx, cmd.UserID)
	switch {
	case err == nil:
	case errors.Is(err, sentinel.ErrNotFound):
		outcome = outcomeRejected
		return nil, dErrors.New(dErrors.CodeNotFound, "no pending enrollment for user")
	default:
		outcome = outcomeError
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load enrollment session")
	}
	if session.IsExpiredAt(now) {
		outcome = outcomeExpired
		if _, err := s.sessions.Consume(ctx, cmd.UserID, session.Challenge); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "failed to drop expired enrollment session", "error", err)
		}
		return nil, dErrors.New(dErrors.CodeExpired, "enrollment challenge has expired")
	}

	if err := checkClientData(cmd.ClientDataJSON, session.Challenge, s.cfg.Origin); err != nil {
		outcome = outcomeRejected
		return nil, err
	}

	key, err := parseCredentialKey(cmd.PublicKey)
	if err != nil {
		outcome = outcomeRejected
		return nil, err
	}

	lifecycle := did.NewLifecycle()
	hardwareID := device.HardwareID(cmd.CredentialID, cmd.ClientIP, cmd.UserAgent)
	subject, err := s.deriver.DeriveBytes(key.spki, hardwareID)
	if err != nil {
		outcome = outcomeRejected
		s.metrics.IncrementDerivationFailure(string(dErrors.CodeOf(err)))
		return nil, err
	}

	// The response is valid; claim the challenge before registering. A
	// session replaced since Find is left for its own ceremony.
	_, err = s.sessions.Consume(ctx, cmd.UserID, session.Challenge)
	switch {
	case err == nil:
	case errors.Is(err, sentinel.ErrNotFound):
		outcome = outcomeRejected
		return nil, dErrors.New(dErrors.CodeNotFound, "no pending enrollment for user")
	default:
		outcome = outcomeError
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to consume enrollment session")
	}

	if err := lifecycle.Advance(did.StateDIDDerived); err != nil {
		outcome = outcomeError
		return nil, err
	}
	s.metrics.IncrementDIDsDerived()

	if _, err := s.registrar.Register(ctx, key.registerCommand(subject)); err != nil {
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			outcome = outcomeDuplicate
			if err := lifecycle.Advance(did.StateRejected); err != nil {
				return nil, err
			}
			s.emitCompleted(ctx, subject, lifecycle.State(), audit.OutcomeFailure, "duplicate enrollment")
			return nil, &models.DuplicateEnrollmentError{DID: subject}
		}
		outcome = outcomeError
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register did")
	}

	s.emitCompleted(ctx, subject, lifecycle.State(), audit.OutcomeSuccess, "")

	return &models.Result{
		DID:        subject,
		DeviceType: device.Classify(cmd.UserAgent),
		DeviceName: device.Name(cmd.UserAgent),
		EnrolledAt: now.UTC(),
	}, nil
}

func validateCommand(cmd models.VerifyCommand) error {
	switch {
	case cmd.UserID == "":
		return dErrors.New(dErrors.CodeInvalidInput, "userId is required")
	case cmd.CredentialID == "":
		return dErrors.New(dErrors.CodeInvalidInput, "credentialId is required")
	case cmd.ClientDataJSON == "":
		return dErrors.New(dErrors.CodeInvalidInput, "clientDataJSON is required")
	case cmd.PublicKey == "":
		return dErrors.New(dErrors.CodeInvalidKeyFormat, "publicKey is required")
	}
	return nil
}

func (s *Service) emitCompleted(ctx context.Context, subject did.DID, state did.State, outcome, reason string) {
	audit.Emit(ctx, s.auditor, s.logger, audit.Event{
		Action:  string(audit.EventEnrollmentDone),
		DID:     subject.String(),
		Outcome: outcome,
		Reason:  reason,
		State:   string(state),
	})
}
