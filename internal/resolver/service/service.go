package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"

	"praman/internal/did"
	"praman/internal/platform/metrics"
	"praman/internal/resolver/models"
	"praman/internal/resolver/ownership"
	"praman/internal/resolver/store"
	"praman/internal/resolver/tracer"
	dErrors "praman/pkg/domain-errors"
	"praman/pkg/platform/audit"
	"praman/pkg/platform/sentinel"
	"praman/pkg/requestcontext"
)

// Resolution outcomes recorded in metrics and spans.
const (
	outcomeFound     = "found"
	outcomeNotFound  = "not_found"
	outcomeGone      = "gone"
	outcomeMalformed = "malformed"
	outcomeError     = "error"
)

type Option func(*Service)

// Service resolves DIDs to DID Documents built on demand from stored public
// key material.
type Service struct {
	store   store.Store
	deriver *did.Deriver
	tracer  tracer.Tracer
	auditor audit.Emitter
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewService(st store.Store, opts ...Option) *Service {
	svc := &Service{
		store:  st,
		tracer: tracer.NewNoop(),
		logger: slog.New(slog.DiscardHandler),
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

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
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

// WithDeriver enables pairwise DID derivation.
func WithDeriver(d *did.Deriver) Option {
	return func(s *Service) {
		s.deriver = d
	}
}

// Resolve returns the DID Document for raw. The grammar check runs before any
// store access.
func (s *Service) Resolve(ctx context.Context, raw string) (*models.Document, error) {
	reg, err := s.lookup(ctx, raw)
	if err != nil {
		return nil, err
	}
	return models.BuildDocument(reg), nil
}

// Keys returns only the verification methods of an active DID.
func (s *Service) Keys(ctx context.Context, raw string) ([]models.VerificationMethod, error) {
	reg, err := s.lookup(ctx, raw)
	if err != nil {
		return nil, err
	}
	return []models.VerificationMethod{models.VerificationMethodFor(reg)}, nil
}

// Status reports whether a DID is registered and active. Unlike Resolve, a
// deactivated DID is a normal answer here, not Gone.
func (s *Service) Status(ctx context.Context, raw string) (*models.DIDStatus, error) {
	d, err := did.Parse(raw)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeMalformedDID, "did does not match did:bharat grammar")
	}
	reg, err := s.store.FindByDID(ctx, d)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "did not found")
		}
		s.logger.ErrorContext(ctx, "failed to load did registration", "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read did status")
	}
	return models.StatusOf(reg), nil
}

// Pairwise derives the DID an active master DID presents to relyingPartyID.
// proof must show control of the master DID and name relyingPartyID as its
// audience (see package ownership). Nothing is stored; the same inputs always
// give the same pairwise DID.
func (s *Service) Pairwise(ctx context.Context, masterDID, relyingPartyID, proof string) (*models.PairwiseDID, error) {
	if s.deriver == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "pairwise derivation is not configured")
	}
	if strings.TrimSpace(relyingPartyID) == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "relying party id is empty")
	}
	reg, err := s.lookup(ctx, masterDID)
	if err != nil {
		return nil, err
	}
	if err := ownership.Verify(reg, proof, relyingPartyID, requestcontext.Now(ctx)); err != nil {
		s.logger.WarnContext(ctx, "pairwise request without proof of control",
			"did", reg.DID.String(),
			"error", err,
		)
		return nil, err
	}
	pairwise, err := s.deriver.Pairwise(reg.DID, relyingPartyID)
	if err != nil {
		return nil, err
	}
	return &models.PairwiseDID{DID: pairwise.String(), RelyingPartyID: relyingPartyID}, nil
}

// Registration returns the stored record of an active DID.
func (s *Service) Registration(ctx context.Context, d did.DID) (models.Registration, error) {
	return s.lookup(ctx, d.String())
}

func (s *Service) lookup(ctx context.Context, raw string) (reg models.Registration, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanResolve)
	outcome := outcomeFound
	defer func() {
		span.SetAttributes(tracer.String(tracer.AttrOutcome, outcome))
		span.End(err)
		s.metrics.IncrementResolution(outcome)
	}()

	d, err := did.Parse(raw)
	if err != nil {
		outcome = outcomeMalformed
		return models.Registration{}, dErrors.New(dErrors.CodeMalformedDID, "did does not match did:bharat grammar")
	}
	span.SetAttributes(tracer.String(tracer.AttrDID, d.String()))

	reg, err = s.store.FindByDID(ctx, d)
	switch {
	case err == nil:
	case errors.Is(err, sentinel.ErrNotFound):
		outcome = outcomeNotFound
		return models.Registration{}, dErrors.New(dErrors.CodeNotFound, "did not found")
	default:
		outcome = outcomeError
		s.logger.ErrorContext(ctx, "failed to load did registration", "error", err)
		return models.Registration{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve did")
	}

	if reg.IsDeactivated() {
		outcome = outcomeGone
		span.SetAttributes(tracer.Bool(tracer.AttrDeactivated, true))
		return models.Registration{}, dErrors.New(dErrors.CodeGone, "did has been deactivated")
	}
	return reg, nil
}

// Register stores the public material of a DID. Services with relative ids
// are anchored to the DID.
func (s *Service) Register(ctx context.Context, cmd models.RegisterCommand) (doc *models.Document, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanRegister, tracer.String(tracer.AttrKeyType, cmd.KeyType))
	defer func() { span.End(err) }()

	d, err := did.Parse(cmd.DID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeMalformedDID, "did does not match did:bharat grammar")
	}
	keyType, err := models.ParseKeyType(cmd.KeyType)
	if err != nil {
		return nil, err
	}
	if err := models.ValidatePublicKey(keyType, cmd.PublicKey); err != nil {
		return nil, err
	}
	services, err := models.ValidateServices(d, cmd.Services)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx).UTC()
	reg := models.Registration{
		DID:       d,
		KeyType:   keyType,
		PublicKey: slices.Clone(cmd.PublicKey),
		Services:  services,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if len(reg.Services) == 0 {
		reg.Services = nil
	}

	if err := s.store.Save(ctx, reg); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "did already registered")
		}
		s.logger.ErrorContext(ctx, "failed to save did registration", "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to register did")
	}

	audit.Emit(ctx, s.auditor, s.logger, audit.Event{
		Action:  string(audit.EventDIDRegistered),
		DID:     d.String(),
		Outcome: audit.OutcomeSuccess,
	})
	return models.BuildDocument(reg), nil
}

// Deactivate tombstones a DID. Repeated calls return the same document.
func (s *Service) Deactivate(ctx context.Context, raw string) (doc *models.Document, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanDeactivate)
	defer func() { span.End(err) }()

	d, err := did.Parse(raw)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeMalformedDID, "did does not match did:bharat grammar")
	}
	span.SetAttributes(tracer.String(tracer.AttrDID, d.String()))

	reg, err := s.store.Deactivate(ctx, d, requestcontext.Now(ctx))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "did not found")
		}
		s.logger.ErrorContext(ctx, "failed to deactivate did", "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to deactivate did")
	}

	audit.Emit(ctx, s.auditor, s.logger, audit.Event{
		Action:  string(audit.EventDIDDeactivated),
		DID:     d.String(),
		Outcome: audit.OutcomeSuccess,
	})
	return models.BuildDocument(reg), nil
}
