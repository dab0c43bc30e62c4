package service

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"praman/internal/did"
	"praman/internal/platform/metrics"
	"praman/internal/vc/models"
	"praman/internal/vc/ports"
	"praman/internal/vc/signer"
	"praman/internal/vc/store"
	dErrors "praman/pkg/domain-errors"
	"praman/pkg/platform/audit"
	"praman/pkg/platform/sentinel"
	"praman/pkg/requestcontext"
)

const (
	DefaultValidity = 365 * 24 * time.Hour
	MaxBatchSize    = 100
	// MaxPresentationSize bounds the credentials verified per presentation.
	MaxPresentationSize = 32
	MaxReasonLength = 256
	maxExtraTypes   = 8
)

// Option configures the credential service.
type Option func(*Service)

// Service issues, verifies and revokes credentials with a single issuer key.
// It keeps no claim or subject state; the only persisted data is the
// revocation list.
type Service struct {
	signer          *signer.Signer
	issuerDID       did.DID
	revocations     store.Store
	keys            ports.KeyResolver
	auditor         audit.Emitter
	metrics         *metrics.Metrics
	logger          *slog.Logger
	defaultValidity time.Duration
	maxValidity     time.Duration
	batchLimit      int
}

// NewService creates a credential service signing as issuerDID.
func NewService(sg *signer.Signer, issuerDID did.DID, revocations store.Store, opts ...Option) *Service {
	svc := &Service{
		signer:          sg,
		issuerDID:       issuerDID,
		revocations:     revocations,
		defaultValidity: DefaultValidity,
		maxValidity:     DefaultValidity,
		batchLimit:      runtime.GOMAXPROCS(0),
		logger:          slog.New(slog.DiscardHandler),
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

// WithKeyResolver enables verification of credentials from other issuers.
func WithKeyResolver(keys ports.KeyResolver) Option {
	return func(s *Service) {
		s.keys = keys
	}
}

// WithValidity sets the validity applied when a command leaves it unset, and
// the ceiling for explicit values.
func WithValidity(defaultValidity, maxValidity time.Duration) Option {
	return func(s *Service) {
		if defaultValidity > 0 {
			s.defaultValidity = defaultValidity
		}
		if maxValidity > 0 {
			s.maxValidity = maxValidity
		}
	}
}

func WithBatchLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchLimit = n
		}
	}
}

// Issuer describes the signing identity.
type Issuer struct {
	DID       did.DID
	KeyID     string
	Algorithm string
	ProofType string
	PublicKey signer.PublicKey
}

func (s *Service) Issuer() Issuer {
	return Issuer{
		DID:       s.issuerDID,
		KeyID:     s.issuerDID.KeyID(),
		Algorithm: s.signer.Algorithm(),
		ProofType: s.signer.ProofType(),
		PublicKey: s.signer.PublicKey(),
	}
}

// Issue binds claims to a subject DID in a freshly signed credential.
func (s *Service) Issue(ctx context.Context, cmd models.IssueCommand) (*models.Credential, error) {
	subject, err := did.Parse(strings.TrimSpace(cmd.SubjectDID))
	if err != nil {
		return nil, dErrors.New(dErrors.CodeInvalidSubject, "subjectDID is not a valid did:bharat identifier")
	}
	if err := models.ValidateClaims(cmd.Claims); err != nil {
		return nil, err
	}
	validity, err := s.validity(cmd.Validity)
	if err != nil {
		return nil, err
	}
	types, err := credentialTypes(cmd.Types)
	if err != nil {
		return nil, err
	}
	claims, err := models.NormalizeClaims(cmd.Claims)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "claims are not serializable")
	}

	lifecycle := did.ResumeLifecycle(did.StateDIDDerived)

	start := time.Now()
	now := requestcontext.Now(ctx).UTC().Truncate(time.Second)
	credential := &models.Credential{
		Context:           []string{models.ContextV1},
		ID:                models.NewCredentialID().String(),
		Type:              types,
		Issuer:            s.issuerDID.String(),
		IssuanceDate:      now,
		ExpirationDate:    now.Add(validity).Truncate(time.Second),
		CredentialSubject: models.Subject{ID: subject.String(), Claims: claims},
	}

	payload, err := models.CanonicalPayload(credential)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to canonicalize credential")
	}
	jws, err := s.signer.SignDetached(s.issuerDID.KeyID(), payload)
	if err != nil {
		s.logger.ErrorContext(ctx, "credential signing failed",
			"alg", s.signer.Algorithm(),
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeCryptoFailure, "failed to sign credential")
	}
	credential.Proof = &models.Proof{
		Type:               s.signer.ProofType(),
		Created:            now,
		ProofPurpose:       models.ProofPurposeAssertion,
		VerificationMethod: s.issuerDID.KeyID(),
		JWS:                jws,
	}
	if err := lifecycle.Advance(did.StateCredentialIssued); err != nil {
		return nil, err
	}

	s.metrics.ObserveIssue(s.signer.Algorithm(), time.Since(start).Seconds())
	audit.Emit(ctx, s.auditor, s.logger, audit.Event{
		Action:       string(audit.EventCredentialIssued),
		IssuerDID:    credential.Issuer,
		CredentialID: credential.ID,
		Outcome:      audit.OutcomeSuccess,
		State:        string(lifecycle.State()),
	})
	return credential, nil
}

// IssueBatch issues each command independently. Results keep input order and
// carry per-item errors; the returned error is reserved for request-level
// failures.
func (s *Service) IssueBatch(ctx context.Context, cmds []models.IssueCommand) ([]models.BatchResult, error) {
	if len(cmds) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "at least one item is required")
	}
	if len(cmds) > MaxBatchSize {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "too many items in batch")
	}

	results := make([]models.BatchResult, len(cmds))
	var g errgroup.Group
	g.SetLimit(s.batchLimit)
	for i, cmd := range cmds {
		g.Go(func() error {
			results[i].Index = i
			if err := ctx.Err(); err != nil {
				results[i].Err = dErrors.Wrap(err, dErrors.CodeTimeout, "batch cancelled")
				return nil
			}
			results[i].Credential, results[i].Err = s.Issue(ctx, cmd)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return errors

	if err := ctx.Err(); err != nil {
		return results, dErrors.Wrap(err, dErrors.CodeTimeout, "batch issuance cancelled")
	}
	return results, nil
}

// Verify checks a credential against a known issuer key. Failures are
// reported in the result, never as errors.
func (s *Service) Verify(ctx context.Context, credential *models.Credential, pub signer.PublicKey) models.VerifyResult {
	result := verify(credential, pub, requestcontext.Now(ctx))
	s.recordVerification(ctx, credential, result)
	return result
}

// VerifyResolved resolves the issuer key, verifies the credential and then
// consults the revocation list.
func (s *Service) VerifyResolved(ctx context.Context, credential *models.Credential) (models.VerifyResult, error) {
	result, err := s.verifyResolved(ctx, credential)
	if err != nil {
		return models.VerifyResult{}, err
	}
	s.recordVerification(ctx, credential, result)
	return result, nil
}

// VerifyPresentation verifies every credential of a presentation
// concurrently. A nil entry stands for a credential that could not be
// decoded. The presentation is verified only if all credentials are.
func (s *Service) VerifyPresentation(ctx context.Context, credentials []*models.Credential) (models.PresentationResult, error) {
	if len(credentials) == 0 {
		return models.PresentationResult{}, dErrors.New(dErrors.CodeInvalidInput, "presentation must contain verifiableCredential")
	}
	if len(credentials) > MaxPresentationSize {
		return models.PresentationResult{}, dErrors.New(dErrors.CodeInvalidInput, "too many credentials in presentation")
	}

	items := make([]models.PresentationItem, len(credentials))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.batchLimit)
	for i, credential := range credentials {
		g.Go(func() error {
			result, err := s.VerifyResolved(gctx, credential)
			if err != nil {
				return err
			}
			items[i].VerifyResult = result
			if credential != nil {
				items[i].CredentialID = credential.ID
				items[i].Issuer = credential.Issuer
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return models.PresentationResult{}, err
	}

	verified := true
	for _, item := range items {
		verified = verified && item.Valid
	}
	return models.PresentationResult{
		Verified:         verified,
		Results:          items,
		TotalCredentials: len(items),
	}, nil
}

func (s *Service) verifyResolved(ctx context.Context, credential *models.Credential) (models.VerifyResult, error) {
	if credential == nil {
		return models.Invalid(models.ReasonMalformedCredential), nil
	}
	issuer, err := credential.IssuerDID()
	if err != nil {
		return models.Invalid(models.ReasonMalformedCredential), nil
	}

	pub, err := s.resolveKey(ctx, issuer)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) || dErrors.HasCode(err, dErrors.CodeGone) {
			return models.Invalid(models.ReasonIssuerUnknown), nil
		}
		return models.VerifyResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve issuer key")
	}

	result := verify(credential, pub, requestcontext.Now(ctx))
	if result.Valid {
		_, err := s.revocations.FindByID(ctx, models.CredentialID(credential.ID))
		switch {
		case err == nil:
			result = models.Invalid(models.ReasonRevoked)
		case errors.Is(err, sentinel.ErrNotFound):
		default:
			return models.VerifyResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to check revocation status")
		}
	}
	return result, nil
}

// verdict is the terminal lifecycle state a verification moves an issued
// credential to.
func verdict(result models.VerifyResult) did.State {
	if result.Valid {
		return did.StateVerified
	}
	return did.StateRejected
}

func (s *Service) resolveKey(ctx context.Context, issuer did.DID) (signer.PublicKey, error) {
	if issuer == s.issuerDID {
		return s.signer.PublicKey(), nil
	}
	if s.keys == nil {
		return signer.PublicKey{}, dErrors.New(dErrors.CodeNotFound, "issuer not known")
	}
	return s.keys.ResolveKey(ctx, issuer)
}

func (s *Service) recordVerification(ctx context.Context, credential *models.Credential, result models.VerifyResult) {
	label := "valid"
	outcome := audit.OutcomeSuccess
	if !result.Valid {
		label = string(result.Reason)
		outcome = audit.OutcomeFailure
	}
	s.metrics.IncrementVerification(label)

	event := audit.Event{
		Action:  string(audit.EventCredentialVerified),
		Outcome: outcome,
		Reason:  string(result.Reason),
		State:   string(verdict(result)),
	}
	if credential != nil {
		event.IssuerDID = credential.Issuer
		event.CredentialID = credential.ID
	}
	audit.Emit(ctx, s.auditor, s.logger, event)
}

// Revoke adds a credential to the revocation list.
func (s *Service) Revoke(ctx context.Context, credentialID string, reason string) (*models.Status, error) {
	id, err := models.ParseCredentialID(credentialID)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if len(reason) > MaxReasonLength {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "reason is too long")
	}

	revocation := models.Revocation{
		CredentialID: id,
		IssuerDID:    s.issuerDID.String(),
		Reason:       reason,
		RevokedAt:    requestcontext.Now(ctx).UTC(),
	}
	if err := s.revocations.Save(ctx, revocation); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			return nil, dErrors.New(dErrors.CodeConflict, "credential already revoked")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store revocation")
	}

	s.metrics.IncrementRevoked()
	audit.Emit(ctx, s.auditor, s.logger, audit.Event{
		Action:       string(audit.EventCredentialRevoked),
		IssuerDID:    revocation.IssuerDID,
		CredentialID: id.String(),
		Outcome:      audit.OutcomeSuccess,
	})
	return statusOf(revocation), nil
}

// Status reports whether a credential id is on the revocation list. Unknown
// ids are active: issued credentials are not stored.
func (s *Service) Status(ctx context.Context, credentialID string) (*models.Status, error) {
	id, err := models.ParseCredentialID(credentialID)
	if err != nil {
		return nil, err
	}
	revocation, err := s.revocations.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return &models.Status{CredentialID: id, Status: models.StatusActive}, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read revocation status")
	}
	return statusOf(revocation), nil
}

func statusOf(r models.Revocation) *models.Status {
	revokedAt := r.RevokedAt
	return &models.Status{
		CredentialID: r.CredentialID,
		Status:       models.StatusRevoked,
		RevokedAt:    &revokedAt,
		Reason:       r.Reason,
	}
}

func (s *Service) validity(requested time.Duration) (time.Duration, error) {
	if requested == 0 {
		return s.defaultValidity, nil
	}
	if requested < 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "validityPeriod must be positive")
	}
	if requested > s.maxValidity {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "validityPeriod exceeds the maximum")
	}
	if requested < time.Second {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "validityPeriod must be at least one second")
	}
	return requested, nil
}

func credentialTypes(extra []string) ([]string, error) {
	if len(extra) > maxExtraTypes {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "too many credential types")
	}
	types := []string{models.TypeVerifiableCredential}
	for _, t := range extra {
		t = strings.TrimSpace(t)
		if t == "" || len(t) > 64 {
			return nil, dErrors.New(dErrors.CodeInvalidInput, "credential type must be 1-64 characters")
		}
		if !slices.Contains(types, t) {
			types = append(types, t)
		}
	}
	return types, nil
}
