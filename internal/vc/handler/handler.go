package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/btcsuite/btcutil/base58"
	"github.com/go-chi/chi/v5"

	"praman/internal/vc/models"
	vcservice "praman/internal/vc/service"
	dErrors "praman/pkg/domain-errors"
	"praman/pkg/platform/httputil"
	strutil "praman/pkg/platform/strings"
	"praman/pkg/requestcontext"
)

// Service defines the credential operations used by the handler.
type Service interface {
	Issue(ctx context.Context, cmd models.IssueCommand) (*models.Credential, error)
	IssueBatch(ctx context.Context, cmds []models.IssueCommand) ([]models.BatchResult, error)
	VerifyResolved(ctx context.Context, credential *models.Credential) (models.VerifyResult, error)
	VerifyPresentation(ctx context.Context, credentials []*models.Credential) (models.PresentationResult, error)
	Revoke(ctx context.Context, credentialID string, reason string) (*models.Status, error)
	Status(ctx context.Context, credentialID string) (*models.Status, error)
	Issuer() vcservice.Issuer
}

// Handler wires credential endpoints to the credential service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a credential handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts credential endpoints on the router. Issuance and
// revocation act with the issuer key and go through requireAdmin;
// verification and status lookups are public.
func (h *Handler) Register(r chi.Router, requireAdmin func(http.Handler) http.Handler) {
	r.Route("/credentials", func(r chi.Router) {
		r.Post("/verify", h.HandleVerify)
		r.Post("/verify/presentation", h.HandleVerifyPresentation)
		r.Get("/status/{id}", h.HandleStatus)
		r.Get("/issuer", h.HandleIssuer)

		r.Group(func(r chi.Router) {
			r.Use(requireAdmin)
			r.Post("/issue", h.HandleIssue)
			r.Post("/issue/batch", h.HandleIssueBatch)
			r.Post("/revoke", h.HandleRevoke)
		})
	})
}

// IssueRequest is the request body for credential issuance.
type IssueRequest struct {
	SubjectDID     string        `json:"subjectDID"`
	Claims         models.Claims `json:"claims"`
	ValidityPeriod int64         `json:"validityPeriod"`
	Type           []string      `json:"type,omitempty"`
}

func (r *IssueRequest) Normalize() {
	r.SubjectDID = strings.TrimSpace(r.SubjectDID)
	r.Type = strutil.DedupeAndTrim(r.Type)
}

// Validate validates the issuance request.
func (r *IssueRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "request is required")
	}

	// Phase 1: Size validation (fail fast on oversized input)
	if len(r.SubjectDID) > 256 {
		return dErrors.New(dErrors.CodeInvalidSubject, "subjectDID is too long")
	}
	if len(r.Claims) > models.MaxClaims {
		return dErrors.New(dErrors.CodeInvalidInput, "too many claims")
	}

	// Phase 2: Required fields
	if r.SubjectDID == "" {
		return dErrors.New(dErrors.CodeInvalidSubject, "subjectDID is required")
	}
	if len(r.Claims) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "claims are required")
	}

	// Phase 3: Ranges
	if r.ValidityPeriod < 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "validityPeriod must be positive")
	}
	if r.ValidityPeriod > math.MaxInt64/int64(time.Second) {
		return dErrors.New(dErrors.CodeInvalidInput, "validityPeriod is too large")
	}
	return nil
}

func (r *IssueRequest) command() models.IssueCommand {
	return models.IssueCommand{
		SubjectDID: r.SubjectDID,
		Claims:     r.Claims,
		Validity:   time.Duration(r.ValidityPeriod) * time.Second,
		Types:      r.Type,
	}
}

// BatchIssueRequest is the request body for batch issuance. Items are
// validated individually by the service.
type BatchIssueRequest struct {
	Items []IssueRequest `json:"items"`
}

func (r *BatchIssueRequest) Validate() error {
	if r == nil || len(r.Items) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "items are required")
	}
	if len(r.Items) > vcservice.MaxBatchSize {
		return dErrors.New(dErrors.CodeInvalidInput, "too many items in batch")
	}
	return nil
}

type BatchItemResponse struct {
	Index      int                     `json:"index"`
	Credential *models.Credential      `json:"credential,omitempty"`
	Error      *httputil.ErrorResponse `json:"error,omitempty"`
}

type BatchIssueResponse struct {
	Results []BatchItemResponse `json:"results"`
}

// VerifyRequest carries the presented credential. It is kept raw so that an
// undecodable credential is reported as a verification result.
type VerifyRequest struct {
	Credential json.RawMessage `json:"credential"`
}

func (r *VerifyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "request is required")
	}
	trimmed := bytes.TrimSpace(r.Credential)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return dErrors.New(dErrors.CodeInvalidInput, "credential is required")
	}
	return nil
}

// PresentationRequest carries a Verifiable Presentation. verifiableCredential
// may be a single credential or an array of them.
type PresentationRequest struct {
	Presentation struct {
		VerifiableCredential json.RawMessage `json:"verifiableCredential"`
	} `json:"presentation"`

	credentials []json.RawMessage
}

func (r *PresentationRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "request is required")
	}
	raw := bytes.TrimSpace(r.Presentation.VerifiableCredential)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return dErrors.New(dErrors.CodeInvalidInput, "presentation must contain verifiableCredential")
	}
	if raw[0] != '[' {
		r.credentials = []json.RawMessage{raw}
		return nil
	}
	if err := json.Unmarshal(raw, &r.credentials); err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "verifiableCredential must be a credential or an array of credentials")
	}
	if len(r.credentials) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "presentation must contain verifiableCredential")
	}
	if len(r.credentials) > vcservice.MaxPresentationSize {
		return dErrors.New(dErrors.CodeInvalidInput, "too many credentials in presentation")
	}
	return nil
}

// RevokeRequest is the request body for revocation.
type RevokeRequest struct {
	CredentialID string `json:"credentialId"`
	Reason       string `json:"reason"`
}

func (r *RevokeRequest) Normalize() {
	r.CredentialID = strings.TrimSpace(r.CredentialID)
	r.Reason = strings.TrimSpace(r.Reason)
}

func (r *RevokeRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "request is required")
	}
	if len(r.CredentialID) > 64 {
		return dErrors.New(dErrors.CodeInvalidInput, "credentialId is too long")
	}
	if r.CredentialID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "credentialId is required")
	}
	if len(r.Reason) > vcservice.MaxReasonLength {
		return dErrors.New(dErrors.CodeInvalidInput, "reason is too long")
	}
	return nil
}

// StatusResponse is the revocation status of a credential.
type StatusResponse struct {
	CredentialID string     `json:"credentialId"`
	Status       string     `json:"status"`
	RevokedAt    *time.Time `json:"revokedAt,omitempty"`
	Reason       string     `json:"reason,omitempty"`
}

// IssuerResponse exposes the issuer DID and its verification key.
type IssuerResponse struct {
	DID                string `json:"did"`
	VerificationMethod string `json:"verificationMethod"`
	Algorithm          string `json:"algorithm"`
	ProofType          string `json:"proofType"`
	KeyType            string `json:"keyType"`
	PublicKeyBase64    string `json:"publicKeyBase64"`
	PublicKeyBase58    string `json:"publicKeyBase58"`
}

// HandleIssue handles POST /credentials/issue.
func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[IssueRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	credential, err := h.service.Issue(ctx, req.command())
	if err != nil {
		h.logFailure(ctx, "failed to issue credential", requestID, err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, credential)
}

// HandleIssueBatch handles POST /credentials/issue/batch.
func (h *Handler) HandleIssueBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[BatchIssueRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	cmds := make([]models.IssueCommand, len(req.Items))
	for i := range req.Items {
		item := &req.Items[i]
		item.Normalize()
		cmds[i] = item.command()
	}

	results, err := h.service.IssueBatch(ctx, cmds)
	if err != nil {
		h.logFailure(ctx, "batch issuance failed", requestID, err)
		httputil.WriteError(w, err)
		return
	}

	resp := BatchIssueResponse{Results: make([]BatchItemResponse, len(results))}
	for i, res := range results {
		resp.Results[i] = BatchItemResponse{Index: res.Index, Credential: res.Credential}
		if res.Err != nil {
			resp.Results[i].Error = errorBody(res.Err)
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleVerify handles POST /credentials/verify.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[VerifyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	var credential models.Credential
	if err := json.Unmarshal(req.Credential, &credential); err != nil {
		httputil.WriteJSON(w, http.StatusOK, models.Invalid(models.ReasonMalformedCredential))
		return
	}

	result, err := h.service.VerifyResolved(ctx, &credential)
	if err != nil {
		h.logFailure(ctx, "failed to verify credential", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleVerifyPresentation handles POST /credentials/verify/presentation.
// Credentials that do not decode are reported as malformed items.
func (h *Handler) HandleVerifyPresentation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[PresentationRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	credentials := make([]*models.Credential, len(req.credentials))
	for i, raw := range req.credentials {
		var credential models.Credential
		if err := json.Unmarshal(raw, &credential); err == nil {
			credentials[i] = &credential
		}
	}

	result, err := h.service.VerifyPresentation(ctx, credentials)
	if err != nil {
		h.logFailure(ctx, "failed to verify presentation", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// HandleRevoke handles POST /credentials/revoke.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RevokeRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	status, err := h.service.Revoke(ctx, req.CredentialID, req.Reason)
	if err != nil {
		h.logFailure(ctx, "failed to revoke credential", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toStatusResponse(status))
}

// HandleStatus handles GET /credentials/status/{id}.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	status, err := h.service.Status(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.logFailure(ctx, "failed to read credential status", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toStatusResponse(status))
}

// HandleIssuer handles GET /credentials/issuer.
func (h *Handler) HandleIssuer(w http.ResponseWriter, _ *http.Request) {
	issuer := h.service.Issuer()
	httputil.WriteJSON(w, http.StatusOK, IssuerResponse{
		DID:                issuer.DID.String(),
		VerificationMethod: issuer.KeyID,
		Algorithm:          issuer.Algorithm,
		ProofType:          issuer.ProofType,
		KeyType:            string(issuer.PublicKey.Type),
		PublicKeyBase64:    base64.StdEncoding.EncodeToString(issuer.PublicKey.Bytes),
		PublicKeyBase58:    base58.Encode(issuer.PublicKey.Bytes),
	})
}

func (h *Handler) logFailure(ctx context.Context, msg, requestID string, err error) {
	level := slog.LevelWarn
	if !dErrors.IsInputCode(dErrors.CodeOf(err)) {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestID,
		"code", string(dErrors.CodeOf(err)),
		"error", err,
	)
}

func toStatusResponse(s *models.Status) StatusResponse {
	return StatusResponse{
		CredentialID: s.CredentialID.String(),
		Status:       string(s.Status),
		RevokedAt:    s.RevokedAt,
		Reason:       s.Reason,
	}
}

func errorBody(err error) *httputil.ErrorResponse {
	code := dErrors.CodeOf(err)
	msg := err.Error()
	if httputil.DomainCodeToHTTPStatus(code) >= http.StatusInternalServerError {
		msg = "internal error"
	}
	return &httputil.ErrorResponse{Code: string(code), Message: msg}
}

var _ Service = (*vcservice.Service)(nil)
