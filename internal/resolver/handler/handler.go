package handler

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/btcsuite/btcutil/base58"
	"github.com/go-chi/chi/v5"

	"praman/internal/resolver/models"
	resolverservice "praman/internal/resolver/service"
	dErrors "praman/pkg/domain-errors"
	"praman/pkg/platform/httputil"
	"praman/pkg/requestcontext"
)

// Service defines the resolver operations used by the handler.
type Service interface {
	Resolve(ctx context.Context, did string) (*models.Document, error)
	Keys(ctx context.Context, did string) ([]models.VerificationMethod, error)
	Register(ctx context.Context, cmd models.RegisterCommand) (*models.Document, error)
	Deactivate(ctx context.Context, did string) (*models.Document, error)
	Status(ctx context.Context, did string) (*models.DIDStatus, error)
	Pairwise(ctx context.Context, masterDID, relyingPartyID, proof string) (*models.PairwiseDID, error)
}

// Handler serves the DID resolution endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts resolver endpoints on the router. Registry writes go
// through requireAdmin; lookups are public.
func (h *Handler) Register(r chi.Router, requireAdmin func(http.Handler) http.Handler) {
	r.Route("/did", func(r chi.Router) {
		r.Get("/{did}", h.HandleResolve)
		r.Get("/{did}/keys", h.HandleKeys)
		r.Get("/{did}/status", h.HandleStatus)
		r.Post("/pairwise", h.HandlePairwise)

		r.With(requireAdmin).Post("/", h.HandleRegister)
		r.With(requireAdmin).Put("/{did}/deactivate", h.HandleDeactivate)
	})
}

// RegisterRequest carries the public material of a DID. Exactly one key
// encoding must be present.
type RegisterRequest struct {
	DID             string           `json:"did"`
	KeyType         string           `json:"keyType"`
	PublicKeyBase64 string           `json:"publicKeyBase64,omitempty"`
	PublicKeyBase58 string           `json:"publicKeyBase58,omitempty"`
	Services        []models.Service `json:"service,omitempty"`

	publicKey []byte
}

func (r *RegisterRequest) Normalize() {
	r.DID = strings.TrimSpace(r.DID)
	r.KeyType = strings.TrimSpace(r.KeyType)
	r.PublicKeyBase64 = strings.TrimSpace(r.PublicKeyBase64)
	r.PublicKeyBase58 = strings.TrimSpace(r.PublicKeyBase58)
}

func (r *RegisterRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "request is required")
	}
	if len(r.DID) > 128 {
		return dErrors.New(dErrors.CodeMalformedDID, "did is too long")
	}
	if len(r.PublicKeyBase64) > 4096 || len(r.PublicKeyBase58) > 4096 {
		return dErrors.New(dErrors.CodeInvalidKeyFormat, "public key is too long")
	}
	if len(r.Services) > models.MaxServices {
		return dErrors.New(dErrors.CodeInvalidInput, "too many services")
	}

	if r.DID == "" {
		return dErrors.New(dErrors.CodeMalformedDID, "did is required")
	}
	if r.KeyType == "" {
		return dErrors.New(dErrors.CodeInvalidKeyFormat, "keyType is required")
	}

	switch {
	case r.PublicKeyBase64 != "" && r.PublicKeyBase58 != "":
		return dErrors.New(dErrors.CodeInvalidKeyFormat, "provide one of publicKeyBase64 or publicKeyBase58")
	case r.PublicKeyBase64 != "":
		key, err := decodeBase64(r.PublicKeyBase64)
		if err != nil {
			return dErrors.New(dErrors.CodeInvalidKeyFormat, "publicKeyBase64 is not valid base64")
		}
		r.publicKey = key
	case r.PublicKeyBase58 != "":
		key := base58.Decode(r.PublicKeyBase58)
		if len(key) == 0 {
			return dErrors.New(dErrors.CodeInvalidKeyFormat, "publicKeyBase58 is not valid base58")
		}
		r.publicKey = key
	default:
		return dErrors.New(dErrors.CodeInvalidKeyFormat, "public key is required")
	}
	return nil
}

// decodeBase64 accepts standard and URL alphabets, padded or not.
func decodeBase64(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, dErrors.New(dErrors.CodeInvalidKeyFormat, "invalid base64")
}

const maxProofLength = 4096

// PairwiseRequest asks for the DID a master DID presents to one relying party.
// Proof is a JWT signed with the master DID's key, issued by the master DID
// and addressed to the relying party.
type PairwiseRequest struct {
	MasterDID      string `json:"masterDID"`
	RelyingPartyID string `json:"relyingPartyId"`
	Proof          string `json:"proof"`
}

func (r *PairwiseRequest) Normalize() {
	r.MasterDID = strings.TrimSpace(r.MasterDID)
	r.RelyingPartyID = strings.TrimSpace(r.RelyingPartyID)
	r.Proof = strings.TrimSpace(r.Proof)
}

func (r *PairwiseRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "request is required")
	}
	if len(r.MasterDID) > 128 {
		return dErrors.New(dErrors.CodeMalformedDID, "masterDID is too long")
	}
	if r.MasterDID == "" {
		return dErrors.New(dErrors.CodeMalformedDID, "masterDID is required")
	}
	if r.RelyingPartyID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "relyingPartyId is required")
	}
	if len(r.Proof) > maxProofLength {
		return dErrors.New(dErrors.CodeInvalidInput, "proof is too long")
	}
	if r.Proof == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "proof of did control is required")
	}
	return nil
}

// KeysResponse lists the verification methods of a DID.
type KeysResponse struct {
	DID                string                      `json:"id"`
	VerificationMethod []models.VerificationMethod `json:"verificationMethod"`
}

// HandleResolve handles GET /did/{did}.
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	doc, err := h.service.Resolve(ctx, chi.URLParam(r, "did"))
	if err != nil {
		h.logFailure(ctx, "failed to resolve did", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

// HandleKeys handles GET /did/{did}/keys.
func (h *Handler) HandleKeys(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raw := chi.URLParam(r, "did")
	keys, err := h.service.Keys(ctx, raw)
	if err != nil {
		h.logFailure(ctx, "failed to resolve did keys", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, KeysResponse{DID: raw, VerificationMethod: keys})
}

// HandleStatus handles GET /did/{did}/status.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status, err := h.service.Status(ctx, chi.URLParam(r, "did"))
	if err != nil {
		h.logFailure(ctx, "failed to read did status", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, status)
}

// HandlePairwise handles POST /did/pairwise.
func (h *Handler) HandlePairwise(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[PairwiseRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	pairwise, err := h.service.Pairwise(ctx, req.MasterDID, req.RelyingPartyID, req.Proof)
	if err != nil {
		h.logFailure(ctx, "failed to derive pairwise did", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pairwise)
}

// HandleRegister handles POST /did.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RegisterRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	doc, err := h.service.Register(ctx, models.RegisterCommand{
		DID:       req.DID,
		PublicKey: req.publicKey,
		KeyType:   req.KeyType,
		Services:  req.Services,
	})
	if err != nil {
		h.logFailure(ctx, "failed to register did", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, doc)
}

// HandleDeactivate handles PUT /did/{did}/deactivate.
func (h *Handler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	doc, err := h.service.Deactivate(ctx, chi.URLParam(r, "did"))
	if err != nil {
		h.logFailure(ctx, "failed to deactivate did", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, doc)
}

// logFailure keeps lookups that miss at debug level; they are normal
// resolver traffic.
func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	code := dErrors.CodeOf(err)
	level := slog.LevelError
	switch {
	case code == dErrors.CodeNotFound || code == dErrors.CodeGone:
		level = slog.LevelDebug
	case dErrors.IsInputCode(code) || code == dErrors.CodeConflict:
		level = slog.LevelWarn
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"code", string(code),
		"error", err,
	)
}

var _ Service = (*resolverservice.Service)(nil)
