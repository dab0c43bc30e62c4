package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"praman/internal/enrollment/models"
	enrollmentservice "praman/internal/enrollment/service"
	dErrors "praman/pkg/domain-errors"
	"praman/pkg/platform/httputil"
	"praman/pkg/requestcontext"
)

// Service defines the enrollment operations used by the handler.
type Service interface {
	Start(ctx context.Context, userID string) (*models.CreationOptions, error)
	Verify(ctx context.Context, cmd models.VerifyCommand) (*models.Result, error)
}

// Handler exposes the registration ceremony over HTTP.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts enrollment endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/enrollment", func(r chi.Router) {
		r.Post("/start", h.HandleStart)
		r.Post("/verify", h.HandleVerify)
	})
}

type StartRequest struct {
	UserID string `json:"userId"`
}

func (r *StartRequest) Normalize() {
	r.UserID = strings.TrimSpace(r.UserID)
}

func (r *StartRequest) Validate() error {
	if len(r.UserID) > models.MaxUserIDLength {
		return dErrors.New(dErrors.CodeInvalidInput, "userId is too long")
	}
	return nil
}

// AttestationResponse is the part of the browser's registration response the
// server reads. PublicKey is the SPKI from getPublicKey().
type AttestationResponse struct {
	ClientDataJSON    string `json:"clientDataJSON"`
	AttestationObject string `json:"attestationObject,omitempty"`
	PublicKey         string `json:"publicKey"`
	UserHandle        string `json:"userHandle,omitempty"`
}

type RegistrationCredential struct {
	ID       string              `json:"id"`
	RawID    string              `json:"rawId,omitempty"`
	Type     string              `json:"type,omitempty"`
	Response AttestationResponse `json:"response"`
}

type VerifyRequest struct {
	UserID     string                  `json:"userId"`
	Credential *RegistrationCredential `json:"credential"`
}

func (r *VerifyRequest) Normalize() {
	r.UserID = strings.TrimSpace(r.UserID)
	if r.Credential == nil {
		return
	}
	r.Credential.ID = strings.TrimSpace(r.Credential.ID)
	if handle := strings.TrimSpace(r.Credential.Response.UserHandle); handle != "" {
		r.UserID = handle
	}
}

func (r *VerifyRequest) Validate() error {
	if r == nil || r.Credential == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "credential is required")
	}
	if r.UserID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "userId is required")
	}
	if len(r.UserID) > models.MaxUserIDLength {
		return dErrors.New(dErrors.CodeInvalidInput, "userId is too long")
	}
	if r.Credential.ID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "credential id is required")
	}
	return nil
}

// DuplicateResponse is returned with 409 when the authenticator already
// has a registered DID.
type DuplicateResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	DID     string `json:"did"`
}

// HandleStart handles POST /enrollment/start.
func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[StartRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	options, err := h.service.Start(ctx, req.UserID)
	if err != nil {
		h.logFailure(ctx, "failed to start enrollment", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, options)
}

// HandleVerify handles POST /enrollment/verify.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[VerifyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	userAgent := requestcontext.UserAgent(ctx)
	if userAgent == "" {
		userAgent = r.UserAgent()
	}
	result, err := h.service.Verify(ctx, models.VerifyCommand{
		UserID:         req.UserID,
		CredentialID:   req.Credential.ID,
		ClientDataJSON: req.Credential.Response.ClientDataJSON,
		PublicKey:      req.Credential.Response.PublicKey,
		ClientIP:       requestcontext.ClientIP(ctx),
		UserAgent:      userAgent,
	})
	if err != nil {
		if dup, ok := models.AsDuplicate(err); ok {
			h.logger.InfoContext(ctx, "duplicate enrollment", "request_id", requestID)
			httputil.WriteJSON(w, http.StatusConflict, DuplicateResponse{
				Code:    models.CodeDuplicateEnrollment,
				Message: dup.Error(),
				DID:     dup.DID.String(),
			})
			return
		}
		h.logFailure(ctx, "failed to verify enrollment", requestID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, result)
}

func (h *Handler) logFailure(ctx context.Context, msg, requestID string, err error) {
	code := dErrors.CodeOf(err)
	level := slog.LevelError
	switch {
	case code == dErrors.CodeNotFound || code == dErrors.CodeExpired:
		level = slog.LevelInfo
	case dErrors.IsInputCode(code):
		level = slog.LevelWarn
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestID,
		"code", string(code),
		"error", err,
	)
}

var _ Service = (*enrollmentservice.Service)(nil)
