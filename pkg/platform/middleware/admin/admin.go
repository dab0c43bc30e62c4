// Package admin guards the write routes that act with the server's authority:
// credential issuance and revocation, DID registration and deactivation.
package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	dErrors "praman/pkg/domain-errors"
	"praman/pkg/platform/httputil"
	"praman/pkg/requestcontext"
)

const (
	HeaderToken   = "X-Admin-Token"
	HeaderActorID = "X-Admin-Actor-ID"

	maxActorIDLength = 128
)

// RequireAdminToken rejects requests whose X-Admin-Token does not match
// expectedToken. An empty expectedToken rejects every request.
func RequireAdminToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	expected := []byte(expectedToken)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := []byte(r.Header.Get(HeaderToken))
			if len(expected) == 0 || subtle.ConstantTimeCompare(token, expected) != 1 {
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", requestcontext.RequestID(ctx),
					"path", r.URL.Path,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "admin token required"))
				return
			}

			if actorID := strings.TrimSpace(r.Header.Get(HeaderActorID)); actorID != "" && len(actorID) <= maxActorIDLength {
				ctx = requestcontext.WithActorID(ctx, actorID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
