package auth

import (
	"care-chat/contract"
	"care-chat/domain"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

type contextKey string

const ParticipantIDKey contextKey = "participant_id"

// CredentialFromRequest reads the bearer token from the Authorization header,
// falling back to the "token" query parameter used by browser WebSocket handshakes.
func CredentialFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

// RequireAuth rejects requests without a valid credential and injects the
// participant identifier into the request context for downstream handlers.
func RequireAuth(verifier contract.IVerifier, log *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			participantID, err := verifier.Verify(r.Context(), CredentialFromRequest(r))
			if err != nil {
				log.Debug("Rejected unauthenticated request", "path", r.URL.Path, "error", err)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid or expired token"})
				return
			}
			ctx := context.WithValue(r.Context(), ParticipantIDKey, participantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func ParticipantFromContext(ctx context.Context) (domain.ParticipantID, bool) {
	id, ok := ctx.Value(ParticipantIDKey).(domain.ParticipantID)
	return id, ok
}
