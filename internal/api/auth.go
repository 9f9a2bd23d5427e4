package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/cobaltline/intake/internal/identity"
)

// TokenVerifier resolves a bearer token to the calling user id.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (uuid.UUID, error)
}

type contextKey struct{}

var callerKey contextKey

// CallerID returns the authenticated user id stored by AuthMiddleware.
func CallerID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(callerKey).(uuid.UUID)
	return id, ok
}

// withCaller is the test seam for handlers that need an authenticated
// context without the middleware.
func withCaller(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, callerKey, id)
}

// AuthMiddleware verifies the Authorization bearer token against the
// identity service and stores the owner id in the request context.
// Authorization failures are fatal for the request, no retry.
func AuthMiddleware(verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || token == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			id, err := verifier.Verify(r.Context(), token)
			if err != nil {
				if errors.Is(err, identity.ErrUnauthorized) {
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
				logger.Error("identity verification failed", "error", err)
				http.Error(w, "identity service unavailable", http.StatusBadGateway)
				return
			}

			next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), id)))
		})
	}
}
