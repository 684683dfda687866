package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/moviescrud/backend/internal/logging"
)

// TokenVerifier resolves a bearer access token into the identity id it was issued for.
type TokenVerifier interface {
	VerifyAccessToken(token string) (string, error)
}

type identityKey struct{}

// WithIdentity stores the authenticated identity id on the context.
func WithIdentity(ctx context.Context, identityID string) context.Context {
	return context.WithValue(ctx, identityKey{}, identityID)
}

// IdentityFromContext returns the authenticated identity id, if any.
func IdentityFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(identityKey{}).(string)
	return id, ok && id != ""
}

// Authenticate attaches the caller identity when a valid bearer token is present.
// Requests without a token pass through anonymously; requests with a bad token are
// rejected so clients notice expired credentials.
func Authenticate(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, present := bearerToken(r)
			if !present {
				next.ServeHTTP(w, r)
				return
			}

			identityID, err := verifier.VerifyAccessToken(token)
			if err != nil {
				logging.FromContext(r.Context()).Debug("rejecting bearer token", "error", err)
				unauthorized(w, "invalid or expired access token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identityID)))
		})
	}
}

// RequireIdentity rejects anonymous requests.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := IdentityFromContext(r.Context()); !ok {
			unauthorized(w, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", true
	}
	return strings.TrimSpace(token), true
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
