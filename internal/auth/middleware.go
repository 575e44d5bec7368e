package auth

import (
	"context"
	"net/http"
	"strings"

	"artmarket-api/internal/revocation"
)

type contextKey int

const identityKey contextKey = iota

// Identity is the authenticated caller derived from a valid access token.
type Identity struct {
	AccountID string
	Role      string
	TokenID   string
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok
}

// Middleware guards protected routes: it validates the bearer access token
// and consults the revocation store, so a logged-out token fails even
// while its signature is still valid.
func Middleware(tokens *TokenManager, revoker revocation.Store, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization token")
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			writeError(w, http.StatusUnauthorized, "invalid authorization format")
			return
		}

		claims, err := tokens.ParseAccess(strings.TrimSpace(parts[1]))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		revoked, err := revoker.IsRevoked(r.Context(), claims.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "authorization check failed")
			return
		}
		if revoked {
			writeError(w, http.StatusUnauthorized, "token has been revoked")
			return
		}

		identity := Identity{AccountID: claims.UserID, Role: claims.Role, TokenID: claims.ID}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, identity)))
	})
}
