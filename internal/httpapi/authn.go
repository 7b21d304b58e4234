package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"edulingo.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// requireAuth verifies the bearer access token and re-checks the live
// account state: a banned or deleted account loses access immediately,
// no matter how much lifetime its token has left.
func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		claims, err := a.codec.VerifyAccess(token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrTokenExpired):
				writeError(w, r, http.StatusUnauthorized, "access token expired")
			default:
				writeError(w, r, http.StatusUnauthorized, "invalid access token")
			}
			return
		}

		if _, err := a.svc.VerifyAccountState(r.Context(), claims.AccountID()); err != nil {
			writeAppError(w, r, err)
			return
		}

		ctx := auth.ContextWithClaims(r.Context(), claims)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole gates a handler on the role carried by the verified
// claims. Runs after requireAuth.
func (a *API) requireRole(role auth.Role, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.ClaimsFromContext(r.Context())
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "missing credentials")
			return
		}
		if claims.Role != role {
			writeError(w, r, http.StatusForbidden, "insufficient role")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
