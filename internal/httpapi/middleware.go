package httpapi

import (
	"context"
	"net/http"
	"strings"
)

type ctxKeyUsername struct{}

// bearerAuth rejects requests without a valid "Authorization: Bearer <token>"
// header, storing the verified username in the request context.
func (a *API) bearerAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := bearerToken(r)
			if tok == "" {
				fail(w, http.StatusUnauthorized, codeBadCredential, "missing bearer token")
				return
			}
			username, err := a.issuer.Verify(tok)
			if err != nil {
				fail(w, http.StatusUnauthorized, codeBadCredential, "invalid or expired token")
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyUsername{}, username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

// authenticateWS adapts the issuer to wshub's token-check callback.
func (a *API) authenticateWS(token string) bool {
	_, err := a.issuer.Verify(token)
	return err == nil
}
