package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// TokenVerifier validates an API bearer token.
type TokenVerifier interface {
	Verify(token string) bool
}

// StaticVerifier accepts a single configured token. An empty configured
// token accepts everything, which keeps local development friction-free.
type StaticVerifier struct {
	Token string
}

func (v StaticVerifier) Verify(token string) bool {
	if v.Token == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(v.Token)) == 1
}

// AuthMiddleware rejects requests without a valid bearer token.
func AuthMiddleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token := strings.TrimPrefix(header, "Bearer ")
			if token == header && header != "" {
				respondError(w, http.StatusUnauthorized, "invalid authorization header")
				return
			}
			if !verifier.Verify(token) {
				respondError(w, http.StatusUnauthorized, "invalid or missing token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
