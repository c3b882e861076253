package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/quizrun/quizrun/internal/rbac"
)

// CSRFToken derives the per-subject request-forgery token. It is issued at
// login and echoed in X-CSRF-Token on every mutating call; being an HMAC of
// the subject it needs no server-side storage.
func (a *AuthService) CSRFToken(sub string) string {
	mac := hmac.New(sha256.New, a.hmac)
	mac.Write([]byte("csrf:" + sub))
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *AuthService) VerifyCSRF(sub, token string) bool {
	want := a.CSRFToken(sub)
	return hmac.Equal([]byte(want), []byte(token))
}

// RequireCSRF guards mutating endpoints. Runs after JWTMiddleware so the
// subject is already in context.
func RequireCSRF(a *AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sub := rbac.SubjectFromContext(r.Context())
			if sub == "" || !a.VerifyCSRF(sub, r.Header.Get("X-CSRF-Token")) {
				http.Error(w, "missing or invalid csrf token", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
