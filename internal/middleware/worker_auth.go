package middleware

import (
	"crypto/subtle"
	"net/http"
)

// WorkerAuth guards the callback endpoints the external transcription worker
// reports into. The worker presents a shared token, not a user JWT.
type WorkerAuth struct {
	token string
}

func NewWorkerAuth(token string) *WorkerAuth {
	return &WorkerAuth{token: token}
}

func (a *WorkerAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get("X-Worker-Token")
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(a.token)) != 1 {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid worker token", r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
