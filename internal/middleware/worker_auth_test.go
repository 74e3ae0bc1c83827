package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWorkerAuth(t *testing.T) {
	auth := NewWorkerAuth("shared-worker-token")
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name     string
		token    string
		expected int
	}{
		{"valid token", "shared-worker-token", http.StatusOK},
		{"wrong token", "guessed-token", http.StatusUnauthorized},
		{"missing token", "", http.StatusUnauthorized},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/internal/jobs/x/progress", nil)
			if tc.token != "" {
				req.Header.Set("X-Worker-Token", tc.token)
			}
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			if rr.Code != tc.expected {
				t.Errorf("Expected %d, got %d", tc.expected, rr.Code)
			}
		})
	}
}
