package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAuth(t *testing.T) {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		apiKey     string
		header     string
		value      string
		wantStatus int
	}{
		{"disabled when no key configured", "", "", "", http.StatusOK},
		{"bearer token accepted", "secret", "Authorization", "Bearer secret", http.StatusOK},
		{"api key header accepted", "secret", "X-API-Key", "secret", http.StatusOK},
		{"missing token rejected", "secret", "", "", http.StatusUnauthorized},
		{"wrong token rejected", "secret", "Authorization", "Bearer nope", http.StatusUnauthorized},
		{"wrong api key rejected", "secret", "X-API-Key", "nope", http.StatusUnauthorized},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := Auth(tc.apiKey)(okHandler)

			req := httptest.NewRequest(http.MethodGet, "/api/betslips", nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tc.wantStatus, rec.Code)
		})
	}
}
