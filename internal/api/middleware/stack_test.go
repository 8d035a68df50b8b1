// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRouter_AppliesConfiguredMiddleware(t *testing.T) {
	r := NewRouter(StackConfig{
		EnableCORS:            true,
		AllowedOrigins:        []string{"https://app.example.com"},
		EnableSecurityHeaders: true,
		EnableRateLimit:       true,
		RateLimitPerMinute:    60,
	})
	var reqID string
	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		reqID = chimw.GetReqID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "https://app.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, reqID)
}

func TestNewRouter_DisabledOptionsSkipTheirMiddleware(t *testing.T) {
	r := NewRouter(StackConfig{})
	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"), "CORS disabled: no origin header should be set")
	assert.Empty(t, rr.Header().Get("X-Content-Type-Options"), "security headers disabled")
}

func TestApplyStack_RecoversFromPanic(t *testing.T) {
	r := chi.NewRouter()
	ApplyStack(r, StackConfig{})
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
