// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api is a thin HTTP collaborator: it proxies camera listing,
// starts and tracks exports, and streams finished output. It holds none
// of the export pipeline's logic itself.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ManuGH/xg2g/internal/api/middleware"
	"github.com/ManuGH/xg2g/internal/export"
	"github.com/ManuGH/xg2g/internal/health"
	"github.com/ManuGH/xg2g/internal/milestone/model"
	"github.com/go-chi/chi/v5"
)

// CameraLister is the subset of configclient.Client the HTTP layer needs.
type CameraLister interface {
	ListCameras(ctx context.Context) ([]model.Camera, error)
}

// Config holds the HTTP-layer-only settings; export-pipeline settings
// live in export.Config.
type Config struct {
	APIToken           string
	EnableCORS         bool
	AllowedOrigins     []string
	RateLimitPerMinute int
	TracingService     string
	DebugConfig        map[string]any
}

// Server wires the Exporter and CameraLister facades to a chi router. It
// holds no pipeline state of its own.
type Server struct {
	cfg      Config
	exporter *export.Exporter
	cameras  CameraLister
	health   *health.Manager
}

// NewServer constructs a Server.
func NewServer(cfg Config, exporter *export.Exporter, cameras CameraLister, healthMgr *health.Manager) *Server {
	return &Server{cfg: cfg, exporter: exporter, cameras: cameras, health: healthMgr}
}

// Routes builds the full router: canonical middleware stack, health
// probes (unauthenticated), and the token-guarded API surface.
func (s *Server) Routes() *chi.Mux {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableCORS:            s.cfg.EnableCORS,
		AllowedOrigins:        s.cfg.AllowedOrigins,
		EnableSecurityHeaders: true,
		CSP:                   "default-src 'self'",
		EnableMetrics:         true,
		TracingService:        s.cfg.TracingService,
		EnableLogging:         true,
		EnableRateLimit:       s.cfg.RateLimitPerMinute > 0,
		RateLimitPerMinute:    s.cfg.RateLimitPerMinute,
	})

	if s.health != nil {
		r.Get("/healthz", s.health.ServeHealth)
		r.Get("/readyz", s.health.ServeReady)
	}

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/api/cameras", s.handleListCameras)
		r.Post("/api/export", s.handleStartExport)
		r.Get("/api/export/{id}", s.handleExportStatus)
		r.Get("/api/export/{id}/download", s.handleExportDownload)
		r.Delete("/api/export/{id}", s.handleExportCancel)
		r.Get("/api/debug/config", s.handleDebugConfig)
	})

	return r
}

func requestTimeout(r *http.Request, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), d)
}
