// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/ManuGH/xg2g/internal/log"
	"github.com/ManuGH/xg2g/internal/milestone/model"
	"github.com/go-chi/chi/v5"
)

// cameraListTimeout bounds how long the cameras proxy waits on the
// upstream REST call before surfacing a 500.
const cameraListTimeout = 10 * time.Second

type cameraDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// handleListCameras proxies ConfigClient.ListCameras (GET /api/cameras).
func (s *Server) handleListCameras(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := requestTimeout(r, cameraListTimeout)
	defer cancel()

	cams, err := s.cameras.ListCameras(ctx)
	if err != nil {
		log.FromContext(r.Context()).Error().Err(err).Msg("list cameras failed")
		RespondError(w, r, http.StatusInternalServerError, ErrInternal, err.Error())
		return
	}

	out := make([]cameraDTO, 0, len(cams))
	for _, c := range cams {
		if !c.Enabled {
			continue
		}
		out = append(out, cameraDTO{ID: c.ID, Name: c.DisplayName})
	}
	writeJSON(w, http.StatusOK, out)
}

type startExportRequest struct {
	CameraID  string    `json:"camera_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

type startExportResponse struct {
	ExportID string `json:"export_id"`
}

// handleStartExport validates and launches a new export (POST
// /api/export). Range validation beyond ≤10min is delegated to
// Exporter.Start, which is the single source of truth for that policy.
func (s *Server) handleStartExport(w http.ResponseWriter, r *http.Request) {
	var req startExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, r, http.StatusBadRequest, ErrInvalidInput, "malformed request body")
		return
	}
	if req.CameraID == "" {
		RespondError(w, r, http.StatusBadRequest, ErrInvalidInput, "camera_id is required")
		return
	}

	id, err := s.exporter.Start(r.Context(), req.CameraID, req.StartTime, req.EndTime)
	if err != nil {
		tag := errorTagFor(err)
		RespondError(w, r, tagToStatus(tag), &APIError{Code: tag, Message: err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, startExportResponse{ExportID: id})
}

// handleExportStatus returns the ExportJob snapshot (GET
// /api/export/{id}).
func (s *Server) handleExportStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, ok := s.exporter.Status(id)
	if !ok {
		RespondError(w, r, http.StatusNotFound, ErrNotFound, "unknown export id")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleExportDownload streams the finished MP4 (GET
// /api/export/{id}/download). Returns 404 until the job has reached
// Succeeded.
func (s *Server) handleExportDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	path, ok := s.exporter.Fetch(id)
	if !ok {
		RespondError(w, r, http.StatusNotFound, ErrNotFound, "export not ready or does not exist")
		return
	}

	f, err := os.Open(path) // #nosec G304 -- path is server-assigned from the export registry, not user input
	if err != nil {
		RespondError(w, r, http.StatusNotFound, ErrNotFound, "output file missing")
		return
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		RespondError(w, r, http.StatusInternalServerError, ErrInternal)
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+id+".mp4\"")
	http.ServeContent(w, r, id+".mp4", info.ModTime(), f)
}

// handleExportCancel stops an in-flight export's worker, giving callers an
// explicit trigger for the pipeline's cancellation semantics.
func (s *Server) handleExportCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.exporter.Cancel(id) {
		RespondError(w, r, http.StatusNotFound, ErrNotFound, "unknown or already-finished export id")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleDebugConfig exposes the redacted runtime configuration, a
// supplemented operational endpoint for diagnosing deployments without
// shell access to the process environment.
func (s *Server) handleDebugConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.DebugConfig)
}

// errorTagFor maps a validation error from Exporter.Start to the same
// error taxonomy used for errors surfaced later from a running job's Fail
// transition.
func errorTagFor(err error) string {
	switch {
	case errors.Is(err, model.ErrInvalidRange), errors.Is(err, model.ErrRangeTooLarge):
		return "Policy::RangeTooLarge"
	default:
		return "INTERNAL_SERVER_ERROR"
	}
}
