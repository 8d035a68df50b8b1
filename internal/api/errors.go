// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ManuGH/xg2g/internal/log"
)

// APIError carries a stable machine-readable code alongside a
// human-readable message, so a caller can switch on Code without
// parsing Message.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string { return e.Message }

// Error taxonomy exposed to API callers. Export-pipeline failures are
// tagged with their taxonomy string directly (e.g.
// "Config::CameraNotFound"); these cover the HTTP layer's own concerns.
var (
	ErrUnauthorized = &APIError{Code: "UNAUTHORIZED", Message: "authentication required"}
	ErrForbidden    = &APIError{Code: "FORBIDDEN", Message: "access denied"}
	ErrNotFound     = &APIError{Code: "NOT_FOUND", Message: "resource not found"}
	ErrInvalidInput = &APIError{Code: "INVALID_INPUT", Message: "invalid input parameters"}
	ErrInternal     = &APIError{Code: "INTERNAL_SERVER_ERROR", Message: "an internal error occurred"}
)

// problemDetails is an RFC 7807 application/problem+json body.
type problemDetails struct {
	Type     string         `json:"type"`
	Title    string         `json:"title"`
	Status   int            `json:"status"`
	Code     string         `json:"code"`
	Detail   string         `json:"detail,omitempty"`
	Instance string         `json:"instance,omitempty"`
	Extra    map[string]any `json:"extra,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.L().Error().Err(err).Int("status", code).Msg("failed to encode json response")
	}
}

// RespondError sends a structured RFC 7807 error response, mapping apiErr
// onto its taxonomy code where applicable.
func RespondError(w http.ResponseWriter, r *http.Request, statusCode int, apiErr *APIError, detail ...string) {
	d := ""
	if len(detail) > 0 {
		d = detail[0]
	}
	w.Header().Set("Content-Type", "application/problem+json; charset=utf-8")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(problemDetails{
		Type:     "error/" + strings.ToLower(strings.ReplaceAll(apiErr.Code, "::", "_")),
		Title:    apiErr.Message,
		Status:   statusCode,
		Code:     apiErr.Code,
		Detail:   d,
		Instance: r.URL.Path,
	})
}

// tagToStatus maps an error taxonomy tag to its HTTP status code.
func tagToStatus(tag string) int {
	switch {
	case strings.HasPrefix(tag, "Policy::"):
		return http.StatusBadRequest
	case strings.HasPrefix(tag, "Auth::"):
		return http.StatusUnauthorized
	case tag == "Config::CameraNotFound":
		return http.StatusNotFound
	case tag == "Cancelled":
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
