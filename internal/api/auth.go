// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"

	"github.com/ManuGH/xg2g/internal/auth"
	"github.com/ManuGH/xg2g/internal/log"
)

// authMiddleware enforces bearer-token authentication on every request
// that passes through it. An empty configured token denies all requests;
// there is no anonymous mode for this service, unlike the thin glue
// layer's optional auth in some deployments.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIToken == "" {
			log.FromContext(r.Context()).Error().Str(log.FieldEvent, "auth.fail_closed").Msg("API_TOKEN not set, denying access")
			RespondError(w, r, http.StatusUnauthorized, ErrUnauthorized)
			return
		}

		reqToken := auth.ExtractToken(r, false)
		if reqToken == "" || !auth.AuthorizeToken(reqToken, s.cfg.APIToken) {
			log.FromContext(r.Context()).Warn().Str(log.FieldEvent, "auth.invalid_token").Msg("missing or invalid api token")
			RespondError(w, r, http.StatusUnauthorized, ErrUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}
