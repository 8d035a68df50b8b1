// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/ManuGH/xg2g/internal/config"
	"github.com/ManuGH/xg2g/internal/log"
	"github.com/rs/zerolog"
)

// PerformStartupChecks validates the environment and external dependencies
// before the server starts accepting traffic. It fails fast on conditions
// that would otherwise surface as a confusing runtime error on the first
// export request rather than an obvious one at boot.
func PerformStartupChecks(cfg config.Env) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	if err := checkExportDir(logger, cfg.ExportDir); err != nil {
		return fmt.Errorf("export directory check failed: %w", err)
	}
	if err := checkMilestoneURL(logger, cfg.MilestoneServerURL); err != nil {
		return fmt.Errorf("milestone server url check failed: %w", err)
	}
	if err := checkEncoderBinary(logger, cfg.EncoderPath); err != nil {
		return fmt.Errorf("encoder dependency check failed: %w", err)
	}
	if !cfg.TLSVerify {
		logger.Warn().Msg("TLS_VERIFY=false: certificate validation against the Milestone server is disabled")
	}

	logger.Info().Msg("startup checks passed")
	return nil
}

func checkExportDir(logger zerolog.Logger, path string) error {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return fmt.Errorf("cannot create export directory %s: %w", path, err)
	}

	probe := filepath.Join(path, ".write_test")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil { // #nosec G306 -- probe file, not sensitive
		return fmt.Errorf("export directory %s is not writable: %w", path, err)
	}
	_ = os.Remove(probe)

	logger.Info().Str("path", path).Msg("export directory is writable")
	return nil
}

func checkMilestoneURL(logger zerolog.Logger, raw string) error {
	if raw == "" {
		logger.Warn().Msg("MILESTONE_SERVER_URL not configured; export requests will fail until it is set")
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid MILESTONE_SERVER_URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("MILESTONE_SERVER_URL scheme must be http or https, got %q", u.Scheme)
	}
	logger.Info().Str("url", raw).Msg("milestone server url is valid")
	return nil
}

func checkEncoderBinary(logger zerolog.Logger, bin string) error {
	if bin == "" {
		bin = "ffmpeg"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return fmt.Errorf("encoder binary not found on PATH (%s): %w", bin, err)
	}
	logger.Info().Str("encoder", bin).Msg("encoder binary available")
	return nil
}
