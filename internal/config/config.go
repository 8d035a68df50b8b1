// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Env is an immutable configuration snapshot read once at startup. Every
// field traces back to one of the environment variables documented in the
// service's operator guide; there is no mutable global config object.
type Env struct {
	MilestoneServerURL string
	MilestoneUsername  string
	MilestonePassword  string
	TLSVerify           bool

	PipelineDepth int
	ExportDir     string

	HTTPAddr       string
	APIToken       string
	LogLevel       string
	LogService     string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration

	MaxExportRange time.Duration
	EncoderPath    string
	FrameRateFPS   int

	EnableCORS         bool
	AllowedOrigins     []string
	RateLimitPerMinute int

	OTLPEndpoint string
}

// DefaultEnv returns the configuration used when no environment variables
// are set, suitable for local development against a mock ImageServer.
func DefaultEnv() Env {
	return Env{
		MilestoneServerURL: "",
		MilestoneUsername:  "",
		MilestonePassword:  "",
		TLSVerify:           true,

		PipelineDepth: 8,
		ExportDir:     "./data/exports",

		HTTPAddr:       ":8080",
		APIToken:       "",
		LogLevel:       "info",
		LogService:     "xg2g",
		ConnectTimeout: 30 * time.Second,
		ReadTimeout:    30 * time.Second,

		MaxExportRange: 10 * time.Minute,
		EncoderPath:    "ffmpeg",
		FrameRateFPS:   15,

		EnableCORS:         false,
		AllowedOrigins:     nil,
		RateLimitPerMinute: 60,

		OTLPEndpoint: "",
	}
}

// ReadEnv builds an Env by calling get for every recognized key, falling
// back to DefaultEnv's values when a key is unset. It never reads the
// process environment directly, so it can be exercised deterministically
// in tests.
func ReadEnv(get func(string) string) (Env, error) {
	d := DefaultEnv()

	lookup := func(key string) (string, bool) {
		v := get(key)
		return v, v != ""
	}

	e := d
	if v, ok := lookup("MILESTONE_SERVER_URL"); ok {
		e.MilestoneServerURL = v
	}
	if v, ok := lookup("MILESTONE_USERNAME"); ok {
		e.MilestoneUsername = v
	}
	if v, ok := lookup("MILESTONE_PASSWORD"); ok {
		e.MilestonePassword = v
	}
	e.TLSVerify = lookupBool(lookup, "TLS_VERIFY", d.TLSVerify)
	e.PipelineDepth = lookupInt(lookup, "PIPELINE_DEPTH", d.PipelineDepth)
	if v, ok := lookup("EXPORT_DIR"); ok {
		e.ExportDir = v
	}
	if v, ok := lookup("HTTP_ADDR"); ok {
		e.HTTPAddr = v
	}
	if v, ok := lookup("API_TOKEN"); ok {
		e.APIToken = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		e.LogLevel = v
	}
	if v, ok := lookup("LOG_SERVICE"); ok {
		e.LogService = v
	}
	e.ConnectTimeout = lookupDuration(lookup, "CONNECT_TIMEOUT", d.ConnectTimeout)
	e.ReadTimeout = lookupDuration(lookup, "READ_TIMEOUT", d.ReadTimeout)
	e.MaxExportRange = lookupDuration(lookup, "MAX_EXPORT_RANGE", d.MaxExportRange)
	if v, ok := lookup("ENCODER_PATH"); ok {
		e.EncoderPath = v
	}
	e.FrameRateFPS = lookupInt(lookup, "JPEG_FALLBACK_FPS", d.FrameRateFPS)
	e.EnableCORS = lookupBool(lookup, "ENABLE_CORS", d.EnableCORS)
	if v, ok := lookup("ALLOWED_ORIGINS"); ok {
		e.AllowedOrigins = splitCSV(v)
	}
	e.RateLimitPerMinute = lookupInt(lookup, "RATE_LIMIT_PER_MINUTE", d.RateLimitPerMinute)
	if v, ok := lookup("OTLP_ENDPOINT"); ok {
		e.OTLPEndpoint = v
	}

	if e.PipelineDepth < 1 || e.PipelineDepth > 32 {
		return Env{}, fmt.Errorf("config: PIPELINE_DEPTH must be in [1,32], got %d", e.PipelineDepth)
	}

	return e, nil
}

func lookupInt(lookup func(string) (string, bool), key string, def int) int {
	v, ok := lookup(key)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func lookupBool(lookup func(string) (string, bool), key string, def bool) bool {
	v, ok := lookup(key)
	if !ok {
		return def
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return def
	}
}

func lookupDuration(lookup func(string) (string, bool), key string, def time.Duration) time.Duration {
	v, ok := lookup(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Redacted returns a copy of the environment snapshot with secret-bearing
// fields masked, safe to log or serve from a debug endpoint.
func (e Env) Redacted() map[string]any {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "***"
	}
	return map[string]any{
		"milestone_server_url": e.MilestoneServerURL,
		"milestone_username":   e.MilestoneUsername,
		"milestone_password":   mask(e.MilestonePassword),
		"tls_verify":           e.TLSVerify,
		"pipeline_depth":       e.PipelineDepth,
		"export_dir":           e.ExportDir,
		"http_addr":            e.HTTPAddr,
		"api_token":            mask(e.APIToken),
		"log_level":            e.LogLevel,
		"log_service":          e.LogService,
		"connect_timeout":      e.ConnectTimeout.String(),
		"read_timeout":         e.ReadTimeout.String(),
		"max_export_range":     e.MaxExportRange.String(),
		"encoder_path":         e.EncoderPath,
		"frame_rate_fps":       e.FrameRateFPS,
		"enable_cors":          e.EnableCORS,
		"allowed_origins":      e.AllowedOrigins,
		"rate_limit_per_minute": e.RateLimitPerMinute,
		"otlp_endpoint":        e.OTLPEndpoint,
	}
}
