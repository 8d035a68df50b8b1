package model

import "errors"

// Sentinel errors shared by the auth, configclient, protocol, and pipeliner
// packages so callers can classify failures with errors.Is regardless of
// which layer produced them.
var (
	// ErrUnauthorized means the OAuth or ImageServer token was rejected and
	// a fresh AuthBroker cycle is required before retrying.
	ErrUnauthorized = errors.New("milestone: unauthorized")

	// ErrTokenExpired means a held token's TTL has elapsed locally; no
	// round trip is needed to know a refresh is due.
	ErrTokenExpired = errors.New("milestone: token expired")

	// ErrConnectionBroken means the TCP connection to the ImageServer was
	// closed or reset and every in-flight request on it must be failed.
	ErrConnectionBroken = errors.New("milestone: connection broken")

	// ErrCameraNotFound means ConfigClient has no camera matching the
	// requested ID.
	ErrCameraNotFound = errors.New("milestone: camera not found")

	// ErrCameraDisabled means the requested camera exists but is disabled
	// and cannot be exported from.
	ErrCameraDisabled = errors.New("milestone: camera disabled")

	// ErrRangeTooLarge means the requested [t0, t1] export range exceeds
	// the maximum export duration.
	ErrRangeTooLarge = errors.New("milestone: export range exceeds maximum duration")

	// ErrInvalidRange means t1 does not strictly follow t0.
	ErrInvalidRange = errors.New("milestone: invalid export range")

	// ErrNoFrames means the server produced zero frames for the requested
	// range, distinct from a range that legitimately ends at EOF.
	ErrNoFrames = errors.New("milestone: no frames in range")

	// ErrUnsupportedCodec means the first frame classified as a codec this
	// service cannot mux, so the export is failed rather than guessed at.
	ErrUnsupportedCodec = errors.New("milestone: unsupported codec")

	// ErrMalformedFrame means a frame failed header or length validation
	// and the connection must be treated as broken.
	ErrMalformedFrame = errors.New("milestone: malformed frame")

	// ErrPipelineDepthExceeded means more in-flight requests were queued
	// than the configured pipeline window permits.
	ErrPipelineDepthExceeded = errors.New("milestone: pipeline depth exceeded")
)
