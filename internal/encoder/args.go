// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package encoder spawns and feeds the external encoder process that muxes
// an export's frames into an MP4 container. It supports two modes: H.264
// passthrough (no decode/re-encode) and a JPEG-image-sequence fallback.
package encoder

import "fmt"

// Mode selects which encoder argument set BuildArgs produces.
type Mode string

const (
	// ModeH264Passthrough copies an Annex-B H.264 elementary stream into
	// an MP4 container without decoding or re-encoding.
	ModeH264Passthrough Mode = "h264_passthrough"

	// ModeJPEGSequence encodes a sequence of concatenated JPEG frames into
	// an H.264 MP4 at a nominal framerate.
	ModeJPEGSequence Mode = "jpeg_sequence"
)

// DefaultJPEGFrameRate is the nominal framerate assumed for JPEG fallback
// mode. The exporter does not attempt to reconstruct true inter-frame
// timing from the source's Current timestamps in this mode.
const DefaultJPEGFrameRate = 15

// BuildArgs returns the external encoder's argv (excluding the binary
// itself) for the given mode, reading frames from stdin and writing the
// finished MP4 to outputPath.
func BuildArgs(mode Mode, outputPath string, jpegFPS int) ([]string, error) {
	switch mode {
	case ModeH264Passthrough:
		return []string{
			"-hide_banner",
			"-loglevel", "warning",
			"-f", "h264",
			"-i", "pipe:0",
			"-c:v", "copy",
			"-movflags", "+faststart",
			"-y", outputPath,
		}, nil
	case ModeJPEGSequence:
		if jpegFPS <= 0 {
			jpegFPS = DefaultJPEGFrameRate
		}
		return []string{
			"-hide_banner",
			"-loglevel", "warning",
			"-f", "mjpeg",
			"-framerate", fmt.Sprintf("%d", jpegFPS),
			"-i", "pipe:0",
			"-c:v", "libx264",
			"-pix_fmt", "yuv420p",
			"-movflags", "+faststart",
			"-y", outputPath,
		}, nil
	default:
		return nil, fmt.Errorf("encoder: unknown mode %q", mode)
	}
}

// ModeForCodec maps a frame codec classification to the encoder mode that
// handles it, or ok=false if the codec cannot be muxed (the Unsupported
// classification).
func ModeForCodec(isJPEG, isH264 bool) (Mode, bool) {
	switch {
	case isH264:
		return ModeH264Passthrough, true
	case isJPEG:
		return ModeJPEGSequence, true
	default:
		return "", false
	}
}
