// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package export

import (
	"errors"

	"github.com/ManuGH/xg2g/internal/milestone/auth"
	"github.com/ManuGH/xg2g/internal/milestone/model"
	"github.com/ManuGH/xg2g/internal/milestone/protocol"
)

// errorTag maps an error produced anywhere in the export pipeline to one
// of the taxonomy kinds, for attachment to a failed Job and for the HTTP
// layer's status-code mapping.
func errorTag(err error) string {
	var authErr *auth.AuthError
	if errors.As(err, &authErr) {
		return authErr.Kind
	}

	var protoErr *protocol.ProtoError
	if errors.As(err, &protoErr) {
		return protoErr.Kind
	}

	switch {
	case errors.Is(err, model.ErrCameraNotFound):
		return "Config::CameraNotFound"
	case errors.Is(err, model.ErrCameraDisabled):
		return "Config::CameraNotFound"
	case errors.Is(err, model.ErrRangeTooLarge):
		return "Policy::RangeTooLarge"
	case errors.Is(err, model.ErrInvalidRange):
		return "Policy::RangeTooLarge"
	case errors.Is(err, model.ErrNoFrames):
		return "Policy::NoRecordingInRange"
	case errors.Is(err, model.ErrUnsupportedCodec):
		return "Codec::Unsupported"
	case errors.Is(err, model.ErrUnauthorized):
		return "Auth::Expired"
	case errors.Is(err, model.ErrConnectionBroken):
		return protocol.KindConnectionBroken
	default:
		return "Encoder::NonZeroExit"
	}
}
