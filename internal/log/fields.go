// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldExportID  = "export_id"
	FieldCameraID  = "camera_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// HTTP fields
	FieldPath = "path"

	// Media fields
	FieldCodec      = "codec"
	FieldFrameCount = "frame_count"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldTag      = "tag"
)
