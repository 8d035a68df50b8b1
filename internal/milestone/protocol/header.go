// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/ManuGH/xg2g/internal/milestone/model"
)

// headerLength is the size in bytes of the Milestone-proprietary frame
// header prefixed to the codec payload whenever Content-type is the
// generic octet-stream wire type. The layout of the reserved regions
// (bytes 2-7 and 20-35) is undocumented; only the codec id, the
// informational payload length, and the codec payload offset are relied
// upon (see spec Open Questions).
const headerLength = 36

const codecIDRawH264 = 0x000A

// ContentTypeOctetStream is the Content-type value that carries the
// proprietary binary header ahead of the codec payload.
const ContentTypeOctetStream = "application/x-genericbytedata-octet-stream"

// ContentTypeJPEG is the Content-type value used when the server responds
// with a bare JPEG frame, bypassing the proprietary header entirely.
const ContentTypeJPEG = "image/jpeg"

var jpegMagic = []byte{0xFF, 0xD8, 0xFF}

// ClassifyCodec derives a Codec from the content type and magic bytes of
// the first frame of an export. It is evaluated exactly once per export;
// callers must not re-classify subsequent frames.
func ClassifyCodec(contentType string, payload []byte) model.Codec {
	if contentType == ContentTypeJPEG || hasPrefix(payload, jpegMagic) {
		return model.CodecJPEG
	}
	if contentType == ContentTypeOctetStream && len(payload) >= 2 {
		codecID := binary.BigEndian.Uint16(payload[:2])
		if codecID == codecIDRawH264 {
			return model.CodecRawH264
		}
		return model.CodecUnsupported
	}
	return model.CodecUnknown
}

func hasPrefix(payload, prefix []byte) bool {
	if len(payload) < len(prefix) {
		return false
	}
	for i := range prefix {
		if payload[i] != prefix[i] {
			return false
		}
	}
	return true
}

// StripHeader removes the 36-byte proprietary header from a raw-codec
// payload and returns the remaining codec bytes (Annex-B NAL units for
// H.264). It fails if the declared codec id is not the one this service
// handles, or if the payload is too short to contain a full header.
//
// StripHeader is idempotent with respect to re-invocation on its own
// output only in the trivial sense that its own output never begins with
// another copy of the header; callers must not call it twice on the same
// frame.
func StripHeader(payload []byte) ([]byte, uint16, error) {
	if len(payload) < headerLength {
		return nil, 0, newProtoError(KindBadHeader, fmt.Errorf("payload shorter than %d-byte header: %d bytes", headerLength, len(payload)))
	}

	codecID := binary.BigEndian.Uint16(payload[0:2])

	if codecID != codecIDRawH264 {
		return nil, codecID, fmt.Errorf("milestone: %w: 0x%04X", model.ErrUnsupportedCodec, codecID)
	}

	// Bytes 8-11 (payload_length) are informational only; the codec id and
	// the 36-byte offset are what this function relies upon.
	return payload[headerLength:], codecID, nil
}
