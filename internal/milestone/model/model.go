// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package model holds the data types shared across the ImageServer client
// packages: authentication state, camera descriptors, and the wire Frame.
package model

import "time"

// Token is an opaque bearer credential with an expiry the AuthBroker uses
// to decide when a refresh is due.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Remaining returns how long until the token expires, relative to now.
func (t Token) Remaining(now time.Time) time.Duration {
	if t.Value == "" {
		return 0
	}
	return t.ExpiresAt.Sub(now)
}

// AuthState is the process-wide authentication state shared by every export
// worker. OAuth and ImageServer tokens are versioned separately: refreshing
// OAuth never implicitly refreshes the ImageServer token, and an
// ImageServer token is never minted before a valid OAuth token exists.
type AuthState struct {
	OAuth            Token
	ImageServer      Token
	InstanceID       string
	SOAPTTLDeadline  time.Time
}

// Camera is the read-only descriptor returned by ConfigClient and consumed
// by Exporter to resolve a Recording Server host/port.
type Camera struct {
	ID                  string
	DisplayName         string
	Enabled             bool
	RecordingServerHost string
	RecordingServerPort int
}

// Codec classifies the payload of the first frame of an export. It is
// derived once per export and never re-evaluated.
type Codec int

const (
	CodecUnknown Codec = iota
	CodecJPEG
	CodecRawH264
	CodecUnsupported
)

func (c Codec) String() string {
	switch c {
	case CodecJPEG:
		return "jpeg"
	case CodecRawH264:
		return "h264"
	case CodecUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Frame is a single decoded ImageResponse from the ImageServer, with its
// proprietary header already stripped from Payload when applicable.
type Frame struct {
	RequestID     uint32
	ContentType   string
	ContentLength uint32
	CurrentTSMs   int64
	PrevTSMs      int64
	NextTSMs      int64
	Payload       []byte

	// RawCodecID is the big-endian codec id read from the proprietary
	// header, populated only when ContentType is the generic octet-stream
	// wire type. Zero when the frame carries JPEG directly.
	RawCodecID uint16
}

// AtRangeEnd reports whether this frame marks the end of the client's
// requested range, or the end of the recorded range on the server.
func (f Frame) AtRangeEnd(t1Ms int64) bool {
	return f.NextTSMs == -1 || f.CurrentTSMs >= t1Ms
}
