// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package protocol implements the ImageServer wire format: outbound XML
// method calls, inbound XML and binary ImageResponse parsing, and the
// Milestone-proprietary 36-byte frame header. See FrameCodec and
// Connection.
package protocol

import "fmt"

// ProtoError tags a wire-protocol failure with one of the taxonomy kinds.
// ConnectionBroken is terminal: once returned, the owning Connection will
// return it for every subsequent call.
type ProtoError struct {
	Kind string
	Err  error
}

func (e *ProtoError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("proto: %s", e.Kind)
	}
	return fmt.Sprintf("proto: %s: %v", e.Kind, e.Err)
}

func (e *ProtoError) Unwrap() error { return e.Err }

const (
	KindBadHeader             = "Proto::BadHeader"
	KindShortRead             = "Proto::ShortRead"
	KindContentLengthMismatch = "Proto::ContentLengthMismatch"
	KindMissingTrailer        = "Proto::MissingTrailer"
	KindUnexpectedStatus      = "Proto::UnexpectedStatus"
	KindConnectionBroken      = "Proto::ConnectionBroken"
	KindOutOfOrder            = "Proto::OutOfOrder"
)

func newProtoError(kind string, err error) *ProtoError {
	return &ProtoError{Kind: kind, Err: err}
}

// NewProtocolViolation wraps err as a Proto::OutOfOrder error, used when a
// received request id does not match the head of the pipeliner's pending
// queue.
func NewProtocolViolation(err error) *ProtoError {
	return newProtoError(KindOutOfOrder, err)
}
