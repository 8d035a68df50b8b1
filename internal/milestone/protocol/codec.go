// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package protocol

import (
	"fmt"
	"sync/atomic"
)

// wireTerminator ends every outbound method call and every inbound XML
// response. The single most common implementation bug in this protocol is
// failing to consume exactly this sequence after an ImageResponse payload.
const wireTerminator = "\r\n\r\n"

// MethodName enumerates the seven outbound calls the core speaks.
type MethodName string

const (
	MethodConnect       MethodName = "connect"
	MethodConnectUpdate MethodName = "connectupdate"
	MethodGoto          MethodName = "goto"
	MethodNext          MethodName = "next"
	MethodPrevious      MethodName = "previous"
	MethodLive          MethodName = "live"
	MethodDisconnect    MethodName = "disconnect"
)

// RequestIDSequence issues strictly increasing request ids for outbound
// method calls, keeping request ids monotonic across the lifetime of one
// Connection.
type RequestIDSequence struct {
	next uint32
}

// NewRequestIDSequence returns a sequence starting at 1.
func NewRequestIDSequence() *RequestIDSequence {
	return &RequestIDSequence{next: 0}
}

// Next returns the next strictly increasing request id.
func (s *RequestIDSequence) Next() uint32 {
	return atomic.AddUint32(&s.next, 1)
}

// FrameCodec serializes outbound method calls into the wire envelope.
// It carries no state beyond the request id sequence its caller supplies,
// so one FrameCodec can be shared by every worker that happens to format a
// message, though in practice each Connection owns one.
type FrameCodec struct{}

// NewFrameCodec constructs a FrameCodec.
func NewFrameCodec() *FrameCodec { return &FrameCodec{} }

func envelope(id uint32, name MethodName, body string) []byte {
	return []byte(fmt.Sprintf(
		`<?xml version="1.0" encoding="utf-8"?><methodcall><requestid>%d</requestid><methodname>%s</methodname>%s</methodcall>%s`,
		id, name, body, wireTerminator,
	))
}

// Connect builds the connect method call. alwaysStdJPEG requests the
// server pre-encode every frame as JPEG; the core always passes false to
// request raw codec mode, falling back to JPEG handling in software if the
// server ignores the request.
func (c *FrameCodec) Connect(id uint32, cameraID, connectionToken string, alwaysStdJPEG bool) []byte {
	yn := "no"
	if alwaysStdJPEG {
		yn = "yes"
	}
	body := fmt.Sprintf(
		`<username>dummy</username><password>dummy</password><alwaysstdjpeg>%s</alwaysstdjpeg><connectparam>id=%s&amp;connectiontoken=%s</connectparam>`,
		yn, cameraID, connectionToken,
	)
	return envelope(id, MethodConnect, body)
}

// ConnectUpdate builds the connectupdate call used to push a freshly
// refreshed ImageServer token into an already-open connection.
func (c *FrameCodec) ConnectUpdate(id uint32, connectionToken string) []byte {
	body := fmt.Sprintf(`<connectparam>connectiontoken=%s</connectparam>`, connectionToken)
	return envelope(id, MethodConnectUpdate, body)
}

// Goto builds the goto call that seeks the server's read cursor to the
// given Unix-millisecond timestamp.
func (c *FrameCodec) Goto(id uint32, unixMs int64) []byte {
	body := fmt.Sprintf(`<time>%d</time>`, unixMs)
	return envelope(id, MethodGoto, body)
}

// Next builds the next call requesting the following frame in the stream.
func (c *FrameCodec) Next(id uint32) []byte {
	return envelope(id, MethodNext, "")
}

// Previous builds the previous call.
func (c *FrameCodec) Previous(id uint32) []byte {
	return envelope(id, MethodPrevious, "")
}

// Live builds the live call.
func (c *FrameCodec) Live(id uint32) []byte {
	return envelope(id, MethodLive, "")
}

// Disconnect builds the disconnect call that ends the session.
func (c *FrameCodec) Disconnect(id uint32) []byte {
	return envelope(id, MethodDisconnect, "")
}
