// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ManuGH/xg2g/internal/log"
	"github.com/ManuGH/xg2g/internal/metrics"
)

// State is the lifecycle of a Connection's socket.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateBroken
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateBroken:
		return "broken"
	default:
		return "closed"
	}
}

// Connection owns one TCP socket to an ImageServer Recording Server. It is
// single-writer, single-reader: concurrent use is the Pipeliner's job, not
// this type's. On any protocol error the connection transitions to the
// terminal Broken state and every subsequent call fails with
// Proto::ConnectionBroken without touching the network again.
type Connection struct {
	mu    sync.Mutex
	state State

	conn net.Conn
	r    *bufio.Reader

	readTimeout time.Duration
}

// DialOptions configures Dial.
type DialOptions struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// Dial opens a TCP connection to addr (host:port) and returns it in the
// Open state.
func Dial(addr string, opts DialOptions) (*Connection, error) {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 30 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 30 * time.Second
	}

	conn, err := net.DialTimeout("tcp", addr, opts.ConnectTimeout)
	if err != nil {
		return nil, newProtoError(KindConnectionBroken, fmt.Errorf("dial %s: %w", addr, err))
	}

	c := &Connection{
		state:       StateOpen,
		conn:        conn,
		r:           bufio.NewReaderSize(conn, 64*1024),
		readTimeout: opts.ReadTimeout,
	}
	log.WithComponent("protocol").Info().Str("addr", addr).Msg("imageserver connection opened")
	return c, nil
}

// State returns the connection's current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Send writes one outbound message, built by FrameCodec, to the socket.
func (c *Connection) Send(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOpen {
		return newProtoError(KindConnectionBroken, fmt.Errorf("send on %s connection", c.state))
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.readTimeout)); err != nil {
		return c.breakLocked(err)
	}
	if _, err := c.conn.Write(b); err != nil {
		return c.breakLocked(err)
	}
	return nil
}

// ReadMethodResponse reads one XML method response from the socket.
func (c *Connection) ReadMethodResponse() (MethodResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOpen {
		return MethodResponse{}, newProtoError(KindConnectionBroken, fmt.Errorf("read on %s connection", c.state))
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
		return MethodResponse{}, c.breakLocked(err)
	}
	resp, err := ReadMethodResponse(c.r)
	if err != nil {
		return MethodResponse{}, c.breakLocked(err)
	}
	return resp, nil
}

// ReadImageResponse reads one binary ImageResponse from the socket.
func (c *Connection) ReadImageResponse() (ImageResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOpen {
		return ImageResponse{}, newProtoError(KindConnectionBroken, fmt.Errorf("read on %s connection", c.state))
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
		return ImageResponse{}, c.breakLocked(err)
	}
	resp, err := ReadImageResponse(c.r)
	if err != nil {
		return ImageResponse{}, c.breakLocked(err)
	}
	return resp, nil
}

// IsImageResponse reports whether the next unread response is a binary
// ImageResponse rather than an XML method response.
func (c *Connection) IsImageResponse() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOpen {
		return false, newProtoError(KindConnectionBroken, fmt.Errorf("peek on %s connection", c.state))
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
		return false, c.breakLocked(err)
	}
	isImg, err := IsImageResponse(c.r)
	if err != nil {
		return false, c.breakLocked(err)
	}
	return isImg, nil
}

// Close transitions the connection to Closed and releases the socket. It
// is safe to call more than once and safe to call on an already-Broken
// connection.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return nil
	}
	c.state = StateClosed
	return c.conn.Close()
}

// breakLocked transitions the connection to Broken and reports cause as the
// immediate failure. If cause already carries a specific taxonomy kind
// (e.g. Proto::MissingTrailer), that kind is preserved in the returned
// error; Proto::ConnectionBroken is reserved for calls made after the
// connection is already Broken. Caller must hold c.mu.
func (c *Connection) breakLocked(cause error) error {
	if c.state != StateBroken {
		c.state = StateBroken
		metrics.ProtoErrorsTotal.WithLabelValues(kindOf(cause)).Inc()
		log.WithComponent("protocol").Warn().Err(cause).Msg("imageserver connection broken")
		_ = c.conn.Close()
	}
	var pe *ProtoError
	if errors.As(cause, &pe) {
		return cause
	}
	return newProtoError(KindConnectionBroken, cause)
}

func kindOf(err error) string {
	var pe *ProtoError
	if e, ok := err.(*ProtoError); ok {
		pe = e
	}
	if pe != nil {
		return pe.Kind
	}
	return "unknown"
}
