// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package pipeliner issues windowed next/goto requests against one
// ImageServer Connection and yields frames in timestamp order. It is the
// throughput-critical component of the export pipeline: keeping W requests
// in flight at all times hides round-trip latency behind the server's
// frame production rate.
package pipeliner

import (
	"container/list"
	"context"
	"fmt"
	"time"

	"github.com/ManuGH/xg2g/internal/log"
	"github.com/ManuGH/xg2g/internal/metrics"
	"github.com/ManuGH/xg2g/internal/milestone/model"
	"github.com/ManuGH/xg2g/internal/milestone/protocol"
	"github.com/ManuGH/xg2g/internal/telemetry"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultDepth is the default pipeline window size W.
	DefaultDepth = 8
	MinDepth     = 1
	MaxDepth     = 32
)

// TokenSource supplies a fresh ImageServer connection token for a
// mid-stream connectupdate.
type TokenSource interface {
	ImageServerToken(ctx context.Context) (model.Token, error)
	SOAPTTL() time.Duration
}

// Config configures a Pipeliner.
type Config struct {
	Depth int // window size W; a value outside [MinDepth, MaxDepth] is replaced by DefaultDepth.
}

// Pipeliner drives one Connection through a goto/next sequence covering a
// timestamp range, maintaining up to Depth in-flight requests at all times.
type Pipeliner struct {
	conn  *protocol.Connection
	codec *protocol.FrameCodec
	ids   *protocol.RequestIDSequence
	auth  TokenSource

	depth int

	pending    *list.List // of uint32 request ids, oldest first
	lastUpdate time.Time
}

// New constructs a Pipeliner bound to conn. auth may be nil if the caller
// never needs mid-stream connectupdate (e.g. in protocol-layer tests).
func New(conn *protocol.Connection, codec *protocol.FrameCodec, ids *protocol.RequestIDSequence, auth TokenSource, cfg Config) *Pipeliner {
	depth := cfg.Depth
	if depth < MinDepth || depth > MaxDepth {
		depth = DefaultDepth
	}
	return &Pipeliner{
		conn:       conn,
		codec:      codec,
		ids:        ids,
		auth:       auth,
		depth:      depth,
		pending:    list.New(),
		lastUpdate: time.Now(),
	}
}

// FrameFunc is called once per emitted frame, in timestamp order.
type FrameFunc func(model.Frame) error

// Run seeks to t0 with a goto, then streams next-pipelined frames until a
// frame reaches or exceeds t1 or the server reports end of recording
// (next_ts_ms == -1), invoking fn for each frame in order. It returns the
// number of frames emitted and the first error encountered, if any.
//
// Run honors the pipeline's ordering guarantees: emitted frames are
// timestamp-monotonic, and frames are matched to pending request ids in
// strict FIFO order — an out-of-order RequestId is treated as a protocol
// violation and ends the run with a Proto::OutOfOrder error.
func (p *Pipeliner) Run(ctx context.Context, t0, t1Ms int64, fn FrameFunc) (int, error) {
	tracer := telemetry.Tracer("xg2g.milestone.pipeliner")
	ctx, span := tracer.Start(ctx, "pipeliner.run", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(telemetry.ProtoAttributes(string(protocol.MethodGoto), 0)...)
	defer span.End()

	frameCount, err := p.runLocked(ctx, t0, t1Ms, fn)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.SetAttributes(telemetry.JobAttributes("export.pipeline", statusLabel(err), 0)...)
	return frameCount, err
}

func statusLabel(err error) string {
	if err != nil {
		return "failed"
	}
	return "succeeded"
}

func (p *Pipeliner) runLocked(ctx context.Context, t0, t1Ms int64, fn FrameFunc) (int, error) {
	seekFrame, err := p.goto_(t0)
	if err != nil {
		return 0, err
	}

	frameCount := 0
	stopIssuing := false

	if seekFrame.CurrentTSMs <= t1Ms {
		if err := fn(seekFrame); err != nil {
			return 0, err
		}
		frameCount++
		metrics.FramesEmittedTotal.WithLabelValues(codecLabel(seekFrame)).Inc()
	}
	if seekFrame.AtRangeEnd(t1Ms) {
		stopIssuing = true
	}

	for {
		for !stopIssuing && p.pending.Len() < p.depth {
			if err := p.sendNext(); err != nil {
				return frameCount, err
			}
		}

		if p.pending.Len() == 0 {
			return frameCount, nil
		}

		frame, err := p.receiveFrame()
		if err != nil {
			return frameCount, err
		}

		if frame.CurrentTSMs <= t1Ms {
			if err := fn(frame); err != nil {
				return frameCount, err
			}
			frameCount++
			metrics.FramesEmittedTotal.WithLabelValues(codecLabel(frame)).Inc()
		}

		if frame.AtRangeEnd(t1Ms) {
			stopIssuing = true
		}

		if !stopIssuing {
			if err := p.maybeRefreshToken(ctx); err != nil {
				return frameCount, err
			}
		}
	}
}

// goto_ issues the initial seek and returns its single response frame.
// Named with a trailing underscore because "goto" is a Go keyword.
func (p *Pipeliner) goto_(t0 int64) (model.Frame, error) {
	id := p.ids.Next()
	if err := p.conn.Send(p.codec.Goto(id, t0)); err != nil {
		return model.Frame{}, err
	}
	p.pending.PushBack(id)
	return p.receiveFrame()
}

func (p *Pipeliner) sendNext() error {
	id := p.ids.Next()
	if err := p.conn.Send(p.codec.Next(id)); err != nil {
		return err
	}
	p.pending.PushBack(id)
	metrics.PipelineDepth.Set(float64(p.pending.Len()))
	return nil
}

// receiveFrame reads one ImageResponse, matches it against the head of the
// pending queue, and returns the decoded Frame with its proprietary header
// stripped when applicable.
func (p *Pipeliner) receiveFrame() (model.Frame, error) {
	isImg, err := p.conn.IsImageResponse()
	if err != nil {
		return model.Frame{}, err
	}
	if !isImg {
		// An XML response arrived where an image was expected; this can
		// only be the connectupdate ack racing the image stream, which
		// maybeRefreshToken already waits for synchronously. Treat
		// anything else as a protocol violation.
		if _, err := p.conn.ReadMethodResponse(); err != nil {
			return model.Frame{}, err
		}
		return p.receiveFrame()
	}

	img, err := p.conn.ReadImageResponse()
	if err != nil {
		return model.Frame{}, err
	}

	head := p.pending.Front()
	if head == nil {
		return model.Frame{}, protocol.NewProtocolViolation(fmt.Errorf("received image response %d with no pending request", img.RequestID))
	}
	expected := head.Value.(uint32)
	if img.RequestID != expected {
		return model.Frame{}, protocol.NewProtocolViolation(fmt.Errorf("out-of-order response: expected request id %d, got %d", expected, img.RequestID))
	}
	p.pending.Remove(head)
	metrics.PipelineDepth.Set(float64(p.pending.Len()))

	frame := model.Frame{
		RequestID:     img.RequestID,
		ContentType:   img.ContentType,
		ContentLength: img.ContentLength,
		CurrentTSMs:   img.CurrentTSMs,
		PrevTSMs:      img.PrevTSMs,
		NextTSMs:      img.NextTSMs,
		Payload:       img.Payload,
	}

	if img.ContentType == protocol.ContentTypeOctetStream {
		body, codecID, err := protocol.StripHeader(img.Payload)
		if err != nil {
			return model.Frame{}, err
		}
		frame.Payload = body
		frame.RawCodecID = codecID
	}

	return frame, nil
}

// maybeRefreshToken injects a connectupdate between frame slots when the
// elapsed time since the last refresh exceeds half the ImageServer token's
// TTL. It waits for the connectupdate's XML response before returning, so
// it is never pipelined with image requests.
func (p *Pipeliner) maybeRefreshToken(ctx context.Context) error {
	if p.auth == nil {
		return nil
	}
	ttl := p.auth.SOAPTTL()
	if ttl <= 0 || time.Since(p.lastUpdate) < ttl/2 {
		return nil
	}

	tok, err := p.auth.ImageServerToken(ctx)
	if err != nil {
		return err
	}

	id := p.ids.Next()
	if err := p.conn.Send(p.codec.ConnectUpdate(id, tok.Value)); err != nil {
		return err
	}
	if _, err := p.conn.ReadMethodResponse(); err != nil {
		return err
	}
	metrics.ConnectUpdateTotal.Inc()
	p.lastUpdate = time.Now()
	log.WithComponent("pipeliner").Debug().Msg("connectupdate sent mid-stream")
	return nil
}

func codecLabel(f model.Frame) string {
	if f.ContentType == protocol.ContentTypeJPEG {
		return "jpeg"
	}
	if f.RawCodecID != 0 {
		return fmt.Sprintf("0x%04X", f.RawCodecID)
	}
	return "unknown"
}
