// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ManuGH/xg2g/internal/encoder"
	"github.com/ManuGH/xg2g/internal/log"
	"github.com/ManuGH/xg2g/internal/metrics"
	"github.com/ManuGH/xg2g/internal/milestone/model"
	"github.com/ManuGH/xg2g/internal/milestone/pipeliner"
	"github.com/ManuGH/xg2g/internal/milestone/protocol"
	"github.com/ManuGH/xg2g/internal/telemetry"
	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// MaxRange is the largest [t0,t1] window a single export may request
// before Start fails immediately with model.ErrRangeTooLarge.
const MaxRange = 10 * time.Minute

// AuthBroker is the subset of auth.Broker the exporter depends on.
type AuthBroker interface {
	OAuthToken(ctx context.Context) (model.Token, error)
	ImageServerToken(ctx context.Context) (model.Token, error)
	InstanceID() string
	SOAPTTL() time.Duration
	InvalidateImageServerToken()
}

// ConfigResolver is the subset of configclient.Client the exporter
// depends on.
type ConfigResolver interface {
	ResolveRecorder(ctx context.Context, cameraID string) (string, int, error)
	ListCameras(ctx context.Context) ([]model.Camera, error)
}

// Config configures an Exporter.
type Config struct {
	ExportDir      string
	PipelineDepth  int
	EncoderPath    string
	JPEGFPS        int
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	KillGrace      time.Duration
}

// Exporter is the public facade the thin HTTP layer talks to: start,
// status, fetch, cancel. Each job runs on its own worker goroutine; all
// I/O within that worker against its Connection is strictly sequential.
type Exporter struct {
	cfg      Config
	auth     AuthBroker
	resolver ConfigResolver
	registry *Registry

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	workers errgroup.Group
}

// New constructs an Exporter.
func New(cfg Config, auth AuthBroker, resolver ConfigResolver, registry *Registry) *Exporter {
	if cfg.PipelineDepth <= 0 {
		cfg.PipelineDepth = pipeliner.DefaultDepth
	}
	return &Exporter{
		cfg:      cfg,
		auth:     auth,
		resolver: resolver,
		registry: registry,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Wait blocks until every worker goroutine launched by Start has returned,
// used during graceful shutdown after cancelling all in-flight jobs. It
// never returns an error: run() reports failures onto the Job itself, not
// through this path.
func (e *Exporter) Wait() {
	_ = e.workers.Wait()
}

// CancelAll signals every in-flight worker to stop, for graceful shutdown.
func (e *Exporter) CancelAll() {
	e.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(e.cancels))
	for _, c := range e.cancels {
		cancels = append(cancels, c)
	}
	e.mu.Unlock()
	for _, c := range cancels {
		c()
	}
}

// Start validates the requested range, registers a new Job, and launches
// its worker goroutine, returning the export id immediately.
func (e *Exporter) Start(ctx context.Context, cameraID string, t0, t1 time.Time) (string, error) {
	if !t1.After(t0) {
		return "", model.ErrInvalidRange
	}
	if t1.Sub(t0) > MaxRange {
		return "", model.ErrRangeTooLarge
	}

	id := uuid.NewString()
	job, err := NewJob(id, cameraID, t0, t1)
	if err != nil {
		return "", err
	}
	e.registry.Create(job)

	workerCtx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.cancels[id] = cancel
	e.mu.Unlock()

	metrics.ExportStartTotal.WithLabelValues("started").Inc()
	e.workers.Go(func() error {
		e.run(workerCtx, job)
		return nil
	})

	return id, nil
}

// Status returns the current snapshot of job id.
func (e *Exporter) Status(id string) (Snapshot, bool) {
	return e.registry.Snapshot(id)
}

// Fetch returns the output file path for a succeeded job.
func (e *Exporter) Fetch(id string) (string, bool) {
	return e.registry.OutputPath(id)
}

// Cancel signals the worker driving job id to stop. Cancellation is
// best-effort: the worker closes its Connection, closes the encoder's
// stdin, awaits its exit, and marks the job Failed before returning.
func (e *Exporter) Cancel(id string) bool {
	e.mu.Lock()
	cancel, ok := e.cancels[id]
	e.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

func (e *Exporter) clearCancel(id string) {
	e.mu.Lock()
	delete(e.cancels, id)
	e.mu.Unlock()
}

// run drives one export job end to end: resolve -> auth -> connect ->
// stream -> mux -> finalize. It is the sole writer of job for its entire
// lifetime.
func (e *Exporter) run(ctx context.Context, job *Job) {
	start := time.Now()
	defer e.clearCancel(job.ID)
	defer func() {
		metrics.ObserveExportDuration(time.Since(start))
	}()

	tracer := telemetry.Tracer("xg2g.export")
	ctx, span := tracer.Start(ctx, "export.run", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	logger := log.WithComponent("exporter")

	if err := job.Start(ctx); err != nil {
		logger.Error().Err(err).Str(log.FieldExportID, job.ID).Msg("job start transition failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}

	if err := e.runPipelineWithRetry(ctx, job); err != nil {
		tag, cause := classifyFailure(err)
		if ctx.Err() != nil {
			tag = "Cancelled"
		}
		if ferr := job.Fail(ctx, tag, cause); ferr != nil {
			logger.Error().Err(ferr).Str(log.FieldExportID, job.ID).Msg("job fail transition failed")
		}
		metrics.ExportFinishTotal.WithLabelValues(string(StateFailed), tag).Inc()
		logger.Warn().Err(cause).Str(log.FieldExportID, job.ID).Str(log.FieldTag, tag).Msg("export failed")
		span.SetAttributes(telemetry.ExportAttributes(job.ID, job.CameraID, job.Codec, job.FrameCount)...)
		span.SetAttributes(telemetry.ErrorAttributes(cause, tag)...)
		span.RecordError(cause)
		span.SetStatus(codes.Error, tag)
		return
	}

	metrics.ExportFinishTotal.WithLabelValues(string(StateSucceeded), "").Inc()
	logger.Info().
		Str(log.FieldExportID, job.ID).
		Str(log.FieldCameraID, job.CameraID).
		Str(log.FieldCodec, job.Codec).
		Int(log.FieldFrameCount, job.FrameCount).
		Msg("export succeeded")
	span.SetAttributes(telemetry.ExportAttributes(job.ID, job.CameraID, job.Codec, job.FrameCount)...)
	span.SetStatus(codes.Ok, "")
}

// runPipelineWithRetry implements the error-recovery policy: one
// OAuth/ImageServer token refresh on an auth failure, and one
// reconnect attempt on Proto::ConnectionBroken, but only before the first
// frame has been emitted — never after, to preserve ordering.
func (e *Exporter) runPipelineWithRetry(ctx context.Context, job *Job) error {
	framesEmitted, err := e.runPipeline(ctx, job)
	if err == nil || ctx.Err() != nil {
		return err
	}

	retryable := errors.Is(err, model.ErrUnauthorized) || isConnectionBroken(err)
	if !retryable || framesEmitted > 0 {
		return err
	}

	log.WithComponent("exporter").Warn().Err(err).Str(log.FieldExportID, job.ID).Msg("retrying export after pre-frame failure")
	if errors.Is(err, model.ErrUnauthorized) {
		e.auth.InvalidateImageServerToken()
	}

	_, err = e.runPipeline(ctx, job)
	return err
}

func isConnectionBroken(err error) bool {
	var protoErr *protocol.ProtoError
	return errors.As(err, &protoErr) && protoErr.Kind == protocol.KindConnectionBroken
}

func (e *Exporter) runPipeline(ctx context.Context, job *Job) (int, error) {
	host, port, err := e.resolver.ResolveRecorder(ctx, job.CameraID)
	if err != nil {
		return 0, fmt.Errorf("%w", err)
	}

	if _, err := e.auth.OAuthToken(ctx); err != nil {
		return 0, err
	}
	imgTok, err := e.auth.ImageServerToken(ctx)
	if err != nil {
		return 0, err
	}

	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := protocol.Dial(addr, protocol.DialOptions{
		ConnectTimeout: e.cfg.ConnectTimeout,
		ReadTimeout:    e.cfg.ReadTimeout,
	})
	if err != nil {
		return 0, err
	}
	defer func() { _ = conn.Close() }()

	codec := protocol.NewFrameCodec()
	ids := protocol.NewRequestIDSequence()

	connectID := ids.Next()
	if err := conn.Send(codec.Connect(connectID, job.CameraID, imgTok.Value, false)); err != nil {
		return 0, err
	}
	if _, err := conn.ReadMethodResponse(); err != nil {
		return 0, err
	}

	pl := pipeliner.New(conn, codec, ids, e.auth, pipeliner.Config{Depth: e.cfg.PipelineDepth})

	var enc *encoder.Pipe
	var mode encoder.Mode
	var classifiedCodec model.Codec
	frameIndex := 0
	t0Ms := job.T0.UnixMilli()
	t1Ms := job.T1.UnixMilli()

	onFrame := func(frame model.Frame) error {
		if frameIndex == 0 {
			classifiedCodec = protocol.ClassifyCodec(frame.ContentType, frame.Payload)
			switch classifiedCodec {
			case model.CodecRawH264:
				mode = encoder.ModeH264Passthrough
			case model.CodecJPEG:
				mode = encoder.ModeJPEGSequence
			default:
				return fmt.Errorf("milestone: %w", model.ErrUnsupportedCodec)
			}
			job.Codec = classifiedCodec.String()

			outputPath := filepath.Join(e.cfg.ExportDir, job.ID+".mp4.tmp")
			enc, err = encoder.Start(ctx, encoder.Config{
				BinPath:    e.cfg.EncoderPath,
				Mode:       mode,
				OutputPath: outputPath,
				JPEGFPS:    e.cfg.JPEGFPS,
				KillGrace:  e.cfg.KillGrace,
			})
			if err != nil {
				return err
			}
		}

		if err := enc.Write(frame.Payload); err != nil {
			return fmt.Errorf("encoder: write frame: %w", err)
		}
		frameIndex++

		progress := float64(frame.CurrentTSMs-t0Ms) / float64(t1Ms-t0Ms)
		job.SetProgress(progress)
		return nil
	}

	frameCount, runErr := pl.Run(ctx, t0Ms, t1Ms, onFrame)

	if ctx.Err() != nil {
		if enc != nil {
			_ = enc.Kill(e.cfg.KillGrace)
		}
		return frameCount, ctx.Err()
	}

	if runErr != nil {
		if enc != nil {
			_ = enc.Kill(e.cfg.KillGrace)
		}
		return frameCount, runErr
	}

	if enc == nil {
		return frameCount, model.ErrNoFrames
	}

	if err := enc.Finalize(e.cfg.KillGrace); err != nil {
		return frameCount, err
	}

	tmpPath := filepath.Join(e.cfg.ExportDir, job.ID+".mp4.tmp")
	finalPath := filepath.Join(e.cfg.ExportDir, job.ID+".mp4")
	if err := atomicRename(tmpPath, finalPath); err != nil {
		return frameCount, fmt.Errorf("export: finalize output: %w", err)
	}

	disconnectID := ids.Next()
	_ = conn.Send(codec.Disconnect(disconnectID))

	return frameCount, job.Finish(ctx, finalPath, frameCount)
}

// atomicRename moves the encoder's temp output into its final,
// stable-named location, matching the temp-name-then-rename durability
// pattern used elsewhere in this service for on-disk artifacts.
func atomicRename(tmpPath, finalPath string) error {
	data, err := os.Open(tmpPath) // #nosec G304 -- path constructed from internal export id
	if err != nil {
		return err
	}
	defer func() { _ = data.Close() }()

	pending, err := renameio.NewPendingFile(finalPath)
	if err != nil {
		return err
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := io.Copy(pending, data); err != nil {
		return err
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return err
	}
	return os.Remove(tmpPath)
}

func classifyFailure(err error) (string, error) {
	switch {
	case err == nil:
		return "", nil
	default:
		return errorTag(err), err
	}
}
