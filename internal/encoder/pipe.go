// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package encoder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/ManuGH/xg2g/internal/log"
	"github.com/ManuGH/xg2g/internal/metrics"
	"github.com/ManuGH/xg2g/internal/procgroup"
)

// defaultKillGrace bounds how long Finalize waits for a SIGTERM'd encoder
// to exit before escalating to SIGKILL.
const defaultKillGrace = 5 * time.Second

// Pipe spawns and feeds one external encoder process. It is write-only
// from the exporter's side: frames flow into the process's stdin and the
// process writes the finished MP4 to outputPath itself. Pipe captures
// stderr into a bounded ring for inclusion in error reports.
type Pipe struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	ring   *LineRing
	waitCh chan error

	mu      sync.Mutex
	started bool
}

// Config configures a Pipe.
type Config struct {
	BinPath    string
	Mode       Mode
	OutputPath string
	JPEGFPS    int
	KillGrace  time.Duration
}

// Start launches the encoder process with its stdin piped for writing and
// its stderr captured into a ring buffer.
func Start(ctx context.Context, cfg Config) (*Pipe, error) {
	bin := cfg.BinPath
	if bin == "" {
		bin = "ffmpeg"
	}

	args, err := BuildArgs(cfg.Mode, cfg.OutputPath, cfg.JPEGFPS)
	if err != nil {
		metrics.EncoderStartTotal.WithLabelValues(string(cfg.Mode), "error").Inc()
		return nil, err
	}

	cmd := exec.CommandContext(ctx, bin, args...) // #nosec G204 -- binary and args are server-controlled, not user input
	procgroup.Set(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		metrics.EncoderStartTotal.WithLabelValues(string(cfg.Mode), "error").Inc()
		return nil, fmt.Errorf("encoder: stdin pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		metrics.EncoderStartTotal.WithLabelValues(string(cfg.Mode), "error").Inc()
		return nil, fmt.Errorf("encoder: stderr pipe: %w", err)
	}

	ring := NewLineRing(256)

	if err := cmd.Start(); err != nil {
		metrics.EncoderStartTotal.WithLabelValues(string(cfg.Mode), "error").Inc()
		return nil, fmt.Errorf("encoder: spawn failed: %w", err)
	}
	metrics.EncoderStartTotal.WithLabelValues(string(cfg.Mode), "ok").Inc()

	p := &Pipe{
		cmd:     cmd,
		stdin:   stdin,
		ring:    ring,
		waitCh:  make(chan error, 1),
		started: true,
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			_, _ = ring.Write(scanner.Bytes())
			_, _ = ring.Write([]byte("\n"))
		}
	}()

	go func() {
		p.waitCh <- cmd.Wait()
	}()

	log.WithComponent("encoder").Info().Str("mode", string(cfg.Mode)).Str("output", cfg.OutputPath).Msg("encoder process started")
	return p, nil
}

// Write feeds one frame's codec payload to the encoder's stdin. It blocks
// when the OS pipe buffer is full, which is the mechanism by which
// backpressure propagates up to the Pipeliner.
func (p *Pipe) Write(b []byte) error {
	_, err := p.stdin.Write(b)
	return err
}

// Finalize closes the encoder's stdin so it can flush and exit cleanly,
// then waits for it to exit, enforcing grace before escalating to
// SIGKILL. It returns a non-nil error, including the captured stderr
// tail, on a non-zero exit.
func (p *Pipe) Finalize(grace time.Duration) error {
	if grace <= 0 {
		grace = defaultKillGrace
	}
	_ = p.stdin.Close()

	select {
	case err := <-p.waitCh:
		return p.classifyExit(err)
	case <-time.After(grace):
		return p.classifyExit(procgroup.Terminate(p.cmd, p.waitCh, grace))
	}
}

// Kill terminates the encoder immediately, used on job cancellation. It
// guarantees the process has exited before returning.
func (p *Pipe) Kill(grace time.Duration) error {
	if grace <= 0 {
		grace = defaultKillGrace
	}
	_ = p.stdin.Close()
	return procgroup.Terminate(p.cmd, p.waitCh, grace)
}

func (p *Pipe) classifyExit(err error) error {
	if err == nil {
		metrics.EncoderExitTotal.WithLabelValues("clean").Inc()
		return nil
	}
	metrics.EncoderExitTotal.WithLabelValues("error").Inc()
	return fmt.Errorf("encoder: non-zero exit: %w (stderr tail: %v)", err, p.ring.LastN(20))
}

// StderrTail returns the last n lines of the encoder's stderr, for
// inclusion in error reports.
func (p *Pipe) StderrTail(n int) []string {
	return p.ring.LastN(n)
}
