// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package export orchestrates one camera's recorded range into an MP4:
// resolving the recorder, authenticating, streaming frames through the
// pipeliner, muxing via the encoder, and tracking job state in a
// non-persistent in-memory registry.
package export

import (
	"context"
	"time"

	"github.com/ManuGH/xg2g/internal/fsm"
	"github.com/ManuGH/xg2g/internal/log"
	"github.com/ManuGH/xg2g/internal/metrics"
)

// State is a point in the ExportJob lifecycle. Terminal states
// (Succeeded, Failed) are immutable once reached.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Event drives ExportJob state transitions.
type Event string

const (
	EventStart  Event = "start"
	EventFinish Event = "finish"
	EventFail   Event = "fail"
)

func transitions() []fsm.Transition[State, Event] {
	return []fsm.Transition[State, Event]{
		{From: StateQueued, Event: EventStart, To: StateRunning, Action: logTransition},
		{From: StateRunning, Event: EventFinish, To: StateSucceeded, Action: logTransition},
		{From: StateRunning, Event: EventFail, To: StateFailed, Action: logTransition},
		{From: StateQueued, Event: EventFail, To: StateFailed, Action: logTransition},
	}
}

func logTransition(_ context.Context, from, to State, event Event) error {
	metrics.FSMTransitions.WithLabelValues(string(from), string(to)).Inc()
	log.WithComponent("export.fsm").Debug().
		Str(log.FieldOldState, string(from)).
		Str(log.FieldNewState, string(to)).
		Str(log.FieldEvent, string(event)).
		Msg("job state transition")
	return nil
}

// Job is one export's mutable lifecycle record, owned exclusively by the
// single worker goroutine driving it. Reads from other
// goroutines (the HTTP status/download handlers) go through Registry,
// which copies the snapshot under its own lock.
type Job struct {
	ID       string
	CameraID string
	T0       time.Time
	T1       time.Time

	Codec string

	FrameCount int
	Progress   float64 // monotonically increasing, in [0,1]

	OutputPath string
	ErrorTag   string
	ErrorMsg   string

	CreatedAt  time.Time
	FinishedAt time.Time

	machine *fsm.Machine[State, Event]
}

// NewJob constructs a Job in the Queued state.
func NewJob(id, cameraID string, t0, t1 time.Time) (*Job, error) {
	m, err := fsm.New(StateQueued, transitions())
	if err != nil {
		return nil, err
	}
	return &Job{
		ID:        id,
		CameraID:  cameraID,
		T0:        t0,
		T1:        t1,
		CreatedAt: time.Now(),
		machine:   m,
	}, nil
}

// State returns the job's current lifecycle state.
func (j *Job) State() State {
	return j.machine.State()
}

// Start transitions Queued -> Running.
func (j *Job) Start(ctx context.Context) error {
	_, err := j.machine.Fire(ctx, EventStart)
	return err
}

// Finish transitions Running -> Succeeded and records the output path.
func (j *Job) Finish(ctx context.Context, outputPath string, frames int) error {
	if _, err := j.machine.Fire(ctx, EventFinish); err != nil {
		return err
	}
	j.OutputPath = outputPath
	j.FrameCount = frames
	j.Progress = 1.0
	j.FinishedAt = time.Now()
	return nil
}

// Fail transitions to Failed and records the error taxonomy tag and
// message surfaced to the HTTP layer.
func (j *Job) Fail(ctx context.Context, tag string, cause error) error {
	if _, err := j.machine.Fire(ctx, EventFail); err != nil {
		return err
	}
	j.ErrorTag = tag
	if cause != nil {
		j.ErrorMsg = cause.Error()
	}
	j.FinishedAt = time.Now()
	return nil
}

// SetProgress advances progress, clamping to [0,1] and refusing to
// decrease.
func (j *Job) SetProgress(p float64) {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	if p > j.Progress {
		j.Progress = p
	}
}

// Snapshot is an immutable copy of a Job suitable for returning from the
// status HTTP handler without exposing the live, worker-owned Job.
type Snapshot struct {
	ID         string    `json:"id"`
	CameraID   string    `json:"camera_id"`
	T0         time.Time `json:"t0"`
	T1         time.Time `json:"t1"`
	State      State     `json:"state"`
	Codec      string    `json:"codec,omitempty"`
	FrameCount int       `json:"frame_count"`
	Progress   float64   `json:"progress"`
	OutputPath string    `json:"-"`
	ErrorTag   string    `json:"error_tag,omitempty"`
	ErrorMsg   string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Snapshot copies the job's current fields.
func (j *Job) Snapshot() Snapshot {
	return Snapshot{
		ID:         j.ID,
		CameraID:   j.CameraID,
		T0:         j.T0,
		T1:         j.T1,
		State:      j.State(),
		Codec:      j.Codec,
		FrameCount: j.FrameCount,
		Progress:   j.Progress,
		OutputPath: j.OutputPath,
		ErrorTag:   j.ErrorTag,
		ErrorMsg:   j.ErrorMsg,
		CreatedAt:  j.CreatedAt,
		FinishedAt: j.FinishedAt,
	}
}
