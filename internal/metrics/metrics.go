// SPDX-License-Identifier: MIT

// Package metrics exposes the Prometheus counters and histograms emitted by
// the export pipeline, the encoder process supervisor, and the HTTP surface.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "xexport_http_request_duration_seconds",
		Help:    "HTTP request latencies in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xexport_http_requests_in_flight",
		Help: "Current number of HTTP requests being served",
	})

	// Auth

	AuthRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xexport_auth_refresh_total",
		Help: "Total number of OAuth/ImageServer token acquisitions or refreshes",
	}, []string{"token", "result"})

	// ImageServer protocol

	ProtoRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xexport_proto_requests_total",
		Help: "Total number of ImageServer method calls sent",
	}, []string{"method"})

	ProtoErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xexport_proto_errors_total",
		Help: "Total number of ImageServer protocol errors by kind",
	}, []string{"kind"})

	PipelineDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "xexport_pipeline_depth",
		Help: "Current number of unanswered outbound next/goto requests",
	})

	FramesEmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xexport_frames_emitted_total",
		Help: "Total number of frames emitted by the pipeliner",
	}, []string{"codec"})

	ConnectUpdateTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xexport_connectupdate_total",
		Help: "Total number of mid-stream connectupdate calls issued to refresh the ImageServer token",
	})

	// Export jobs

	ExportStartTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xexport_job_start_total",
		Help: "Total number of export jobs started, by result",
	}, []string{"result"})

	ExportFinishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xexport_job_finish_total",
		Help: "Total number of export jobs that reached a terminal state",
	}, []string{"state", "reason"})

	ExportDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "xexport_job_duration_seconds",
		Help:    "Wall-clock duration of an export job from start to terminal state",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	})

	FSMTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xexport_fsm_transitions_total",
		Help: "Total number of ExportJob state machine transitions",
	}, []string{"from", "to"})

	// Encoder process

	EncoderStartTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xexport_encoder_start_total",
		Help: "Total number of encoder process starts",
	}, []string{"mode", "result"})

	EncoderExitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xexport_encoder_exit_total",
		Help: "Total number of encoder process exits",
	}, []string{"reason"})

	// Process supervision (procgroup)

	ProcTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xexport_proc_terminate_total",
		Help: "Total number of signals sent to child process groups",
	}, []string{"signal", "result"})

	ProcWaitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "xexport_proc_wait_total",
		Help: "Total number of child process wait outcomes",
	}, []string{"outcome"})
)

// IncProcTerminate records the outcome of sending a signal to a child process group.
func IncProcTerminate(signal, result string) {
	ProcTerminateTotal.WithLabelValues(signal, result).Inc()
}

// IncProcWait records the outcome of waiting for a child process to exit.
func IncProcWait(outcome string) {
	ProcWaitTotal.WithLabelValues(outcome).Inc()
}

// ObserveExportDuration records the total wall-clock time of a finished export job.
func ObserveExportDuration(d time.Duration) {
	ExportDuration.Observe(d.Seconds())
}
