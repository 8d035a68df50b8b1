// SPDX-License-Identifier: MIT

// Package telemetry provides OpenTelemetry tracing utilities for the xg2g application.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"
	HTTPUserAgentKey  = "http.user_agent"

	// ImageServer protocol attributes
	ProtoMethodKey    = "proto.method"
	ProtoRequestIDKey = "proto.request_id"
	ProtoCodecIDKey   = "proto.codec_id"

	// Export job attributes
	ExportIDKey       = "export.id"
	ExportCameraIDKey = "export.camera_id"
	ExportCodecKey    = "export.codec"
	ExportFramesKey   = "export.frames"

	// Job attributes
	JobTypeKey     = "job.type"
	JobStatusKey   = "job.status"
	JobDurationKey = "job.duration_ms"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// ProtoAttributes creates span attributes for one ImageServer method call.
func ProtoAttributes(method string, requestID uint32) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ProtoMethodKey, method),
		attribute.Int64(ProtoRequestIDKey, int64(requestID)),
	}
}

// ExportAttributes creates span attributes describing one export job.
func ExportAttributes(exportID, cameraID, codec string, frames int) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 4)
	if exportID != "" {
		attrs = append(attrs, attribute.String(ExportIDKey, exportID))
	}
	if cameraID != "" {
		attrs = append(attrs, attribute.String(ExportCameraIDKey, cameraID))
	}
	if codec != "" {
		attrs = append(attrs, attribute.String(ExportCodecKey, codec))
	}
	attrs = append(attrs, attribute.Int(ExportFramesKey, frames))
	return attrs
}

// JobAttributes creates job-related span attributes.
func JobAttributes(jobType, status string, durationMS int64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(JobTypeKey, jobType),
		attribute.String(JobStatusKey, status),
		attribute.Int64(JobDurationKey, durationMS),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
