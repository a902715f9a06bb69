package telemetry

import (
	"time"

	"go.uber.org/zap"
)

const (
	FieldEvent      = "event"
	FieldOperation  = "operation_id"
	FieldTool       = "tool"
	FieldRemoteOp   = "remote_op"
	FieldStatus     = "status"
	FieldDurationMs = "duration_ms"
	FieldRequestID  = "request_id"
	FieldTraceID    = "trace_id"
	FieldSpanID     = "span_id"
)

const (
	EventRemoteCall    = "remote_call"
	EventRemoteFailure = "remote_failure"
	EventToolCall      = "tool_call"
	EventArtifactSaved = "artifact_saved"
	EventArtifactRead  = "artifact_read"
)

func EventField(event string) zap.Field {
	return zap.String(FieldEvent, event)
}

func OperationField(id string) zap.Field {
	return zap.String(FieldOperation, id)
}

func ToolField(name string) zap.Field {
	return zap.String(FieldTool, name)
}

func RemoteOpField(op string) zap.Field {
	return zap.String(FieldRemoteOp, op)
}

func StatusField(status int) zap.Field {
	return zap.Int(FieldStatus, status)
}

func DurationField(duration time.Duration) zap.Field {
	return zap.Int64(FieldDurationMs, duration.Milliseconds())
}

func RequestIDField(value string) zap.Field {
	return zap.String(FieldRequestID, value)
}

func TraceIDField(value string) zap.Field {
	return zap.String(FieldTraceID, value)
}

func SpanIDField(value string) zap.Field {
	return zap.String(FieldSpanID, value)
}
