package domain

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CodeInvalidArgument   ErrorCode = "INVALID_ARGUMENT"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeNotLoaded         ErrorCode = "NOT_LOADED"
	CodeUnavailable       ErrorCode = "UNAVAILABLE"
	CodeRejected          ErrorCode = "REJECTED"
	CodeUnauthenticated   ErrorCode = "UNAUTHENTICATED"
	CodePermissionDenied  ErrorCode = "PERMISSION_DENIED"
	CodeDeadlineExceeded  ErrorCode = "DEADLINE_EXCEEDED"
	CodeCanceled          ErrorCode = "CANCELED"
	CodeUnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"
	CodeUnknownTool       ErrorCode = "UNKNOWN_TOOL"
	CodeExecutionFailed   ErrorCode = "EXECUTION_FAILED"
	CodeInternal          ErrorCode = "INTERNAL"
)

var (
	// ErrValidation reports a malformed query or inputs; it never reaches the transport.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound reports an identifier the platform does not know.
	ErrNotFound = errors.New("identifier not found")
	// ErrNotLoaded reports an execute attempted without cached metadata under the explicit policy.
	ErrNotLoaded = errors.New("execution metadata not loaded")
	// ErrTransport reports a network, auth or timeout failure talking to the platform.
	ErrTransport = errors.New("transport failure")
	// ErrUnsupportedFormat reports an unknown tool definition format.
	ErrUnsupportedFormat = errors.New("unsupported tool format")
	// ErrUnknownTool reports a tool name that was never generated.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrMissingAPIKey reports a configuration without an agent API key.
	ErrMissingAPIKey = errors.New("JENTIC_AGENT_API_KEY is not set")
)

type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Cause   error
	Meta    map[string]string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Op == "" {
		if msg == "" {
			return string(e.Code)
		}
		return fmt.Sprintf("%s: %s", e.Code, msg)
	}
	if msg == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, msg)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches the sentinel that corresponds to the error code, so callers can
// use errors.Is(err, ErrNotFound) without knowing how the error was built.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	sentinel := sentinelFor(e.Code)
	return sentinel != nil && sentinel == target
}

func E(code ErrorCode, op, msg string, cause error) *Error {
	if msg == "" && cause != nil {
		msg = cause.Error()
	}
	return &Error{
		Code:    code,
		Op:      op,
		Message: msg,
		Cause:   cause,
	}
}

func Wrap(code ErrorCode, op string, err error) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		if existing.Op != "" || op == "" {
			return existing
		}
		return &Error{
			Code:    existing.Code,
			Op:      op,
			Message: existing.Message,
			Cause:   existing.Cause,
			Meta:    existing.Meta,
		}
	}
	return E(code, op, "", err)
}

func CodeFrom(err error) (ErrorCode, bool) {
	if err == nil {
		return "", false
	}
	var domainErr *Error
	if errors.As(err, &domainErr) && domainErr.Code != "" {
		return domainErr.Code, true
	}
	switch {
	case errors.Is(err, ErrValidation):
		return CodeInvalidArgument, true
	case errors.Is(err, ErrNotFound):
		return CodeNotFound, true
	case errors.Is(err, ErrNotLoaded):
		return CodeNotLoaded, true
	case errors.Is(err, ErrTransport):
		return CodeUnavailable, true
	case errors.Is(err, ErrUnsupportedFormat):
		return CodeUnsupportedFormat, true
	case errors.Is(err, ErrUnknownTool):
		return CodeUnknownTool, true
	default:
		return "", false
	}
}

// IsTransportCode reports whether the code describes a failure talking to the platform.
// CodeRejected is a request the platform refused; local input checks use CodeInvalidArgument.
func IsTransportCode(code ErrorCode) bool {
	switch code {
	case CodeUnavailable, CodeRejected, CodeUnauthenticated, CodePermissionDenied, CodeDeadlineExceeded, CodeCanceled:
		return true
	default:
		return false
	}
}

func sentinelFor(code ErrorCode) error {
	switch code {
	case CodeInvalidArgument:
		return ErrValidation
	case CodeNotFound:
		return ErrNotFound
	case CodeNotLoaded:
		return ErrNotLoaded
	case CodeUnsupportedFormat:
		return ErrUnsupportedFormat
	case CodeUnknownTool:
		return ErrUnknownTool
	}
	if IsTransportCode(code) {
		return ErrTransport
	}
	return nil
}
