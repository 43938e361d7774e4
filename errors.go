package h2

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorCode is an HTTP/2 error code as defined in RFC 7540 Section 7.
type ErrorCode uint32

const (
	ErrCodeNoError            ErrorCode = 0x0
	ErrCodeProtocolError      ErrorCode = 0x1
	ErrCodeInternalError      ErrorCode = 0x2
	ErrCodeFlowControlError   ErrorCode = 0x3
	ErrCodeSettingsTimeout    ErrorCode = 0x4
	ErrCodeStreamClosed       ErrorCode = 0x5
	ErrCodeFrameSizeError     ErrorCode = 0x6
	ErrCodeRefusedStream      ErrorCode = 0x7
	ErrCodeCancel             ErrorCode = 0x8
	ErrCodeCompressionError   ErrorCode = 0x9
	ErrCodeConnectError       ErrorCode = 0xa
	ErrCodeEnhanceYourCalm    ErrorCode = 0xb
	ErrCodeInadequateSecurity ErrorCode = 0xc
	ErrCodeHTTP11Required     ErrorCode = 0xd
)

var errCodeNames = [...]string{
	ErrCodeNoError:            "NO_ERROR",
	ErrCodeProtocolError:      "PROTOCOL_ERROR",
	ErrCodeInternalError:      "INTERNAL_ERROR",
	ErrCodeFlowControlError:   "FLOW_CONTROL_ERROR",
	ErrCodeSettingsTimeout:    "SETTINGS_TIMEOUT",
	ErrCodeStreamClosed:       "STREAM_CLOSED",
	ErrCodeFrameSizeError:     "FRAME_SIZE_ERROR",
	ErrCodeRefusedStream:      "REFUSED_STREAM",
	ErrCodeCancel:             "CANCEL",
	ErrCodeCompressionError:   "COMPRESSION_ERROR",
	ErrCodeConnectError:       "CONNECT_ERROR",
	ErrCodeEnhanceYourCalm:    "ENHANCE_YOUR_CALM",
	ErrCodeInadequateSecurity: "INADEQUATE_SECURITY",
	ErrCodeHTTP11Required:     "HTTP_1_1_REQUIRED",
}

func (c ErrorCode) String() string {
	if int(c) < len(errCodeNames) && errCodeNames[c] != "" {
		return errCodeNames[c]
	}
	return fmt.Sprintf("UNKNOWN_ERROR_CODE(%#x)", uint32(c))
}

// ConnectionError is a connection-scoped protocol violation. Raising one
// from any state-machine step drives the engine to emit GOAWAY and close.
type ConnectionError struct {
	Code  ErrorCode
	Debug string
	cause error
}

func NewConnectionError(code ErrorCode, format string, args ...interface{}) *ConnectionError {
	return &ConnectionError{Code: code, Debug: fmt.Sprintf(format, args...)}
}

func (e *ConnectionError) Error() string {
	if e.Debug == "" {
		return fmt.Sprintf("http2: connection error: %s", e.Code)
	}
	return fmt.Sprintf("http2: connection error: %s: %s", e.Code, e.Debug)
}

func (e *ConnectionError) Unwrap() error { return e.cause }

// StreamError is scoped to a single stream and resolves with RST_STREAM
// rather than tearing down the connection.
type StreamError struct {
	StreamID uint32
	Code     ErrorCode
	Debug    string
}

func NewStreamError(streamID uint32, code ErrorCode, format string, args ...interface{}) *StreamError {
	return &StreamError{StreamID: streamID, Code: code, Debug: fmt.Sprintf(format, args...)}
}

func (e *StreamError) Error() string {
	if e.Debug == "" {
		return fmt.Sprintf("http2: stream %d error: %s", e.StreamID, e.Code)
	}
	return fmt.Sprintf("http2: stream %d error: %s: %s", e.StreamID, e.Code, e.Debug)
}

// InternalError wraps a panic or invariant violation raised by application
// code (typically the request handler). It carries a stack trace captured
// at the point of failure so error_handler callbacks can report it usefully.
type InternalError struct {
	cause error
}

// WrapInternal captures err with a stack trace, per RFC 7540 Section 7's
// INTERNAL_ERROR classification for handler-raised failures.
func WrapInternal(err error) *InternalError {
	if err == nil {
		return nil
	}
	return &InternalError{cause: errors.WithStack(err)}
}

func (e *InternalError) Error() string { return e.cause.Error() }
func (e *InternalError) Unwrap() error { return e.cause }

// StackTrace exposes the pkg/errors stack for logging/diagnostics.
func (e *InternalError) StackTrace() errors.StackTrace {
	type stackTracer interface{ StackTrace() errors.StackTrace }
	if st, ok := e.cause.(stackTracer); ok {
		return st.StackTrace()
	}
	return nil
}

// ClosedStreamError is returned by a body handle once its stream has
// closed, per spec.md Section 5's capability-narrowing rule.
type ClosedStreamError struct {
	StreamID uint32
}

func (e *ClosedStreamError) Error() string {
	return fmt.Sprintf("http2: stream %d is closed", e.StreamID)
}
