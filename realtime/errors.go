package realtime

import (
	"errors"
	"fmt"
)

// Error codes carried by ErrorInfo. Errors reported by the backend keep the
// backend's code.
const (
	ErrorCodeUnroutable       = 0
	ErrorCodeInvalidOperation = 40000
	ErrorCodeConnectionFailed = 80000
	ErrorCodeRetriesExhausted = 80002
	ErrorCodeDisconnected     = 80003
)

var (
	// ErrSocketNotOpen is returned by Socket.Send before the socket opened or
	// after it closed.
	ErrSocketNotOpen = errors.New("realtime: socket is not open")
	// ErrTransportClosed is returned by operations on a closed or failed
	// transport.
	ErrTransportClosed = errors.New("realtime: transport is closed")
	// ErrInvalidChannel is returned for an empty channel name.
	ErrInvalidChannel = errors.New("realtime: channel name must not be empty")
	// ErrNilListener is returned when a nil listener is registered.
	ErrNilListener = errors.New("realtime: listener must not be nil")
)

// ErrorInfo is the {code, message} pair carried by error events.
type ErrorInfo struct {
	Code    int
	Message string
}

func (info *ErrorInfo) Error() string {
	if info == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s (code %d): %s", codeName(info.Code), info.Code, info.Message)
}

func codeName(code int) string {
	switch code {
	case ErrorCodeUnroutable:
		return "UnroutableError"
	case ErrorCodeConnectionFailed:
		return "ConnectionError"
	case ErrorCodeDisconnected:
		return "DisconnectedError"
	case ErrorCodeRetriesExhausted:
		return "RetriesExhaustedError"
	case ErrorCodeInvalidOperation:
		return "InvalidOperationError"
	default:
		return "ProtocolError"
	}
}

// NewError returns an ErrorInfo for code. The first message argument, if any,
// becomes the message text.
func NewError(code int, message ...interface{}) *ErrorInfo {
	info := &ErrorInfo{Code: code}
	if len(message) > 0 {
		info.Message = fmt.Sprint(message[0])
	}
	return info
}

// AsErrorInfo extracts an ErrorInfo from err.
func AsErrorInfo(err error) (*ErrorInfo, bool) {
	var info *ErrorInfo
	if errors.As(err, &info) {
		return info, true
	}
	return nil, false
}
