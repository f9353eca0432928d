package message

import (
	"context"
	"encoding/json"
	"errors"

	"i3pm/internal/domain"
)

// Standard JSON-RPC 2.0 error codes.
const (
	// ParseError indicates invalid JSON was received.
	ParseError = -32700

	// InvalidRequest indicates the JSON is not a valid Request object.
	InvalidRequest = -32600

	// MethodNotFound indicates the method does not exist.
	MethodNotFound = -32601

	// InvalidParams indicates invalid method parameters.
	InvalidParams = -32602

	// InternalError indicates an internal JSON-RPC error.
	InternalError = -32603

	// ServerError codes are reserved for implementation-defined server-errors.
	// Range: -32000 to -32099
)

// i3pm-specific error codes (-32001 to -32050).
const (
	// WM errors
	WMUnavailable   = -32001
	WMCommandFailed = -32002
	DaemonDegraded  = -32003

	// Project errors
	ProjectNotFound = -32010
	ProjectExists   = -32011

	// Window errors
	WindowNotFound = -32020

	// State errors
	StateCorrupt = -32030

	// Queue errors
	OperationTimeout = -32040
)

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// NewError creates a new JSON-RPC error.
func NewError(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithData creates a new JSON-RPC error with additional data.
func NewErrorWithData(code int, message string, data interface{}) *Error {
	err := &Error{
		Code:    code,
		Message: message,
	}

	if data != nil {
		if d, e := json.Marshal(data); e == nil {
			err.Data = d
		}
	}

	return err
}

// Standard error constructors.

// ErrParseError creates a parse error.
func ErrParseError(message string) *Error {
	if message == "" {
		message = "Parse error"
	}
	return NewError(ParseError, message)
}

// ErrInvalidRequest creates an invalid request error.
func ErrInvalidRequest(message string) *Error {
	if message == "" {
		message = "Invalid Request"
	}
	return NewError(InvalidRequest, message)
}

// ErrMethodNotFound creates a method not found error.
func ErrMethodNotFound(method string) *Error {
	return NewError(MethodNotFound, "Method not found: "+method)
}

// ErrInvalidParams creates an invalid params error.
func ErrInvalidParams(message string) *Error {
	if message == "" {
		message = "Invalid params"
	}
	return NewError(InvalidParams, message)
}

// ErrInternalError creates an internal error.
func ErrInternalError(message string) *Error {
	if message == "" {
		message = "Internal error"
	}
	return NewError(InternalError, message)
}

// i3pm-specific error constructors.

// ErrWMUnavailable signals that the WM IPC socket cannot be reached.
func ErrWMUnavailable(message string) *Error {
	if message == "" {
		message = "Window manager unavailable"
	}
	return NewError(WMUnavailable, message)
}

// ErrWMCommandFailed signals that the WM rejected a command.
func ErrWMCommandFailed(message string) *Error {
	if message == "" {
		message = "Window manager command failed"
	}
	return NewError(WMCommandFailed, message)
}

// ErrDaemonDegraded signals the daemon lost its event stream and is
// reconnecting; mutating operations are refused until it recovers.
func ErrDaemonDegraded() *Error {
	return NewError(DaemonDegraded, "Daemon is degraded, reconnecting to window manager")
}

// ErrProjectNotFound creates a project not found error.
func ErrProjectNotFound(name string) *Error {
	return NewErrorWithData(ProjectNotFound, "Project not found", map[string]string{
		"project": name,
	})
}

// ErrProjectExists creates a project already exists error.
func ErrProjectExists(name string) *Error {
	return NewErrorWithData(ProjectExists, "Project already exists", map[string]string{
		"project": name,
	})
}

// ErrWindowNotFound creates a window not found error.
func ErrWindowNotFound(windowID int64) *Error {
	return NewErrorWithData(WindowNotFound, "Window not found", map[string]int64{
		"window_id": windowID,
	})
}

// ErrStateCorrupt creates a state corrupt error.
func ErrStateCorrupt(message string) *Error {
	if message == "" {
		message = "Persisted state is corrupt"
	}
	return NewError(StateCorrupt, message)
}

// ErrOperationTimeout creates an operation timeout error.
func ErrOperationTimeout(op string) *Error {
	return NewErrorWithData(OperationTimeout, "Operation timed out", map[string]string{
		"operation": op,
	})
}

// FromError maps a Go error onto the wire taxonomy. Sentinels from
// internal/domain carry their own codes; everything else is an internal
// error with the message preserved.
func FromError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	switch {
	case errors.Is(err, domain.ErrWMUnavailable):
		return ErrWMUnavailable(err.Error())
	case errors.Is(err, domain.ErrDaemonDegraded):
		return ErrDaemonDegraded()
	case errors.Is(err, domain.ErrProjectNotFound):
		return NewError(ProjectNotFound, err.Error())
	case errors.Is(err, domain.ErrProjectExists):
		return NewError(ProjectExists, err.Error())
	case errors.Is(err, domain.ErrInvalidProjectName):
		return ErrInvalidParams(err.Error())
	case errors.Is(err, domain.ErrWindowNotFound):
		return NewError(WindowNotFound, err.Error())
	case errors.Is(err, domain.ErrStateCorrupt):
		return ErrStateCorrupt(err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(OperationTimeout, err.Error())
	default:
		return ErrInternalError(err.Error())
	}
}

// ErrorCodeName returns a human-readable name for an error code.
func ErrorCodeName(code int) string {
	switch code {
	case ParseError:
		return "ParseError"
	case InvalidRequest:
		return "InvalidRequest"
	case MethodNotFound:
		return "MethodNotFound"
	case InvalidParams:
		return "InvalidParams"
	case InternalError:
		return "InternalError"
	case WMUnavailable:
		return "WMUnavailable"
	case WMCommandFailed:
		return "WMCommandFailed"
	case DaemonDegraded:
		return "DaemonDegraded"
	case ProjectNotFound:
		return "ProjectNotFound"
	case ProjectExists:
		return "ProjectExists"
	case WindowNotFound:
		return "WindowNotFound"
	case StateCorrupt:
		return "StateCorrupt"
	case OperationTimeout:
		return "OperationTimeout"
	default:
		return "UnknownError"
	}
}
