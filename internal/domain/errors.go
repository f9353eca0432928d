// Package domain contains domain errors used throughout the daemon.
package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	ErrWMUnavailable      = errors.New("window manager IPC is unavailable")
	ErrProjectNotFound    = errors.New("project not found")
	ErrProjectExists      = errors.New("project already exists")
	ErrWindowNotFound     = errors.New("window not found")
	ErrStateCorrupt       = errors.New("persisted state file is corrupt")
	ErrDaemonDegraded     = errors.New("daemon is degraded: window manager unreachable")
	ErrHubNotRunning      = errors.New("event hub is not running")
	ErrSubscriberClosed   = errors.New("subscriber is closed")
	ErrQueueClosed        = errors.New("mutation queue is closed")
	ErrEnvNotFound        = errors.New("process environment not readable")
	ErrInvalidProjectName = errors.New("invalid project name")
)

// WMError represents a failure of a window manager IPC operation.
type WMError struct {
	Op  string // Operation that failed (get_tree, run_command, subscribe)
	Err error  // Underlying error
}

func (e *WMError) Error() string {
	return fmt.Sprintf("wm %s: %v", e.Op, e.Err)
}

func (e *WMError) Unwrap() error {
	return e.Err
}

// NewWMError creates a new WMError wrapping ErrWMUnavailable for transport
// failures so callers can classify with errors.Is.
func NewWMError(op string, err error) *WMError {
	return &WMError{Op: op, Err: err}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
