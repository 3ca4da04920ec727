// Package fielderr defines the error taxonomy shared by the field session,
// attendance and report controllers. Callers match with errors.Is/errors.As.
package fielderr

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the failure classes a caller must branch on.
var (
	ErrPermissionDenied    = errors.New("permission denied")
	ErrLocationUnavailable = errors.New("location unavailable")
	ErrNetworkTimeout      = errors.New("network timeout")
	ErrServerRejected      = errors.New("server rejected request")
	ErrInvalidState        = errors.New("invalid state")
	ErrAttendanceRequired  = errors.New("attendance required")
	ErrAlreadyMarked       = errors.New("attendance already marked today")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrNotFound            = errors.New("not found")
)

// RejectedError is a non-2xx response from the backend.
// It matches ErrServerRejected, plus ErrNotFound/ErrUnauthorized for 404/401.
type RejectedError struct {
	StatusCode int
	Message    string
}

func (e *RejectedError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (HTTP %d): %s", ErrServerRejected, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s (HTTP %d)", ErrServerRejected, e.StatusCode)
}

// Is lets errors.Is match the sentinel for the status class.
func (e *RejectedError) Is(target error) bool {
	switch target {
	case ErrServerRejected:
		return true
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	}
	return false
}

// Rejected builds a *RejectedError.
func Rejected(status int, msg string) error {
	return &RejectedError{StatusCode: status, Message: msg}
}

// StateError reports an operation attempted from the wrong lifecycle state.
type StateError struct {
	Op    string
	State string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %s not allowed while %s", ErrInvalidState, e.Op, e.State)
}

func (e *StateError) Unwrap() error { return ErrInvalidState }

// Message returns a short user-facing message for err.
func Message(err error) string {
	var rej *RejectedError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "Location or camera permission is required."
	case errors.Is(err, ErrLocationUnavailable):
		return "Could not get a GPS fix. Move to open sky and try again."
	case errors.Is(err, ErrNetworkTimeout):
		return "The server did not respond in time. Try again."
	case errors.Is(err, ErrAttendanceRequired):
		return "Mark attendance before submitting the daily report."
	case errors.Is(err, ErrAlreadyMarked):
		return "Attendance is already marked for today."
	case errors.As(err, &rej) && rej.Message != "":
		return rej.Message
	}
	return err.Error()
}
