package activation

import (
	"errors"
	"fmt"
)

// ErrNotRunning is returned by operations that need a running session.
var ErrNotRunning = errors.New("activation: session not running")

// PermissionError means a required device could not be opened. Fatal to Start.
type PermissionError struct {
	Device string // "camera" or "microphone"
	Err    error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("activation: %s unavailable: %v", e.Device, e.Err)
}

func (e *PermissionError) Unwrap() error { return e.Err }

// UnsupportedError means speech recognition is missing on the host. Fatal to Start.
type UnsupportedError struct {
	Capability string
	Err        error
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("activation: %s not supported: %v", e.Capability, e.Err)
}

func (e *UnsupportedError) Unwrap() error { return e.Err }

// RecognitionError is a transient stream failure. It triggers the restart
// policy, never session termination.
type RecognitionError struct {
	Err error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("activation: recognition: %v", e.Err)
}

func (e *RecognitionError) Unwrap() error { return e.Err }

// CaptureError is a per-cycle frame capture failure.
type CaptureError struct {
	Err error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("activation: capture: %v", e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// DetectionError is a per-cycle detector failure.
type DetectionError struct {
	Err error
}

func (e *DetectionError) Error() string {
	return fmt.Sprintf("activation: detection: %v", e.Err)
}

func (e *DetectionError) Unwrap() error { return e.Err }
