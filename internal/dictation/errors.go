package dictation

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyRunning = errors.New("dictation already running")
	ErrNotRunning     = errors.New("dictation not running")
)

// EngineInitError means the recognition engine could not be loaded.
type EngineInitError struct {
	Err error
}

func (e *EngineInitError) Error() string {
	return fmt.Sprintf("failed to load recognition engine: %v", e.Err)
}

func (e *EngineInitError) Unwrap() error { return e.Err }

// DeviceError means the capture device could not be opened.
type DeviceError struct {
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("failed to open audio input: %v", e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// SetupError covers the remaining start failures: converter, segmenter and
// session recording.
type SetupError struct {
	Stage string
	Err   error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("failed to set up %s: %v", e.Stage, e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }
