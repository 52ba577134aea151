package errors

import (
	"fmt"
	"time"
)

/**
 * Error types for the MRZ scan worker.
 *
 * A dropped frame is not an error and has no code here. Every other
 * outcome that leaves the scanner as an error is a *ProcessingError.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Recognition outcomes
	ErrorRecognitionFailed  ErrorCode = "RECOGNITION_FAILED"
	ErrorRecognitionTimeout ErrorCode = "RECOGNITION_TIMEOUT"
	ErrorNoMatch            ErrorCode = "NO_MATCH"
	ErrorScannerStopped     ErrorCode = "SCANNER_STOPPED"

	// Sink errors
	ErrorStorageFailed ErrorCode = "STORAGE_FAILED"
	ErrorPublishFailed ErrorCode = "PUBLISH_FAILED"
)

// ProcessingError represents a structured processing error
type ProcessingError struct {
	Code      ErrorCode
	Message   string
	FrameID   string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// Is matches any *ProcessingError with the same code, so callers can write
// errors.Is(err, &ProcessingError{Code: ErrorRecognitionTimeout}).
func (e *ProcessingError) Is(target error) bool {
	t, ok := target.(*ProcessingError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Factory functions for common errors

func NewRecognitionError(frameID string, engine string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorRecognitionFailed,
		Message:   fmt.Sprintf("text recognition failed (engine: %s)", engine),
		FrameID:   frameID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"ocr_engine": engine,
		},
		Cause: cause,
	}
}

func NewRecognitionTimeoutError(frameID string, timeout time.Duration, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorRecognitionTimeout,
		Message:   fmt.Sprintf("text recognition timed out after %v", timeout),
		FrameID:   frameID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": timeout.String(),
		},
		Cause: cause,
	}
}

func NewNoMatchError(frameID string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorNoMatch,
		Message:   "no MRZ format matched the recognized text",
		FrameID:   frameID,
		Timestamp: time.Now(),
	}
}

func NewScannerStoppedError(frameID string) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorScannerStopped,
		Message:   "scanner has been stopped",
		FrameID:   frameID,
		Timestamp: time.Now(),
	}
}

func NewStorageFailedError(frameID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorStorageFailed,
		Message:   "failed to store scan outcome",
		FrameID:   frameID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewPublishFailedError(frameID string, target string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorPublishFailed,
		Message:   fmt.Sprintf("failed to publish scan outcome to %s", target),
		FrameID:   frameID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"target": target,
		},
		Cause: cause,
	}
}

// ToMap converts error to map for database storage
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.FrameID != "" {
		result["frame_id"] = e.FrameID
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
