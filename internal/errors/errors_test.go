package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessingErrorWrapsCause(t *testing.T) {
	cause := stderrors.New("backend unavailable")
	err := NewRecognitionError("frame-1", "tesseract", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "RECOGNITION_FAILED")
	assert.Contains(t, err.Error(), "backend unavailable")
}

func TestProcessingErrorIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("scan: %w", NewRecognitionTimeoutError("frame-2", 3*time.Second, nil))

	assert.ErrorIs(t, err, &ProcessingError{Code: ErrorRecognitionTimeout})
	assert.NotErrorIs(t, err, &ProcessingError{Code: ErrorRecognitionFailed})

	var pe *ProcessingError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "frame-2", pe.FrameID)
	assert.Equal(t, "3s", pe.Details["timeout_duration"])
}

func TestToMap(t *testing.T) {
	err := NewStorageFailedError("frame-3", stderrors.New("connection reset"))
	m := err.ToMap()

	assert.Equal(t, "STORAGE_FAILED", m["error_code"])
	assert.Equal(t, "frame-3", m["frame_id"])
	assert.Equal(t, "connection reset", m["cause"])
	assert.NotContains(t, NewNoMatchError("").ToMap(), "frame_id")
}
