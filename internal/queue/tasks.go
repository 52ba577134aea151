package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/mrz-worker/internal/mrz"
	"github.com/adverant/nexus/mrz-worker/internal/processor"
)

// Task types
const (
	// TaskScanImage asks the worker to read the MRZ of one still image
	TaskScanImage = "mrz:scan-image"
	// TaskDocument hands a matched record to downstream consumers
	TaskDocument = "mrz:document"
)

// ImageJob is the payload of a TaskScanImage task
type ImageJob struct {
	JobID     string `json:"jobId"`
	SessionID string `json:"sessionId,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	Rotation  int    `json:"rotation,omitempty"`
	Image     []byte `json:"image"` // base64 in JSON
}

// ToFrame converts the job into a recognizer frame
func (j *ImageJob) ToFrame() *processor.Frame {
	id := j.JobID
	if id == "" {
		id = uuid.New().String()
	}
	return &processor.Frame{
		ID:         id,
		SessionID:  j.SessionID,
		Data:       j.Image,
		Width:      j.Width,
		Height:     j.Height,
		Rotation:   j.Rotation,
		CapturedAt: time.Now(),
	}
}

// NewScanImageTask builds a TaskScanImage task
func NewScanImageTask(job *ImageJob) (*asynq.Task, error) {
	if len(job.Image) == 0 {
		return nil, fmt.Errorf("image is required")
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal image job: %w", err)
	}
	return asynq.NewTask(TaskScanImage, payload), nil
}

// DocumentTask is the payload of a TaskDocument task
type DocumentTask struct {
	FrameID   string     `json:"frameId"`
	SessionID string     `json:"sessionId,omitempty"`
	Record    mrz.Record `json:"record"`
	ElapsedMs int64      `json:"elapsedMs"`
	ScannedAt time.Time  `json:"scannedAt"`
}

// NewDocumentTask builds a TaskDocument task. The frame ID doubles as the
// asynq task ID so a record is handed off at most once per frame.
func NewDocumentTask(doc *DocumentTask, queueName string) (*asynq.Task, error) {
	if doc.FrameID == "" {
		return nil, fmt.Errorf("frame ID is required")
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document task: %w", err)
	}
	return asynq.NewTask(TaskDocument, payload,
		asynq.Queue(queueName),
		asynq.TaskID(doc.FrameID),
		asynq.MaxRetry(5),
		asynq.Retention(24*time.Hour),
	), nil
}
