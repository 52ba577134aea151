/**
 * Still-image Consumer for the MRZ Worker
 *
 * Consumes TaskScanImage jobs with asynq and reads the MRZ of each image
 * synchronously, outside the live-feed gate. The consumer owns its own
 * recognizer, separate from the live scanner's, and closes it on Stop.
 * Outcomes go to the same listener the live scanner reports to.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/mrz-worker/internal/errors"
	"github.com/adverant/nexus/mrz-worker/internal/logging"
	"github.com/adverant/nexus/mrz-worker/internal/processor"
	"github.com/adverant/nexus/mrz-worker/internal/scanner"
)

// Lifecycle is the view of the live scanner the consumer needs.
// *scanner.Scanner implements it.
type Lifecycle interface {
	Stopped() bool
	Uses(r processor.Recognizer) bool
}

// ImageConsumer handles still-image jobs from an asynq queue
type ImageConsumer struct {
	server     *asynq.Server
	mux        *asynq.ServeMux
	recognizer processor.Recognizer
	listener   scanner.Listener
	config     *ImageConsumerConfig
	logger     *logging.Logger
}

// ImageConsumerConfig holds consumer configuration
type ImageConsumerConfig struct {
	RedisURL    string
	QueueName   string
	Concurrency int
	// Recognizer is owned by the consumer. It must not be the live
	// scanner's recognizer.
	Recognizer processor.Recognizer
	Listener   scanner.Listener
	// Lifecycle, when set, is the live scanner of the same worker. Jobs
	// arriving after it stopped fail with SCANNER_STOPPED and are retried
	// by asynq on another worker.
	Lifecycle Lifecycle
	// ProcessingTimeout bounds one image. Zero leaves it to asynq's default.
	ProcessingTimeout time.Duration
	Logger            *logging.Logger
}

// NewImageConsumer creates a new still-image consumer
func NewImageConsumer(cfg *ImageConsumerConfig) (*ImageConsumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}
	if cfg.Recognizer == nil {
		return nil, fmt.Errorf("Recognizer is required")
	}
	if cfg.Listener == nil {
		return nil, fmt.Errorf("Listener is required")
	}
	if cfg.Lifecycle != nil && cfg.Lifecycle.Uses(cfg.Recognizer) {
		return nil, fmt.Errorf("Recognizer is owned by the live scanner: still images need their own")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewLogger("ImageConsumer")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := cfg.Logger
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
			},
			// Exponential backoff: 5s, 10s, 20s, capped at a minute
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task processing error", "type", task.Type(), "error", err)
			}),
			Logger: &asynqLogger{logger: logger},
		},
	)

	c := &ImageConsumer{
		server:     server,
		mux:        asynq.NewServeMux(),
		recognizer: cfg.Recognizer,
		listener:   cfg.Listener,
		config:     cfg,
		logger:     logger,
	}
	c.mux.HandleFunc(TaskScanImage, c.handleScanImage)

	return c, nil
}

// Start starts processing tasks in the background
func (c *ImageConsumer) Start() error {
	c.logger.Info("Starting image consumer", "concurrency", c.config.Concurrency, "queue", c.config.QueueName)
	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("failed to start image consumer: %w", err)
	}
	return nil
}

// Stop waits for active tasks, shuts the server down and closes the
// recognizer
func (c *ImageConsumer) Stop() error {
	c.logger.Info("Stopping image consumer")
	c.server.Shutdown()
	if err := c.recognizer.Close(); err != nil {
		return fmt.Errorf("failed to close image recognizer: %w", err)
	}
	return nil
}

// handleScanImage processes one TaskScanImage task
func (c *ImageConsumer) handleScanImage(ctx context.Context, task *asynq.Task) error {
	var job ImageJob
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		return fmt.Errorf("failed to unmarshal image job: %v: %w", err, asynq.SkipRetry)
	}
	if len(job.Image) == 0 {
		return fmt.Errorf("image job %s has no image: %w", job.JobID, asynq.SkipRetry)
	}

	frame := job.ToFrame()
	if c.config.Lifecycle != nil && c.config.Lifecycle.Stopped() {
		return errors.NewScannerStoppedError(frame.ID)
	}

	if c.config.ProcessingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.ProcessingTimeout)
		defer cancel()
	}

	start := time.Now()
	record, match, err := scanner.ScanImage(ctx, c.recognizer, frame)
	elapsed := time.Since(start)

	if err != nil {
		c.listener.OnError(frame, err, elapsed)
		return err
	}
	if !match.Matched() {
		c.logger.Info("No MRZ in image", "job", frame.ID, "elapsed", elapsed)
		c.listener.OnNoMatch(frame, elapsed)
		return nil
	}

	c.logger.Info("MRZ read from image", "job", frame.ID, "format", match.Format, "elapsed", elapsed)
	c.listener.OnMatch(frame, record, elapsed)
	return nil
}

// asynqLogger routes asynq's internal logging through our logger
type asynqLogger struct {
	logger *logging.Logger
}

func (l *asynqLogger) Debug(args ...interface{}) { l.logger.Debug(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...interface{})  { l.logger.Info(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...interface{})  { l.logger.Warn(fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...interface{}) { l.logger.Error(fmt.Sprint(args...)) }
func (l *asynqLogger) Fatal(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
	os.Exit(1)
}
