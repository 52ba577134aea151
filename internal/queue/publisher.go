package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/mrz-worker/internal/logging"
)

// Publisher enqueues matched records for downstream processing
type Publisher struct {
	client    *asynq.Client
	queueName string
	logger    *logging.Logger
}

// PublisherConfig holds publisher configuration
type PublisherConfig struct {
	RedisURL  string
	QueueName string
	Logger    *logging.Logger
}

// NewPublisher creates an asynq-backed publisher
func NewPublisher(cfg *PublisherConfig) (*Publisher, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}
	if cfg.QueueName == "" {
		cfg.QueueName = "mrz"
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewLogger("Publisher")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	return &Publisher{
		client:    asynq.NewClient(redisOpt),
		queueName: cfg.QueueName,
		logger:    cfg.Logger,
	}, nil
}

// PublishDocument enqueues a TaskDocument. Re-publishing the same frame is
// treated as success.
func (p *Publisher) PublishDocument(ctx context.Context, doc *DocumentTask) error {
	task, err := NewDocumentTask(doc, p.queueName)
	if err != nil {
		return err
	}

	info, err := p.client.EnqueueContext(ctx, task)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			p.logger.Debug("Document already enqueued", "frame", doc.FrameID)
			return nil
		}
		return fmt.Errorf("failed to enqueue document task: %w", err)
	}

	p.logger.Debug("Document enqueued", "frame", doc.FrameID, "task", info.ID, "queue", info.Queue)
	return nil
}

// Close closes the underlying asynq client
func (p *Publisher) Close() error {
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("failed to close client: %w", err)
	}
	return nil
}
