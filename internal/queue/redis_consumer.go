/**
 * Redis Frame Consumer for the MRZ Worker
 *
 * Camera clients LPUSH JSON frames onto a Redis list. The consumer pops them
 * in arrival order and offers each one to the scanner. Frames that arrive
 * while a recognition is in flight are dropped by the scanner; the consumer
 * never waits for it.
 */

package queue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/mrz-worker/internal/logging"
	"github.com/adverant/nexus/mrz-worker/internal/processor"
)

// FrameMessage is a camera frame as pushed by clients
type FrameMessage struct {
	ID         string    `json:"id,omitempty"`
	SessionID  string    `json:"sessionId,omitempty"`
	Index      int64     `json:"index"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Rotation   int       `json:"rotation"`
	CapturedAt time.Time `json:"capturedAt,omitempty"`
	Image      []byte    `json:"-"` // set by custom UnmarshalJSON
}

// UnmarshalJSON accepts the image either as a base64 string or as a Node.js
// Buffer object ({"type":"Buffer","data":[...]}).
func (m *FrameMessage) UnmarshalJSON(data []byte) error {
	type Alias FrameMessage
	aux := &struct {
		Image interface{} `json:"image"`
		*Alias
	}{
		Alias: (*Alias)(m),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("failed to unmarshal FrameMessage: %w", err)
	}

	switch v := aux.Image.(type) {
	case nil:
		return fmt.Errorf("frame has no image")

	case string:
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return fmt.Errorf("failed to decode base64 image: %w", err)
		}
		m.Image = decoded

	case map[string]interface{}:
		if bufferType, ok := v["type"].(string); !ok || bufferType != "Buffer" {
			return fmt.Errorf("invalid Buffer object format (missing or incorrect 'type' field)")
		}
		dataArray, ok := v["data"].([]interface{})
		if !ok {
			return fmt.Errorf("Buffer object missing 'data' array")
		}
		m.Image = make([]byte, len(dataArray))
		for i, val := range dataArray {
			byteVal, ok := val.(float64)
			if !ok || byteVal < 0 || byteVal > 255 {
				return fmt.Errorf("invalid byte value in Buffer data array at index %d", i)
			}
			m.Image[i] = byte(byteVal)
		}

	default:
		return fmt.Errorf("image must be either base64 string or Buffer object, got %T", v)
	}

	if len(m.Image) == 0 {
		return fmt.Errorf("frame has an empty image")
	}
	return nil
}

// ToFrame converts the message into a scanner frame. A missing ID is
// generated.
func (m *FrameMessage) ToFrame() *processor.Frame {
	id := m.ID
	if id == "" {
		id = uuid.New().String()
	}
	capturedAt := m.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}
	return &processor.Frame{
		ID:         id,
		SessionID:  m.SessionID,
		Index:      m.Index,
		Data:       m.Image,
		Width:      m.Width,
		Height:     m.Height,
		Rotation:   m.Rotation,
		CapturedAt: capturedAt,
	}
}

// FrameSink accepts frames without blocking. *scanner.Scanner implements it.
type FrameSink interface {
	Offer(frame *processor.Frame) bool
}

// RedisConsumer pops frames from a Redis list and offers them to a sink
type RedisConsumer struct {
	client *redis.Client
	sink   FrameSink
	config *RedisConsumerConfig
	logger *logging.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// RedisConsumerConfig holds consumer configuration
type RedisConsumerConfig struct {
	Client    *redis.Client
	QueueName string
	Sink      FrameSink
	// PopTimeout bounds each BRPOP so Stop is noticed promptly
	PopTimeout time.Duration
	Logger     *logging.Logger
}

// NewRedisConsumer creates a new Redis-based frame consumer. The client is
// shared and is not closed by the consumer.
func NewRedisConsumer(cfg *RedisConsumerConfig) (*RedisConsumer, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("Redis client is required")
	}
	if cfg.Sink == nil {
		return nil, fmt.Errorf("Sink is required")
	}
	if cfg.QueueName == "" {
		cfg.QueueName = "mrz:frames"
	}
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewLogger("RedisConsumer")
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &RedisConsumer{
		client: cfg.Client,
		sink:   cfg.Sink,
		config: cfg,
		logger: cfg.Logger,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start launches the single consumer goroutine. Frames are consumed
// serially so the scanner sees them in arrival order.
func (c *RedisConsumer) Start() error {
	c.logger.Info("Starting frame consumer", "queue", c.config.QueueName)
	c.wg.Add(1)
	go c.run()
	return nil
}

// Stop stops consuming and waits for the loop to exit
func (c *RedisConsumer) Stop() error {
	c.logger.Info("Stopping frame consumer")
	c.cancel()
	c.wg.Wait()
	return nil
}

func (c *RedisConsumer) run() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		if _, err := c.consumeNext(c.ctx); err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.logger.Warn("Frame consumer error", "error", err)
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}
}

// consumeNext pops one frame and offers it. It returns whether the frame was
// admitted. An empty queue is not an error.
func (c *RedisConsumer) consumeNext(ctx context.Context) (bool, error) {
	result, err := c.client.BRPop(ctx, c.config.PopTimeout, c.config.QueueName).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("failed to pop frame: %w", err)
	}
	if len(result) < 2 {
		return false, fmt.Errorf("invalid BRPOP result")
	}

	var msg FrameMessage
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		// malformed frames are discarded, the feed moves on
		c.logger.Warn("Discarding malformed frame", "error", err)
		return false, nil
	}

	frame := msg.ToFrame()
	admitted := c.sink.Offer(frame)
	if admitted {
		c.logger.Debug("Frame admitted", "frame", frame.ID, "session", frame.SessionID, "index", frame.Index)
	}
	return admitted, nil
}

// QueueLength reports how many frames are waiting
func (c *RedisConsumer) QueueLength(ctx context.Context) (int64, error) {
	return c.client.LLen(ctx, c.config.QueueName).Result()
}
