/**
 * Outcome fan-out
 *
 * Listener implements scanner.Listener for the worker. Every outcome is
 * persisted and published as an event; matches are also handed to the
 * downstream task queue and their frame is archived as evidence. Sinks run
 * concurrently with their own deadline and a failing sink never stops the
 * others.
 */

package pipeline

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/adverant/nexus/mrz-worker/internal/clients"
	"github.com/adverant/nexus/mrz-worker/internal/errors"
	"github.com/adverant/nexus/mrz-worker/internal/logging"
	"github.com/adverant/nexus/mrz-worker/internal/mrz"
	"github.com/adverant/nexus/mrz-worker/internal/processor"
	"github.com/adverant/nexus/mrz-worker/internal/queue"
	"github.com/adverant/nexus/mrz-worker/internal/storage"
)

// OutcomeStore persists outcomes. *storage.PostgresClient implements it.
type OutcomeStore interface {
	SaveOutcome(ctx context.Context, outcome *storage.ScanOutcome) (string, error)
}

// EventSink publishes outcome events. *queue.EventPublisher implements it.
type EventSink interface {
	Publish(ctx context.Context, event *queue.Event) error
}

// DocumentSink hands matched records downstream. *queue.Publisher implements it.
type DocumentSink interface {
	PublishDocument(ctx context.Context, doc *queue.DocumentTask) error
}

// EvidenceSink archives matched frames. *clients.ArtifactClient implements it.
type EvidenceSink interface {
	UploadArtifact(ctx context.Context, req *clients.ArtifactUploadRequest) (*clients.ArtifactUploadResponse, error)
}

// ListenerConfig holds listener configuration. Every sink is optional.
type ListenerConfig struct {
	Store     OutcomeStore
	Events    EventSink
	Documents DocumentSink
	Evidence  EvidenceSink
	// EvidenceTTLDays is passed to the artifact API; 0 keeps its default
	EvidenceTTLDays int
	SinkTimeout     time.Duration
	Logger          *logging.Logger
}

// LastMatch is the most recent match seen by the listener
type LastMatch struct {
	FrameID   string        `json:"frameId"`
	SessionID string        `json:"sessionId,omitempty"`
	Record    mrz.Record    `json:"record"`
	Elapsed   time.Duration `json:"elapsedNs"`
	At        time.Time     `json:"at"`
}

// Listener fans scanner outcomes out to the configured sinks
type Listener struct {
	store     OutcomeStore
	events    EventSink
	documents DocumentSink
	evidence  EvidenceSink
	ttlDays   int
	timeout   time.Duration
	logger    *logging.Logger

	mu   sync.RWMutex
	last *LastMatch
}

// NewListener creates a fan-out listener
func NewListener(cfg *ListenerConfig) *Listener {
	timeout := cfg.SinkTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("Pipeline")
	}
	return &Listener{
		store:     cfg.Store,
		events:    cfg.Events,
		documents: cfg.Documents,
		evidence:  cfg.Evidence,
		ttlDays:   cfg.EvidenceTTLDays,
		timeout:   timeout,
		logger:    logger,
	}
}

// OnMatch persists, publishes, archives and hands off a matched record
func (l *Listener) OnMatch(frame *processor.Frame, record mrz.Record, elapsed time.Duration) {
	l.mu.Lock()
	l.last = &LastMatch{
		FrameID:   frame.ID,
		SessionID: frame.SessionID,
		Record:    record,
		Elapsed:   elapsed,
		At:        time.Now(),
	}
	l.mu.Unlock()

	outcome := newOutcome(frame, storage.OutcomeMatch, elapsed)
	outcome.Format = record.Format.String()
	outcome.Record = &record

	event := queue.NewEvent(queue.EventMatch, frame.ID, frame.SessionID, elapsed)
	event.Record = &record

	doc := &queue.DocumentTask{
		FrameID:   frame.ID,
		SessionID: frame.SessionID,
		Record:    record,
		ElapsedMs: elapsed.Milliseconds(),
		ScannedAt: time.Now().UTC(),
	}

	var evidence *clients.ArtifactUploadRequest
	if len(frame.Data) > 0 {
		evidence = &clients.ArtifactUploadRequest{
			FileBuffer: frame.Data,
			Filename:   frame.ID + ".jpg",
			SourceID:   frame.ID,
			TTLDays:    l.ttlDays,
			Metadata: map[string]interface{}{
				"sessionId":     frame.SessionID,
				"frameIndex":    frame.Index,
				"format":        record.Format.String(),
				"derivedFields": record.DerivedFields(),
			},
		}
	}

	l.fanOut(frame.ID, outcome, event, doc, evidence)
}

// OnNoMatch persists and publishes a no-match outcome
func (l *Listener) OnNoMatch(frame *processor.Frame, elapsed time.Duration) {
	noMatch := errors.NewNoMatchError(frame.ID)
	outcome := newOutcome(frame, storage.OutcomeNoMatch, elapsed)
	outcome.ErrorCode = string(noMatch.Code)
	event := queue.NewEvent(queue.EventNoMatch, frame.ID, frame.SessionID, elapsed)
	event.Error = noMatch.ToMap()
	l.fanOut(frame.ID, outcome, event, nil, nil)
}

// OnError persists and publishes a failed recognition
func (l *Listener) OnError(frame *processor.Frame, err error, elapsed time.Duration) {
	outcome := newOutcome(frame, storage.OutcomeError, elapsed)
	event := queue.NewEvent(queue.EventError, frame.ID, frame.SessionID, elapsed)

	var procErr *errors.ProcessingError
	if stderrors.As(err, &procErr) {
		outcome.ErrorCode = string(procErr.Code)
		outcome.ErrorMessage = procErr.Message
		outcome.ErrorDetails = procErr.ToMap()
		event.Error = procErr.ToMap()
	} else {
		outcome.ErrorCode = string(errors.ErrorRecognitionFailed)
		outcome.ErrorMessage = err.Error()
		event.Error = map[string]interface{}{
			"code":    string(errors.ErrorRecognitionFailed),
			"message": err.Error(),
		}
	}

	l.fanOut(frame.ID, outcome, event, nil, nil)
}

// Last returns the most recent match, or nil
func (l *Listener) Last() *LastMatch {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.last == nil {
		return nil
	}
	last := *l.last
	return &last
}

func newOutcome(frame *processor.Frame, kind string, elapsed time.Duration) *storage.ScanOutcome {
	return &storage.ScanOutcome{
		FrameID:   frame.ID,
		SessionID: frame.SessionID,
		Outcome:   kind,
		ElapsedMs: elapsed.Milliseconds(),
		Width:     frame.Width,
		Height:    frame.Height,
		Rotation:  frame.Rotation,
	}
}

// fanOut runs every configured sink concurrently and logs failures
func (l *Listener) fanOut(frameID string, outcome *storage.ScanOutcome, event *queue.Event, doc *queue.DocumentTask, evidence *clients.ArtifactUploadRequest) {
	var g errgroup.Group

	if l.store != nil {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
			defer cancel()
			if _, err := l.store.SaveOutcome(ctx, outcome); err != nil {
				return l.report(errors.NewStorageFailedError(frameID, err))
			}
			return nil
		})
	}

	if l.events != nil {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
			defer cancel()
			if err := l.events.Publish(ctx, event); err != nil {
				return l.report(errors.NewPublishFailedError(frameID, "events", err))
			}
			return nil
		})
	}

	if l.documents != nil && doc != nil {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
			defer cancel()
			if err := l.documents.PublishDocument(ctx, doc); err != nil {
				return l.report(errors.NewPublishFailedError(frameID, "documents", err))
			}
			return nil
		})
	}

	if l.evidence != nil && evidence != nil {
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
			defer cancel()
			resp, err := l.evidence.UploadArtifact(ctx, evidence)
			if err != nil {
				return l.report(errors.NewPublishFailedError(frameID, "evidence", err))
			}
			l.logger.Info("Match evidence archived", "frame", frameID, "artifact", resp.Artifact.ID)
			return nil
		})
	}

	_ = g.Wait()
}

func (l *Listener) report(err *errors.ProcessingError) error {
	l.logger.Error("Outcome sink failed", "frame", err.FrameID, "code", err.Code, "error", err.Cause)
	return err
}
