/**
 * Scanner - live-feed MRZ reader
 *
 * Frames arrive faster than recognition completes. The scanner lets one
 * frame through the throttle gate, recognizes it on its own goroutine,
 * runs the MRZ matcher and reports exactly one outcome to the listener
 * before reopening the gate. Frames offered meanwhile are dropped.
 */

package scanner

//go:generate mockgen -destination=mocks/listener.go -package=mocks github.com/adverant/nexus/mrz-worker/internal/scanner Listener
//go:generate mockgen -destination=mocks/recognizer.go -package=mocks github.com/adverant/nexus/mrz-worker/internal/processor Recognizer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adverant/nexus/mrz-worker/internal/errors"
	"github.com/adverant/nexus/mrz-worker/internal/logging"
	"github.com/adverant/nexus/mrz-worker/internal/metrics"
	"github.com/adverant/nexus/mrz-worker/internal/mrz"
	"github.com/adverant/nexus/mrz-worker/internal/processor"
	"github.com/adverant/nexus/mrz-worker/internal/throttle"
)

// Listener receives the outcome of every admitted frame. Exactly one method
// is called per admitted frame, on the recognition goroutine.
type Listener interface {
	OnMatch(frame *processor.Frame, record mrz.Record, elapsed time.Duration)
	OnNoMatch(frame *processor.Frame, elapsed time.Duration)
	OnError(frame *processor.Frame, err error, elapsed time.Duration)
}

// Config holds scanner configuration
type Config struct {
	Recognizer processor.Recognizer
	Listener   Listener
	// RecognitionTimeout bounds a single recognition. When it fires the
	// listener gets a RECOGNITION_TIMEOUT error and the gate reopens. Zero
	// means wait forever.
	RecognitionTimeout time.Duration
	Metrics            *metrics.Metrics
	Logger             *logging.Logger
}

// Scanner owns the throttle gate and the recognizer lifecycle
type Scanner struct {
	gate       throttle.Gate
	recognizer processor.Recognizer
	listener   Listener
	timeout    time.Duration
	metrics    *metrics.Metrics
	logger     *logging.Logger

	// mu orders Offer against Stop so no frame is admitted after Stop
	mu       sync.RWMutex
	stopped  bool
	inflight sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	stopErr  error
}

// New creates a scanner. The scanner takes ownership of the recognizer and
// closes it in Stop.
func New(cfg *Config) (*Scanner, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Recognizer == nil {
		return nil, fmt.Errorf("recognizer is required")
	}
	if cfg.Listener == nil {
		return nil, fmt.Errorf("listener is required")
	}
	if cfg.RecognitionTimeout < 0 {
		return nil, fmt.Errorf("recognition timeout must not be negative, got %v", cfg.RecognitionTimeout)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("Scanner")
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Scanner{
		recognizer: cfg.Recognizer,
		listener:   cfg.Listener,
		timeout:    cfg.RecognitionTimeout,
		metrics:    cfg.Metrics,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Offer hands a frame to the scanner without blocking. It returns true if
// the frame was admitted; false if a recognition is already in flight or
// the scanner is stopped. A dropped frame is not an error.
func (s *Scanner) Offer(frame *processor.Frame) bool {
	if frame == nil {
		return false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.stopped {
		s.logger.Debug("Frame offered after stop", "frame", frame.ID)
		return false
	}

	admitted := s.gate.Admit()
	s.metrics.ObserveOffered(admitted)
	if !admitted {
		return false
	}

	s.inflight.Add(1)
	go s.process(frame, time.Now())
	return true
}

// Busy reports whether a recognition is in flight
func (s *Scanner) Busy() bool {
	return s.gate.Busy()
}

// Stopped reports whether Stop has been called
func (s *Scanner) Stopped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stopped
}

// Uses reports whether r is the recognizer this scanner owns
func (s *Scanner) Uses(r processor.Recognizer) bool {
	return r != nil && r == s.recognizer
}

// Stats returns admitted and dropped frame counts
func (s *Scanner) Stats() (admitted, dropped uint64) {
	return s.gate.Stats()
}

// Stop refuses further frames, waits for the in-flight recognition to
// finish, and closes the recognizer. If ctx expires first the in-flight
// recognition is cancelled (its listener still gets OnError) and the
// recognizer is closed anyway. Only the first call does anything; later
// calls return the first result.
func (s *Scanner) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()

		done := make(chan struct{})
		go func() {
			s.inflight.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			s.logger.Warn("Stop deadline reached with a recognition in flight, cancelling it")
			s.cancel()
			<-done
		}
		s.cancel()

		if err := s.recognizer.Close(); err != nil {
			s.logger.Error("Failed to close recognizer", "error", err)
			s.stopErr = fmt.Errorf("failed to close recognizer: %w", err)
			return
		}
		s.logger.Info("Scanner stopped")
	})
	return s.stopErr
}

// process runs on its own goroutine for every admitted frame
func (s *Scanner) process(frame *processor.Frame, started time.Time) {
	defer s.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Listener panicked", "frame", frame.ID, "panic", r)
		}
		s.metrics.ObserveReleased()
		s.gate.Release()
	}()

	result, err := s.recognize(frame)
	s.dispatch(frame, result, err, started)
}

type recognition struct {
	result *processor.OCRResult
	err    error
}

// recognize calls the recognizer under the configured timeout. A recognizer
// that ignores its context is abandoned when the deadline fires; its late
// result is discarded.
func (s *Scanner) recognize(frame *processor.Frame) (*processor.OCRResult, error) {
	ctx, cancel := s.ctx, context.CancelFunc(func() {})
	if s.timeout > 0 {
		ctx, cancel = context.WithTimeout(s.ctx, s.timeout)
	}
	defer cancel()

	done := make(chan recognition, 1)
	go func() {
		result, err := s.recognizer.Recognize(ctx, frame)
		done <- recognition{result: result, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return nil, errors.NewRecognitionTimeoutError(frame.ID, s.timeout, r.err)
			}
			return nil, errors.NewRecognitionError(frame.ID, engineName(s.recognizer), r.err)
		}
		return r.result, nil

	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			s.logger.Warn("Recognition timed out, releasing gate", "frame", frame.ID, "timeout", s.timeout)
			return nil, errors.NewRecognitionTimeoutError(frame.ID, s.timeout, ctx.Err())
		}
		return nil, errors.NewRecognitionError(frame.ID, engineName(s.recognizer), ctx.Err())
	}
}

func engineName(r processor.Recognizer) string {
	switch r.(type) {
	case *processor.TesseractOCR:
		return processor.BackendTesseract
	case *processor.RemoteOCR:
		return processor.BackendRemote
	default:
		return fmt.Sprintf("%T", r)
	}
}
