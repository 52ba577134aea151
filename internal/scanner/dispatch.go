package scanner

import (
	"time"

	"github.com/adverant/nexus/mrz-worker/internal/metrics"
	"github.com/adverant/nexus/mrz-worker/internal/mrz"
	"github.com/adverant/nexus/mrz-worker/internal/processor"
)

// dispatch delivers the single outcome of an admitted frame
func (s *Scanner) dispatch(frame *processor.Frame, result *processor.OCRResult, err error, started time.Time) {
	if err != nil {
		elapsed := time.Since(started)
		s.logger.Warn("Recognition failed", "frame", frame.ID, "elapsed", elapsed, "error", err)
		s.metrics.ObserveOutcome(metrics.OutcomeError, "", elapsed)
		s.listener.OnError(frame, err, elapsed)
		return
	}

	record, match, ok := mrz.Extract(result)
	elapsed := time.Since(started)

	s.logger.Debug("Recognized candidate",
		"frame", frame.ID,
		"lines", result.LineCount(),
		"candidate", mrz.Candidate(result))

	if !ok {
		s.metrics.ObserveOutcome(metrics.OutcomeNoMatch, "", elapsed)
		s.listener.OnNoMatch(frame, elapsed)
		return
	}

	s.logger.Info("MRZ matched",
		"frame", frame.ID,
		"format", match.Format,
		"elapsed", elapsed)
	s.metrics.ObserveOutcome(metrics.OutcomeMatch, match.Format.String(), elapsed)
	s.listener.OnMatch(frame, record, elapsed)
}
