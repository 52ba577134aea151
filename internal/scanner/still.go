package scanner

import (
	"context"

	"github.com/adverant/nexus/mrz-worker/internal/errors"
	"github.com/adverant/nexus/mrz-worker/internal/mrz"
	"github.com/adverant/nexus/mrz-worker/internal/processor"
)

// ScanImage recognizes a single still image synchronously and runs the same
// matcher as the live path. It does not go through any gate, so recognizer
// must not be one a Scanner owns.
func ScanImage(ctx context.Context, recognizer processor.Recognizer, frame *processor.Frame) (mrz.Record, mrz.MatchResult, error) {
	result, err := recognizer.Recognize(ctx, frame)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return mrz.Record{}, mrz.MatchResult{}, errors.NewRecognitionTimeoutError(frame.ID, 0, err)
		}
		return mrz.Record{}, mrz.MatchResult{}, errors.NewRecognitionError(frame.ID, engineName(recognizer), err)
	}

	record, match, _ := mrz.Extract(result)
	return record, match, nil
}
