/**
 * OCR Types - Shared data structures for text recognition
 *
 * Common types used by the Tesseract backend, the remote vision backend
 * and the MRZ matcher.
 */

package processor

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Frame is one image handed to a recognizer. Never mutated after creation.
type Frame struct {
	ID         string
	SessionID  string // groups frames from one capture session, may be empty
	Index      int64
	Data       []byte
	Width      int
	Height     int
	Rotation   int // degrees, as reported by the capture source
	CapturedAt time.Time
}

// NewFrame wraps an image buffer with capture metadata and a fresh ID
func NewFrame(data []byte, width, height, rotation int) *Frame {
	return &Frame{
		ID:         uuid.NewString(),
		Data:       data,
		Width:      width,
		Height:     height,
		Rotation:   rotation,
		CapturedAt: time.Now(),
	}
}

// OCRResult is the hierarchical output of a recognizer. Block and line order
// is the recognizer's and must be preserved.
type OCRResult struct {
	Blocks   []OCRBlock
	Engine   string // Which backend produced the result ("tesseract", "remote")
	Model    string // Specific model, when the backend reports one
	Duration time.Duration
}

// OCRBlock is a group of lines the recognizer considers related
type OCRBlock struct {
	Lines []OCRLine
}

// OCRLine is a single recognized line of text
type OCRLine struct {
	Text       string
	Confidence float64
}

// Recognizer is the text recognition backend. An instance belongs to one
// caller: a Scanner calls Recognize one frame at a time, and a recognizer
// handed to a Scanner must not be used anywhere else.
type Recognizer interface {
	Recognize(ctx context.Context, frame *Frame) (*OCRResult, error)
	Close() error
}

// Text joins all lines with newlines and blocks with blank lines
func (r *OCRResult) Text() string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	for i, block := range r.Blocks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		for j, line := range block.Lines {
			if j > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(line.Text)
		}
	}
	return b.String()
}

// LineCount returns the number of lines across all blocks
func (r *OCRResult) LineCount() int {
	if r == nil {
		return 0
	}
	n := 0
	for _, block := range r.Blocks {
		n += len(block.Lines)
	}
	return n
}

// ResultFromText builds the block/line hierarchy from plain recognizer text:
// blank lines separate blocks, line breaks separate lines. Lines are kept
// verbatim apart from the line terminator.
func ResultFromText(text string, confidence float64) *OCRResult {
	result := &OCRResult{}
	var current OCRBlock

	flush := func() {
		if len(current.Lines) > 0 {
			result.Blocks = append(result.Blocks, current)
			current = OCRBlock{}
		}
	}

	for _, raw := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if strings.TrimSpace(raw) == "" {
			flush()
			continue
		}
		current.Lines = append(current.Lines, OCRLine{Text: raw, Confidence: confidence})
	}
	flush()

	return result
}
