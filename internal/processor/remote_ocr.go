package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/adverant/nexus/mrz-worker/internal/clients"
)

// RemoteOCR delegates recognition to the HTTP vision service
type RemoteOCR struct {
	client   *clients.VisionClient
	language string
}

// NewRemoteOCR creates a recognizer backed by the vision service at baseURL
func NewRemoteOCR(baseURL, language string, timeout time.Duration) (*RemoteOCR, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("vision OCR URL is required for the remote backend")
	}
	return &RemoteOCR{
		client:   clients.NewVisionClient(baseURL, timeout),
		language: language,
	}, nil
}

// HealthCheck reports whether the vision service answers
func (r *RemoteOCR) HealthCheck(ctx context.Context) error {
	return r.client.HealthCheck(ctx)
}

// Recognize sends the frame to the vision service
func (r *RemoteOCR) Recognize(ctx context.Context, frame *Frame) (*OCRResult, error) {
	startTime := time.Now()

	if frame == nil || len(frame.Data) == 0 {
		return nil, fmt.Errorf("frame has no image data")
	}

	resp, err := r.client.ExtractTextFromBytes(ctx, frame.Data, r.language, MRZCharset)
	if err != nil {
		return nil, fmt.Errorf("remote OCR failed: %w", err)
	}

	var result *OCRResult
	if len(resp.Data.Blocks) > 0 {
		result = &OCRResult{Blocks: make([]OCRBlock, 0, len(resp.Data.Blocks))}
		for _, vb := range resp.Data.Blocks {
			block := OCRBlock{Lines: make([]OCRLine, 0, len(vb.Lines))}
			for _, vl := range vb.Lines {
				block.Lines = append(block.Lines, OCRLine{Text: vl.Text, Confidence: vl.Confidence})
			}
			result.Blocks = append(result.Blocks, block)
		}
	} else {
		result = ResultFromText(resp.Data.Text, resp.Data.Confidence)
	}

	result.Engine = "remote"
	result.Model = resp.Data.ModelUsed
	result.Duration = time.Since(startTime)

	return result, nil
}

// Close releases idle HTTP connections; the service itself is not owned
func (r *RemoteOCR) Close() error {
	r.client.CloseIdleConnections()
	return nil
}
