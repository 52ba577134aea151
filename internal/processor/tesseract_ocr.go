/**
 * Tesseract OCR - Local recognition backend
 *
 * Free, offline OCR using Tesseract through gosseract. The client is
 * created once and reused for every frame; calls are serialized on a mutex
 * so one instance can serve several still-image workers.
 */

package processor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/otiai10/gosseract/v2"
)

// MRZCharset is the full alphabet of a machine-readable zone
const MRZCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789<"

// TesseractOCR handles recognition using Tesseract
type TesseractOCR struct {
	mu     sync.Mutex
	client *gosseract.Client
	config *TesseractConfig
}

// TesseractConfig holds Tesseract configuration
type TesseractConfig struct {
	Language  string
	Whitelist string
	// ClientFactory overrides gosseract.NewClient (tests)
	ClientFactory func() *gosseract.Client
}

// NewTesseractOCR creates a new Tesseract OCR instance
func NewTesseractOCR(cfg *TesseractConfig) (*TesseractOCR, error) {
	if cfg == nil {
		cfg = &TesseractConfig{}
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	if cfg.Whitelist == "" {
		cfg.Whitelist = MRZCharset
	}
	if cfg.ClientFactory == nil {
		cfg.ClientFactory = gosseract.NewClient
	}

	client := cfg.ClientFactory()
	if err := client.SetLanguage(cfg.Language); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set language %q: %w", cfg.Language, err)
	}
	if err := client.SetWhitelist(cfg.Whitelist); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set whitelist: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}

	return &TesseractOCR{
		client: client,
		config: cfg,
	}, nil
}

// Recognize performs OCR on a single frame
func (t *TesseractOCR) Recognize(ctx context.Context, frame *Frame) (*OCRResult, error) {
	startTime := time.Now()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if frame == nil || len(frame.Data) == 0 {
		return nil, fmt.Errorf("frame has no image data")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client == nil {
		return nil, fmt.Errorf("tesseract client is closed")
	}

	if err := t.client.SetImageFromBytes(frame.Data); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := t.client.Text()
	if err != nil {
		return nil, fmt.Errorf("tesseract OCR failed: %w", err)
	}

	result := ResultFromText(text, calculateTesseractConfidence(text))
	result.Engine = "tesseract"
	result.Model = "tesseract-" + t.config.Language
	result.Duration = time.Since(startTime)

	return result, nil
}

// Close releases the underlying Tesseract handle
func (t *TesseractOCR) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	return err
}

// calculateTesseractConfidence estimates how MRZ-like the recognized text is.
// Tesseract's page-level confidence is unavailable through Text().
func calculateTesseractConfidence(text string) float64 {
	compact := strings.Join(strings.Fields(text), "")
	if compact == "" {
		return 0
	}

	confidence := 0.4

	inCharset := 0
	fillers := 0
	for _, r := range compact {
		if strings.ContainsRune(MRZCharset, r) {
			inCharset++
		}
		if r == '<' {
			fillers++
		}
	}
	ratio := float64(inCharset) / float64(len([]rune(compact)))
	confidence += 0.3 * ratio

	// MRZ lines are 30, 36 or 44 characters wide and padded with '<'
	if fillers > 0 {
		confidence += 0.1
	}
	if len(compact) >= 44 {
		confidence += 0.05
	}

	if confidence > 0.85 {
		confidence = 0.85
	}

	return confidence
}
