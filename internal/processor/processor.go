/**
 * Recognizer selection for the MRZ scan worker
 *
 * Two backends are available:
 * 1. tesseract - local, offline, default
 * 2. remote    - HTTP vision OCR service
 */

package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/adverant/nexus/mrz-worker/internal/logging"
)

// Backend names accepted by NewRecognizer
const (
	BackendTesseract = "tesseract"
	BackendRemote    = "remote"
)

// RecognizerConfig holds recognizer configuration
type RecognizerConfig struct {
	Backend       string
	Language      string
	VisionOCRURL  string
	RemoteTimeout time.Duration
}

// NewRecognizer builds the configured backend. The remote backend is health
// checked once; a failed check is logged, not fatal, since the service may
// come up after the worker.
func NewRecognizer(cfg *RecognizerConfig) (Recognizer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	logger := logging.NewLogger("Recognizer")

	switch cfg.Backend {
	case "", BackendTesseract:
		ocr, err := NewTesseractOCR(&TesseractConfig{Language: cfg.Language})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tesseract: %w", err)
		}
		logger.Info("Using local Tesseract backend", "language", cfg.Language)
		return ocr, nil

	case BackendRemote:
		ocr, err := NewRemoteOCR(cfg.VisionOCRURL, cfg.Language, cfg.RemoteTimeout)
		if err != nil {
			return nil, err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ocr.HealthCheck(ctx); err != nil {
			logger.Warn("Vision service health check failed", "url", cfg.VisionOCRURL, "error", err)
		} else {
			logger.Info("Vision service connection verified", "url", cfg.VisionOCRURL)
		}
		return ocr, nil

	default:
		return nil, fmt.Errorf("unknown OCR backend %q (want %q or %q)", cfg.Backend, BackendTesseract, BackendRemote)
	}
}
