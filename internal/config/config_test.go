package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"REDIS_URL", "FRAME_QUEUE", "EVENT_CHANNEL", "RESULT_TASK_QUEUE", "IMAGE_TASK_QUEUE",
		"DATABASE_URL", "OCR_BACKEND", "TESSERACT_LANGUAGE", "VISION_OCR_URL", "VISION_OCR_TIMEOUT",
		"RECOGNITION_TIMEOUT", "IMAGE_CONCURRENCY", "HTTP_ADDR", "LOG_LEVEL", "LOG_FORMAT", "NODE_ENV",
		"ARTIFACT_API_URL", "EVIDENCE_TTL_DAYS",
	} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "redis://localhost:6379", cfg.RedisURL)
	assert.Equal(t, "mrz:frames", cfg.FrameQueue)
	assert.Equal(t, "mrz:events", cfg.EventChannel)
	assert.Equal(t, "mrz", cfg.ResultTaskQueue)
	assert.Equal(t, "tesseract", cfg.OCRBackend)
	assert.Equal(t, "eng", cfg.TesseractLanguage)
	assert.Equal(t, 10*time.Second, cfg.RecognitionTimeout)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Empty(t, cfg.ArtifactAPIURL)
	assert.Equal(t, 30, cfg.EvidenceTTLDays)
	assert.False(t, cfg.IsProduction())

	assert.ErrorContains(t, cfg.ValidateWorker(), "DATABASE_URL is required")
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("OCR_BACKEND", "Remote")
	t.Setenv("VISION_OCR_URL", "http://vision:8080")
	t.Setenv("RECOGNITION_TIMEOUT", "2500")
	t.Setenv("VISION_OCR_TIMEOUT", "5s")
	t.Setenv("DATABASE_URL", "postgres://localhost/mrz")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("NODE_ENV", "production")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "remote", cfg.OCRBackend)
	assert.Equal(t, 2500*time.Millisecond, cfg.RecognitionTimeout)
	assert.Equal(t, 5*time.Second, cfg.VisionOCRTimeout)
	assert.True(t, cfg.IsProduction())
	assert.NoError(t, cfg.ValidateWorker())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{OCRBackend: "tesseract", ImageConcurrency: 1, LogFormat: "text"}
	}

	cfg := valid()
	assert.NoError(t, cfg.Validate())

	cfg = valid()
	cfg.OCRBackend = "remote"
	assert.ErrorContains(t, cfg.Validate(), "VISION_OCR_URL is required")

	cfg = valid()
	cfg.OCRBackend = "easyocr"
	assert.ErrorContains(t, cfg.Validate(), "OCR_BACKEND must be")

	cfg = valid()
	cfg.RecognitionTimeout = -time.Second
	assert.ErrorContains(t, cfg.Validate(), "RECOGNITION_TIMEOUT")

	cfg = valid()
	cfg.ImageConcurrency = 0
	assert.ErrorContains(t, cfg.Validate(), "IMAGE_CONCURRENCY")

	cfg = valid()
	cfg.EvidenceTTLDays = -1
	assert.ErrorContains(t, cfg.Validate(), "EVIDENCE_TTL_DAYS")

	cfg = valid()
	cfg.LogFormat = "xml"
	assert.ErrorContains(t, cfg.Validate(), "LOG_FORMAT")
}

func TestGetEnvAsDurationOrDefault(t *testing.T) {
	t.Setenv("D", "garbage")
	assert.Equal(t, time.Minute, getEnvAsDurationOrDefault("D", time.Minute))

	t.Setenv("D", "0")
	assert.Equal(t, time.Duration(0), getEnvAsDurationOrDefault("D", time.Minute))

	t.Setenv("D", "1m30s")
	assert.Equal(t, 90*time.Second, getEnvAsDurationOrDefault("D", time.Minute))
}
