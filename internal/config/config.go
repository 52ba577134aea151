/**
 * Configuration for the MRZ Worker
 *
 * Loads configuration from environment variables matching .env.mrz
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds worker and CLI configuration
type Config struct {
	// Redis configuration
	RedisURL        string
	FrameQueue      string // Redis list camera clients push frames onto
	EventChannel    string // pub/sub channel for outcome events
	ResultTaskQueue string // asynq queue matched records are handed to
	ImageTaskQueue  string // asynq queue still-image jobs are read from

	// PostgreSQL configuration
	DatabaseURL string

	// OCR configuration
	OCRBackend        string
	TesseractLanguage string
	VisionOCRURL      string
	VisionOCRTimeout  time.Duration

	// Match evidence archive; an empty URL disables uploads
	ArtifactAPIURL  string
	EvidenceTTLDays int

	// Scanner configuration
	RecognitionTimeout time.Duration
	ImageConcurrency   int

	// HTTP server for health and metrics
	HTTPAddr string

	// Logging
	LogLevel  string
	LogFormat string

	// Node environment
	NodeEnv string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		RedisURL:           getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),
		FrameQueue:         getEnvOrDefault("FRAME_QUEUE", "mrz:frames"),
		EventChannel:       getEnvOrDefault("EVENT_CHANNEL", "mrz:events"),
		ResultTaskQueue:    getEnvOrDefault("RESULT_TASK_QUEUE", "mrz"),
		ImageTaskQueue:     getEnvOrDefault("IMAGE_TASK_QUEUE", "mrz-images"),
		DatabaseURL:        getEnvOrDefault("DATABASE_URL", ""),
		OCRBackend:         strings.ToLower(getEnvOrDefault("OCR_BACKEND", "tesseract")),
		TesseractLanguage:  getEnvOrDefault("TESSERACT_LANGUAGE", "eng"),
		VisionOCRURL:       getEnvOrDefault("VISION_OCR_URL", ""),
		VisionOCRTimeout:   getEnvAsDurationOrDefault("VISION_OCR_TIMEOUT", 30*time.Second),
		RecognitionTimeout: getEnvAsDurationOrDefault("RECOGNITION_TIMEOUT", 10*time.Second),
		ImageConcurrency:   getEnvAsIntOrDefault("IMAGE_CONCURRENCY", 1),
		ArtifactAPIURL:     getEnvOrDefault("ARTIFACT_API_URL", ""),
		EvidenceTTLDays:    getEnvAsIntOrDefault("EVIDENCE_TTL_DAYS", 30),
		HTTPAddr:           getEnvOrDefault("HTTP_ADDR", ":9090"),
		LogLevel:           getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          getEnvOrDefault("LOG_FORMAT", "text"),
		NodeEnv:            getEnvOrDefault("NODE_ENV", "development"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks settings shared by the worker and the CLI
func (c *Config) Validate() error {
	switch c.OCRBackend {
	case "tesseract":
	case "remote":
		if c.VisionOCRURL == "" {
			return fmt.Errorf("VISION_OCR_URL is required when OCR_BACKEND is remote")
		}
	default:
		return fmt.Errorf("OCR_BACKEND must be tesseract or remote, got %q", c.OCRBackend)
	}

	if c.RecognitionTimeout < 0 {
		return fmt.Errorf("RECOGNITION_TIMEOUT must not be negative, got %v", c.RecognitionTimeout)
	}

	if c.ImageConcurrency < 1 || c.ImageConcurrency > 16 {
		return fmt.Errorf("IMAGE_CONCURRENCY must be between 1 and 16, got %d", c.ImageConcurrency)
	}

	if c.EvidenceTTLDays < 0 {
		return fmt.Errorf("EVIDENCE_TTL_DAYS must not be negative, got %d", c.EvidenceTTLDays)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}

	return nil
}

// ValidateWorker additionally checks what the long-running worker needs
func (c *Config) ValidateWorker() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.HTTPAddr == "" {
		return fmt.Errorf("HTTP_ADDR is required")
	}

	return nil
}

// IsProduction reports whether NODE_ENV is production
func (c *Config) IsProduction() bool {
	return c.NodeEnv == "production"
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsDurationOrDefault accepts Go durations ("1500ms", "10s") or a bare
// number of milliseconds
func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	if ms, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
