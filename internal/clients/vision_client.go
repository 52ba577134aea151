/**
 * Vision Client - Remote text recognition service
 *
 * Sends a frame to an HTTP vision OCR service and returns the recognized
 * text. The service picks its own model; the worker only cares about the
 * text lines it gets back.
 */

package clients

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/adverant/nexus/mrz-worker/internal/logging"
)

// VisionClient handles communication with the vision OCR service
type VisionClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// VisionOCRRequest represents a request to extract text from an image
type VisionOCRRequest struct {
	Image     string                 `json:"image"`               // Base64 encoded image
	Format    string                 `json:"format"`              // "base64"
	Language  string                 `json:"language"`            // Optional: "en", "multi", etc.
	Whitelist string                 `json:"whitelist,omitempty"` // Optional character whitelist
	Width     int                    `json:"width,omitempty"`
	Height    int                    `json:"height,omitempty"`
	Rotation  int                    `json:"rotation,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// VisionOCRResponse represents a synchronous response from the vision endpoint
type VisionOCRResponse struct {
	Success bool          `json:"success"`
	Data    VisionOCRData `json:"data"`
	Message string        `json:"message"`
}

// VisionOCRData contains the extracted text and metadata
type VisionOCRData struct {
	Text           string        `json:"text"`
	Blocks         []VisionBlock `json:"blocks,omitempty"` // Structured output, when the model provides it
	Confidence     float64       `json:"confidence"`
	ModelUsed      string        `json:"modelUsed"`
	ProcessingTime int64         `json:"processingTime"` // milliseconds
}

// VisionBlock is a block of recognized lines
type VisionBlock struct {
	Lines []VisionLine `json:"lines"`
}

// VisionLine is one recognized line
type VisionLine struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// NewVisionClient creates a new vision OCR client. A zero timeout leaves
// the deadline to the caller's context.
func NewVisionClient(baseURL string, timeout time.Duration) *VisionClient {
	return &VisionClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logging.NewLogger("VisionClient"),
	}
}

// ExtractText sends an image to the vision service and returns its response
func (c *VisionClient) ExtractText(ctx context.Context, req *VisionOCRRequest) (*VisionOCRResponse, error) {
	c.logger.Debug("Requesting text extraction",
		"language", req.Language,
		"imageSize", len(req.Image))

	endpoint := fmt.Sprintf("%s/api/internal/vision/extract-text", c.baseURL)

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Source", "mrz-worker")
	httpReq.Header.Set("X-Request-ID", fmt.Sprintf("ocr-%d", time.Now().UnixNano()))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request to vision service failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vision service returned error status %d: %s", resp.StatusCode, string(body))
	}

	var ocrResp VisionOCRResponse
	if err := json.Unmarshal(body, &ocrResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if !ocrResp.Success {
		return nil, fmt.Errorf("vision operation failed: %s", ocrResp.Message)
	}

	c.logger.Debug("Text extraction complete",
		"modelUsed", ocrResp.Data.ModelUsed,
		"confidence", ocrResp.Data.Confidence,
		"processingTime", ocrResp.Data.ProcessingTime,
		"textLength", len(ocrResp.Data.Text))

	return &ocrResp, nil
}

// ExtractTextFromBytes is a convenience method that handles base64 encoding
func (c *VisionClient) ExtractTextFromBytes(ctx context.Context, imageData []byte, language, whitelist string) (*VisionOCRResponse, error) {
	req := &VisionOCRRequest{
		Image:     base64.StdEncoding.EncodeToString(imageData),
		Format:    "base64",
		Language:  language,
		Whitelist: whitelist,
		Metadata: map[string]interface{}{
			"source":    "mrz-worker",
			"timestamp": time.Now().Unix(),
		},
	}

	return c.ExtractText(ctx, req)
}

// HealthCheck verifies the vision service is available
func (c *VisionClient) HealthCheck(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/api/health", c.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("health check failed with status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// CloseIdleConnections drops pooled connections to the service
func (c *VisionClient) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}
