// Package inference talks to the external pose-estimation service: a small
// HTTP sidecar that takes one encoded image and returns named 2-D keypoints
// with per-point confidence scores.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"rep-detection/pose"
)

// Client communicates with the pose-estimation service.
type Client struct {
	serviceURL string
	model      string
	backend    string
	client     *http.Client
}

// estimateResponse is the service's answer for one frame. An empty keypoint
// list means no person was found.
type estimateResponse struct {
	Keypoints []pose.Keypoint `json:"keypoints"`
	Backend   string          `json:"backend,omitempty"`
	Score     float64         `json:"score,omitempty"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Backend string `json:"backend,omitempty"`
}

// NewClient creates an estimator client for the given service URL and model
// name (e.g. "movenet-lightning").
func NewClient(serviceURL, model string) *Client {
	if serviceURL == "" {
		serviceURL = "http://localhost:5003"
	}
	return &Client{
		serviceURL: serviceURL,
		model:      model,
		backend:    "remote",
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// HealthCheck verifies the estimation service is running and records the
// backend name it reports.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serviceURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("estimation service not reachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("estimation service unhealthy: status %d", resp.StatusCode)
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err == nil && health.Backend != "" {
		c.backend = health.Backend
	}
	return nil
}

// Estimate sends one encoded frame and returns the detected keypoints. A nil
// slice with no error means no pose was detected.
func (c *Client) Estimate(ctx context.Context, image []byte) ([]pose.Keypoint, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("frame", "frame.jpg")
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("failed to write frame data: %w", err)
	}
	if c.model != "" {
		if err := writer.WriteField("model", c.model); err != nil {
			return nil, fmt.Errorf("failed to write model field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serviceURL+"/estimate", body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("estimation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("estimation service returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var estResp estimateResponse
	if err := json.NewDecoder(resp.Body).Decode(&estResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if estResp.Backend != "" {
		c.backend = estResp.Backend
	}
	return estResp.Keypoints, nil
}

// Backend returns the inference backend the service last reported.
func (c *Client) Backend() string {
	if c.model != "" {
		return fmt.Sprintf("%s/%s", c.backend, c.model)
	}
	return c.backend
}

// Close releases the client's idle connections.
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
