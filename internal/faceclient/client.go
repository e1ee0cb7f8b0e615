// Package faceclient calls the face-matching microservice. The service
// owns everything biometric: turning images into feature vectors and
// computing the distance between two vectors. This core only consumes the
// distance and compares it against the configured threshold.
package faceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// EmbedResult holds the feature vector extracted from an enrollment image.
type EmbedResult struct {
	Embedding     []float64
	FacesDetected int
}

// DistanceResult holds the similarity distance between the enrolled vector
// and the submitted image. Lower means more similar.
type DistanceResult struct {
	Distance      float64
	FacesDetected int
}

// Client calls the face service over HTTP.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client. With skip set, calls return canned matches so the
// rest of the stack can run without the face service.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 30 * time.Second, // face processing can take time
		},
	}
}

// Embed extracts a feature vector from a base64 image data URL.
func (c *Client) Embed(ctx context.Context, imageData string) (*EmbedResult, error) {
	if c.Skip {
		return &EmbedResult{Embedding: []float64{0.1, 0.2, 0.3}, FacesDetected: 1}, nil
	}
	if imageData == "" {
		return nil, fmt.Errorf("image data required")
	}

	var out struct {
		Embedding     []float64 `json:"embedding"`
		FacesDetected int       `json:"faces_detected"`
	}
	if err := c.post(ctx, "/embed", map[string]any{"image": imageData}, &out); err != nil {
		return nil, err
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("no face detected in image")
	}
	return &EmbedResult{Embedding: out.Embedding, FacesDetected: out.FacesDetected}, nil
}

// Distance compares an enrolled feature vector against a submitted image.
func (c *Client) Distance(ctx context.Context, encoding []float64, imageData string) (*DistanceResult, error) {
	if c.Skip {
		return &DistanceResult{Distance: 0.32, FacesDetected: 1}, nil
	}
	if len(encoding) == 0 {
		return nil, fmt.Errorf("enrolled encoding required")
	}
	if imageData == "" {
		return nil, fmt.Errorf("image data required")
	}

	var out struct {
		Distance      float64 `json:"distance"`
		FacesDetected int     `json:"faces_detected"`
	}
	payload := map[string]any{"encoding": encoding, "image": imageData}
	if err := c.post(ctx, "/distance", payload, &out); err != nil {
		return nil, err
	}
	return &DistanceResult{Distance: out.Distance, FacesDetected: out.FacesDetected}, nil
}

// Health checks if the face service is available.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service unavailable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("face service unhealthy: %s", resp.Status)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, payload any, out any) error {
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("face service error %s: %s", resp.Status, string(respBody))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
