// Package llm talks to the external prediction service that turns a free
// text query into a visualization intent.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"chartbot/internal/models"
)

// Config holds predictor connection settings.
type Config struct {
	BaseURL string
	Path    string
	Timeout time.Duration
	Retry   RetryConfig
}

// Client calls the prediction service over HTTP.
type Client struct {
	mu     sync.RWMutex
	config Config
	client *http.Client
}

// NewClient creates a client. Empty fields fall back to the defaults of the
// reference predictor.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://127.0.0.1:5000"
	}
	if cfg.Path == "" {
		cfg.Path = "/process"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.InitialBackoff <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	return &Client{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Endpoint returns the current base URL and path.
func (c *Client) Endpoint() (string, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config.BaseURL, c.config.Path
}

// SetEndpoint points the client at another predictor. Empty values keep
// the current setting.
func (c *Client) SetEndpoint(baseURL, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if baseURL != "" {
		c.config.BaseURL = baseURL
	}
	if path != "" {
		c.config.Path = path
	}
}

// PredictRequest is the predictor request body.
type PredictRequest struct {
	Text string `json:"text"`
}

// PredictionError is returned for non-200 predictor responses.
type PredictionError struct {
	StatusCode int
	Body       string
}

func (e *PredictionError) Error() string {
	return fmt.Sprintf("predictor returned status %d: %s", e.StatusCode, e.Body)
}

// Predict sends query to the predictor and returns its raw intent.
func (c *Client) Predict(ctx context.Context, query string) (models.VisualizationIntent, error) {
	payload, err := json.Marshal(PredictRequest{Text: query})
	if err != nil {
		return models.VisualizationIntent{}, fmt.Errorf("marshal request: %w", err)
	}

	baseURL, path := c.Endpoint()
	url := strings.TrimRight(baseURL, "/") + path

	resp, err := c.retryWithBackoff(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return c.client.Do(req)
	})
	if err != nil {
		return models.VisualizationIntent{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.VisualizationIntent{}, fmt.Errorf("read predictor response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return models.VisualizationIntent{}, &PredictionError{StatusCode: resp.StatusCode, Body: truncate(string(body), 200)}
	}

	var intent models.VisualizationIntent
	if err := json.Unmarshal(body, &intent); err != nil {
		return models.VisualizationIntent{}, fmt.Errorf("decode predictor response: %w", err)
	}
	return intent, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
