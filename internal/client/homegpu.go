package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/strandart/api/internal/config"
	"github.com/strandart/api/internal/model"
)

// HomeGPUClient talks to a self-hosted GPU box (reached over a VPN/Tailscale
// URL). Unlike the serverless API it answers synchronously: preprocess and
// generate return the finished output in one call.
type HomeGPUClient struct {
	httpClient *http.Client
	baseURL    string
}

// HomeHealth is the home GPU's health report
type HomeHealth struct {
	GPUAvailable bool `json:"gpu_available"`
	GPUBusy      bool `json:"gpu_busy"`
}

// HomeResult is the synchronous response of the home GPU for preprocess and
// generate calls.
type HomeResult struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Cached  bool                   `json:"cached,omitempty"`
	Output  map[string]interface{} `json:"output,omitempty"`
}

// NewHomeGPUClient creates a client for the home GPU. An empty URL disables it.
func NewHomeGPUClient(cfg *config.HomeGPUConfig) *HomeGPUClient {
	return &HomeGPUClient{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		baseURL: strings.TrimRight(cfg.URL, "/"),
	}
}

// Health probes the home GPU with a short deadline. Returns the report, or an
// error when the box is unreachable or unhealthy.
func (c *HomeGPUClient) Health(ctx context.Context) (*HomeHealth, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "health", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("home GPU health check returned %d", resp.StatusCode)
	}

	var health HomeHealth
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, &TransportError{Op: "health", Err: err}
	}
	return &health, nil
}

// Preprocess runs the image preprocessing pass synchronously
func (c *HomeGPUClient) Preprocess(ctx context.Context, imageData string, params *model.GenerationParams) (*HomeResult, error) {
	return c.post(ctx, "/preprocess", &RunInput{
		Endpoint:  model.EndpointPreprocess,
		ImageData: imageData,
		Params:    params,
	})
}

// Generate runs a full generation synchronously
func (c *HomeGPUClient) Generate(ctx context.Context, imageData string, params *model.GenerationParams) (*HomeResult, error) {
	return c.post(ctx, "/generate", &RunInput{
		Endpoint:  model.EndpointGenerate,
		ImageData: imageData,
		Params:    params,
	})
}

func (c *HomeGPUClient) post(ctx context.Context, endpoint string, input *RunInput) (*HomeResult, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: endpoint, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: endpoint, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("home GPU error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result HomeResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, &TransportError{Op: endpoint, Err: fmt.Errorf("unparseable response: %w", err)}
	}
	return &result, nil
}

// IsConfigured returns true when a home GPU URL is set
func (c *HomeGPUClient) IsConfigured() bool {
	return c.baseURL != ""
}
