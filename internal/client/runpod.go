package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/strandart/api/internal/config"
	"github.com/strandart/api/internal/model"
)

// JobRunner defines the interface for submitting jobs to a serverless GPU
// endpoint and polling them until done. No retry policy lives here; callers
// decide what a failed call means.
type JobRunner interface {
	Run(ctx context.Context, input *RunInput) (string, error)
	Status(ctx context.Context, jobID string) (*model.RemoteJob, error)
	IsConfigured() bool
}

// RunInput is the payload the GPU worker handler expects, wrapped under
// {"input": ...} on the wire.
type RunInput struct {
	Endpoint  model.ComputeEndpoint   `json:"endpoint"`
	ImageData string                  `json:"imageData,omitempty"`
	Params    *model.GenerationParams `json:"params,omitempty"`
}

// RunPodClient implements JobRunner against the RunPod serverless API
type RunPodClient struct {
	httpClient *http.Client
	baseURL    string
	endpointID string
	apiKey     string
}

type runResponse struct {
	ID     string `json:"id"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// NewRunPodClient creates a new RunPod API client
func NewRunPodClient(cfg *config.RunPodConfig) *RunPodClient {
	return &RunPodClient{
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		baseURL:    cfg.BaseURL,
		endpointID: cfg.EndpointID,
		apiKey:     cfg.APIKey,
	}
}

// Run submits a job and returns the remote job identifier
func (c *RunPodClient) Run(ctx context.Context, input *RunInput) (string, error) {
	if !c.IsConfigured() {
		return "", ErrNotConfigured
	}

	body, err := json.Marshal(map[string]interface{}{"input": input})
	if err != nil {
		return "", fmt.Errorf("failed to marshal run input: %w", err)
	}

	url := fmt.Sprintf("%s/v2/%s/run", c.baseURL, c.endpointID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	log.Printf("[RunPod] → POST %s (endpoint=%s)", url, input.Endpoint)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[RunPod] ✗ submit failed: %v", err)
		return "", &TransportError{Op: "submit", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Op: "submit", Err: err}
	}

	var parsed runResponse
	// Body may be non-JSON on gateway errors; status decides first.
	_ = json.Unmarshal(respBody, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("[RunPod] ✗ submit rejected: %d %s", resp.StatusCode, string(respBody))
		return "", &RemoteRejectedError{StatusCode: resp.StatusCode, Message: parsed.Error}
	}
	if parsed.ID == "" {
		log.Printf("[RunPod] ✗ submit response missing job id: %s", string(respBody))
		return "", &RemoteRejectedError{StatusCode: resp.StatusCode, Message: "response missing job id"}
	}

	log.Printf("[RunPod] ← job submitted, id=%s", parsed.ID)
	return parsed.ID, nil
}

// Status fetches the current state of a submitted job
func (c *RunPodClient) Status(ctx context.Context, jobID string) (*model.RemoteJob, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	url := fmt.Sprintf("%s/v2/%s/status/%s", c.baseURL, c.endpointID, jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[RunPod] ✗ poll failed (job=%s): %v", jobID, err)
		return nil, &TransportError{Op: "poll", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: "poll", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{Op: "poll", Err: fmt.Errorf("status endpoint returned %d: %s", resp.StatusCode, string(respBody))}
	}

	var job model.RemoteJob
	if err := json.Unmarshal(respBody, &job); err != nil {
		return nil, &TransportError{Op: "poll", Err: fmt.Errorf("unparseable status body: %w", err)}
	}
	if job.ID == "" {
		job.ID = jobID
	}

	if job.Status.Terminal() {
		log.Printf("[RunPod] job %s reached terminal state: %s", jobID, job.Status)
	} else {
		log.Printf("[RunPod] poll job %s: %s", jobID, job.Status)
	}
	return &job, nil
}

func (c *RunPodClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}

// IsConfigured returns true if the client has credentials and an endpoint
func (c *RunPodClient) IsConfigured() bool {
	return c.apiKey != "" && c.endpointID != ""
}
