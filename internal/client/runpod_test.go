package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/strandart/api/internal/config"
	"github.com/strandart/api/internal/model"
)

func newTestRunPod(t *testing.T, handler http.HandlerFunc) (*RunPodClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewRunPodClient(&config.RunPodConfig{
		APIKey:     "test-key",
		EndpointID: "ep-123",
		BaseURL:    srv.URL,
	})
	return c, srv
}

func TestRunPodRun(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]interface{}

	c, _ := newTestRunPod(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]string{"id": "job123", "status": "IN_QUEUE"})
	})

	jobID, err := c.Run(context.Background(), &RunInput{
		Endpoint:  model.EndpointGenerate,
		ImageData: "aGVsbG8=",
		Params:    &model.GenerationParams{NumNails: 256, RadiusCM: 30},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if jobID != "job123" {
		t.Errorf("expected job id job123, got %s", jobID)
	}
	if gotPath != "/v2/ep-123/run" {
		t.Errorf("expected path /v2/ep-123/run, got %s", gotPath)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("expected bearer auth header, got %q", gotAuth)
	}

	// Payload must arrive wrapped under "input"
	input, ok := gotBody["input"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected input wrapper, got %v", gotBody)
	}
	if input["endpoint"] != "generate" {
		t.Errorf("expected endpoint generate, got %v", input["endpoint"])
	}
	if input["imageData"] != "aGVsbG8=" {
		t.Errorf("expected image data forwarded, got %v", input["imageData"])
	}
}

func TestRunPodRun_Rejected(t *testing.T) {
	c, _ := newTestRunPod(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid api key"})
	})

	_, err := c.Run(context.Background(), &RunInput{Endpoint: model.EndpointGenerate})

	var rejected *RemoteRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected RemoteRejectedError, got %v", err)
	}
	if rejected.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", rejected.StatusCode)
	}
	if rejected.Message != "invalid api key" {
		t.Errorf("expected rejection message, got %q", rejected.Message)
	}
}

func TestRunPodRun_MissingJobID(t *testing.T) {
	c, _ := newTestRunPod(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "IN_QUEUE"})
	})

	_, err := c.Run(context.Background(), &RunInput{Endpoint: model.EndpointGenerate})

	var rejected *RemoteRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected RemoteRejectedError for missing id, got %v", err)
	}
}

func TestRunPodRun_Unconfigured(t *testing.T) {
	c := NewRunPodClient(&config.RunPodConfig{BaseURL: "https://api.runpod.ai"})

	if c.IsConfigured() {
		t.Error("client without credentials must not report configured")
	}

	_, err := c.Run(context.Background(), &RunInput{Endpoint: model.EndpointGenerate})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestRunPodStatus(t *testing.T) {
	var gotPath string

	c, _ := newTestRunPod(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":     "job123",
			"status": "COMPLETED",
			"output": map[string]interface{}{"status": "success", "sequence": []int{1, 2, 3}},
		})
	})

	job, err := c.Status(context.Background(), "job123")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if gotPath != "/v2/ep-123/status/job123" {
		t.Errorf("expected status path, got %s", gotPath)
	}
	if job.Status != model.RemoteStatusCompleted {
		t.Errorf("expected COMPLETED, got %s", job.Status)
	}
	if job.OutputStatus() != model.OutputStatusSuccess {
		t.Errorf("expected success output status, got %q", job.OutputStatus())
	}
}

func TestRunPodStatus_FillsJobID(t *testing.T) {
	c, _ := newTestRunPod(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "IN_PROGRESS"})
	})

	job, err := c.Status(context.Background(), "job123")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if job.ID != "job123" {
		t.Errorf("expected job id backfilled, got %q", job.ID)
	}
}

func TestRunPodStatus_ServerError(t *testing.T) {
	c, _ := newTestRunPod(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.Status(context.Background(), "job123")

	var transport *TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}
