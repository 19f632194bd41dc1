package gpu

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/strandart/api/internal/client"
	"github.com/strandart/api/internal/model"
)

// SubmitResult is the outcome of routing a job to a provider. Exactly one of
// JobID / Job is set: serverless submissions come back as a job id to poll,
// the home GPU answers synchronously with the finished output.
type SubmitResult struct {
	Provider model.Provider
	JobID    string
	Job      *model.RemoteJob
}

// Stats are the router's request counters
type Stats struct {
	HomeRequests   int64 `json:"home_requests"`
	RunPodRequests int64 `json:"runpod_requests"`
	HomeFailures   int64 `json:"home_failures"`
	RunPodFailures int64 `json:"runpod_failures"`
	TotalRequests  int64 `json:"total_requests"`
	HomeAvailable  bool  `json:"home_available"`
}

// Router sends jobs to the home GPU when it is healthy and idle, and falls
// back to the serverless endpoint otherwise.
type Router struct {
	home   *client.HomeGPUClient
	runpod client.JobRunner

	mu              sync.Mutex
	stats           Stats
	lastHealthCheck time.Time
}

// NewRouter creates a GPU router. home may be unconfigured; runpod is the
// fallback and the only poller.
func NewRouter(home *client.HomeGPUClient, runpod client.JobRunner) *Router {
	r := &Router{home: home, runpod: runpod}
	if home != nil && home.IsConfigured() {
		log.Println("GPU router initialized with home GPU failover")
	} else {
		log.Println("GPU router initialized (serverless only)")
	}
	return r
}

// Configured reports whether any provider can accept jobs
func (r *Router) Configured() bool {
	if r.runpod.IsConfigured() {
		return true
	}
	return r.home != nil && r.home.IsConfigured()
}

// HomeHealthy probes the home GPU and reports whether it can take a job now
func (r *Router) HomeHealthy(ctx context.Context) bool {
	if r.home == nil || !r.home.IsConfigured() {
		return false
	}

	health, err := r.home.Health(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastHealthCheck = time.Now()
	if err != nil {
		r.stats.HomeAvailable = false
		return false
	}
	r.stats.HomeAvailable = health.GPUAvailable && !health.GPUBusy
	return r.stats.HomeAvailable
}

// Submit routes a generation job: home GPU first when healthy, serverless
// otherwise. A home failure falls through to serverless rather than failing
// the job.
func (r *Router) Submit(ctx context.Context, req *model.GenerationRequest) (*SubmitResult, error) {
	r.count(func(s *Stats) { s.TotalRequests++ })

	if r.HomeHealthy(ctx) {
		r.count(func(s *Stats) { s.HomeRequests++ })
		result, err := r.home.Generate(ctx, req.ImageData, &req.Params)
		if err == nil {
			return &SubmitResult{
				Provider: model.ProviderHome,
				Job: &model.RemoteJob{
					Status: model.RemoteStatusCompleted,
					Output: homeOutput(result),
				},
			}, nil
		}
		r.count(func(s *Stats) { s.HomeFailures++ })
		log.Printf("Home GPU generate failed, falling back to serverless: %v", err)
	}

	r.count(func(s *Stats) { s.RunPodRequests++ })
	jobID, err := r.runpod.Run(ctx, &client.RunInput{
		Endpoint:  model.EndpointGenerate,
		ImageData: req.ImageData,
		Params:    &req.Params,
	})
	if err != nil {
		r.count(func(s *Stats) { s.RunPodFailures++ })
		return nil, err
	}
	return &SubmitResult{Provider: model.ProviderRunPod, JobID: jobID}, nil
}

// Poll fetches the status of a serverless job
func (r *Router) Poll(ctx context.Context, jobID string) (*model.RemoteJob, error) {
	return r.runpod.Status(ctx, jobID)
}

// Preprocess runs the preprocessing pass on the home GPU if available.
// Returns nil with no error when no home GPU can take it; the caller then
// skips preprocessing.
func (r *Router) Preprocess(ctx context.Context, imageData string, params *model.GenerationParams) (*client.HomeResult, error) {
	if !r.HomeHealthy(ctx) {
		return nil, nil
	}
	r.count(func(s *Stats) { s.HomeRequests++ })
	result, err := r.home.Preprocess(ctx, imageData, params)
	if err != nil {
		r.count(func(s *Stats) { s.HomeFailures++ })
		return nil, err
	}
	return result, nil
}

// Wake nudges a provider so a worker is warm before the user hits Generate.
// Home GPU health counts as awake; otherwise a minimal health job is
// submitted to the serverless endpoint.
func (r *Router) Wake(ctx context.Context) error {
	if r.HomeHealthy(ctx) {
		return nil
	}
	_, err := r.runpod.Run(ctx, &client.RunInput{Endpoint: model.EndpointHealth})
	if err != nil {
		r.count(func(s *Stats) { s.RunPodFailures++ })
	}
	return err
}

// GetStats returns a snapshot of the router counters
func (r *Router) GetStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *Router) count(fn func(*Stats)) {
	r.mu.Lock()
	fn(&r.stats)
	r.mu.Unlock()
}

// homeOutput adapts the home GPU's synchronous result into the output shape
// the relay expects from a completed serverless job.
func homeOutput(result *client.HomeResult) map[string]interface{} {
	out := make(map[string]interface{}, len(result.Output)+2)
	for k, v := range result.Output {
		out[k] = v
	}
	if _, ok := out["status"]; !ok {
		out["status"] = result.Status
	}
	if result.Message != "" {
		if _, ok := out["message"]; !ok {
			out["message"] = result.Message
		}
	}
	return out
}
