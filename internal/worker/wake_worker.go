package worker

import (
	"context"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/strandart/api/internal/gpu"
)

const TaskTypeWakeGPU = "gpu:wake"

// WakeScheduler enqueues detached wake-up tasks. It backs the hub's
// WakeDispatcher so a wake never runs on a connection's goroutine.
type WakeScheduler struct {
	client *asynq.Client
}

// NewWakeScheduler creates a scheduler over an asynq client
func NewWakeScheduler(client *asynq.Client) *WakeScheduler {
	return &WakeScheduler{client: client}
}

// DispatchWake queues one wake task. Fire and forget: no retries.
func (s *WakeScheduler) DispatchWake(ctx context.Context) error {
	task := asynq.NewTask(TaskTypeWakeGPU, nil)
	_, err := s.client.EnqueueContext(ctx, task,
		asynq.Queue("wake"),
		asynq.MaxRetry(0),
		asynq.Retention(time.Hour),
	)
	return err
}

// WakeWorker performs the wake-up call against the GPU router
type WakeWorker struct {
	router *gpu.Router
}

// NewWakeWorker creates a wake worker
func NewWakeWorker(router *gpu.Router) *WakeWorker {
	return &WakeWorker{router: router}
}

// ProcessTask submits a minimal health job to warm a worker. Errors stop
// here: a failed wake is logged and the task still succeeds, so asynq never
// retries and nothing reaches the client.
func (w *WakeWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := w.router.Wake(ctx); err != nil {
		log.Printf("GPU wake-up call failed: %v", err)
		return nil
	}

	log.Println("GPU wake-up call submitted")
	return nil
}
