package relay

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/strandart/api/internal/client"
	"github.com/strandart/api/internal/gpu"
	"github.com/strandart/api/internal/model"
)

// Terminal errors of a generation attempt. All are session-local; nothing
// here escalates past the attempt that produced it.
var (
	ErrRemoteJobFailed = errors.New("remote job failed")
	ErrTimedOut        = errors.New("generation timed out")
)

// Status lines sent to the client. Tests assert against these.
const (
	MsgMisconfigured = "Server config error: compute API credentials are missing"
	MsgQueuedToGPU   = "Job queued on GPU, waiting for a worker"
	MsgInQueue       = "Job is in queue..."
	MsgGenerating    = "Generating on GPU, this can take a minute..."
	MsgComplete      = "Generation complete, sending result"
	MsgPollError     = "Error checking job status"
	MsgTimedOut      = "Job timed out"
	MsgCancelled     = "Generation cancelled"

	defaultGPUError = "Unknown GPU error"
)

// Compute is the session's view of the GPU routing layer
type Compute interface {
	Configured() bool
	Submit(ctx context.Context, req *model.GenerationRequest) (*gpu.SubmitResult, error)
	Poll(ctx context.Context, jobID string) (*model.RemoteJob, error)
}

// Emitter delivers events back to the connected client. Implementations must
// not block the caller for long; the hub buffers per-client sends.
type Emitter interface {
	Status(msg string)
	Progress(percent float64)
	FinalSequence(output map[string]interface{})
}

// Options bound the relay's waits. Durations are wall-clock seconds in
// production; tests inject a fake clock instead of shrinking them.
type Options struct {
	SubmitTimeout time.Duration
	PollTimeout   time.Duration
	PollInterval  time.Duration
	MaxWait       time.Duration
	Clock         Clock
}

// DefaultOptions returns the production timeouts: 30s submit, 10s poll, 2s
// between polls, 5 minute ceiling per attempt.
func DefaultOptions() Options {
	return Options{
		SubmitTimeout: 30 * time.Second,
		PollTimeout:   10 * time.Second,
		PollInterval:  2 * time.Second,
		MaxWait:       300 * time.Second,
		Clock:         NewRealClock(),
	}
}

// Session relays one client's generation attempts: submit to the compute
// layer, poll until terminal, translate remote state into status/progress
// events. One Session per connection; sessions share nothing.
type Session struct {
	compute Compute
	emitter Emitter
	opts    Options

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewSession creates a relay session for one connected client
func NewSession(compute Compute, emitter Emitter, opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = NewRealClock()
	}
	return &Session{compute: compute, emitter: emitter, opts: opts}
}

// StartGeneration runs one generation attempt end to end. It blocks until a
// terminal event has been emitted: final result, failure, timeout or cancel.
// Every error path emits exactly one status event before returning.
func (s *Session) StartGeneration(ctx context.Context, req *model.GenerationRequest) error {
	if !s.compute.Configured() {
		s.emitter.Status(MsgMisconfigured)
		return client.ErrNotConfigured
	}

	genCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.setCancel(cancel)
	defer s.clearCancel()

	submitCtx, submitCancel := context.WithTimeout(genCtx, s.opts.SubmitTimeout)
	result, err := s.compute.Submit(submitCtx, req)
	submitCancel()
	if err != nil {
		if genCtx.Err() != nil {
			s.emitter.Status(MsgCancelled)
			return genCtx.Err()
		}
		var rejected *client.RemoteRejectedError
		if errors.As(err, &rejected) {
			msg := rejected.Message
			if msg == "" {
				msg = defaultGPUError
			}
			s.emitter.Status("GPU server error: " + msg)
		} else {
			s.emitter.Status(fmt.Sprintf("Error connecting to GPU: %v", err))
		}
		return err
	}

	s.emitter.Status(MsgQueuedToGPU)
	s.emitter.Progress(5)

	// Synchronous providers (home GPU) hand back the finished job with the
	// submission; skip straight to the terminal branch.
	if result.Job != nil {
		return s.finish(result.Job)
	}

	log.Printf("Relay: job %s submitted via %s, polling", result.JobID, result.Provider)
	return s.pollLoop(genCtx, result.JobID)
}

// Cancel aborts the in-flight generation attempt, if any. The poll loop exits
// at its next suspension point and emits a single cancelled status. Returns
// false when nothing was running.
func (s *Session) Cancel() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return false
	}
	s.cancel()
	s.cancel = nil
	return true
}

// pollLoop polls the remote job every PollInterval until it reaches a
// terminal state, the MaxWait ceiling passes, or the attempt is cancelled.
// The wait is the only suspension point; other sessions are never blocked.
func (s *Session) pollLoop(ctx context.Context, jobID string) error {
	clock := s.opts.Clock
	start := clock.Now()

	for {
		select {
		case <-ctx.Done():
			s.emitter.Status(MsgCancelled)
			return ctx.Err()
		case <-clock.After(s.opts.PollInterval):
		}

		pollCtx, pollCancel := context.WithTimeout(ctx, s.opts.PollTimeout)
		job, err := s.compute.Poll(pollCtx, jobID)
		pollCancel()
		if err != nil {
			if ctx.Err() != nil {
				s.emitter.Status(MsgCancelled)
				return ctx.Err()
			}
			s.emitter.Status(MsgPollError)
			return err
		}

		switch job.Status {
		case model.RemoteStatusInQueue:
			s.emitter.Status(MsgInQueue)
			s.emitter.Progress(10)

		case model.RemoteStatusInProgress:
			s.emitter.Status(MsgGenerating)
			s.emitter.Progress(runningProgress(clock.Now().Sub(start)))

		case model.RemoteStatusCompleted:
			return s.finish(job)

		case model.RemoteStatusFailed:
			s.emitter.Status("GPU error: " + job.OutputMessage(defaultGPUError))
			return ErrRemoteJobFailed

		default:
			// Unknown remote status: no events, keep polling until the
			// ceiling catches it.
		}

		if clock.Now().Sub(start) > s.opts.MaxWait {
			s.emitter.Status(MsgTimedOut)
			return ErrTimedOut
		}
	}
}

// finish handles a COMPLETED job: the output payload decides whether the
// attempt is a success (final_sequence) or a worker-side failure.
func (s *Session) finish(job *model.RemoteJob) error {
	s.emitter.Progress(100)
	s.emitter.Status(MsgComplete)

	if job.OutputStatus() == model.OutputStatusSuccess {
		s.emitter.FinalSequence(job.Output)
		return nil
	}

	s.emitter.Status("GPU error: " + job.OutputMessage(defaultGPUError))
	return ErrRemoteJobFailed
}

// runningProgress is a cosmetic linear estimate: the remote side reports no
// real progress, so climb from 15 and plateau at 90 until completion.
func runningProgress(elapsed time.Duration) float64 {
	p := 15 + elapsed.Seconds()*1.5
	if p > 90 {
		return 90
	}
	return p
}

func (s *Session) setCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
}

func (s *Session) clearCancel() {
	s.mu.Lock()
	s.cancel = nil
	s.mu.Unlock()
}
