package model

// RemoteStatus is the job state reported by the remote compute API
type RemoteStatus string

const (
	RemoteStatusInQueue    RemoteStatus = "IN_QUEUE"
	RemoteStatusInProgress RemoteStatus = "IN_PROGRESS"
	RemoteStatusCompleted  RemoteStatus = "COMPLETED"
	RemoteStatusFailed     RemoteStatus = "FAILED"
)

// Terminal reports whether the remote job can no longer change state
func (s RemoteStatus) Terminal() bool {
	return s == RemoteStatusCompleted || s == RemoteStatusFailed
}

// Compute endpoints understood by the GPU worker handler
type ComputeEndpoint string

const (
	EndpointGenerate   ComputeEndpoint = "generate"
	EndpointPreprocess ComputeEndpoint = "preprocess"
	EndpointHealth     ComputeEndpoint = "health"
)

// GPU providers
type Provider string

const (
	ProviderHome   Provider = "home"
	ProviderRunPod Provider = "runpod"
)

// Output status values inside a completed job's output payload
const (
	OutputStatusSuccess = "success"
)
