package model

// GenerationParams are the nail-layout parameters sent with a generation job.
// They are forwarded to the GPU worker untouched; only basic bounds are
// validated here.
type GenerationParams struct {
	NumNails        int     `json:"num_nails" validate:"required,min=50,max=720"`
	RadiusCM        float64 `json:"radius_cm" validate:"required,gt=0,lte=200"`
	MaxLines        int     `json:"max_lines" validate:"omitempty,min=100,max=10000"`
	ImageResolution int     `json:"image_resolution" validate:"omitempty,min=128,max=2048"`
	LineWeight      float64 `json:"line_weight" validate:"omitempty,gt=0,lte=1"`
}

// GenerationRequest is one client's generation attempt: the source image as a
// base64 payload plus its parameters. Consumed once and discarded after
// submission.
type GenerationRequest struct {
	ImageData string           `json:"imageData" validate:"required"`
	Params    GenerationParams `json:"params" validate:"required"`
}

// RemoteJob mirrors the remote compute API's view of a submitted job. It is
// never mutated locally; each poll replaces it wholesale.
type RemoteJob struct {
	ID     string                 `json:"id"`
	Status RemoteStatus           `json:"status"`
	Output map[string]interface{} `json:"output,omitempty"`
}

// OutputStatus returns the "status" field of the job output, or "" when the
// output carries none.
func (j *RemoteJob) OutputStatus() string {
	if j.Output == nil {
		return ""
	}
	s, _ := j.Output["status"].(string)
	return s
}

// OutputMessage returns the worker's error message, falling back to def when
// the output has no usable "message" field.
func (j *RemoteJob) OutputMessage(def string) string {
	if j.Output != nil {
		if m, ok := j.Output["message"].(string); ok && m != "" {
			return m
		}
	}
	return def
}
