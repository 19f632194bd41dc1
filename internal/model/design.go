package model

import "time"

// Design is a user's saved string-art project: the source image, the nail
// layout it was generated with and, once generated, the winding sequence.
type Design struct {
	ID          string           `json:"id"`
	UserID      string           `json:"userId"`
	Name        string           `json:"name"`
	Params      GenerationParams `json:"params"`
	ImageURL    string           `json:"imageUrl,omitempty"`
	SequenceURL string           `json:"sequenceUrl,omitempty"`
	Sequence    []int            `json:"sequence,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// DesignCreateRequest creates a new design from an uploaded image
type DesignCreateRequest struct {
	Name      string           `json:"name" validate:"required,min=1,max=120"`
	ImageData string           `json:"imageData" validate:"required"`
	Params    GenerationParams `json:"params" validate:"required"`
}

// DesignUpdateRequest updates a design's name, parameters or result sequence
type DesignUpdateRequest struct {
	Name     *string           `json:"name" validate:"omitempty,min=1,max=120"`
	Params   *GenerationParams `json:"params" validate:"omitempty"`
	Sequence []int             `json:"sequence" validate:"omitempty,min=2"`
}

// DesignListResponse is the paginated-less listing of a user's designs
type DesignListResponse struct {
	Designs []*Design `json:"designs"`
	Total   int       `json:"total"`
}
