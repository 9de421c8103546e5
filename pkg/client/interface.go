package client

import (
	"context"
	"io"

	"github.com/menta2k/cover-studio/pkg/types"
)

// LayoutRequest is the input of one layout generation call.
type LayoutRequest struct {
	Image       []byte // encoded cropped image
	MimeType    string
	Title       string
	FilterLabel string // human-readable filter style
	Prompt      string // full model prompt; empty uses LayoutPrompt
}

// LayoutClient proposes a text layout for an image.
type LayoutClient interface {
	GenerateLayout(ctx context.Context, req LayoutRequest) (*types.GeneratedLayout, error)
}

// AnimationRequest is the input of an animation job.
type AnimationRequest struct {
	Prompt      string
	Image       []byte // composited still
	MimeType    string
	AspectRatio string // wire value, "16:9" or "9:16"
}

// JobID identifies an animation job on the remote service.
type JobID string

// JobStatus is one poll result.
type JobStatus struct {
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
	URI   string `json:"uri,omitempty"`
}

// AnimationClient drives an asynchronous animation job.
type AnimationClient interface {
	CreateJob(ctx context.Context, req AnimationRequest) (JobID, error)
	PollJob(ctx context.Context, id JobID) (JobStatus, error)
	Download(ctx context.Context, uri string) (io.ReadCloser, error)
}
