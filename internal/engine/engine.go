package engine

import (
	"context"

	"image-optimizer-go/internal/options"
	"image-optimizer-go/internal/progress"
)

// Request describes one batch run.
type Request struct {
	// Paths are the selected files and directories, in selection order.
	Paths       []string
	Destination string
	Options     options.OptimizeOptions
}

// Engine optimizes a batch of images.
type Engine interface {
	// Optimize processes every image under req.Paths and returns one or more
	// outcomes per image in selection order. Per-item problems are reported
	// as Failure outcomes; the error is reserved for failures of the whole run.
	Optimize(ctx context.Context, req Request) ([]Outcome, error)
}

// Notifier receives one notification per processed image.
type Notifier interface {
	Publish(n progress.Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(n progress.Notification)

// Publish calls f(n).
func (f NotifierFunc) Publish(n progress.Notification) { f(n) }
