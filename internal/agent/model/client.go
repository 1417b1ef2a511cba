// Package model talks to the hosted vision model that does the actual text
// recognition.
package model

import (
	"context"

	"github.com/feichai0017/vision-ocr/internal/models"
)

// Client sends one encoded image with the prompt for its format and returns
// the backend's raw text. Implementations must be safe for concurrent use.
type Client interface {
	Name() string
	Query(ctx context.Context, req models.OCRRequest) (string, error)
}

// ModelLister is implemented by backends that can enumerate their models.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// Closer is implemented by backends holding connections.
type Closer interface {
	Close() error
}
