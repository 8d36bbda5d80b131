package client

import (
	"context"

	"github.com/menta2k/surface-composer/pkg/types"
)

// Describer answers a text instruction about one image with text
type Describer interface {
	Describe(ctx context.Context, instruction string, img types.RasterImage) (string, error)
}

// Compositor edits imageB using imageA as reference, guided by instruction
type Compositor interface {
	Compose(ctx context.Context, imageA, imageB types.RasterImage, instruction string) (*types.ModelResponse, error)
}

// Model is a backend offering both capabilities
type Model interface {
	Describer
	Compositor
}
