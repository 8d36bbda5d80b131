package types

import "errors"

// Fatal error kinds. Callers match them with errors.Is.
var (
	ErrInvalidImageDimensions = errors.New("invalid image dimensions")
	ErrInvalidPosition        = errors.New("invalid position")
	ErrInvalidPlacementMode   = errors.New("invalid placement mode")
	ErrUnreadableImage        = errors.New("unreadable image")
	ErrMalformedModelOutput   = errors.New("malformed model output")
	ErrNoImageReturned        = errors.New("no image returned")
	ErrCompositionFailed      = errors.New("composition call failed")
)

// ErrDescriptionUnavailable marks a failed or empty surface description.
// It is recoverable and never returned by the orchestrator.
var ErrDescriptionUnavailable = errors.New("description unavailable")

// IsInputError reports whether err was caused by the caller's inputs.
// Retrying with the same inputs will not help.
func IsInputError(err error) bool {
	return errors.Is(err, ErrInvalidImageDimensions) ||
		errors.Is(err, ErrInvalidPosition) ||
		errors.Is(err, ErrInvalidPlacementMode) ||
		errors.Is(err, ErrUnreadableImage)
}

// IsModelError reports whether err was caused by the generative model.
// The same inputs may succeed on retry.
func IsModelError(err error) bool {
	return errors.Is(err, ErrMalformedModelOutput) ||
		errors.Is(err, ErrNoImageReturned) ||
		errors.Is(err, ErrCompositionFailed)
}
