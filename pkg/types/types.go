package types

import (
	"fmt"
	"math"
	"strings"
)

// RasterImage is an encoded image payload together with its intrinsic size.
// Values are treated as immutable; transforms always return a new RasterImage.
type RasterImage struct {
	Data     []byte `json:"-"`
	MIMEType string `json:"mime_type"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
}

// Empty reports whether the image carries no payload
func (r RasterImage) Empty() bool {
	return len(r.Data) == 0
}

// AspectRatio returns width/height, or 0 for a degenerate image
func (r RasterImage) AspectRatio() float64 {
	if r.Height == 0 {
		return 0
	}
	return float64(r.Width) / float64(r.Height)
}

// RelativePosition is a point expressed as percentages of the content rectangle,
// i.e. of the visible image without letterbox padding.
type RelativePosition struct {
	XPercent float64 `json:"x_percent"`
	YPercent float64 `json:"y_percent"`
}

// Validate checks that both coordinates lie in [0,100]
func (p RelativePosition) Validate() error {
	if !inPercentRange(p.XPercent) || !inPercentRange(p.YPercent) {
		return fmt.Errorf("%w: (%.2f, %.2f) outside [0,100]", ErrInvalidPosition, p.XPercent, p.YPercent)
	}
	return nil
}

func inPercentRange(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 100
}

// PlacementMode selects how the product is applied to the surface.
// The zero value is Tile.
type PlacementMode int

const (
	// Tile treats the product as a repeating surface texture
	Tile PlacementMode = iota
	// Single places the product as one discrete object
	Single
)

func (m PlacementMode) String() string {
	switch m {
	case Single:
		return "single"
	default:
		return "tile"
	}
}

// ParsePlacementMode maps "tile" / "single" to a PlacementMode. An empty
// string yields Tile.
func ParsePlacementMode(s string) (PlacementMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "tile", "texture":
		return Tile, nil
	case "single", "object":
		return Single, nil
	default:
		return Tile, fmt.Errorf("%w: %q", ErrInvalidPlacementMode, s)
	}
}

// MarshalText implements encoding.TextMarshaler
func (m PlacementMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (m *PlacementMode) UnmarshalText(text []byte) error {
	parsed, err := ParsePlacementMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// CompositionResult is the output of one successful composition run
type CompositionResult struct {
	FinalImage          RasterImage `json:"final_image"`
	DebugImage          RasterImage `json:"debug_image"`
	PromptUsed          string      `json:"prompt_used"`
	SurfaceDescription  string      `json:"surface_description"`
	DescriptionFallback bool        `json:"description_fallback"`
	OriginalWidth       int         `json:"original_width"`
	OriginalHeight      int         `json:"original_height"`
}

// ResponsePart is one part of a model response. Image parts carry Data and
// an image MIME type; text parts carry Text.
type ResponsePart struct {
	Text     string
	MIMEType string
	Data     []byte
}

// IsImage reports whether the part carries an image payload
func (p ResponsePart) IsImage() bool {
	return len(p.Data) > 0 && strings.HasPrefix(strings.ToLower(p.MIMEType), "image/")
}

// ModelResponse is the response of a composition call
type ModelResponse struct {
	Parts []ResponsePart
}

// FirstImage returns the first image-bearing part
func (r *ModelResponse) FirstImage() (ResponsePart, bool) {
	if r == nil {
		return ResponsePart{}, false
	}
	for _, p := range r.Parts {
		if p.IsImage() {
			return p, true
		}
	}
	return ResponsePart{}, false
}

// Text concatenates all text parts
func (r *ModelResponse) Text() string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range r.Parts {
		if p.Text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(p.Text)
	}
	return b.String()
}
