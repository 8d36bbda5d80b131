// Package letterbox converts images to and from the fixed-size square format
// the generative model works in.
//
// Pad scales the source uniformly onto an opaque black square so that its
// longer side touches the edge; Unpad cuts the same content rectangle back
// out of a square produced by the model. Both derive the rectangle from
// geometry.Compute with the original (pre-pad) dimensions.
package letterbox

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/menta2k/surface-composer/pkg/geometry"
	"github.com/menta2k/surface-composer/pkg/processing"
	"github.com/menta2k/surface-composer/pkg/types"
)

// DefaultTarget is the square dimension the model expects
const DefaultTarget = 1024

// Background fills the padding
var Background = color.NRGBA{0, 0, 0, 255}

// PadImage letterboxes img into a target x target square
func PadImage(img image.Image, target int) (*image.NRGBA, error) {
	b := img.Bounds()
	geom, err := geometry.Compute(b.Dx(), b.Dy(), target)
	if err != nil {
		return nil, err
	}

	content := geom.ContentPixels()
	canvas := imaging.New(target, target, Background)

	scaled := img
	if content.Dx() != b.Dx() || content.Dy() != b.Dy() {
		scaled = imaging.Resize(img, content.Dx(), content.Dy(), imaging.Lanczos)
	}
	return imaging.Overlay(canvas, scaled, content.Min, 1.0), nil
}

// Pad letterboxes src and encodes the square as JPEG at the fixed quality,
// whatever the source format was.
func Pad(src types.RasterImage, target int) (types.RasterImage, error) {
	img, err := processing.DecodeRaster(src)
	if err != nil {
		return types.RasterImage{}, err
	}

	square, err := PadImage(img, target)
	if err != nil {
		return types.RasterImage{}, err
	}
	return processing.FromImage(square, processing.FormatJPEG, processing.DefaultJPEGQuality)
}

// UnpadImage cuts the content rectangle for an originalWidth x originalHeight
// image out of a letterboxed square. A square smaller than target on either
// axis is rejected; a larger one is first scaled down to target x target.
func UnpadImage(square image.Image, originalWidth, originalHeight, target int) (*image.NRGBA, error) {
	geom, err := geometry.Compute(originalWidth, originalHeight, target)
	if err != nil {
		return nil, err
	}

	b := square.Bounds()
	if b.Dx() < target || b.Dy() < target {
		return nil, fmt.Errorf("%w: result is %dx%d, expected at least %dx%d",
			types.ErrMalformedModelOutput, b.Dx(), b.Dy(), target, target)
	}

	normalized := square
	if b.Dx() != target || b.Dy() != target {
		normalized = imaging.Resize(square, target, target, imaging.Lanczos)
	}

	return imaging.Crop(normalized, geom.ContentPixels()), nil
}

// Unpad decodes a model-produced square and crops it back to the original
// aspect ratio. The crop is encoded as PNG so no further loss is introduced.
func Unpad(square types.RasterImage, originalWidth, originalHeight, target int) (types.RasterImage, error) {
	img, err := processing.DecodeRaster(square)
	if err != nil {
		return types.RasterImage{}, fmt.Errorf("%w: %v", types.ErrMalformedModelOutput, err)
	}

	cropped, err := UnpadImage(img, originalWidth, originalHeight, target)
	if err != nil {
		return types.RasterImage{}, err
	}
	return processing.FromImage(cropped, processing.FormatPNG, 0)
}
