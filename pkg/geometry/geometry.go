// Package geometry maps between an arbitrarily sized image and the centered
// content rectangle it occupies inside a fixed-size square canvas.
//
// The letterbox codec, the marker annotator and the crop-back step all derive
// their rectangles from Compute, so a given (width, height, target) triple
// always yields the same placement.
package geometry

import (
	"fmt"
	"image"
	"math"

	"github.com/menta2k/surface-composer/pkg/types"
)

// AspectGeometry describes where the scaled original sits inside the square
type AspectGeometry struct {
	ContentWidth  float64 `json:"content_width"`
	ContentHeight float64 `json:"content_height"`
	OffsetX       float64 `json:"offset_x"`
	OffsetY       float64 `json:"offset_y"`
	Target        int     `json:"target"`
}

// Point is a position in square-canvas pixels
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is the content rectangle in square-canvas pixels
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Compute returns the content rectangle for an original of the given size
// letterboxed into a targetDimension square.
func Compute(originalWidth, originalHeight, targetDimension int) (AspectGeometry, error) {
	if originalWidth <= 0 || originalHeight <= 0 {
		return AspectGeometry{}, fmt.Errorf("%w: %dx%d", types.ErrInvalidImageDimensions, originalWidth, originalHeight)
	}
	if targetDimension <= 0 {
		return AspectGeometry{}, fmt.Errorf("%w: target %d", types.ErrInvalidImageDimensions, targetDimension)
	}

	target := float64(targetDimension)
	r := float64(originalWidth) / float64(originalHeight)

	var cw, ch float64
	if r > 1 {
		cw = target
		ch = target / r
	} else {
		ch = target
		cw = target * r
	}

	return AspectGeometry{
		ContentWidth:  cw,
		ContentHeight: ch,
		OffsetX:       (target - cw) / 2,
		OffsetY:       (target - ch) / 2,
		Target:        targetDimension,
	}, nil
}

// ContentPercentToSquarePixel maps a content-relative position to square pixels
func ContentPercentToSquarePixel(pos types.RelativePosition, geom AspectGeometry) (Point, error) {
	if err := pos.Validate(); err != nil {
		return Point{}, err
	}
	return Point{
		X: geom.OffsetX + (pos.XPercent/100)*geom.ContentWidth,
		Y: geom.OffsetY + (pos.YPercent/100)*geom.ContentHeight,
	}, nil
}

// SquarePixelToContentPercent is the inverse of ContentPercentToSquarePixel.
// Points in the padding map outside [0,100].
func SquarePixelToContentPercent(p Point, geom AspectGeometry) types.RelativePosition {
	var pos types.RelativePosition
	if geom.ContentWidth > 0 {
		pos.XPercent = (p.X - geom.OffsetX) / geom.ContentWidth * 100
	}
	if geom.ContentHeight > 0 {
		pos.YPercent = (p.Y - geom.OffsetY) / geom.ContentHeight * 100
	}
	return pos
}

// SquareToContentRect returns the content rectangle inside the square
func SquareToContentRect(geom AspectGeometry) Rect {
	return Rect{
		X:      geom.OffsetX,
		Y:      geom.OffsetY,
		Width:  geom.ContentWidth,
		Height: geom.ContentHeight,
	}
}

// Pixels rounds the rectangle to whole pixels. Pad and unpad both use this
// rounding, clamped to the square, so the crop lands exactly on the pasted
// content.
func (r Rect) Pixels(target int) image.Rectangle {
	w := clampInt(int(math.Round(r.Width)), 1, target)
	h := clampInt(int(math.Round(r.Height)), 1, target)
	x := clampInt(int(math.Round(r.X)), 0, target-w)
	y := clampInt(int(math.Round(r.Y)), 0, target-h)
	return image.Rect(x, y, x+w, y+h)
}

// ContentPixels is shorthand for SquareToContentRect(geom).Pixels(geom.Target)
func (g AspectGeometry) ContentPixels() image.Rectangle {
	return SquareToContentRect(g).Pixels(g.Target)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
