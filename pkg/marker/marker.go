// Package marker burns a visible drop-position marker onto a letterboxed
// square. The marked copy guides the surface description call and doubles
// as the debug artifact; the unmarked square is left untouched.
package marker

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/fogleman/gg"

	"github.com/menta2k/surface-composer/pkg/geometry"
	"github.com/menta2k/surface-composer/pkg/processing"
	"github.com/menta2k/surface-composer/pkg/types"
)

// Options controls marker appearance
type Options struct {
	Fill        color.Color
	Outline     color.Color
	MinRadius   float64
	RadiusRatio float64
}

// DefaultOptions returns a red dot with a white outline
func DefaultOptions() Options {
	return Options{
		Fill:        color.NRGBA{255, 0, 0, 255},
		Outline:     color.NRGBA{255, 255, 255, 255},
		MinRadius:   5,
		RadiusRatio: 0.015,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Fill == nil {
		o.Fill = d.Fill
	}
	if o.Outline == nil {
		o.Outline = d.Outline
	}
	if o.MinRadius <= 0 {
		o.MinRadius = d.MinRadius
	}
	if o.RadiusRatio <= 0 {
		o.RadiusRatio = d.RadiusRatio
	}
	return o
}

// Radius returns the marker radius for a width x height image
func (o Options) Radius(width, height int) float64 {
	o = o.withDefaults()
	return math.Max(o.MinRadius, float64(min(width, height))*o.RadiusRatio)
}

// OutlineWidth returns the stroke width used for the outline
func (o Options) OutlineWidth(width, height int) float64 {
	return math.Max(1.5, o.Radius(width, height)*0.25)
}

// Extent is the furthest distance from the marker center a drawn pixel can
// reach, including the outline stroke and anti-aliasing.
func (o Options) Extent(width, height int) float64 {
	return o.Radius(width, height) + o.OutlineWidth(width, height)/2 + 1
}

// Annotator draws markers with fixed options
type Annotator struct {
	opts Options
}

// New creates an Annotator with default options
func New() *Annotator {
	return &Annotator{opts: DefaultOptions()}
}

// NewWithOptions creates an Annotator with custom options
func NewWithOptions(opts Options) *Annotator {
	return &Annotator{opts: opts.withDefaults()}
}

// Options returns the annotator's options
func (a *Annotator) Options() Options {
	return a.opts
}

// AnnotateImage draws the marker on a copy of padded. The geometry is
// recomputed from the original dimensions with padded's width as target.
func (a *Annotator) AnnotateImage(padded image.Image, pos types.RelativePosition, originalWidth, originalHeight int) (*image.RGBA, image.Point, error) {
	b := padded.Bounds()
	geom, err := geometry.Compute(originalWidth, originalHeight, b.Dx())
	if err != nil {
		return nil, image.Point{}, err
	}

	center, err := geometry.ContentPercentToSquarePixel(pos, geom)
	if err != nil {
		return nil, image.Point{}, err
	}

	// NewContextForImage copies the pixels into a fresh RGBA
	dc := gg.NewContextForImage(padded)
	radius := a.opts.Radius(b.Dx(), b.Dy())

	dc.DrawCircle(center.X, center.Y, radius)
	dc.SetColor(a.opts.Fill)
	dc.FillPreserve()
	dc.SetColor(a.opts.Outline)
	dc.SetLineWidth(a.opts.OutlineWidth(b.Dx(), b.Dy()))
	dc.Stroke()

	out, ok := dc.Image().(*image.RGBA)
	if !ok {
		out = image.NewRGBA(dc.Image().Bounds())
		draw.Draw(out, out.Bounds(), dc.Image(), out.Bounds().Min, draw.Src)
	}
	return out, image.Pt(int(math.Round(center.X)), int(math.Round(center.Y))), nil
}

// Annotate decodes a padded square, marks it and encodes the copy as PNG.
// Only the marker pixels differ from the decoded input.
func (a *Annotator) Annotate(padded types.RasterImage, pos types.RelativePosition, originalWidth, originalHeight int) (types.RasterImage, error) {
	if err := pos.Validate(); err != nil {
		return types.RasterImage{}, err
	}

	img, err := processing.DecodeRaster(padded)
	if err != nil {
		return types.RasterImage{}, err
	}

	marked, _, err := a.AnnotateImage(img, pos, originalWidth, originalHeight)
	if err != nil {
		return types.RasterImage{}, err
	}
	return processing.FromImage(marked, processing.FormatPNG, 0)
}

// Annotate marks padded with the default options
func Annotate(padded types.RasterImage, pos types.RelativePosition, originalWidth, originalHeight int) (types.RasterImage, error) {
	return New().Annotate(padded, pos, originalWidth, originalHeight)
}
