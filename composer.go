// Package surfacecomposer places a product image onto a surface of a scene
// photo using a generative image model.
//
// The caller supplies a product image, a scene image and a drop point given
// as percentages of the scene. Both images are letterboxed onto the model's
// square, a vision model describes the surface under the drop point, and an
// image model renders the product onto that surface. The result is cropped
// back to the scene's original aspect ratio.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//		"os"
//
//		surfacecomposer "github.com/menta2k/surface-composer"
//		"github.com/menta2k/surface-composer/pkg/gemini"
//		"github.com/menta2k/surface-composer/pkg/types"
//	)
//
//	func main() {
//		ctx := context.Background()
//		model, err := gemini.NewClient(ctx, gemini.Config{APIKey: os.Getenv("GEMINI_API_KEY")})
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		composer, err := surfacecomposer.New(model, model)
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		result, err := composer.ComposeFiles(ctx, "tile.png", "kitchen.jpg", "a hexagonal marble tile",
//			types.RelativePosition{XPercent: 40, YPercent: 80}, types.Tile)
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		if _, err := surfacecomposer.SaveResult(result, "output", surfacecomposer.SaveOptions{Debug: true}); err != nil {
//			log.Fatal(err)
//		}
//	}
//
// The package consists of these components:
//
// 1. Geometry (pkg/geometry): maps between the original image and the square
// 2. Letterbox (pkg/letterbox): pads to the square and crops back
// 3. Marker (pkg/marker): draws the drop point for the vision model
// 4. Prompt (pkg/prompt): builds the description and composition instructions
// 5. Compose (pkg/compose): runs the pipeline against the model clients
//
// Model backends live in pkg/gemini, pkg/openai and pkg/ollama.
package surfacecomposer

import (
	"context"
	"fmt"
	"os"

	"github.com/menta2k/surface-composer/internal/utils"
	"github.com/menta2k/surface-composer/pkg/analyzer"
	"github.com/menta2k/surface-composer/pkg/client"
	"github.com/menta2k/surface-composer/pkg/compose"
	"github.com/menta2k/surface-composer/pkg/geometry"
	"github.com/menta2k/surface-composer/pkg/processing"
	"github.com/menta2k/surface-composer/pkg/types"
)

// Version of the surface composer library
const Version = "1.0.0"

// Composer provides a high-level interface for product compositing
type Composer struct {
	analyzer     *analyzer.ImageAnalyzer
	orchestrator *compose.Orchestrator
}

// New creates a Composer with default settings
func New(describer client.Describer, compositor client.Compositor, opts ...compose.Option) (*Composer, error) {
	orch, err := compose.New(describer, compositor, opts...)
	if err != nil {
		return nil, err
	}
	return &Composer{
		analyzer:     analyzer.New(),
		orchestrator: orch,
	}, nil
}

// NewWithConfig creates a Composer with a custom input analyzer
func NewWithConfig(analyzerConfig analyzer.Config, describer client.Describer, compositor client.Compositor, opts ...compose.Option) (*Composer, error) {
	c, err := New(describer, compositor, opts...)
	if err != nil {
		return nil, err
	}
	c.analyzer = analyzer.NewWithConfig(analyzerConfig)
	return c, nil
}

// SavedFiles lists the files written by SaveResult
type SavedFiles struct {
	Final  string
	Debug  string
	Prompt string
}

// Compose runs one composition
func (c *Composer) Compose(ctx context.Context, req compose.Request) (*types.CompositionResult, error) {
	return c.orchestrator.Compose(ctx, req)
}

// ComposeFiles loads both images from paths, URLs or data URIs and composes
func (c *Composer) ComposeFiles(ctx context.Context, productSource, sceneSource, productDescription string, pos types.RelativePosition, mode types.PlacementMode) (*types.CompositionResult, error) {
	product, err := c.LoadImage(productSource)
	if err != nil {
		return nil, fmt.Errorf("failed to load product: %w", err)
	}

	scene, err := c.LoadImage(sceneSource)
	if err != nil {
		return nil, fmt.Errorf("failed to load scene: %w", err)
	}

	return c.Compose(ctx, compose.Request{
		ProductImage:       product,
		ProductDescription: productDescription,
		SceneImage:         scene,
		DropPosition:       pos,
		Mode:               mode,
	})
}

// LoadImage loads and validates an input image
func (c *Composer) LoadImage(source string) (types.RasterImage, error) {
	if err := utils.CheckImageSource(source); err != nil {
		return types.RasterImage{}, err
	}

	img, err := processing.LoadRaster(source)
	if err != nil {
		return types.RasterImage{}, err
	}

	if _, err := c.analyzer.Inspect(img); err != nil {
		return types.RasterImage{}, fmt.Errorf("image validation failed: %w", err)
	}
	return img, nil
}

// PreviewGeometry returns the letterbox geometry of a scene and where the
// drop point lands on the square, without calling any model
func (c *Composer) PreviewGeometry(scene types.RasterImage, pos types.RelativePosition) (geometry.AspectGeometry, geometry.Point, error) {
	info, err := c.analyzer.Inspect(scene)
	if err != nil {
		return geometry.AspectGeometry{}, geometry.Point{}, err
	}

	geom, err := geometry.Compute(info.Width, info.Height, c.orchestrator.Target())
	if err != nil {
		return geometry.AspectGeometry{}, geometry.Point{}, err
	}

	p, err := geometry.ContentPercentToSquarePixel(pos, geom)
	if err != nil {
		return geometry.AspectGeometry{}, geometry.Point{}, err
	}
	return geom, p, nil
}

// SaveOptions controls the files written by SaveResult
type SaveOptions struct {
	Format  string
	Quality int
	// Debug writes the marked scene as debug.<DebugFormat>
	Debug       bool
	DebugFormat string
}

// SaveResult writes final.<format>, the debug image when requested and
// prompt.txt into outputDir
func SaveResult(result *types.CompositionResult, outputDir string, opts SaveOptions) (SavedFiles, error) {
	if err := utils.EnsureDir(outputDir); err != nil {
		return SavedFiles{}, fmt.Errorf("failed to create output directory: %w", err)
	}
	if opts.Format == "" {
		opts.Format = processing.FormatPNG
	}
	if opts.DebugFormat == "" {
		opts.DebugFormat = processing.FormatJPEG
	}
	if opts.Quality <= 0 {
		opts.Quality = processing.DefaultJPEGQuality
	}

	var saved SavedFiles

	saved.Final = utils.OutputPath(outputDir, "final", opts.Format)
	if err := processing.SaveRaster(result.FinalImage, saved.Final, opts.Format, opts.Quality, false); err != nil {
		return SavedFiles{}, fmt.Errorf("failed to save final image: %w", err)
	}

	if opts.Debug && !result.DebugImage.Empty() {
		saved.Debug = utils.OutputPath(outputDir, "debug", opts.DebugFormat)
		if err := processing.SaveRaster(result.DebugImage, saved.Debug, opts.DebugFormat, opts.Quality, false); err != nil {
			return SavedFiles{}, fmt.Errorf("failed to save debug image: %w", err)
		}
	}

	saved.Prompt = utils.OutputPath(outputDir, "prompt", "txt")
	if err := os.WriteFile(saved.Prompt, []byte(result.PromptUsed+"\n"), 0644); err != nil {
		return SavedFiles{}, fmt.Errorf("failed to save prompt: %w", err)
	}

	return saved, nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}

// Request is an alias for compose.Request so callers need only this package
type Request = compose.Request
