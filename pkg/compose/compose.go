// Package compose drives one product-into-scene composition run.
//
// A run letterboxes both inputs to the model's square, marks the drop point
// on a copy of the scene, asks a vision model what surface lies under the
// mark, builds the composition prompt and sends the product and the unmarked
// scene to the image model. The returned square is cropped back to the
// scene's original aspect ratio.
package compose

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/menta2k/surface-composer/pkg/analyzer"
	"github.com/menta2k/surface-composer/pkg/client"
	"github.com/menta2k/surface-composer/pkg/letterbox"
	"github.com/menta2k/surface-composer/pkg/marker"
	"github.com/menta2k/surface-composer/pkg/prompt"
	"github.com/menta2k/surface-composer/pkg/surface"
	"github.com/menta2k/surface-composer/pkg/types"
)

// Request holds the inputs of one composition run
type Request struct {
	ProductImage       types.RasterImage
	ProductDescription string
	SceneImage         types.RasterImage
	DropPosition       types.RelativePosition
	Mode               types.PlacementMode
}

// Orchestrator runs compositions. It is safe for concurrent use as long as
// the configured clients are.
type Orchestrator struct {
	describer  *surface.Describer
	compositor client.Compositor
	analyzer   *analyzer.ImageAnalyzer
	annotator  *marker.Annotator
	target     int
	logger     *zap.Logger
	observer   func(State)
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithTarget overrides the square dimension sent to the model
func WithTarget(target int) Option {
	return func(o *Orchestrator) {
		o.target = target
	}
}

// WithLogger sets the logger; the default discards everything
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMarker overrides the drop marker style
func WithMarker(opts marker.Options) Option {
	return func(o *Orchestrator) {
		o.annotator = marker.NewWithOptions(opts)
	}
}

// WithObserver registers a callback invoked on every state transition
func WithObserver(fn func(State)) Option {
	return func(o *Orchestrator) {
		o.observer = fn
	}
}

// New creates an orchestrator. describer answers the surface question,
// compositor produces the edited scene; they may be the same client.
func New(describer client.Describer, compositor client.Compositor, opts ...Option) (*Orchestrator, error) {
	if describer == nil {
		return nil, errors.New("compose: describer client is required")
	}
	if compositor == nil {
		return nil, errors.New("compose: compositor client is required")
	}

	o := &Orchestrator{
		describer:  surface.NewDescriber(describer),
		compositor: compositor,
		analyzer:   analyzer.New(),
		annotator:  marker.New(),
		target:     letterbox.DefaultTarget,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.target <= 0 {
		return nil, fmt.Errorf("%w: target dimension %d", types.ErrInvalidImageDimensions, o.target)
	}
	return o, nil
}

// Target returns the square dimension used for model I/O
func (o *Orchestrator) Target() int {
	return o.target
}

// Compose runs the full pipeline. Description failures fall back to a
// generic surface phrase; every other failure aborts the run.
func (o *Orchestrator) Compose(ctx context.Context, req Request) (*types.CompositionResult, error) {
	run := &run{o: o, log: loggerFrom(ctx, o.logger), state: StateStart, started: time.Now()}
	o.notify(StateStart)

	result, err := run.execute(ctx, req)
	if err != nil {
		run.fail(err)
		return nil, err
	}
	return result, nil
}

type run struct {
	o       *Orchestrator
	log     *zap.Logger
	state   State
	started time.Time
}

func (r *run) advance(next State) {
	if !r.state.CanTransition(next) {
		r.log.Error("invalid state transition",
			zap.Stringer("from", r.state), zap.Stringer("to", next))
		return
	}
	r.state = next
	r.log.Debug("state", zap.Stringer("state", next))
	r.o.notify(next)
}

func (r *run) fail(err error) {
	from := r.state
	if !from.CanTransition(StateFailed) {
		r.log.Error("invalid state transition",
			zap.Stringer("from", from), zap.Stringer("to", StateFailed))
	}
	r.state = StateFailed
	r.o.notify(StateFailed)
	r.log.Error("composition failed",
		zap.Stringer("state", from),
		zap.Duration("elapsed", time.Since(r.started)),
		zap.Error(err))
}

func (r *run) execute(ctx context.Context, req Request) (*types.CompositionResult, error) {
	o := r.o
	log := r.log

	// Fatal steps enter their state as soon as their outcome is known, so a
	// failure leaves from the state of the step that failed.

	// 1. original scene dimensions
	info, err := o.analyzer.Inspect(req.SceneImage)
	r.advance(StateDimensionsRead)
	if err != nil {
		return nil, fmt.Errorf("read scene: %w", err)
	}
	if err := req.DropPosition.Validate(); err != nil {
		return nil, err
	}
	origW, origH := info.Width, info.Height
	log.Debug("scene dimensions", zap.Int("width", origW), zap.Int("height", origH))

	// 2. letterbox both images
	var paddedProduct, paddedScene types.RasterImage
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := letterbox.Pad(req.ProductImage, o.target)
		if err != nil {
			return fmt.Errorf("pad product: %w", err)
		}
		paddedProduct = p
		return gctx.Err()
	})
	g.Go(func() error {
		s, err := letterbox.Pad(req.SceneImage, o.target)
		if err != nil {
			return fmt.Errorf("pad scene: %w", err)
		}
		paddedScene = s
		return gctx.Err()
	})
	err = g.Wait()
	r.advance(StateResized)
	if err != nil {
		return nil, err
	}

	// 3. mark the drop point on a copy of the padded scene; a failure here
	// is a resize-stage failure since the position is already validated
	marked, err := o.annotator.Annotate(paddedScene, req.DropPosition, origW, origH)
	if err != nil {
		return nil, fmt.Errorf("mark scene: %w", err)
	}
	r.advance(StateMarked)

	// 4. describe the surface under the marker. Only cancellation escapes,
	// and it fails the run from Marked.
	desc, err := o.describer.Describe(ctx, marked)
	if err != nil {
		return nil, err
	}
	if desc.Fallback {
		log.Warn("surface description unavailable, using fallback", zap.Error(desc.Cause))
	} else {
		log.Info("surface described", zap.String("surface", desc.Text))
	}
	r.advance(StateDescribed)

	// 5. build the prompt
	instruction := prompt.CompositionPrompt(req.ProductDescription, desc.Text, req.Mode)

	// 6. compose product into the unmarked scene
	resp, err := o.compositor.Compose(ctx, paddedProduct, paddedScene, instruction)
	r.advance(StateComposed)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", types.ErrCompositionFailed, err)
	}

	// 7. pick the first image part
	part, ok := resp.FirstImage()
	if !ok {
		if text := resp.Text(); text != "" {
			return nil, fmt.Errorf("%w: model replied %q", types.ErrNoImageReturned, text)
		}
		return nil, types.ErrNoImageReturned
	}

	// 8. crop back to the original aspect ratio
	final, err := letterbox.Unpad(types.RasterImage{Data: part.Data, MIMEType: part.MIMEType}, origW, origH, o.target)
	r.advance(StateCropped)
	if err != nil {
		return nil, fmt.Errorf("crop result: %w", err)
	}

	result := &types.CompositionResult{
		FinalImage:          final,
		DebugImage:          marked,
		PromptUsed:          instruction,
		SurfaceDescription:  desc.Text,
		DescriptionFallback: desc.Fallback,
		OriginalWidth:       origW,
		OriginalHeight:      origH,
	}
	r.advance(StateDone)

	log.Info("composition complete",
		zap.Stringer("mode", req.Mode),
		zap.Int("width", final.Width),
		zap.Int("height", final.Height),
		zap.Bool("fallback", desc.Fallback),
		zap.Duration("elapsed", time.Since(r.started)))
	return result, nil
}

type loggerKey struct{}

// ContextWithLogger attaches a logger that overrides the orchestrator's for
// runs using ctx, typically one carrying a request id
func ContextWithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

func loggerFrom(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return fallback
}

func (o *Orchestrator) notify(s State) {
	if o.observer != nil {
		o.observer(s)
	}
}
