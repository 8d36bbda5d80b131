package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	surfacecomposer "github.com/menta2k/surface-composer"
	"github.com/menta2k/surface-composer/internal/logger"
	"github.com/menta2k/surface-composer/pkg/compose"
	"github.com/menta2k/surface-composer/pkg/geometry"
	"github.com/menta2k/surface-composer/pkg/processing"
	"github.com/menta2k/surface-composer/pkg/types"
)

// Handler serves the composition API
type Handler struct {
	composer       *surfacecomposer.Composer
	log            *logger.Logger
	target         int
	maxUploadBytes int64
	slots          chan struct{}
}

// Options configures a Handler
type Options struct {
	Target        int
	MaxUploadMB   int
	MaxConcurrent int
}

// NewHandler creates a handler; zero options fall back to defaults
func NewHandler(composer *surfacecomposer.Composer, log *logger.Logger, opts Options) *Handler {
	if log == nil {
		log = logger.Nop()
	}
	if opts.Target <= 0 {
		opts.Target = 1024
	}
	if opts.MaxUploadMB <= 0 {
		opts.MaxUploadMB = 20
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	return &Handler{
		composer:       composer,
		log:            log,
		target:         opts.Target,
		maxUploadBytes: int64(opts.MaxUploadMB) << 20,
		slots:          make(chan struct{}, opts.MaxConcurrent),
	}
}

// health
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": surfacecomposer.GetVersion()})
}

type geometryRequest struct {
	Width    int     `json:"width" binding:"required"`
	Height   int     `json:"height" binding:"required"`
	Target   int     `json:"target"`
	XPercent float64 `json:"x_percent"`
	YPercent float64 `json:"y_percent"`
}

// geometry preview: where the content and a drop point land on the square
func (h *Handler) geometryHandler(c *gin.Context) {
	var req geometryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Target == 0 {
		req.Target = h.target
	}

	geom, err := geometry.Compute(req.Width, req.Height, req.Target)
	if err != nil {
		h.abort(c, err)
		return
	}
	p, err := geometry.ContentPercentToSquarePixel(types.RelativePosition{XPercent: req.XPercent, YPercent: req.YPercent}, geom)
	if err != nil {
		h.abort(c, err)
		return
	}

	// the marker lands on a whole pixel; report the position it really covers
	pixel := geometry.Point{X: math.Round(p.X), Y: math.Round(p.Y)}
	covered := geometry.SquarePixelToContentPercent(pixel, geom)

	content := geom.ContentPixels()
	c.JSON(http.StatusOK, gin.H{
		"geometry": geom,
		"content_rect": gin.H{
			"x":      content.Min.X,
			"y":      content.Min.Y,
			"width":  content.Dx(),
			"height": content.Dy(),
		},
		"point":          gin.H{"x": p.X, "y": p.Y},
		"pixel":          gin.H{"x": int(pixel.X), "y": int(pixel.Y)},
		"marker_percent": covered,
	})
}

// compose: multipart product + scene, description, x, y, mode
func (h *Handler) composeHandler(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)

	product, err := h.formImage(c, "product")
	if err != nil {
		h.abort(c, err)
		return
	}
	scene, err := h.formImage(c, "scene")
	if err != nil {
		h.abort(c, err)
		return
	}

	x, errX := strconv.ParseFloat(c.DefaultPostForm("x", "50"), 64)
	y, errY := strconv.ParseFloat(c.DefaultPostForm("y", "50"), 64)
	if errX != nil || errY != nil {
		h.abort(c, fmt.Errorf("%w: x and y must be numbers", types.ErrInvalidPosition))
		return
	}
	mode, err := types.ParsePlacementMode(c.PostForm("mode"))
	if err != nil {
		h.abort(c, err)
		return
	}

	select {
	case h.slots <- struct{}{}:
		defer func() { <-h.slots }()
	case <-c.Request.Context().Done():
		h.abort(c, c.Request.Context().Err())
		return
	}

	requestID := c.GetString(requestIDKey)
	ctx := compose.ContextWithLogger(c.Request.Context(), h.log.With("request_id", requestID).Zap())

	result, err := h.composer.Compose(ctx, compose.Request{
		ProductImage:       product,
		ProductDescription: c.PostForm("description"),
		SceneImage:         scene,
		DropPosition:       types.RelativePosition{XPercent: x, YPercent: y},
		Mode:               mode,
	})
	if err != nil {
		h.abort(c, err)
		return
	}

	if c.Query("output") == "image" {
		c.Data(http.StatusOK, result.FinalImage.MIMEType, result.FinalImage.Data)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"request_id":           requestID,
		"prompt":               result.PromptUsed,
		"surface_description":  result.SurfaceDescription,
		"description_fallback": result.DescriptionFallback,
		"original_width":       result.OriginalWidth,
		"original_height":      result.OriginalHeight,
		"final_image":          processing.DataURI(result.FinalImage),
		"debug_image":          processing.DataURI(result.DebugImage),
	})
}

func (h *Handler) formImage(c *gin.Context, field string) (types.RasterImage, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return types.RasterImage{}, errRequestTooLarge
		}
		return types.RasterImage{}, fmt.Errorf("%w: missing %s file", errBadRequest, field)
	}
	data, err := readFormFile(fh)
	if err != nil {
		return types.RasterImage{}, fmt.Errorf("%w: %s: %v", errBadRequest, field, err)
	}
	img, err := processing.ReadRaster(data)
	if err != nil {
		return types.RasterImage{}, fmt.Errorf("%s: %w", field, err)
	}
	return img, nil
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

var (
	errBadRequest      = errors.New("bad request")
	errRequestTooLarge = errors.New("request too large")
)

// statusFor maps pipeline errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, types.ErrUnreadableImage),
		errors.Is(err, types.ErrInvalidPlacementMode):
		return http.StatusBadRequest
	case errors.Is(err, errRequestTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, types.ErrInvalidPosition),
		errors.Is(err, types.ErrInvalidImageDimensions):
		return http.StatusUnprocessableEntity
	case types.IsModelError(err):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) abort(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= 500 {
		h.log.Error("request failed", "request_id", c.GetString(requestIDKey), "error", err)
	}
	c.AbortWithStatusJSON(status, gin.H{
		"error":      err.Error(),
		"request_id": c.GetString(requestIDKey),
	})
}
