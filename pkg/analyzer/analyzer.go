package analyzer

import (
	"fmt"
	"strings"

	"github.com/menta2k/surface-composer/pkg/processing"
	"github.com/menta2k/surface-composer/pkg/types"
)

// ImageAnalyzer reads the intrinsic properties of source images
type ImageAnalyzer struct {
	config Config
}

// Config holds configuration for the image analyzer
type Config struct {
	SupportedFormats []string
	MinImageSize     int
}

// New creates a new ImageAnalyzer with default configuration
func New() *ImageAnalyzer {
	return &ImageAnalyzer{
		config: Config{
			SupportedFormats: []string{"image/jpeg", "image/png", "image/webp", "image/gif"},
			MinImageSize:     1,
		},
	}
}

// NewWithConfig creates a new ImageAnalyzer with custom configuration
func NewWithConfig(config Config) *ImageAnalyzer {
	return &ImageAnalyzer{config: config}
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Width       int
	Height      int
	MIMEType    string
	AspectRatio float64
	Area        int
}

// Inspect reads the intrinsic size of r from its payload. The declared
// Width/Height of r are ignored; only the encoded bytes count.
func (a *ImageAnalyzer) Inspect(r types.RasterImage) (ImageInfo, error) {
	read, err := processing.ReadRaster(r.Data)
	if err != nil {
		return ImageInfo{}, err
	}

	if !a.isFormatSupported(read.MIMEType) {
		return ImageInfo{}, fmt.Errorf("%w: unsupported image format: %s", types.ErrUnreadableImage, read.MIMEType)
	}

	info := GetImageInfo(read)
	if err := a.ValidateImage(info); err != nil {
		return ImageInfo{}, err
	}
	return info, nil
}

// GetImageInfo returns basic information about an image
func GetImageInfo(r types.RasterImage) ImageInfo {
	info := ImageInfo{
		Width:    r.Width,
		Height:   r.Height,
		MIMEType: r.MIMEType,
		Area:     r.Width * r.Height,
	}
	if r.Height > 0 {
		info.AspectRatio = float64(r.Width) / float64(r.Height)
	}
	return info
}

// ValidateImage checks if an image meets minimum requirements
func (a *ImageAnalyzer) ValidateImage(info ImageInfo) error {
	if info.Width <= 0 || info.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", types.ErrInvalidImageDimensions, info.Width, info.Height)
	}
	if info.Width < a.config.MinImageSize || info.Height < a.config.MinImageSize {
		return fmt.Errorf("%w: image too small: %dx%d (minimum: %d)",
			types.ErrInvalidImageDimensions, info.Width, info.Height, a.config.MinImageSize)
	}
	return nil
}

func (a *ImageAnalyzer) isFormatSupported(mime string) bool {
	if len(a.config.SupportedFormats) == 0 {
		return true
	}
	for _, supported := range a.config.SupportedFormats {
		if strings.EqualFold(mime, supported) {
			return true
		}
	}
	return false
}
