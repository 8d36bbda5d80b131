package processing

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	_ "image/gif"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/surface-composer/pkg/types"
)

// Encoding formats understood by Encode and SaveRaster
const (
	FormatJPEG = "jpg"
	FormatPNG  = "png"
	FormatWebP = "webp"
)

// DefaultJPEGQuality is the fixed quality used for every image handed to a model
const DefaultJPEGQuality = 90

// maxDownloadBytes caps remote image downloads
const maxDownloadBytes = 32 << 20

// Decode decodes an encoded image, falling back to the cgo WebP decoder
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty payload", types.ErrUnreadableImage)
	}

	if img, format, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, format, nil
	}

	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, "webp", nil
	}

	return nil, "", fmt.Errorf("%w: unknown or unsupported format", types.ErrUnreadableImage)
}

// DecodeRaster decodes the payload of a RasterImage
func DecodeRaster(r types.RasterImage) (image.Image, error) {
	img, _, err := Decode(r.Data)
	return img, err
}

// ReadRaster wraps encoded bytes into a RasterImage, reading the intrinsic
// size and MIME type from the payload itself.
func ReadRaster(data []byte) (types.RasterImage, error) {
	if len(data) == 0 {
		return types.RasterImage{}, fmt.Errorf("%w: empty payload", types.ErrUnreadableImage)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		// cgo decoder as a last resort, same as Decode
		img, err2 := webp.Decode(bytes.NewReader(data))
		if err2 != nil {
			return types.RasterImage{}, fmt.Errorf("%w: %v", types.ErrUnreadableImage, err)
		}
		b := img.Bounds()
		cfg = image.Config{Width: b.Dx(), Height: b.Dy()}
		format = "webp"
	}

	return types.RasterImage{
		Data:     data,
		MIMEType: MIMEForFormat(format),
		Width:    cfg.Width,
		Height:   cfg.Height,
	}, nil
}

// Encode encodes img in the given format
func Encode(img image.Image, format string, quality int, lossless bool) ([]byte, string, error) {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	var buf bytes.Buffer
	switch normalizeFormat(format) {
	case FormatPNG:
		enc := png.Encoder{CompressionLevel: png.DefaultCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "image/png", nil
	case FormatWebP:
		opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
		if err := webp.Encode(&buf, img, opts); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "image/webp", nil
	default:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, "", err
		}
		return buf.Bytes(), "image/jpeg", nil
	}
}

// FromImage encodes img and wraps it into a RasterImage
func FromImage(img image.Image, format string, quality int) (types.RasterImage, error) {
	data, mime, err := Encode(img, format, quality, false)
	if err != nil {
		return types.RasterImage{}, fmt.Errorf("encode %s: %w", format, err)
	}
	b := img.Bounds()
	return types.RasterImage{
		Data:     data,
		MIMEType: mime,
		Width:    b.Dx(),
		Height:   b.Dy(),
	}, nil
}

// LoadRaster loads an image from a file path or an http(s) URL
func LoadRaster(source string) (types.RasterImage, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return LoadRasterFromURL(source)
	}
	if strings.HasPrefix(source, "data:") {
		return ParseDataURI(source)
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return types.RasterImage{}, fmt.Errorf("failed to read image: %w", err)
	}
	return ReadRaster(data)
}

// LoadRasterFromURL downloads an image
func LoadRasterFromURL(imageURL string) (types.RasterImage, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return types.RasterImage{}, fmt.Errorf("invalid URL: %v", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return types.RasterImage{}, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	req, err := http.NewRequest("GET", imageURL, nil)
	if err != nil {
		return types.RasterImage{}, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("User-Agent", "Surface-Composer/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return types.RasterImage{}, fmt.Errorf("failed to download image: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.RasterImage{}, fmt.Errorf("failed to download image: HTTP %d %s", resp.StatusCode, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return types.RasterImage{}, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return types.RasterImage{}, fmt.Errorf("failed to read image data: %v", err)
	}

	return ReadRaster(data)
}

// SaveRaster writes r to path. When the requested format matches the payload
// the bytes are written verbatim; otherwise the image is re-encoded.
func SaveRaster(r types.RasterImage, path, format string, quality int, lossless bool) error {
	if MIMEForFormat(format) == r.MIMEType {
		return os.WriteFile(path, r.Data, 0o644)
	}

	img, err := DecodeRaster(r)
	if err != nil {
		return err
	}
	return SaveImage(img, path, format, quality, lossless)
}

// SaveImage saves an image to a file with the specified format and quality
func SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	switch normalizeFormat(format) {
	case FormatWebP:
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
		return webp.Encode(f, img, opts)
	case FormatPNG:
		return imaging.Save(img, path)
	default:
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	}
}

// DataURI encodes r as a data: URI
func DataURI(r types.RasterImage) string {
	mime := r.MIMEType
	if mime == "" {
		mime = "application/octet-stream"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(r.Data)
}

// ParseDataURI decodes a base64 data: URI into a RasterImage
func ParseDataURI(s string) (types.RasterImage, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return types.RasterImage{}, fmt.Errorf("%w: not a data URI", types.ErrUnreadableImage)
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return types.RasterImage{}, fmt.Errorf("%w: data URI must be base64 encoded", types.ErrUnreadableImage)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return types.RasterImage{}, fmt.Errorf("%w: %v", types.ErrUnreadableImage, err)
	}
	return ReadRaster(data)
}

// MIMEForFormat maps a format name as returned by image.Decode, or a file
// extension, to a MIME type.
func MIMEForFormat(format string) string {
	switch normalizeFormat(format) {
	case FormatPNG:
		return "image/png"
	case FormatWebP:
		return "image/webp"
	case "gif":
		return "image/gif"
	default:
		return "image/jpeg"
	}
}

func normalizeFormat(format string) string {
	f := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(format)), ".")
	switch f {
	case "jpeg", "jpg", "":
		return FormatJPEG
	default:
		return f
	}
}
