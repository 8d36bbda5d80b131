package letterbox

import (
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/menta2k/surface-composer/pkg/processing"
	"github.com/menta2k/surface-composer/pkg/types"
)

var fill = color.NRGBA{200, 60, 40, 255}

// createTestImage creates a uniformly filled image
func createTestImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, fill)
		}
	}
	return img
}

func isBlack(c color.Color) bool {
	r, g, b, a := c.RGBA()
	return r == 0 && g == 0 && b == 0 && a == 0xffff
}

func near(c color.Color, want color.NRGBA, tol uint32) bool {
	r, g, b, _ := c.RGBA()
	diff := func(a uint32, b uint8) uint32 {
		a >>= 8
		if a > uint32(b) {
			return a - uint32(b)
		}
		return uint32(b) - a
	}
	return diff(r, want.R) <= tol && diff(g, want.G) <= tol && diff(b, want.B) <= tol
}

func TestPadImageLandscape(t *testing.T) {
	square, err := PadImage(createTestImage(1600, 900), 1024)
	if err != nil {
		t.Fatalf("PadImage failed: %v", err)
	}

	b := square.Bounds()
	if b.Dx() != 1024 || b.Dy() != 1024 {
		t.Fatalf("Expected 1024x1024, got %dx%d", b.Dx(), b.Dy())
	}

	// padding above and below the 576px high content band at y=224..800
	for _, y := range []int{0, 100, 223, 800, 1023} {
		if !isBlack(square.At(512, y)) {
			t.Errorf("Expected black padding at (512,%d), got %v", y, square.At(512, y))
		}
	}
	for _, y := range []int{224, 512, 799} {
		if !near(square.At(512, y), fill, 2) {
			t.Errorf("Expected content at (512,%d), got %v", y, square.At(512, y))
		}
	}
	// content touches the left and right edges
	if !near(square.At(0, 512), fill, 2) || !near(square.At(1023, 512), fill, 2) {
		t.Error("Landscape content should span the full width")
	}
}

func TestPadImagePortrait(t *testing.T) {
	square, err := PadImage(createTestImage(900, 1600), 1024)
	if err != nil {
		t.Fatalf("PadImage failed: %v", err)
	}

	for _, x := range []int{0, 223, 800, 1023} {
		if !isBlack(square.At(x, 512)) {
			t.Errorf("Expected black padding at (%d,512)", x)
		}
	}
	for _, x := range []int{224, 512, 799} {
		if !near(square.At(x, 512), fill, 2) {
			t.Errorf("Expected content at (%d,512), got %v", x, square.At(x, 512))
		}
	}
}

func TestPadImageDoesNotMutateSource(t *testing.T) {
	src := createTestImage(40, 20)
	before := append([]uint8(nil), src.Pix...)

	if _, err := PadImage(src, 64); err != nil {
		t.Fatalf("PadImage failed: %v", err)
	}
	for i := range before {
		if before[i] != src.Pix[i] {
			t.Fatal("PadImage modified its input")
		}
	}
}

func TestPadImageInvalidDimensions(t *testing.T) {
	empty := image.NewNRGBA(image.Rect(0, 0, 0, 10))
	if _, err := PadImage(empty, 1024); !errors.Is(err, types.ErrInvalidImageDimensions) {
		t.Errorf("Expected ErrInvalidImageDimensions, got %v", err)
	}
}

func TestRoundTripPreservesAspectRatio(t *testing.T) {
	sizes := [][2]int{{1600, 900}, {900, 1600}, {800, 800}, {4032, 3024}, {500, 1333}, {77, 13}}

	for _, sz := range sizes {
		w, h := sz[0], sz[1]
		square, err := PadImage(createTestImage(w, h), DefaultTarget)
		if err != nil {
			t.Fatalf("PadImage(%dx%d) failed: %v", w, h, err)
		}

		out, err := UnpadImage(square, w, h, DefaultTarget)
		if err != nil {
			t.Fatalf("UnpadImage(%dx%d) failed: %v", w, h, err)
		}

		ob := out.Bounds()
		want := float64(w) / float64(h)
		got := float64(ob.Dx()) / float64(ob.Dy())
		// one pixel of rounding on the short side
		tol := want * (1.0 / float64(min(ob.Dx(), ob.Dy())))
		if math.Abs(got-want) > tol {
			t.Errorf("%dx%d: round trip ratio %f, expected %f (+/- %f)", w, h, got, want, tol)
		}
		if max(ob.Dx(), ob.Dy()) != DefaultTarget {
			t.Errorf("%dx%d: expected longer side %d, got %dx%d", w, h, DefaultTarget, ob.Dx(), ob.Dy())
		}

		// no padding leaks into the crop
		for _, p := range []image.Point{{0, 0}, {ob.Dx() - 1, 0}, {0, ob.Dy() - 1}, {ob.Dx() - 1, ob.Dy() - 1}} {
			if isBlack(out.At(p.X, p.Y)) {
				t.Errorf("%dx%d: padding found in crop at %v", w, h, p)
			}
		}
	}
}

func TestUnpadImageScenarioSize(t *testing.T) {
	square := image.NewNRGBA(image.Rect(0, 0, 1024, 1024))
	out, err := UnpadImage(square, 1600, 900, 1024)
	if err != nil {
		t.Fatalf("UnpadImage failed: %v", err)
	}
	if out.Bounds().Dx() != 1024 || out.Bounds().Dy() != 576 {
		t.Errorf("Expected 1024x576, got %dx%d", out.Bounds().Dx(), out.Bounds().Dy())
	}
}

func TestUnpadImageRejectsUndersizedSquare(t *testing.T) {
	small := image.NewNRGBA(image.Rect(0, 0, 1024, 1000))
	_, err := UnpadImage(small, 1600, 900, 1024)
	if !errors.Is(err, types.ErrMalformedModelOutput) {
		t.Errorf("Expected ErrMalformedModelOutput, got %v", err)
	}
}

func TestUnpadImageNormalizesOversizedSquare(t *testing.T) {
	// model answered at twice the requested resolution
	big, err := PadImage(createTestImage(1600, 900), 2048)
	if err != nil {
		t.Fatal(err)
	}

	out, err := UnpadImage(big, 1600, 900, 1024)
	if err != nil {
		t.Fatalf("UnpadImage failed: %v", err)
	}
	if out.Bounds().Dx() != 1024 || out.Bounds().Dy() != 576 {
		t.Errorf("Expected 1024x576, got %dx%d", out.Bounds().Dx(), out.Bounds().Dy())
	}
	if !near(out.At(512, 4), fill, 8) || !near(out.At(512, 571), fill, 8) {
		t.Error("Normalized crop should contain only content")
	}
}

func TestPadRaster(t *testing.T) {
	src, err := processing.FromImage(createTestImage(300, 200), processing.FormatPNG, 0)
	if err != nil {
		t.Fatal(err)
	}

	padded, err := Pad(src, 256)
	if err != nil {
		t.Fatalf("Pad failed: %v", err)
	}
	if padded.Width != 256 || padded.Height != 256 {
		t.Errorf("Expected 256x256, got %dx%d", padded.Width, padded.Height)
	}
	if padded.MIMEType != "image/jpeg" {
		t.Errorf("Expected image/jpeg, got %s", padded.MIMEType)
	}

	final, err := Unpad(padded, 300, 200, 256)
	if err != nil {
		t.Fatalf("Unpad failed: %v", err)
	}
	if final.MIMEType != "image/png" {
		t.Errorf("Expected image/png, got %s", final.MIMEType)
	}
	if final.Width != 256 || final.Height != 171 {
		t.Errorf("Expected 256x171, got %dx%d", final.Width, final.Height)
	}
}

func TestPadRasterUnreadable(t *testing.T) {
	_, err := Pad(types.RasterImage{Data: []byte("nope")}, 256)
	if !errors.Is(err, types.ErrUnreadableImage) {
		t.Errorf("Expected ErrUnreadableImage, got %v", err)
	}
}

func TestUnpadRasterGarbage(t *testing.T) {
	_, err := Unpad(types.RasterImage{Data: []byte("nope")}, 300, 200, 256)
	if !errors.Is(err, types.ErrMalformedModelOutput) {
		t.Errorf("Expected ErrMalformedModelOutput, got %v", err)
	}
}

func BenchmarkPadImage(b *testing.B) {
	img := createTestImage(1920, 1080)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		PadImage(img, DefaultTarget)
	}
}
