package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	surfacecomposer "github.com/menta2k/surface-composer"
	"github.com/menta2k/surface-composer/pkg/processing"
	"github.com/menta2k/surface-composer/pkg/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{90, 90, 90, 255})
		}
	}
	return img
}

func encode(t *testing.T, width, height int, format string) []byte {
	t.Helper()
	r, err := processing.FromImage(createTestImage(width, height), format, 90)
	if err != nil {
		t.Fatal(err)
	}
	return r.Data
}

type fakeModel struct {
	composeErr error
	noImage    bool
}

func (f *fakeModel) Describe(ctx context.Context, instruction string, img types.RasterImage) (string, error) {
	return "A wide wooden tabletop.", nil
}

func (f *fakeModel) Compose(ctx context.Context, a, b types.RasterImage, instruction string) (*types.ModelResponse, error) {
	if f.composeErr != nil {
		return nil, f.composeErr
	}
	if f.noImage {
		return &types.ModelResponse{Parts: []types.ResponsePart{{Text: "no"}}}, nil
	}
	r, err := processing.FromImage(createTestImage(1024, 1024), processing.FormatPNG, 0)
	if err != nil {
		return nil, err
	}
	return &types.ModelResponse{Parts: []types.ResponsePart{{MIMEType: r.MIMEType, Data: r.Data}}}, nil
}

func newRouter(t *testing.T, model *fakeModel) *gin.Engine {
	t.Helper()
	composer, err := surfacecomposer.New(model, model)
	if err != nil {
		t.Fatal(err)
	}
	r := gin.New()
	RegisterRoutes(r, NewHandler(composer, nil, Options{}))
	return r
}

func multipartBody(t *testing.T, files map[string][]byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, data := range files {
		w, err := mw.CreateFormFile(name, name+".img")
		if err != nil {
			t.Fatal(err)
		}
		w.Write(data)
	}
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestHealth(t *testing.T) {
	r := newRouter(t, &fakeModel{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Errorf("Unexpected body %s", w.Body.String())
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Error("Expected a request id header")
	}
}

func TestRequestIDReused(t *testing.T) {
	r := newRouter(t, &fakeModel{})
	id := "0b8f6f3c-3a5e-4a57-9c1e-2f6d5e9b1a10"

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(requestIDHeader, id)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); got != id {
		t.Errorf("Expected incoming id to be reused, got %s", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(requestIDHeader, "not-a-uuid")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); got == "not-a-uuid" {
		t.Error("Malformed incoming id should be replaced")
	}
}

func TestGeometry(t *testing.T) {
	r := newRouter(t, &fakeModel{})

	tests := []struct {
		body   string
		status int
	}{
		{`{"width":1600,"height":900,"x_percent":50,"y_percent":50}`, http.StatusOK},
		{`{"width":1600,"height":900,"target":512,"x_percent":0,"y_percent":100}`, http.StatusOK},
		{`{"width":-5,"height":900}`, http.StatusUnprocessableEntity},
		{`{"width":1600,"height":900,"x_percent":120}`, http.StatusUnprocessableEntity},
		{`not json`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/geometry", strings.NewReader(tt.body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		if w.Code != tt.status {
			t.Errorf("%s: expected %d, got %d (%s)", tt.body, tt.status, w.Code, w.Body.String())
		}
	}
}

func TestGeometryValues(t *testing.T) {
	r := newRouter(t, &fakeModel{})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/geometry",
		strings.NewReader(`{"width":1600,"height":900,"x_percent":50,"y_percent":50}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	var resp struct {
		Geometry struct {
			ContentHeight float64 `json:"content_height"`
			OffsetY       float64 `json:"offset_y"`
		} `json:"geometry"`
		Point struct {
			X, Y float64
		} `json:"point"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Geometry.ContentHeight != 576 || resp.Geometry.OffsetY != 224 {
		t.Errorf("Unexpected geometry %+v", resp.Geometry)
	}
	if resp.Point.X != 512 || resp.Point.Y != 512 {
		t.Errorf("Unexpected point %+v", resp.Point)
	}
}

func TestGeometryMarkerPercent(t *testing.T) {
	r := newRouter(t, &fakeModel{})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/geometry",
		strings.NewReader(`{"width":1600,"height":900,"x_percent":33.3,"y_percent":50}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d (%s)", w.Code, w.Body.String())
	}

	var resp struct {
		Pixel struct {
			X, Y int
		} `json:"pixel"`
		MarkerPercent struct {
			XPercent float64 `json:"x_percent"`
			YPercent float64 `json:"y_percent"`
		} `json:"marker_percent"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	// 33.3% of 1024 is 340.99, drawn at pixel 341
	if resp.Pixel.X != 341 || resp.Pixel.Y != 512 {
		t.Errorf("Unexpected pixel %+v", resp.Pixel)
	}
	// one pixel of a 1024 wide content rect is under 0.1%
	if math.Abs(resp.MarkerPercent.XPercent-33.3) > 0.1 || resp.MarkerPercent.YPercent != 50 {
		t.Errorf("Unexpected marker percent %+v", resp.MarkerPercent)
	}
}

func TestCompose(t *testing.T) {
	r := newRouter(t, &fakeModel{})
	body, ct := multipartBody(t,
		map[string][]byte{
			"product": encode(t, 100, 100, processing.FormatPNG),
			"scene":   encode(t, 800, 450, processing.FormatJPEG),
		},
		map[string]string{"description": "a blue vase", "x": "30", "y": "70", "mode": "single"})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/compose", body)
	req.Header.Set("Content-Type", ct)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(resp["final_image"].(string), "data:image/png;base64,") {
		t.Error("Expected final image as PNG data URI")
	}
	if !strings.HasPrefix(resp["debug_image"].(string), "data:image/png;base64,") {
		t.Error("Expected debug image as PNG data URI")
	}
	if !strings.Contains(resp["prompt"].(string), "a blue vase") {
		t.Error("Prompt should include the product description")
	}
	if resp["request_id"] != w.Header().Get(requestIDHeader) {
		t.Error("Body and header request ids should match")
	}
}

func TestComposeImageOutput(t *testing.T) {
	r := newRouter(t, &fakeModel{})
	body, ct := multipartBody(t,
		map[string][]byte{
			"product": encode(t, 100, 100, processing.FormatPNG),
			"scene":   encode(t, 450, 800, processing.FormatPNG),
		}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/compose?output=image", body)
	req.Header.Set("Content-Type", ct)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Header().Get("Content-Type") != "image/png" {
		t.Errorf("Expected image/png, got %s", w.Header().Get("Content-Type"))
	}
	img, _, err := image.DecodeConfig(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if img.Width != 576 || img.Height != 1024 {
		t.Errorf("Expected 576x1024, got %dx%d", img.Width, img.Height)
	}
}

func TestComposeErrors(t *testing.T) {
	product := encode(t, 100, 100, processing.FormatPNG)
	scene := encode(t, 400, 300, processing.FormatJPEG)

	tests := []struct {
		name   string
		model  *fakeModel
		files  map[string][]byte
		fields map[string]string
		status int
	}{
		{"missing scene", &fakeModel{}, map[string][]byte{"product": product}, nil, http.StatusBadRequest},
		{"garbage scene", &fakeModel{}, map[string][]byte{"product": product, "scene": []byte("nope")}, nil, http.StatusBadRequest},
		{"bad mode", &fakeModel{}, map[string][]byte{"product": product, "scene": scene}, map[string]string{"mode": "sideways"}, http.StatusBadRequest},
		{"bad number", &fakeModel{}, map[string][]byte{"product": product, "scene": scene}, map[string]string{"x": "left"}, http.StatusUnprocessableEntity},
		{"position out of range", &fakeModel{}, map[string][]byte{"product": product, "scene": scene}, map[string]string{"y": "150"}, http.StatusUnprocessableEntity},
		{"model returned no image", &fakeModel{noImage: true}, map[string][]byte{"product": product, "scene": scene}, nil, http.StatusBadGateway},
		{"model transport error", &fakeModel{composeErr: errors.New("boom")}, map[string][]byte{"product": product, "scene": scene}, nil, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(t, tt.model)
			body, ct := multipartBody(t, tt.files, tt.fields)
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/compose", body)
			req.Header.Set("Content-Type", ct)
			r.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Errorf("Expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), `"error"`) {
				t.Error("Expected an error body")
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("x: %w", types.ErrUnreadableImage), http.StatusBadRequest},
		{types.ErrInvalidPosition, http.StatusUnprocessableEntity},
		{types.ErrMalformedModelOutput, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.status {
			t.Errorf("statusFor(%v) = %d, expected %d", tt.err, got, tt.status)
		}
	}
}
