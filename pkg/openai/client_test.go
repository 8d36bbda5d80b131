package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/menta2k/surface-composer/pkg/types"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestNewClientDefaults(t *testing.T) {
	c, err := NewClient(Config{})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if c.baseURL != DefaultBaseURL || c.describeModel != DefaultDescribeModel || c.composeModel != DefaultComposeModel {
		t.Errorf("Unexpected defaults: %+v", c)
	}

	if _, err := NewClient(Config{BaseURL: "localhost:8080"}); err == nil {
		t.Error("Expected error for base URL without scheme")
	}
}

func TestDescribe(t *testing.T) {
	var got ChatCompletionRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		auth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"id":"1","choices":[{"index":0,"message":{"role":"assistant","content":"A white tiled kitchen backsplash."}}]}`))
	}))
	defer srv.Close()

	c, _ := NewClient(Config{BaseURL: srv.URL + "/", APIKey: "secret", DescribeModel: "llava"})
	text, err := c.Describe(context.Background(), "describe", types.RasterImage{Data: []byte{1, 2}, MIMEType: "image/jpeg"})
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if text != "A white tiled kitchen backsplash." {
		t.Errorf("Unexpected reply %q", text)
	}
	if auth != "Bearer secret" {
		t.Errorf("Expected bearer auth header, got %q", auth)
	}
	if got.Model != "llava" {
		t.Errorf("Expected model llava, got %s", got.Model)
	}

	parts, ok := got.Messages[0].Content.([]interface{})
	if !ok || len(parts) != 2 {
		t.Fatalf("Expected text and image parts, got %#v", got.Messages[0].Content)
	}
	imagePart := parts[1].(map[string]interface{})
	url := imagePart["image_url"].(map[string]interface{})["url"].(string)
	if !strings.HasPrefix(url, "data:image/jpeg;base64,") {
		t.Errorf("Expected data URI, got %q", url)
	}
}

func TestDescribeArrayContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":[{"type":"text","text":"An oak floor."}]}}]}`))
	}))
	defer srv.Close()

	c, _ := NewClient(Config{BaseURL: srv.URL})
	text, err := c.Describe(context.Background(), "describe", types.RasterImage{Data: []byte{1}})
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if text != "An oak floor." {
		t.Errorf("Unexpected reply %q", text)
	}
}

func TestDescribeHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`rate limited`))
	}))
	defer srv.Close()

	c, _ := NewClient(Config{BaseURL: srv.URL})
	_, err := c.Describe(context.Background(), "describe", types.RasterImage{Data: []byte{1}})

	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("Expected HTTPError 429, got %v", err)
	}
}

func TestCompose(t *testing.T) {
	result := pngBytes(t, 4, 4)
	var fields map[string]string
	var images int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/images/edits" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		fields = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			fields[k] = v[0]
		}
		for _, fh := range r.MultipartForm.File["image[]"] {
			f, _ := fh.Open()
			io.ReadAll(f)
			f.Close()
			images++
		}
		resp := map[string]any{"data": []map[string]string{{"b64_json": base64.StdEncoding.EncodeToString(result)}}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c, _ := NewClient(Config{BaseURL: srv.URL, ComposeModel: "edit-model"})
	a := types.RasterImage{Data: []byte{1}, MIMEType: "image/jpeg"}
	b := types.RasterImage{Data: []byte{2}, MIMEType: "image/jpeg"}

	resp, err := c.Compose(context.Background(), a, b, "place it")
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}

	if images != 2 {
		t.Errorf("Expected 2 image parts, got %d", images)
	}
	if fields["prompt"] != "place it" || fields["model"] != "edit-model" || fields["size"] != "1024x1024" {
		t.Errorf("Unexpected form fields %v", fields)
	}
	if fields["response_format"] != "b64_json" {
		t.Errorf("Expected b64_json response format, got %q", fields["response_format"])
	}

	part, ok := resp.FirstImage()
	if !ok {
		t.Fatal("Expected an image part")
	}
	if part.MIMEType != "image/png" || !bytes.Equal(part.Data, result) {
		t.Errorf("Unexpected image part: %s, %d bytes", part.MIMEType, len(part.Data))
	}
}

func TestComposeResponseFormat(t *testing.T) {
	tests := []struct {
		name       string
		model      string
		configured string
		want       string
		sent       bool
	}{
		{"gpt-image omits the field", "gpt-image-1", "", "", false},
		{"default model omits the field", "", "", "", false},
		{"dall-e asks for base64", "dall-e-2", "", "b64_json", true},
		{"local server asks for base64", "flux-edit", "", "b64_json", true},
		{"explicit none", "dall-e-2", "none", "", false},
		{"explicit value", "gpt-image-1", "b64_json", "b64_json", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var values map[string][]string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := r.ParseMultipartForm(1 << 20); err != nil {
					t.Errorf("parse multipart: %v", err)
				}
				values = r.MultipartForm.Value
				w.Write([]byte(`{"data":[]}`))
			}))
			defer srv.Close()

			c, err := NewClient(Config{BaseURL: srv.URL, ComposeModel: tt.model, ResponseFormat: tt.configured})
			if err != nil {
				t.Fatalf("NewClient failed: %v", err)
			}
			if _, err := c.Compose(context.Background(), types.RasterImage{Data: []byte{1}}, types.RasterImage{Data: []byte{2}}, "p"); err != nil {
				t.Fatalf("Compose failed: %v", err)
			}

			got, sent := values["response_format"]
			if sent != tt.sent {
				t.Fatalf("Expected response_format sent=%v, got %v", tt.sent, values)
			}
			if sent && got[0] != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got[0])
			}
		})
	}
}

func TestComposeNoImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"revised_prompt":"refused"}]}`))
	}))
	defer srv.Close()

	c, _ := NewClient(Config{BaseURL: srv.URL})
	resp, err := c.Compose(context.Background(), types.RasterImage{Data: []byte{1}}, types.RasterImage{Data: []byte{2}}, "p")
	if err != nil {
		t.Fatalf("Compose failed: %v", err)
	}
	if _, ok := resp.FirstImage(); ok {
		t.Error("Expected no image part")
	}
	if resp.Text() != "refused" {
		t.Errorf("Expected text part, got %q", resp.Text())
	}
}
