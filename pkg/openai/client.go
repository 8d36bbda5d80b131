// Package openai talks to OpenAI-compatible servers: the OpenAI API itself,
// llama.cpp's server, LocalAI and similar. Descriptions use chat completions
// with data-URI image parts; compositions use the multipart images/edits
// endpoint with both images attached.
package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/menta2k/surface-composer/pkg/processing"
	"github.com/menta2k/surface-composer/pkg/types"
)

const (
	DefaultBaseURL        = "https://api.openai.com"
	DefaultDescribeModel  = "gpt-4o-mini"
	DefaultComposeModel   = "gpt-image-1"
	defaultTimeout        = 300 * time.Second
	defaultImageSize      = "1024x1024"
	defaultResponseFormat = "b64_json"
)

// Config configures a Client
type Config struct {
	BaseURL       string
	APIKey        string
	DescribeModel string
	ComposeModel  string
	ImageSize     string
	// ResponseFormat is sent as response_format on image edits. Empty picks
	// per model: gpt-image models always return base64 and reject the field,
	// everything else is asked for b64_json. "none" never sends it.
	ResponseFormat string
	HTTPClient     *http.Client
}

// Client implements client.Describer and client.Compositor
type Client struct {
	baseURL        string
	apiKey         string
	describeModel  string
	composeModel   string
	imageSize      string
	responseFormat string
	httpClient     *http.Client
}

// OpenAI-compatible message format
type Message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // string or []ContentPart
}

type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream"`
}

type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

type imagesResponse struct {
	Data []struct {
		B64JSON       string `json:"b64_json"`
		URL           string `json:"url"`
		RevisedPrompt string `json:"revised_prompt"`
	} `json:"data"`
}

// HTTPError is returned for non-200 responses
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Body)
}

// NewClient creates a client; empty fields fall back to OpenAI defaults
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("invalid base URL: %s", cfg.BaseURL)
	}

	c := &Client{
		baseURL:       baseURL,
		apiKey:        strings.TrimSpace(cfg.APIKey),
		describeModel: cfg.DescribeModel,
		composeModel:  cfg.ComposeModel,
		imageSize:     cfg.ImageSize,
		httpClient:    cfg.HTTPClient,
	}
	if c.describeModel == "" {
		c.describeModel = DefaultDescribeModel
	}
	if c.composeModel == "" {
		c.composeModel = DefaultComposeModel
	}
	if c.imageSize == "" {
		c.imageSize = defaultImageSize
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	c.responseFormat = responseFormatFor(c.composeModel, cfg.ResponseFormat)
	return c, nil
}

func responseFormatFor(model, configured string) string {
	switch strings.ToLower(strings.TrimSpace(configured)) {
	case "none":
		return ""
	case "":
		if strings.HasPrefix(strings.ToLower(model), "gpt-image") {
			return ""
		}
		return defaultResponseFormat
	default:
		return strings.TrimSpace(configured)
	}
}

// Describe asks the chat model about one image
func (c *Client) Describe(ctx context.Context, instruction string, img types.RasterImage) (string, error) {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	content := []ContentPart{
		{Type: "text", Text: instruction},
	}
	if !img.Empty() {
		content = append(content, ContentPart{
			Type:     "image_url",
			ImageURL: &ImageURL{URL: processing.DataURI(img)},
		})
	}

	req := ChatCompletionRequest{
		Model: c.describeModel,
		Messages: []Message{
			{Role: "user", Content: content},
		},
		Temperature: 0.2,
		MaxTokens:   256,
		Stream:      false,
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %v", err)
	}

	respBody, err := c.send(ctx, "/v1/chat/completions", "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}

	var resp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("failed to parse response: %v", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	// content may come back as a string or as an array of parts
	switch content := resp.Choices[0].Message.Content.(type) {
	case string:
		return content, nil
	case []interface{}:
		for _, item := range content {
			if partMap, ok := item.(map[string]interface{}); ok {
				if text, ok := partMap["text"].(string); ok && text != "" {
					return text, nil
				}
			}
		}
	}
	return "", fmt.Errorf("no text content in response")
}

// Compose sends both images to the images/edits endpoint. The first image is
// the product reference, the second the scene to edit.
func (c *Client) Compose(ctx context.Context, imageA, imageB types.RasterImage, instruction string) (*types.ModelResponse, error) {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fields := map[string]string{
		"model":  c.composeModel,
		"prompt": instruction,
		"size":   c.imageSize,
		"n":      "1",
	}
	if c.responseFormat != "" {
		fields["response_format"] = c.responseFormat
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("failed to write field %s: %v", k, err)
		}
	}
	for i, img := range []types.RasterImage{imageA, imageB} {
		if err := writeImagePart(mw, fmt.Sprintf("image_%d", i), img); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish multipart body: %v", err)
	}

	respBody, err := c.send(ctx, "/v1/images/edits", mw.FormDataContentType(), &body)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	var resp imagesResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %v", err)
	}

	out := &types.ModelResponse{}
	for _, item := range resp.Data {
		if text := strings.TrimSpace(item.RevisedPrompt); text != "" {
			out.Parts = append(out.Parts, types.ResponsePart{Text: text})
		}
		b64 := strings.TrimSpace(item.B64JSON)
		if b64 == "" {
			continue
		}
		raw, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, fmt.Errorf("decode image base64: %w", err)
		}
		out.Parts = append(out.Parts, types.ResponsePart{MIMEType: sniffImageMIME(raw), Data: raw})
	}
	return out, nil
}

func writeImagePart(mw *multipart.Writer, name string, img types.RasterImage) error {
	mime := img.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	ext := strings.TrimPrefix(mime, "image/")
	if ext == "jpeg" {
		ext = "jpg"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image[]"; filename="%s.%s"`, name, ext))
	h.Set("Content-Type", mime)
	part, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("failed to create image part: %v", err)
	}
	_, err = part.Write(img.Data)
	return err
}

func (c *Client) send(ctx context.Context, endpoint, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}

	req.Header.Set("Content-Type", contentType)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %v", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}

func withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, defaultTimeout)
}

func sniffImageMIME(data []byte) string {
	mime := http.DetectContentType(data)
	if strings.HasPrefix(mime, "image/") {
		return mime
	}
	return "image/png"
}
