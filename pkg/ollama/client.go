package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/menta2k/surface-composer/pkg/types"
)

// DefaultModel is a small vision model that handles short scene descriptions well
const DefaultModel = "qwen2.5vl:7b"

// defaultTimeout applies when the caller's context has no deadline
const defaultTimeout = 300 * time.Second

// Client wraps the Ollama API client. Ollama has no image output, so the
// client only implements client.Describer.
type Client struct {
	client *api.Client
	model  string
}

// NewClient creates a new Ollama client
func NewClient(ollamaURL, model string) (*Client, error) {
	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid URL: %q needs scheme and host", ollamaURL)
	}

	// drop any path like /api/chat, the SDK adds its own
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}

	if model == "" {
		model = DefaultModel
	}

	return &Client{client: api.NewClient(baseURL, http.DefaultClient), model: model}, nil
}

// Describe sends the instruction and one image, and returns the reply text
func (c *Client) Describe(ctx context.Context, instruction string, img types.RasterImage) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
	}

	if img.Empty() {
		return "", fmt.Errorf("ollama describe: empty image")
	}

	streamFalse := false
	req := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: instruction,
				Images:  []api.ImageData{api.ImageData(img.Data)},
			},
		},
		Stream: &streamFalse,
		Options: map[string]any{
			"temperature": 0.2,
		},
	}

	var content strings.Builder
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat error: %w", err)
	}

	if strings.TrimSpace(content.String()) == "" {
		return "", fmt.Errorf("empty response from ollama")
	}
	return content.String(), nil
}
