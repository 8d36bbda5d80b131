// Package gemini implements both model roles on the Gemini API. Gemini's
// image models accept several input images in one request and return the
// edited scene as inline image data, which makes them the default compositor.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/menta2k/surface-composer/pkg/types"
)

const (
	DefaultDescribeModel = "gemini-2.5-flash"
	DefaultComposeModel  = "gemini-2.5-flash-image"
	defaultTimeout       = 300 * time.Second
)

// ErrMissingAPIKey is returned by NewClient when no key is configured
var ErrMissingAPIKey = errors.New("gemini: API key is required")

// Config configures a Client
type Config struct {
	APIKey        string
	DescribeModel string
	ComposeModel  string
	// BaseURL overrides the API endpoint, mostly for proxies
	BaseURL string
}

// Client implements client.Describer and client.Compositor
type Client struct {
	genai         *genai.Client
	describeModel string
	composeModel  string
}

// NewClient creates a Gemini API client
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	gc, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	c := &Client{
		genai:         gc,
		describeModel: cfg.DescribeModel,
		composeModel:  cfg.ComposeModel,
	}
	if c.describeModel == "" {
		c.describeModel = DefaultDescribeModel
	}
	if c.composeModel == "" {
		c.composeModel = DefaultComposeModel
	}
	return c, nil
}

// Describe sends the instruction with one image and returns the reply text
func (c *Client) Describe(ctx context.Context, instruction string, img types.RasterImage) (string, error) {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	if img.Empty() {
		return "", fmt.Errorf("gemini describe: empty image")
	}

	parts := []*genai.Part{
		genai.NewPartFromText(instruction),
		genai.NewPartFromBytes(img.Data, mimeOrDefault(img.MIMEType)),
	}
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0.2),
		MaxOutputTokens: 256,
	}

	resp, err := c.genai.Models.GenerateContent(ctx, c.describeModel, userContent(parts), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini describe: %w", err)
	}

	text := ResponseFromGenAI(resp).Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("gemini describe: empty response")
	}
	return text, nil
}

// Compose sends the instruction followed by both images, in order, and asks
// for an image back
func (c *Client) Compose(ctx context.Context, imageA, imageB types.RasterImage, instruction string) (*types.ModelResponse, error) {
	ctx, cancel := withDefaultTimeout(ctx)
	defer cancel()

	parts := []*genai.Part{
		genai.NewPartFromText(instruction),
		genai.NewPartFromBytes(imageA.Data, mimeOrDefault(imageA.MIMEType)),
		genai.NewPartFromBytes(imageB.Data, mimeOrDefault(imageB.MIMEType)),
	}
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE", "TEXT"},
	}

	resp, err := c.genai.Models.GenerateContent(ctx, c.composeModel, userContent(parts), cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini compose: %w", err)
	}
	return ResponseFromGenAI(resp), nil
}

// ResponseFromGenAI flattens the first candidate into response parts. A nil
// or empty response maps to a response with no parts.
func ResponseFromGenAI(resp *genai.GenerateContentResponse) *types.ModelResponse {
	out := &types.ModelResponse{}
	if resp == nil || len(resp.Candidates) == 0 {
		return out
	}
	cand := resp.Candidates[0]
	if cand == nil || cand.Content == nil {
		return out
	}

	for _, p := range cand.Content.Parts {
		if p == nil {
			continue
		}
		if p.InlineData != nil && len(p.InlineData.Data) > 0 {
			out.Parts = append(out.Parts, types.ResponsePart{
				MIMEType: p.InlineData.MIMEType,
				Data:     p.InlineData.Data,
			})
			continue
		}
		if p.Text != "" && !p.Thought {
			out.Parts = append(out.Parts, types.ResponsePart{Text: p.Text})
		}
	}
	return out
}

func userContent(parts []*genai.Part) []*genai.Content {
	return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
}

func mimeOrDefault(mime string) string {
	if mime == "" {
		return "image/jpeg"
	}
	return mime
}

func withDefaultTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, defaultTimeout)
}
