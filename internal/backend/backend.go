// Package backend builds model clients from configuration.
package backend

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/menta2k/surface-composer/internal/config"
	"github.com/menta2k/surface-composer/pkg/client"
	"github.com/menta2k/surface-composer/pkg/gemini"
	"github.com/menta2k/surface-composer/pkg/ollama"
	"github.com/menta2k/surface-composer/pkg/openai"
)

// Clients holds the two model roles. They may be the same value.
type Clients struct {
	Describer  client.Describer
	Compositor client.Compositor
}

// Build creates the describer and compositor named by cfg.Model
func Build(ctx context.Context, cfg *config.Config) (*Clients, error) {
	m := cfg.Model
	cache := map[string]any{}

	get := func(name string) (any, error) {
		if c, ok := cache[name]; ok {
			return c, nil
		}
		c, err := newClient(ctx, name, cfg)
		if err != nil {
			return nil, err
		}
		cache[name] = c
		return c, nil
	}

	d, err := get(m.DescribeBackend)
	if err != nil {
		return nil, fmt.Errorf("describe backend: %w", err)
	}
	describer, ok := d.(client.Describer)
	if !ok {
		return nil, fmt.Errorf("backend %q cannot describe images", m.DescribeBackend)
	}

	c, err := get(m.ComposeBackend)
	if err != nil {
		return nil, fmt.Errorf("compose backend: %w", err)
	}
	compositor, ok := c.(client.Compositor)
	if !ok {
		return nil, fmt.Errorf("backend %q cannot compose images", m.ComposeBackend)
	}

	return &Clients{Describer: describer, Compositor: compositor}, nil
}

func newClient(ctx context.Context, name string, cfg *config.Config) (any, error) {
	m := cfg.Model
	switch name {
	case "gemini":
		return gemini.NewClient(ctx, gemini.Config{
			APIKey:        cfg.APIKey(name),
			DescribeModel: m.DescribeModel,
			ComposeModel:  m.ComposeModel,
		})
	case "openai":
		var httpClient *http.Client
		if m.TimeoutSeconds > 0 {
			httpClient = &http.Client{Timeout: time.Duration(m.TimeoutSeconds) * time.Second}
		}
		return openai.NewClient(openai.Config{
			BaseURL:        m.BaseURL,
			APIKey:         cfg.APIKey(name),
			DescribeModel:  m.DescribeModel,
			ComposeModel:   m.ComposeModel,
			ResponseFormat: m.ResponseFormat,
			HTTPClient:     httpClient,
		})
	case "ollama":
		url := m.BaseURL
		if url == "" {
			url = "http://localhost:11434"
		}
		return ollama.NewClient(url, m.DescribeModel)
	default:
		return nil, fmt.Errorf("unknown backend %q", name)
	}
}
