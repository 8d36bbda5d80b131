package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/menta2k/surface-composer/pkg/marker"
)

// Config holds the application configuration
type Config struct {
	Geometry GeometryConfig `yaml:"geometry"`
	Marker   MarkerConfig   `yaml:"marker"`
	Model    ModelConfig    `yaml:"model"`
	Output   OutputConfig   `yaml:"output"`
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
}

// GeometryConfig holds the model square size
type GeometryConfig struct {
	Target int `yaml:"target"`
}

// MarkerConfig holds the drop marker style
type MarkerConfig struct {
	MinRadius   float64 `yaml:"min_radius"`
	RadiusRatio float64 `yaml:"radius_ratio"`
}

// ModelConfig selects and configures the model backends
type ModelConfig struct {
	DescribeBackend string `yaml:"describe_backend"`
	ComposeBackend  string `yaml:"compose_backend"`
	DescribeModel   string `yaml:"describe_model"`
	ComposeModel    string `yaml:"compose_model"`
	// BaseURL is used by the openai and ollama backends
	BaseURL string `yaml:"base_url"`
	// APIKeyEnv names the environment variable holding the API key. Keys are
	// never stored in the file.
	APIKeyEnv      string `yaml:"api_key_env"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	// ResponseFormat overrides response_format for the openai compose
	// backend ("none" to never send it)
	ResponseFormat string `yaml:"response_format"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	Format    string `yaml:"format"`
	Quality   int    `yaml:"quality"`
	OutputDir string `yaml:"output_dir"`
	Debug     bool   `yaml:"debug"`
}

// ServerConfig holds the HTTP server settings
type ServerConfig struct {
	Addr          string `yaml:"addr"`
	MaxUploadMB   int    `yaml:"max_upload_mb"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Mode  string `yaml:"mode"`
	Level string `yaml:"level"`
}

var (
	describeBackends = []string{"gemini", "openai", "ollama"}
	composeBackends  = []string{"gemini", "openai"}
)

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Geometry: GeometryConfig{
			Target: 1024,
		},
		Marker: MarkerConfig{
			MinRadius:   5,
			RadiusRatio: 0.015,
		},
		Model: ModelConfig{
			DescribeBackend: "gemini",
			ComposeBackend:  "gemini",
			TimeoutSeconds:  300,
		},
		Output: OutputConfig{
			Format:    "png",
			Quality:   90,
			OutputDir: "./output",
			Debug:     true,
		},
		Server: ServerConfig{
			Addr:          ":8080",
			MaxUploadMB:   20,
			MaxConcurrent: 4,
		},
		Log: LogConfig{
			Mode:  "dev",
			Level: "info",
		},
	}
}

// LoadFromFile loads configuration from a YAML (or JSON) file. Missing keys
// keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Geometry.Target < 64 || c.Geometry.Target > 4096 {
		return fmt.Errorf("geometry.target must be between 64 and 4096")
	}

	if c.Marker.MinRadius <= 0 {
		return fmt.Errorf("marker.min_radius must be positive")
	}

	if c.Marker.RadiusRatio <= 0 || c.Marker.RadiusRatio > 0.5 {
		return fmt.Errorf("marker.radius_ratio must be in (0, 0.5]")
	}

	if !contains(describeBackends, c.Model.DescribeBackend) {
		return fmt.Errorf("model.describe_backend must be one of %s", strings.Join(describeBackends, ", "))
	}

	if !contains(composeBackends, c.Model.ComposeBackend) {
		return fmt.Errorf("model.compose_backend must be one of %s", strings.Join(composeBackends, ", "))
	}

	if c.Model.TimeoutSeconds < 0 {
		return fmt.Errorf("model.timeout_seconds cannot be negative")
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}

	switch strings.ToLower(c.Output.Format) {
	case "png", "jpg", "jpeg", "webp":
	default:
		return fmt.Errorf("output.format must be png, jpg or webp")
	}

	if c.Server.MaxUploadMB < 1 {
		return fmt.Errorf("server.max_upload_mb must be positive")
	}

	if c.Server.MaxConcurrent < 1 {
		return fmt.Errorf("server.max_concurrent must be positive")
	}

	return nil
}

// APIKey resolves the API key for the given backend from the environment.
// Model.APIKeyEnv wins over the backend's conventional variable.
func (c *Config) APIKey(backend string) string {
	if c.Model.APIKeyEnv != "" {
		return os.Getenv(c.Model.APIKeyEnv)
	}
	switch backend {
	case "gemini":
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			return key
		}
		return os.Getenv("GOOGLE_API_KEY")
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	}
	return ""
}

// MarkerOptions returns the default marker style with the configured sizes
func (c *Config) MarkerOptions() marker.Options {
	opts := marker.DefaultOptions()
	opts.MinRadius = c.Marker.MinRadius
	opts.RadiusRatio = c.Marker.RadiusRatio
	return opts
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".config", "surface-composer", "config.yaml")
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
