package config

import (
	"fmt"
	"time"

	"github.com/skillsenselab/chorus/observability"
	"github.com/skillsenselab/chorus/server"
)

// BackendConfig describes one ASR backend service.
type BackendConfig struct {
	// Name is the unique backend identifier (e.g., "whisper").
	Name string `yaml:"name" mapstructure:"name" validate:"required"`
	// BaseURL is the backend's base URL.
	BaseURL string `yaml:"base_url" mapstructure:"base_url" validate:"required,url"`
	// Endpoint is the transcription endpoint path. Defaults to /transcribe.
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	// Timeout is the per-request transcription timeout.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// TranscriptionConfig configures the backend registry and health gate.
type TranscriptionConfig struct {
	// Backends lists the ASR backend services.
	Backends []BackendConfig `yaml:"backends" mapstructure:"backends"`
	// HealthTimeout bounds each health probe.
	HealthTimeout time.Duration `yaml:"health_timeout" mapstructure:"health_timeout"`
}

// GenerationConfig configures the LLM analysis client.
type GenerationConfig struct {
	// Dialect selects the provider wire format. Defaults to "gemini".
	Dialect string `yaml:"dialect" mapstructure:"dialect"`
	// APIKey authenticates with the provider. Empty disables generation
	// and every pipeline stage falls back deterministically.
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
	// Model is the provider model identifier.
	Model string `yaml:"model" mapstructure:"model"`
	// BaseURL overrides the provider endpoint (useful for testing).
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	// Timeout bounds each generation call.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// Temperature is the sampling temperature.
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
}

// SearchConfig configures the web search client.
type SearchConfig struct {
	// APIKey authenticates with the search provider. Empty disables search.
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
	// BaseURL overrides the provider endpoint (useful for testing).
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	// Timeout bounds each search call.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// MaxResults caps results requested per query.
	MaxResults int `yaml:"max_results" mapstructure:"max_results"`
}

// PipelineConfig configures the analysis pipeline.
type PipelineConfig struct {
	// Context describes the speech setting fed into analysis prompts.
	Context string `yaml:"context" mapstructure:"context"`
	// PhonemeBackend names the backend whose phoneme timing feeds
	// particle detection.
	PhonemeBackend string `yaml:"phoneme_backend" mapstructure:"phoneme_backend"`
	// GapThreshold is the minimum inter-phoneme gap, in seconds, for a
	// timing anomaly to count as a particle candidate.
	GapThreshold float64 `yaml:"gap_threshold" mapstructure:"gap_threshold"`
	// ConfidenceFloor is the confidence below which a phoneme counts as
	// a particle candidate.
	ConfidenceFloor float64 `yaml:"confidence_floor" mapstructure:"confidence_floor"`
	// MaxQueries caps search queries per request.
	MaxQueries int `yaml:"max_queries" mapstructure:"max_queries"`
}

// Config is the full service configuration.
type Config struct {
	ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Server        server.Config        `yaml:"server" mapstructure:"server"`
	Transcription TranscriptionConfig  `yaml:"transcription" mapstructure:"transcription"`
	Generation    GenerationConfig     `yaml:"generation" mapstructure:"generation"`
	Search        SearchConfig         `yaml:"search" mapstructure:"search"`
	Pipeline      PipelineConfig       `yaml:"pipeline" mapstructure:"pipeline"`
	Observability observability.Config `yaml:"observability" mapstructure:"observability"`
}

// ApplyDefaults applies defaults across all sections.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "chorus"
	}
	c.ServiceConfig.ApplyDefaults()
	c.Server.ApplyDefaults()
	c.Observability.ApplyDefaults()

	if c.Transcription.HealthTimeout <= 0 {
		c.Transcription.HealthTimeout = 5 * time.Second
	}
	for i := range c.Transcription.Backends {
		b := &c.Transcription.Backends[i]
		if b.Endpoint == "" {
			b.Endpoint = "/transcribe"
		}
		if b.Timeout <= 0 {
			b.Timeout = 60 * time.Second
		}
	}

	if c.Generation.Dialect == "" {
		c.Generation.Dialect = "gemini"
	}
	if c.Generation.Model == "" {
		c.Generation.Model = "gemini-2.0-flash"
	}
	if c.Generation.Timeout <= 0 {
		c.Generation.Timeout = 30 * time.Second
	}
	if c.Generation.Temperature == 0 {
		c.Generation.Temperature = 0.3
	}

	if c.Search.Timeout <= 0 {
		c.Search.Timeout = 10 * time.Second
	}
	if c.Search.MaxResults <= 0 {
		c.Search.MaxResults = 3
	}

	if c.Pipeline.Context == "" {
		c.Pipeline.Context = "casual conversation"
	}
	if c.Pipeline.GapThreshold <= 0 {
		c.Pipeline.GapThreshold = 0.05
	}
	if c.Pipeline.ConfidenceFloor <= 0 {
		c.Pipeline.ConfidenceFloor = 0.5
	}
	if c.Pipeline.MaxQueries <= 0 {
		c.Pipeline.MaxQueries = 3
	}
}

// Validate validates all sections.
func (c *Config) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.Observability.Validate(); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Transcription.Backends))
	for _, b := range c.Transcription.Backends {
		if b.Name == "" {
			return fmt.Errorf("transcription.backends: name is required")
		}
		if b.BaseURL == "" {
			return fmt.Errorf("transcription.backends[%s]: base_url is required", b.Name)
		}
		if seen[b.Name] {
			return fmt.Errorf("transcription.backends[%s]: duplicate backend name", b.Name)
		}
		seen[b.Name] = true
	}

	if c.Pipeline.PhonemeBackend != "" && len(c.Transcription.Backends) > 0 && !seen[c.Pipeline.PhonemeBackend] {
		return fmt.Errorf("pipeline.phoneme_backend %q is not a configured backend", c.Pipeline.PhonemeBackend)
	}
	if c.Pipeline.MaxQueries < 0 {
		return fmt.Errorf("pipeline.max_queries must be non-negative (got: %d)", c.Pipeline.MaxQueries)
	}
	return nil
}
