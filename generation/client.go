// Package generation is the structured-generation client used by the
// analysis pipeline. Providers plug in through the Dialect interface;
// an unconfigured client makes no network calls at all, which is how
// every pipeline stage ends up on its deterministic fallback.
package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/skillsenselab/chorus/httpclient"
	"github.com/skillsenselab/chorus/logger"
	"github.com/skillsenselab/chorus/observability"
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("generation: client is not configured")

const (
	defaultModel   = "gemini-2.0-flash"
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	defaultTimeout = 30 * time.Second
	defaultTemp    = 0.3
	geminiKeyParam = "key"
)

// Generator is the capability the pipeline depends on. Satisfied by
// *Client and by test stubs.
type Generator interface {
	Configured() bool
	Generate(ctx context.Context, req Request) (*Result, error)
}

// Config configures the generation client.
type Config struct {
	// Dialect selects the provider wire format. Defaults to "gemini".
	Dialect string
	// APIKey authenticates with the provider. Empty means unconfigured.
	APIKey string
	// Model is the provider model identifier.
	Model string
	// BaseURL overrides the provider endpoint (useful for testing).
	BaseURL string
	// Timeout bounds each call. Defaults to 30s.
	Timeout time.Duration
	// Temperature is the default sampling temperature.
	Temperature float64
}

func (c *Config) applyDefaults() {
	if c.Dialect == "" {
		c.Dialect = "gemini"
	}
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.Temperature == 0 {
		c.Temperature = defaultTemp
	}
}

// Client talks to one structured-generation provider.
type Client struct {
	http        *httpclient.Client
	dialect     Dialect
	model       string
	temperature float64
	configured  bool
	log         *logger.Logger
}

// New creates a generation client. A missing API key yields a valid
// but unconfigured client.
func New(cfg Config) (*Client, error) {
	cfg.applyDefaults()

	dialect, err := GetDialect(cfg.Dialect)
	if err != nil {
		return nil, err
	}

	httpCfg := httpclient.Config{
		Name:    cfg.Dialect + "-generation",
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
	}
	if cfg.APIKey != "" {
		httpCfg.Auth = httpclient.APIKeyAuthQuery(cfg.APIKey, geminiKeyParam)
	}
	client, err := httpclient.New(httpCfg)
	if err != nil {
		return nil, err
	}

	return &Client{
		http:        client,
		dialect:     dialect,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		configured:  cfg.APIKey != "",
		log:         logger.WithComponent("generation"),
	}, nil
}

// Configured reports whether the client can make provider calls.
func (c *Client) Configured() bool {
	return c.configured
}

// Generate sends one structured-generation request. Unconfigured
// clients fail immediately without touching the network.
func (c *Client) Generate(ctx context.Context, req Request) (*Result, error) {
	if !c.configured {
		return nil, ErrNotConfigured
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanGeneration)
	defer span.End()

	body, err := c.dialect.BuildRequest(req, c.temperature)
	if err != nil {
		return nil, fmt.Errorf("generation: build request: %w", err)
	}

	resp, err := c.http.Do(ctx, httpclient.Request{
		Method: http.MethodPost,
		Path:   c.dialect.GeneratePath(c.model),
		Body:   body,
	})
	if err != nil {
		observability.SetSpanError(ctx, err)
		c.log.Warn("generation call failed", logger.ErrorFields("generate", err))
		return nil, fmt.Errorf("generation: %w", err)
	}

	result, err := c.dialect.ParseResponse(resp.Body)
	if err != nil {
		observability.SetSpanError(ctx, err)
		return nil, fmt.Errorf("generation: %w", err)
	}
	return result, nil
}
