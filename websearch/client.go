// Package websearch is the web-search client used by the pipeline's
// web-validation stage to verify uncertain terms.
package websearch

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/skillsenselab/chorus/httpclient"
	"github.com/skillsenselab/chorus/logger"
	"github.com/skillsenselab/chorus/observability"
)

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.New("websearch: client is not configured")

const (
	defaultBaseURL    = "https://api.tavily.com"
	defaultTimeout    = 10 * time.Second
	defaultMaxResults = 3

	// Only the strongest hits feed the validation prompt.
	topResultsKept = 2
)

// Searcher is the capability the pipeline depends on. Satisfied by
// *Client and by test stubs.
type Searcher interface {
	Configured() bool
	Search(ctx context.Context, query string, maxResults int) (*SearchResult, error)
}

// ResultItem is one search hit.
type ResultItem struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}

// SearchResult is the evidence collected for one query.
type SearchResult struct {
	Query   string       `json:"query"`
	Answer  string       `json:"answer"`
	Results []ResultItem `json:"results"`
}

// Config configures the web-search client.
type Config struct {
	// APIKey authenticates with the provider. Empty means unconfigured.
	APIKey string
	// BaseURL overrides the provider endpoint (useful for testing).
	BaseURL string
	// Timeout bounds each call. Defaults to 10s.
	Timeout time.Duration
	// MaxResults caps results requested per query. Defaults to 3.
	MaxResults int
}

// Client talks to the web-search provider.
type Client struct {
	http       *httpclient.Client
	apiKey     string
	maxResults int
	log        *logger.Logger
}

// New creates a web-search client. A missing API key yields a valid
// but unconfigured client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = defaultMaxResults
	}

	client, err := httpclient.New(httpclient.Config{
		Name:    "websearch",
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, err
	}

	return &Client{
		http:       client,
		apiKey:     cfg.APIKey,
		maxResults: cfg.MaxResults,
		log:        logger.WithComponent("websearch"),
	}, nil
}

// Configured reports whether the client can make provider calls.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// searchRequest is the provider's POST body.
type searchRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	IncludeAnswer bool   `json:"include_answer"`
}

// searchResponse is the provider's reply.
type searchResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string `json:"title"`
		Content string `json:"content"`
		URL     string `json:"url"`
	} `json:"results"`
}

// Search runs one query and keeps the top hits. Unconfigured clients
// fail immediately without touching the network.
func (c *Client) Search(ctx context.Context, query string, maxResults int) (*SearchResult, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if maxResults <= 0 {
		maxResults = c.maxResults
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanWebSearch)
	defer span.End()
	observability.SetSpanAttribute(ctx, "websearch.query", query)

	resp, err := c.http.Do(ctx, httpclient.Request{
		Method: http.MethodPost,
		Path:   "/search",
		Body: searchRequest{
			APIKey:        c.apiKey,
			Query:         query,
			MaxResults:    maxResults,
			IncludeAnswer: true,
		},
	})
	if err != nil {
		observability.SetSpanError(ctx, err)
		c.log.Warn("search failed", logger.Fields(
			"query", query,
			logger.FieldError, err.Error(),
		))
		return nil, err
	}

	var body searchResponse
	if err := resp.JSON(&body); err != nil {
		return nil, err
	}

	result := &SearchResult{
		Query:  query,
		Answer: body.Answer,
	}
	for i, item := range body.Results {
		if i >= topResultsKept {
			break
		}
		result.Results = append(result.Results, ResultItem{
			Title:   item.Title,
			Snippet: item.Content,
			URL:     item.URL,
		})
	}
	return result, nil
}
