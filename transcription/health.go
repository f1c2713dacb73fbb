package transcription

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/skillsenselab/chorus/httpclient"
	"github.com/skillsenselab/chorus/logger"
)

const defaultHealthTimeout = 5 * time.Second

// HealthGate probes backends for liveness before dispatch. A probe
// failure marks the backend unhealthy; the gate itself never errors.
type HealthGate struct {
	registry *Registry
	client   *httpclient.Client
	timeout  time.Duration
	log      *logger.Logger
}

// NewHealthGate creates a health gate over the registry. A timeout of
// zero uses the 5s default.
func NewHealthGate(registry *Registry, timeout time.Duration) (*HealthGate, error) {
	if timeout <= 0 {
		timeout = defaultHealthTimeout
	}

	client, err := httpclient.New(httpclient.Config{
		Name:    "health-gate",
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}

	return &HealthGate{
		registry: registry,
		client:   client,
		timeout:  timeout,
		log:      logger.WithComponent("health-gate"),
	}, nil
}

// Check probes the given descriptors concurrently and returns the
// healthy subset, preserving registry ordering.
func (g *HealthGate) Check(ctx context.Context, descriptors []ServiceDescriptor) []string {
	if len(descriptors) == 0 {
		return nil
	}

	healthy := make([]bool, len(descriptors))
	var wg sync.WaitGroup
	for i, d := range descriptors {
		wg.Add(1)
		go func(i int, d ServiceDescriptor) {
			defer wg.Done()
			healthy[i] = g.probe(ctx, d)
		}(i, d)
	}
	wg.Wait()

	names := make([]string, 0, len(descriptors))
	for i, d := range descriptors {
		if healthy[i] {
			names = append(names, d.Name)
		}
	}
	return names
}

// probe issues a single liveness call. Any non-2xx response,
// connection error, or timeout counts as unhealthy.
func (g *HealthGate) probe(ctx context.Context, d ServiceDescriptor) bool {
	resp, err := g.client.Do(ctx, httpclient.Request{
		Method:  http.MethodGet,
		Path:    d.BaseURL + "/health",
		Timeout: g.timeout,
	})
	if err != nil {
		g.log.Debug("backend unhealthy", logger.Fields(
			logger.FieldBackend, d.Name,
			logger.FieldError, err.Error(),
		))
		return false
	}
	return resp.IsSuccess()
}
