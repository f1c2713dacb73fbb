package transcription

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/skillsenselab/chorus/httpclient"
	"github.com/skillsenselab/chorus/logger"
	"github.com/skillsenselab/chorus/observability"
)

// Dispatcher fans a single audio payload out to every healthy backend
// concurrently and folds the settled outcomes into a DispatchEnvelope.
type Dispatcher struct {
	registry *Registry
	gate     *HealthGate
	client   *httpclient.Client
	metrics  *observability.Metrics
	log      *logger.Logger
}

// NewDispatcher creates a dispatcher over the registry and health gate.
func NewDispatcher(registry *Registry, gate *HealthGate) (*Dispatcher, error) {
	// The shared transport timeout must not undercut any backend's own
	// budget; per-call deadlines come from the descriptor.
	maxTimeout := time.Duration(0)
	for _, d := range registry.Descriptors() {
		if d.Timeout > maxTimeout {
			maxTimeout = d.Timeout
		}
	}
	if maxTimeout <= 0 {
		maxTimeout = 60 * time.Second
	}

	client, err := httpclient.New(httpclient.Config{
		Name:    "dispatcher",
		Timeout: maxTimeout,
	})
	if err != nil {
		return nil, err
	}

	return &Dispatcher{
		registry: registry,
		gate:     gate,
		client:   client,
		log:      logger.WithComponent("dispatcher"),
	}, nil
}

// SetMetrics attaches metric instruments. Nil metrics are skipped.
func (d *Dispatcher) SetMetrics(m *observability.Metrics) {
	d.metrics = m
}

// Dispatch resolves the requested backends, health-gates them, calls
// every healthy backend concurrently, and aggregates the results.
// The only error return is an unknown backend name; an all-unhealthy
// round returns an envelope with the NoHealthyBackends marker instead.
func (d *Dispatcher) Dispatch(ctx context.Context, payload []byte, filename string, names []string, includeDiagnostics bool) (*DispatchEnvelope, error) {
	start := time.Now()

	descriptors, err := d.registry.Resolve(names)
	if err != nil {
		return nil, err
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanDispatch)
	defer span.End()

	requested := make([]string, len(descriptors))
	for i, desc := range descriptors {
		requested[i] = desc.Name
	}

	healthy := d.gate.Check(ctx, descriptors)
	observability.SetSpanAttribute(ctx, "asr.requested", requested)
	observability.SetSpanAttribute(ctx, "asr.healthy", healthy)

	envelope := &DispatchEnvelope{
		Filename:  filename,
		Requested: requested,
		Healthy:   healthy,
		Results:   make(map[string]BackendResult, len(healthy)),
	}

	if len(healthy) == 0 {
		envelope.NoHealthyBackends = true
		envelope.Elapsed = time.Since(start)
		d.log.Warn("no healthy backends", logger.Fields(
			"requested", requested,
			logger.FieldDuration, envelope.Elapsed.String(),
		))
		if d.metrics != nil {
			d.metrics.RecordDispatch(ctx, len(requested), 0)
		}
		return envelope, nil
	}

	// Fan-out/fan-in barrier. Every call settles on its own; a slow or
	// failing backend never delays or cancels another's in-flight call.
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, name := range healthy {
		desc, ok := d.registry.Lookup(name)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(desc ServiceDescriptor) {
			defer wg.Done()
			result := d.callBackend(ctx, desc, payload, filename, includeDiagnostics)
			mu.Lock()
			envelope.Results[desc.Name] = result
			mu.Unlock()
		}(desc)
	}
	wg.Wait()

	for _, r := range envelope.Results {
		if r.Status == StatusSuccess {
			envelope.SuccessCount++
		}
	}
	envelope.Elapsed = time.Since(start)

	observability.SetSpanAttribute(ctx, "asr.succeeded", envelope.SuccessCount)
	if d.metrics != nil {
		d.metrics.RecordDispatch(ctx, len(requested), envelope.SuccessCount)
	}
	d.log.Info("dispatch complete", logger.Fields(
		"requested", len(requested),
		"healthy", len(healthy),
		"succeeded", envelope.SuccessCount,
		logger.FieldDuration, envelope.Elapsed.String(),
	))

	return envelope, nil
}

// backendResponse is the JSON body each backend returns.
type backendResponse struct {
	Transcription  *string        `json:"transcription"`
	ProcessingTime float64        `json:"processing_time"`
	ModelInfo      map[string]any `json:"model_info"`
	Diagnostics    map[string]any `json:"diagnostics"`
}

// callBackend performs one multipart transcription call under the
// backend's own timeout and converts every outcome into a settled
// BackendResult.
func (d *Dispatcher) callBackend(ctx context.Context, desc ServiceDescriptor, payload []byte, filename string, includeDiagnostics bool) BackendResult {
	start := time.Now()

	ctx, span := observability.StartSpan(ctx, observability.SpanBackendCall)
	defer span.End()
	observability.SetSpanAttribute(ctx, observability.AttrBackend, desc.Name)

	resp, err := d.client.Do(ctx, httpclient.Request{
		Method:  http.MethodPost,
		Path:    desc.BaseURL + desc.EndpointPath,
		Timeout: desc.Timeout,
		Body: &httpclient.MultipartBody{
			Fields: map[string]string{
				"include_diagnostics": strconv.FormatBool(includeDiagnostics),
			},
			Files: []httpclient.FileField{{
				FieldName: "file",
				FileName:  filename,
				Data:      payload,
			}},
		},
	})

	elapsed := time.Since(start)
	if err != nil {
		observability.SetSpanError(ctx, err)
		return d.errorResult(ctx, desc.Name, elapsed, err.Error())
	}

	var body backendResponse
	if jsonErr := json.Unmarshal(resp.Body, &body); jsonErr != nil {
		return d.errorResult(ctx, desc.Name, elapsed, "malformed response body: "+jsonErr.Error())
	}
	if body.Transcription == nil {
		return d.errorResult(ctx, desc.Name, elapsed, "response missing transcription field")
	}

	if d.metrics != nil {
		d.metrics.RecordBackendCall(ctx, desc.Name, string(StatusSuccess), elapsed)
	}
	return BackendResult{
		Backend:        desc.Name,
		Status:         StatusSuccess,
		Transcript:     *body.Transcription,
		Elapsed:        elapsed,
		ServiceElapsed: body.ProcessingTime,
		ModelInfo:      body.ModelInfo,
		Diagnostics:    body.Diagnostics,
	}
}

func (d *Dispatcher) errorResult(ctx context.Context, backend string, elapsed time.Duration, message string) BackendResult {
	if d.metrics != nil {
		d.metrics.RecordBackendCall(ctx, backend, string(StatusError), elapsed)
	}
	d.log.Warn("backend call failed", logger.Fields(
		logger.FieldBackend, backend,
		logger.FieldError, message,
		logger.FieldDuration, elapsed.String(),
	))
	return BackendResult{
		Backend:      backend,
		Status:       StatusError,
		Elapsed:      elapsed,
		ErrorMessage: message,
	}
}
