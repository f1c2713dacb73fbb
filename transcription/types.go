// Package transcription implements the health-gated parallel dispatcher
// over the configured ASR backend services.
package transcription

import (
	"time"
)

// ServiceDescriptor describes one backend service. Descriptors are
// built at startup and never mutated.
type ServiceDescriptor struct {
	// Name is the unique backend identifier.
	Name string
	// BaseURL is the backend's base URL.
	BaseURL string
	// EndpointPath is the transcription endpoint path.
	EndpointPath string
	// Timeout bounds a single transcription call to this backend.
	Timeout time.Duration
}

// ResultStatus is the outcome of a single backend call.
type ResultStatus string

const (
	StatusSuccess ResultStatus = "success"
	StatusError   ResultStatus = "error"
)

// BackendResult is the settled outcome of one backend transcription
// call. Created once per dispatch and never mutated.
type BackendResult struct {
	// Backend is the backend name.
	Backend string `json:"backend"`
	// Status is success or error.
	Status ResultStatus `json:"status"`
	// Transcript is the transcription text. Empty on error.
	Transcript string `json:"transcript,omitempty"`
	// Elapsed is the orchestrator-measured call duration.
	Elapsed time.Duration `json:"elapsed"`
	// ServiceElapsed is the backend's self-reported processing time in seconds.
	ServiceElapsed float64 `json:"service_elapsed,omitempty"`
	// ModelInfo is the backend's self-description.
	ModelInfo map[string]any `json:"model_info,omitempty"`
	// Diagnostics carries opaque backend diagnostics when requested.
	Diagnostics map[string]any `json:"diagnostics,omitempty"`
	// ErrorMessage describes the failure. Empty on success.
	ErrorMessage string `json:"error_message,omitempty"`
}

// DispatchEnvelope aggregates a full dispatch round. Built once per
// request and immutable after construction.
type DispatchEnvelope struct {
	// Filename is the uploaded audio file name.
	Filename string `json:"filename"`
	// Requested lists the backends asked for, in registry order.
	Requested []string `json:"requested_backends"`
	// Healthy lists the backends that passed the health gate, in
	// registry order.
	Healthy []string `json:"healthy_backends"`
	// Results holds exactly one entry per healthy backend.
	Results map[string]BackendResult `json:"results"`
	// SuccessCount is the number of successful results.
	SuccessCount int `json:"success_count"`
	// Elapsed is the wall-clock duration of the whole dispatch.
	Elapsed time.Duration `json:"elapsed"`
	// NoHealthyBackends marks an empty-result envelope. This is the
	// dispatch phase's only terminal condition.
	NoHealthyBackends bool `json:"no_healthy_backends,omitempty"`
}

// Transcripts returns the backend to transcript map over successful
// results only.
func (e *DispatchEnvelope) Transcripts() map[string]string {
	out := make(map[string]string, len(e.Results))
	for name, r := range e.Results {
		if r.Status == StatusSuccess {
			out[name] = r.Transcript
		}
	}
	return out
}

// SuccessfulBackends returns the names of backends that produced a
// transcript, sorted for deterministic downstream consumption.
func (e *DispatchEnvelope) SuccessfulBackends() []string {
	names := make([]string, 0, len(e.Results))
	for _, name := range e.Healthy {
		if r, ok := e.Results[name]; ok && r.Status == StatusSuccess {
			names = append(names, name)
		}
	}
	return names
}

// PhonemeEvent is one timed phoneme from a backend's diagnostics.
type PhonemeEvent struct {
	Phoneme    string  `json:"phoneme"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

// PhonemeTiming extracts the timed-phoneme diagnostics reported by the
// named backend. Returns nil when the backend failed, reported no
// diagnostics, or reported diagnostics without phoneme timing.
func (e *DispatchEnvelope) PhonemeTiming(backend string) []PhonemeEvent {
	r, ok := e.Results[backend]
	if !ok || r.Status != StatusSuccess || r.Diagnostics == nil {
		return nil
	}

	raw, ok := r.Diagnostics["phonemes"].([]any)
	if !ok {
		return nil
	}

	events := make([]PhonemeEvent, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		ev := PhonemeEvent{
			Phoneme:    stringValue(m, "phoneme"),
			Start:      floatValue(m, "start", "start_time"),
			End:        floatValue(m, "end", "end_time"),
			Confidence: floatValue(m, "confidence"),
		}
		if ev.Phoneme != "" {
			events = append(events, ev)
		}
	}
	if len(events) == 0 {
		return nil
	}
	return events
}

func stringValue(m map[string]any, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func floatValue(m map[string]any, keys ...string) float64 {
	for _, key := range keys {
		if v, ok := m[key].(float64); ok {
			return v
		}
	}
	return 0
}
