package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/skillsenselab/chorus/generation"
	"github.com/skillsenselab/chorus/pipeline"
	"github.com/skillsenselab/chorus/transcription"
)

// offlineGenerator is never configured, so every stage settles on its
// deterministic fallback.
type offlineGenerator struct{}

func (offlineGenerator) Configured() bool { return false }

func (offlineGenerator) Generate(context.Context, generation.Request) (*generation.Result, error) {
	return nil, generation.ErrNotConfigured
}

func fakeBackend(t *testing.T, transcript string, healthy bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/transcribe", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"transcription":   transcript,
			"processing_time": 0.1,
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestRouter(t *testing.T, backends map[string]*httptest.Server) *gin.Engine {
	t.Helper()

	descriptors := make([]transcription.ServiceDescriptor, 0, len(backends))
	for _, name := range sortedKeys(backends) {
		descriptors = append(descriptors, transcription.ServiceDescriptor{
			Name:         name,
			BaseURL:      backends[name].URL,
			EndpointPath: "/transcribe",
			Timeout:      2 * time.Second,
		})
	}

	registry, err := transcription.NewRegistry(descriptors)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	gate, err := transcription.NewHealthGate(registry, time.Second)
	if err != nil {
		t.Fatalf("NewHealthGate: %v", err)
	}
	dispatcher, err := transcription.NewDispatcher(registry, gate)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	p := pipeline.New(offlineGenerator{}, nil, pipeline.Options{})

	gin.SetMode(gin.TestMode)
	engine := gin.New()
	NewAPI("chorus", registry, gate, dispatcher, p).Register(engine)
	return engine
}

func sortedKeys(m map[string]*httptest.Server) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 0; i < len(keys); i++ {
		for j := i + 1; j < len(keys); j++ {
			if keys[j] < keys[i] {
				keys[i], keys[j] = keys[j], keys[i]
			}
		}
	}
	return keys
}

func multipartUpload(t *testing.T, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "sample.wav")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	part.Write([]byte("RIFF fake audio"))
	for k, v := range fields {
		w.WriteField(k, v)
	}
	w.Close()
	return &buf, w.FormDataContentType()
}

func doRequest(engine *gin.Engine, method, target, contentType string, body *bytes.Buffer) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestHealth_DegradedWhenSomeBackendsDown(t *testing.T) {
	engine := newTestRouter(t, map[string]*httptest.Server{
		"whisper": fakeBackend(t, "hello", true),
		"vosk":    fakeBackend(t, "hello", false),
	})

	rec := doRequest(engine, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Status   string            `json:"status"`
		Backends map[string]string `json:"backends"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "degraded" {
		t.Errorf("expected degraded, got %q", body.Status)
	}
	if body.Backends["whisper"] != "healthy" || body.Backends["vosk"] != "unreachable" {
		t.Errorf("unexpected backend map: %v", body.Backends)
	}
}

func TestHealth_AllBackendsDownIs503(t *testing.T) {
	engine := newTestRouter(t, map[string]*httptest.Server{
		"whisper": fakeBackend(t, "hello", false),
	})

	rec := doRequest(engine, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestModels_ListsRegistry(t *testing.T) {
	engine := newTestRouter(t, map[string]*httptest.Server{
		"vosk":    fakeBackend(t, "a", true),
		"whisper": fakeBackend(t, "b", true),
	})

	rec := doRequest(engine, http.MethodGet, "/models", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Models) != 2 {
		t.Fatalf("expected 2 models, got %d", len(body.Models))
	}
}

func TestTranscribe_MissingFileIs400(t *testing.T) {
	engine := newTestRouter(t, map[string]*httptest.Server{
		"whisper": fakeBackend(t, "hello", true),
	})

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	w.WriteField("models", "whisper")
	w.Close()

	rec := doRequest(engine, http.MethodPost, "/transcribe", w.FormDataContentType(), &buf)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestTranscribe_ReturnsEnvelope(t *testing.T) {
	engine := newTestRouter(t, map[string]*httptest.Server{
		"whisper": fakeBackend(t, "hello world", true),
		"vosk":    fakeBackend(t, "hello word", true),
	})

	buf, contentType := multipartUpload(t, nil)
	rec := doRequest(engine, http.MethodPost, "/transcribe", contentType, buf)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var env transcription.DispatchEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.SuccessCount != 2 {
		t.Errorf("expected 2 successes, got %d", env.SuccessCount)
	}
	if env.Results["whisper"].Transcript != "hello world" {
		t.Errorf("unexpected whisper transcript %q", env.Results["whisper"].Transcript)
	}
}

func TestTranscribe_UnknownModelIs400(t *testing.T) {
	engine := newTestRouter(t, map[string]*httptest.Server{
		"whisper": fakeBackend(t, "hello", true),
	})

	buf, contentType := multipartUpload(t, map[string]string{"models": "whisper,nonexistent"})
	rec := doRequest(engine, http.MethodPost, "/transcribe", contentType, buf)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestTranscribe_NoHealthyBackendsIs503(t *testing.T) {
	engine := newTestRouter(t, map[string]*httptest.Server{
		"whisper": fakeBackend(t, "hello", false),
	})

	buf, contentType := multipartUpload(t, nil)
	rec := doRequest(engine, http.MethodPost, "/transcribe", contentType, buf)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestTranscribeConsensus_FallbackWithoutGeneration(t *testing.T) {
	engine := newTestRouter(t, map[string]*httptest.Server{
		"b-vosk":    fakeBackend(t, "hello word", true),
		"a-whisper": fakeBackend(t, "hello world", true),
	})

	buf, contentType := multipartUpload(t, nil)
	rec := doRequest(engine, http.MethodPost, "/transcribe-consensus", contentType, buf)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body consensusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Transcript != "hello world" {
		t.Errorf("expected first backend transcript, got %q", body.Transcript)
	}
	if body.PrimaryBackend != "a-whisper" {
		t.Errorf("unexpected primary backend %q", body.PrimaryBackend)
	}
	if len(body.Alternatives) != 2 {
		t.Errorf("expected 2 alternatives, got %v", body.Alternatives)
	}
	if len(body.Stages) == 0 {
		t.Error("expected a populated stage log")
	}
}

func TestTranscribeConsensus_DebugReturnsEnvelope(t *testing.T) {
	engine := newTestRouter(t, map[string]*httptest.Server{
		"whisper": fakeBackend(t, "hello", true),
	})

	buf, contentType := multipartUpload(t, nil)
	rec := doRequest(engine, http.MethodPost, "/transcribe-consensus?debug=true", contentType, buf)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	for _, key := range []string{"envelope", "analysis", "stages"} {
		if !strings.Contains(rec.Body.String(), `"`+key+`"`) {
			t.Errorf("debug body missing %q section", key)
		}
	}
}

func TestTranscribeWithParticles_RequiresTranscript(t *testing.T) {
	engine := newTestRouter(t, map[string]*httptest.Server{
		"whisper": fakeBackend(t, "hello", true),
	})

	body := bytes.NewBufferString(`{"agreement_score": 0.5}`)
	rec := doRequest(engine, http.MethodPost, "/transcribe-with-particles", "application/json", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestTranscribeWithParticles_OfflineFallback(t *testing.T) {
	engine := newTestRouter(t, map[string]*httptest.Server{
		"whisper": fakeBackend(t, "hello", true),
	})

	body := bytes.NewBufferString(`{
		"validated_transcript": "don't be like that man",
		"agreement_score": 0.9
	}`)
	rec := doRequest(engine, http.MethodPost, "/transcribe-with-particles", "application/json", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp particlesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.FinalTranscript != "don't be like that man" {
		t.Errorf("expected pass-through transcript, got %q", resp.FinalTranscript)
	}
	if len(resp.DetectedParticles) != 0 {
		t.Errorf("expected no particles, got %v", resp.DetectedParticles)
	}
	if resp.ConfidenceScore != 0.9 {
		t.Errorf("expected agreement-derived confidence, got %g", resp.ConfidenceScore)
	}
}
