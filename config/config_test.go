package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.Transcription.Backends = []BackendConfig{
		{Name: "whisper", BaseURL: "http://localhost:8001"},
	}
	cfg.ApplyDefaults()

	if cfg.Name != "chorus" {
		t.Errorf("expected default name chorus, got %q", cfg.Name)
	}
	if cfg.Environment != "development" {
		t.Errorf("expected development, got %q", cfg.Environment)
	}
	if !cfg.Debug {
		t.Error("expected debug true in development")
	}
	if cfg.Transcription.HealthTimeout != 5*time.Second {
		t.Errorf("expected 5s health timeout, got %v", cfg.Transcription.HealthTimeout)
	}
	if got := cfg.Transcription.Backends[0].Endpoint; got != "/transcribe" {
		t.Errorf("expected default endpoint /transcribe, got %q", got)
	}
	if cfg.Generation.Timeout != 30*time.Second {
		t.Errorf("expected 30s generation timeout, got %v", cfg.Generation.Timeout)
	}
	if cfg.Generation.Temperature != 0.3 {
		t.Errorf("expected temperature 0.3, got %g", cfg.Generation.Temperature)
	}
	if cfg.Search.Timeout != 10*time.Second {
		t.Errorf("expected 10s search timeout, got %v", cfg.Search.Timeout)
	}
	if cfg.Search.MaxResults != 3 {
		t.Errorf("expected 3 max results, got %d", cfg.Search.MaxResults)
	}
	if cfg.Pipeline.MaxQueries != 3 {
		t.Errorf("expected query cap 3, got %d", cfg.Pipeline.MaxQueries)
	}
}

func TestConfig_Validate_DuplicateBackend(t *testing.T) {
	cfg := Config{}
	cfg.Transcription.Backends = []BackendConfig{
		{Name: "whisper", BaseURL: "http://localhost:8001"},
		{Name: "whisper", BaseURL: "http://localhost:8002"},
	}
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for duplicate backend name")
	}
}

func TestConfig_Validate_UnknownPhonemeBackend(t *testing.T) {
	cfg := Config{}
	cfg.Transcription.Backends = []BackendConfig{
		{Name: "whisper", BaseURL: "http://localhost:8001"},
	}
	cfg.Pipeline.PhonemeBackend = "wav2vec2"
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown phoneme backend")
	}
}

func TestLoad_FromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	content := []byte(`
name: chorus
environment: development
server:
  port: 9090
transcription:
  backends:
    - name: whisper
      base_url: http://localhost:8001
    - name: wav2vec2
      base_url: http://localhost:8002
      endpoint: /transcribe-json
pipeline:
  phoneme_backend: wav2vec2
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	var cfg Config
	if err := Load("chorus", &cfg, WithConfigFile(path)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg.ApplyDefaults()

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if len(cfg.Transcription.Backends) != 2 {
		t.Fatalf("expected 2 backends, got %d", len(cfg.Transcription.Backends))
	}
	if got := cfg.Transcription.Backends[1].Endpoint; got != "/transcribe-json" {
		t.Errorf("expected /transcribe-json, got %q", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected validate error: %v", err)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("GENERATION_API_KEY", "test-key")

	var cfg Config
	if err := Load("chorus", &cfg, WithConfigFile(filepath.Join(t.TempDir(), "missing.yml"))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Generation.APIKey != "test-key" {
		t.Errorf("expected env override, got %q", cfg.Generation.APIKey)
	}
}
