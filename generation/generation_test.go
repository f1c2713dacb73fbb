package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestGeminiDialect_BuildRequest_FunctionCall(t *testing.T) {
	d := &geminiDialect{}

	body, err := d.BuildRequest(Request{
		Prompt: "pick the best transcript",
		Function: &FunctionSpec{
			Name:        "select_consensus",
			Description: "Select the consensus transcript",
			Parameters: map[string]any{
				"consensusTranscript": map[string]any{"type": "string"},
				"agreementScore":      map[string]any{"type": "number"},
			},
			Required: []string{"consensusTranscript", "agreementScore"},
		},
	}, 0.3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req, ok := body.(geminiRequest)
	if !ok {
		t.Fatalf("expected geminiRequest, got %T", body)
	}
	if len(req.Tools) != 1 || len(req.Tools[0].FunctionDeclarations) != 1 {
		t.Fatal("expected one function declaration")
	}
	decl := req.Tools[0].FunctionDeclarations[0]
	if decl.Name != "select_consensus" {
		t.Errorf("unexpected function name %q", decl.Name)
	}
	if req.ToolConfig == nil || req.ToolConfig.FunctionCallingConfig.Mode != "ANY" {
		t.Error("expected forced function calling")
	}
	if req.GenerationConfig.Temperature != 0.3 {
		t.Errorf("expected temperature 0.3, got %g", req.GenerationConfig.Temperature)
	}
}

func TestGeminiDialect_BuildRequest_EmptyPrompt(t *testing.T) {
	d := &geminiDialect{}
	if _, err := d.BuildRequest(Request{}, 0.3); err == nil {
		t.Fatal("expected error for empty prompt")
	}
}

func TestGeminiDialect_ParseResponse_FunctionCall(t *testing.T) {
	d := &geminiDialect{}

	body := []byte(`{
		"candidates": [{
			"content": {
				"parts": [{
					"functionCall": {
						"name": "select_consensus",
						"args": {"consensusTranscript": "hello world", "agreementScore": 0.9}
					}
				}]
			}
		}]
	}`)

	result, err := d.ParseResponse(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Call == nil {
		t.Fatal("expected function call")
	}
	if result.Call.Args["consensusTranscript"] != "hello world" {
		t.Errorf("unexpected args: %v", result.Call.Args)
	}
}

func TestGeminiDialect_ParseResponse_NoCandidates(t *testing.T) {
	d := &geminiDialect{}
	if _, err := d.ParseResponse([]byte(`{"candidates": []}`)); err == nil {
		t.Fatal("expected error for empty candidates")
	}
}

func TestClient_Unconfigured(t *testing.T) {
	c, err := New(Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Configured() {
		t.Error("expected unconfigured client")
	}
	if _, err := c.Generate(context.Background(), Request{Prompt: "hi"}); err != ErrNotConfigured {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestClient_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("key"); got != "test-key" {
			t.Errorf("expected key query param, got %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{
				map[string]any{"content": map[string]any{"parts": []any{
					map[string]any{"text": "the quick brown fox"},
				}}},
			},
		})
	}))
	defer srv.Close()

	c, err := New(Config{APIKey: "test-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.Configured() {
		t.Fatal("expected configured client")
	}

	result, err := c.Generate(context.Background(), Request{Prompt: "transcribe"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Text != "the quick brown fox" {
		t.Errorf("unexpected text %q", result.Text)
	}
}
