package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_Unconfigured(t *testing.T) {
	c, err := New(Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Configured() {
		t.Error("expected unconfigured client")
	}
	if _, err := c.Search(context.Background(), "anything", 3); err != ErrNotConfigured {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}

func TestClient_Search_KeepsTopTwo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["api_key"] != "search-key" {
			t.Errorf("expected api_key in body, got %v", req["api_key"])
		}
		if req["query"] != "Niah Caves Sarawak" {
			t.Errorf("unexpected query %v", req["query"])
		}
		json.NewEncoder(w).Encode(map[string]any{
			"answer": "The Niah Caves are in Sarawak, Malaysia.",
			"results": []any{
				map[string]any{"title": "one", "content": "first", "url": "http://a"},
				map[string]any{"title": "two", "content": "second", "url": "http://b"},
				map[string]any{"title": "three", "content": "third", "url": "http://c"},
			},
		})
	}))
	defer srv.Close()

	c, err := New(Config{APIKey: "search-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := c.Search(context.Background(), "Niah Caves Sarawak", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Answer == "" {
		t.Error("expected an answer")
	}
	if len(result.Results) != 2 {
		t.Fatalf("expected top 2 results kept, got %d", len(result.Results))
	}
	if result.Results[1].Snippet != "second" {
		t.Errorf("unexpected second result: %+v", result.Results[1])
	}
}

func TestClient_Search_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := New(Config{APIKey: "search-key", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := c.Search(context.Background(), "anything", 3); err == nil {
		t.Fatal("expected error for 502")
	}
}
