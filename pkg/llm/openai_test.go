package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestOpenAIProviderGenerate(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("expected auth header")
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req openAIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[1].Content != "write a tweet" {
			t.Errorf("unexpected messages %+v", req.Messages)
		}
		if req.MaxTokens != 100 {
			t.Errorf("max_tokens = %d, want 100", req.MaxTokens)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"  Hello world  "}}]}`)
	}))
	defer server.Close()

	provider := NewOpenAIProvider(Config{APIURL: server.URL, APIKey: "test-key", Model: "gpt-test"})
	text, err := provider.Generate(context.Background(), Request{
		System:    "you are terse",
		Prompt:    "write a tweet",
		MaxTokens: 100,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if text != "Hello world" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestOpenAIProviderNotFound(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	provider := NewOpenAIProvider(Config{APIURL: server.URL, Model: "missing"})
	_, err := provider.Generate(context.Background(), Request{Prompt: "x"})
	if !IsModelNotFound(err) {
		t.Fatalf("expected model-not-found, got %v", err)
	}
	if IsTemporary(err) {
		t.Fatalf("404 should not be temporary")
	}
}

func TestOpenAIProviderRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	}))
	defer server.Close()

	provider := NewOpenAIProvider(Config{APIURL: server.URL, Model: "gpt-test"})
	text, err := provider.Generate(context.Background(), Request{Prompt: "x"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if text != "ok" || atomic.LoadInt32(&hits) != 2 {
		t.Fatalf("text=%q hits=%d", text, hits)
	}
}

func TestOpenAIProviderEmptyChoices(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer server.Close()

	provider := NewOpenAIProvider(Config{APIURL: server.URL, Model: "gpt-test"})
	_, err := provider.Generate(context.Background(), Request{Prompt: "x"})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestOpenAIProviderRequiresModel(t *testing.T) {
	t.Parallel()

	_, err := NewOpenAIProvider(Config{}).Generate(context.Background(), Request{Prompt: "x"})
	if err == nil {
		t.Fatal("expected error without model")
	}
}

func TestStatusErrorRetryAfter(t *testing.T) {
	t.Parallel()

	err := &StatusError{Provider: "openai", StatusCode: http.StatusTooManyRequests, Wait: parseRetryAfter("7")}
	if err.RetryAfter() != 7*time.Second {
		t.Fatalf("RetryAfter = %v", err.RetryAfter())
	}
	if !IsTemporary(err) {
		t.Fatal("429 should be temporary")
	}
	if parseRetryAfter("garbage") != 0 {
		t.Fatal("expected zero for garbage header")
	}
}
