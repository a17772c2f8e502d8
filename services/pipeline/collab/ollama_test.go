// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package collab

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/modulift/modulift/services/pipeline/validate"
)

// ollamaRequest is the subset of the /api/chat request the tests inspect.
type ollamaRequest struct {
	Model    string `json:"model"`
	Format   string `json:"format"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

// fakeOllama serves canned /api/chat replies in order, repeating the last.
type fakeOllama struct {
	srv      *httptest.Server
	calls    atomic.Int32
	mu       sync.Mutex
	requests []ollamaRequest
}

func newFakeOllama(t *testing.T, replies ...string) *fakeOllama {
	t.Helper()
	f := &fakeOllama{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/api/chat") {
			http.NotFound(w, r)
			return
		}

		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil {
			f.mu.Lock()
			f.requests = append(f.requests, req)
			f.mu.Unlock()
		}

		idx := int(f.calls.Add(1)) - 1
		if idx >= len(replies) {
			idx = len(replies) - 1
		}

		body, err := json.Marshal(map[string]any{
			"model":      "qwen2.5-coder",
			"created_at": "2024-01-01T00:00:00Z",
			"message":    map[string]any{"role": "assistant", "content": replies[idx]},
			"done":       true,
		})
		if err != nil {
			t.Errorf("Failed to build chat body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeOllama) lastRequest(t *testing.T) ollamaRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		t.Fatal("Expected at least one captured request")
	}
	return f.requests[len(f.requests)-1]
}

func newTestOllamaClient(t *testing.T, baseURL string, maxRetries int) *OllamaClient {
	t.Helper()
	client, err := NewOllamaClient(OllamaConfig{
		BaseURL:    baseURL,
		Model:      "qwen2.5-coder",
		MaxRetries: maxRetries,
	})
	if err != nil {
		t.Fatalf("NewOllamaClient returned error: %v", err)
	}
	return client
}

func TestNewOllamaClient(t *testing.T) {
	t.Parallel()

	if _, err := NewOllamaClient(OllamaConfig{}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for missing base URL, got %v", err)
	}

	client, err := NewOllamaClient(OllamaConfig{BaseURL: "http://localhost:11434"})
	if err != nil {
		t.Fatalf("NewOllamaClient returned error: %v", err)
	}
	if client.model != "qwen2.5-coder" {
		t.Errorf("Expected default model qwen2.5-coder, got %q", client.model)
	}
	if client.maxTokens != 8192 {
		t.Errorf("Expected default max tokens 8192, got %d", client.maxTokens)
	}
	if client.maxRetries != DefaultMaxRetries {
		t.Errorf("Expected default max retries %d, got %d", DefaultMaxRetries, client.maxRetries)
	}
}

func TestOllamaClient_GenerateModule(t *testing.T) {
	t.Parallel()

	fake := newFakeOllama(t, validGenerateReply)
	client := newTestOllamaClient(t, fake.srv.URL, 1)

	files, err := client.GenerateModule(context.Background(), ModuleSpec{Name: "vnet", Dialect: "terraform"})
	if err != nil {
		t.Fatalf("GenerateModule returned error: %v", err)
	}
	if len(files) != 1 || files[0].Path != "main.tf" {
		t.Errorf("Expected one main.tf, got %+v", files)
	}
	if got := fake.calls.Load(); got != 1 {
		t.Errorf("Expected 1 API call, got %d", got)
	}

	req := fake.lastRequest(t)
	if req.Model != "qwen2.5-coder" {
		t.Errorf("Expected model qwen2.5-coder, got %q", req.Model)
	}
	if req.Format != "json" {
		t.Errorf("Expected json format, got %q", req.Format)
	}
	if len(req.Messages) == 0 || !strings.Contains(req.Messages[0].Content, `Generate a terraform module named "vnet".`) {
		t.Errorf("Expected generation prompt in message, got %+v", req.Messages)
	}
}

func TestOllamaClient_GenerateModule_RetriesMalformed(t *testing.T) {
	t.Parallel()

	fake := newFakeOllama(t, "I cannot produce that module.", validGenerateReply)
	client := newTestOllamaClient(t, fake.srv.URL, 1)

	files, err := client.GenerateModule(context.Background(), ModuleSpec{Name: "vnet", Dialect: "terraform"})
	if err != nil {
		t.Fatalf("GenerateModule returned error: %v", err)
	}
	if len(files) != 1 {
		t.Errorf("Expected one file after retry, got %+v", files)
	}
	if got := fake.calls.Load(); got != 2 {
		t.Errorf("Expected 2 API calls, got %d", got)
	}
}

func TestOllamaClient_GenerateModule_Exhausted(t *testing.T) {
	t.Parallel()

	fake := newFakeOllama(t, "still not JSON")
	client := newTestOllamaClient(t, fake.srv.URL, 1)

	_, err := client.GenerateModule(context.Background(), ModuleSpec{Name: "vnet", Dialect: "terraform"})
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("Expected ErrMalformedResponse, got %v", err)
	}

	var respErr *ResponseError
	if !errors.As(err, &respErr) {
		t.Fatalf("Expected *ResponseError, got %T", err)
	}
	if respErr.Backend != "ollama" || respErr.Attempts != 2 {
		t.Errorf("Expected ollama/2 attempts, got %s/%d", respErr.Backend, respErr.Attempts)
	}
}

func TestOllamaClient_SuggestFixes(t *testing.T) {
	t.Parallel()

	reply := `{"fixes":[{"file":"main.bicep","line":4,"currentCode":"param x strng","suggestedCode":"param x string","confidence":"medium"}]}`
	fake := newFakeOllama(t, reply)
	client := newTestOllamaClient(t, fake.srv.URL, 1)

	result := &validate.ValidationResult{
		OverallStatus: validate.StatusFail,
		Dialect:       validate.DialectBicep,
		Issues: []validate.ValidationIssue{
			{File: "main.bicep", Line: linePtr(4), Severity: validate.SeverityError, RuleOrType: "BCP018", Message: "bad type"},
		},
	}

	fixes, err := client.SuggestFixes(context.Background(), result, []SourceFile{{Path: "main.bicep", Content: "param x strng\n"}})
	if err != nil {
		t.Fatalf("SuggestFixes returned error: %v", err)
	}
	if len(fixes) != 1 || fixes[0].Confidence != ConfidenceMedium {
		t.Errorf("Expected one medium-confidence fix, got %+v", fixes)
	}
}

func TestOllamaClient_InvalidInput(t *testing.T) {
	t.Parallel()

	fake := newFakeOllama(t, validGenerateReply)
	client := newTestOllamaClient(t, fake.srv.URL, 1)

	//nolint:staticcheck // Verifying the nil-context guard.
	if _, err := client.GenerateModule(nil, ModuleSpec{Name: "vnet", Dialect: "terraform"}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for nil context, got %v", err)
	}
	if _, err := client.GenerateModule(context.Background(), ModuleSpec{}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty spec, got %v", err)
	}
	if _, err := client.SuggestFixes(context.Background(), nil, nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for nil result, got %v", err)
	}
	if got := fake.calls.Load(); got != 0 {
		t.Errorf("Expected no API calls, got %d", got)
	}
}

func TestOllamaClient_TransportErrorNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	client := newTestOllamaClient(t, srv.URL, 2)

	_, err := client.GenerateModule(context.Background(), ModuleSpec{Name: "vnet", Dialect: "terraform"})
	if err == nil {
		t.Fatal("Expected error from failing API")
	}
	if errors.Is(err, ErrMalformedResponse) {
		t.Errorf("Expected transport error, not malformed response: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("Expected transport errors to not be retried, got %d calls", got)
	}
}

func TestNewClient_Ollama(t *testing.T) {
	t.Parallel()

	client, err := NewClient(BackendConfig{
		Backend: "ollama",
		Ollama:  OllamaConfig{BaseURL: "http://localhost:11434"},
	})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	if _, ok := client.(*OllamaClient); !ok {
		t.Errorf("Expected *OllamaClient, got %T", client)
	}
}
