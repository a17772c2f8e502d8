// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package collab

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/modulift/modulift/services/pipeline/validate"
)

// OllamaConfig configures the local-model collaborator.
type OllamaConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	// MaxTokens caps the response length. <= 0 uses 8192.
	MaxTokens int `yaml:"max_tokens"`

	// MaxRetries bounds re-asks after malformed replies. <= 0 uses the
	// package default.
	MaxRetries int `yaml:"max_retries"`
}

// OllamaClient implements Generator and FixSuggester against a local
// Ollama server.
type OllamaClient struct {
	llm        *ollama.LLM
	model      string
	maxTokens  int
	maxRetries int
}

func NewOllamaClient(cfg OllamaConfig) (*OllamaClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: ollama base URL must be set", ErrInvalidInput)
	}
	if cfg.Model == "" {
		cfg.Model = "qwen2.5-coder"
		slog.Warn("Ollama model not set, defaulting to qwen2.5-coder")
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = DefaultMaxRetries
	}

	llm, err := ollama.New(
		ollama.WithServerURL(cfg.BaseURL),
		ollama.WithModel(cfg.Model),
		ollama.WithFormat("json"),
	)
	if err != nil {
		return nil, fmt.Errorf("initializing ollama client: %w", err)
	}

	slog.Info("Initializing Ollama collaborator", "base_url", cfg.BaseURL, "model", cfg.Model)
	return &OllamaClient{
		llm:        llm,
		model:      cfg.Model,
		maxTokens:  maxTokens,
		maxRetries: retries,
	}, nil
}

// GenerateModule implements the Generator interface.
func (o *OllamaClient) GenerateModule(ctx context.Context, spec ModuleSpec) ([]SourceFile, error) {
	if ctx == nil {
		return nil, fmt.Errorf("%w: ctx must not be nil", ErrInvalidInput)
	}
	if spec.Name == "" || spec.Dialect == "" {
		return nil, fmt.Errorf("%w: spec requires name and dialect", ErrInvalidInput)
	}

	prompt := buildGeneratePrompt(spec)
	var lastErr error
	var lastRaw string
	for attempt := 1; attempt <= o.maxRetries+1; attempt++ {
		reply, err := o.complete(ctx, generateSystemPrompt, prompt)
		if err != nil {
			return nil, err
		}

		files, err := decodeGenerateResponse(reply)
		if err == nil {
			slog.Debug("Ollama collaborator generated module",
				"module", spec.Name, "files", len(files), "attempt", attempt)
			return files, nil
		}
		lastErr = err
		lastRaw = reply
		slog.Warn("Malformed generation response",
			"backend", "ollama", "module", spec.Name, "attempt", attempt, "error", err)
	}
	return nil, newResponseError("ollama", o.maxRetries+1, lastErr, lastRaw)
}

// SuggestFixes implements the FixSuggester interface.
func (o *OllamaClient) SuggestFixes(ctx context.Context, result *validate.ValidationResult, files []SourceFile) ([]CodeFix, error) {
	if ctx == nil {
		return nil, fmt.Errorf("%w: ctx must not be nil", ErrInvalidInput)
	}
	if result == nil {
		return nil, fmt.Errorf("%w: result must not be nil", ErrInvalidInput)
	}

	prompt := buildFixPrompt(result, files)
	var lastErr error
	var lastRaw string
	for attempt := 1; attempt <= o.maxRetries+1; attempt++ {
		reply, err := o.complete(ctx, fixSystemPrompt, prompt)
		if err != nil {
			return nil, err
		}

		fixes, err := decodeFixResponse(reply)
		if err == nil {
			slog.Debug("Ollama collaborator proposed fixes",
				"fixes", len(fixes), "attempt", attempt)
			return fixes, nil
		}
		lastErr = err
		lastRaw = reply
		slog.Warn("Malformed fix response",
			"backend", "ollama", "attempt", attempt, "error", err)
	}
	return nil, newResponseError("ollama", o.maxRetries+1, lastErr, lastRaw)
}

// complete issues one completion against the local model.
func (o *OllamaClient) complete(ctx context.Context, system, user string) (string, error) {
	reply, err := llms.GenerateFromSinglePrompt(ctx, o.llm, system+"\n\n"+user,
		llms.WithTemperature(0.2),
		llms.WithMaxTokens(o.maxTokens),
	)
	if err != nil {
		slog.Error("Ollama API call failed", "model", o.model, "error", err)
		return "", fmt.Errorf("Ollama API call failed: %w", err)
	}
	if reply == "" {
		return "", fmt.Errorf("%w: Ollama returned no content", ErrEmptyResponse)
	}
	return reply, nil
}
