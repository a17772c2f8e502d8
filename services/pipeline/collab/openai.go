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

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/modulift/modulift/services/pipeline/validate"
)

// OpenAIConfig configures the OpenAI-backed collaborator.
type OpenAIConfig struct {
	// Key is the sealed credential. When nil, the key is loaded from
	// OPENAI_API_KEY or the mounted secrets file.
	Key *APIKey `yaml:"-"`

	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`

	// RequestsPerMinute throttles calls across both roles. <= 0 uses 60.
	RequestsPerMinute float64 `yaml:"requests_per_minute"`

	// MaxRetries bounds re-asks after malformed replies. <= 0 uses the
	// package default.
	MaxRetries int `yaml:"max_retries"`
}

// OpenAIClient implements Generator and FixSuggester against the OpenAI
// chat completions API.
type OpenAIClient struct {
	client     *openai.Client
	model      string
	limiter    *rate.Limiter
	maxRetries int
}

func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.Key == nil {
		key, err := LoadAPIKey("OPENAI_API_KEY", "/run/secrets/openai_api_key")
		if err != nil {
			return nil, err
		}
		cfg.Key = key
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
		slog.Warn("OpenAI model not set, defaulting to gpt-4o-mini")
	}
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 60
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = DefaultMaxRetries
	}

	token, err := cfg.Key.Reveal()
	if err != nil {
		return nil, err
	}
	clientCfg := openai.DefaultConfig(token)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	slog.Info("Initializing OpenAI collaborator", "model", cfg.Model)
	return &OpenAIClient{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      cfg.Model,
		limiter:    rate.NewLimiter(rate.Limit(rpm/60.0), 1),
		maxRetries: retries,
	}, nil
}

// GenerateModule implements the Generator interface.
func (c *OpenAIClient) GenerateModule(ctx context.Context, spec ModuleSpec) ([]SourceFile, error) {
	if ctx == nil {
		return nil, fmt.Errorf("%w: ctx must not be nil", ErrInvalidInput)
	}
	if spec.Name == "" || spec.Dialect == "" {
		return nil, fmt.Errorf("%w: spec requires name and dialect", ErrInvalidInput)
	}

	prompt := buildGeneratePrompt(spec)
	var lastErr error
	var lastRaw string
	for attempt := 1; attempt <= c.maxRetries+1; attempt++ {
		reply, err := c.complete(ctx, generateSystemPrompt, prompt)
		if err != nil {
			return nil, err
		}

		files, err := decodeGenerateResponse(reply)
		if err == nil {
			slog.Debug("OpenAI collaborator generated module",
				"module", spec.Name, "files", len(files), "attempt", attempt)
			return files, nil
		}
		lastErr = err
		lastRaw = reply
		slog.Warn("Malformed generation response",
			"backend", "openai", "module", spec.Name, "attempt", attempt, "error", err)
	}
	return nil, newResponseError("openai", c.maxRetries+1, lastErr, lastRaw)
}

// SuggestFixes implements the FixSuggester interface.
func (c *OpenAIClient) SuggestFixes(ctx context.Context, result *validate.ValidationResult, files []SourceFile) ([]CodeFix, error) {
	if ctx == nil {
		return nil, fmt.Errorf("%w: ctx must not be nil", ErrInvalidInput)
	}
	if result == nil {
		return nil, fmt.Errorf("%w: result must not be nil", ErrInvalidInput)
	}

	prompt := buildFixPrompt(result, files)
	var lastErr error
	var lastRaw string
	for attempt := 1; attempt <= c.maxRetries+1; attempt++ {
		reply, err := c.complete(ctx, fixSystemPrompt, prompt)
		if err != nil {
			return nil, err
		}

		fixes, err := decodeFixResponse(reply)
		if err == nil {
			slog.Debug("OpenAI collaborator proposed fixes",
				"fixes", len(fixes), "attempt", attempt)
			return fixes, nil
		}
		lastErr = err
		lastRaw = reply
		slog.Warn("Malformed fix response",
			"backend", "openai", "attempt", attempt, "error", err)
	}
	return nil, newResponseError("openai", c.maxRetries+1, lastErr, lastRaw)
}

// complete issues one rate-limited chat completion and returns the reply text.
func (c *OpenAIClient) complete(ctx context.Context, system, user string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0.2,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		slog.Error("OpenAI API call failed", "error", err)
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: OpenAI returned no choices", ErrEmptyResponse)
	}
	return resp.Choices[0].Message.Content, nil
}
