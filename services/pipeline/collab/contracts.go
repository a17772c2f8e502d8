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
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modulift/modulift/services/pipeline/validate"
)

// ModuleSpec describes one module a generation collaborator should produce.
// It is assembled from the build plan; the collaborator never sees the rest
// of the batch.
type ModuleSpec struct {
	// Name is the module identifier from the build plan.
	Name string `json:"name"`

	// Dialect selects the target IaC language ("terraform" or "bicep").
	Dialect string `json:"dialect"`

	// Description is a short statement of what the module provisions.
	Description string `json:"description,omitempty"`

	// Dependencies lists modules this one consumes outputs from.
	Dependencies []string `json:"dependencies,omitempty"`

	// Patterns lists shared pattern keys the module must apply.
	Patterns []string `json:"patterns,omitempty"`

	// Variables are name/value hints forwarded to the collaborator.
	Variables map[string]string `json:"variables,omitempty"`

	// Context is free-form supporting documentation. Oversized context is
	// chunked before prompting.
	Context string `json:"context,omitempty"`
}

// SourceFile is one generated file. Path is relative to the module directory.
type SourceFile struct {
	Path    string `json:"path" validate:"required"`
	Content string `json:"content" validate:"required"`
}

// =============================================================================
// CONFIDENCE
// =============================================================================

// Confidence is the collaborator's self-reported certainty that a proposed
// change is correct. Only high-confidence fixes are ever applied
// automatically, so the zero value is the safe one.
type Confidence int

const (
	ConfidenceLow Confidence = iota
	ConfidenceMedium
	ConfidenceHigh
)

// String returns the string representation of the confidence level.
func (c Confidence) String() string {
	switch c {
	case ConfidenceLow:
		return "low"
	case ConfidenceMedium:
		return "medium"
	case ConfidenceHigh:
		return "high"
	default:
		return "low"
	}
}

// ConfidenceFromString converts a string to a Confidence. Unknown values
// map to low so nothing a collaborator reports can self-escalate.
func ConfidenceFromString(s string) Confidence {
	switch strings.ToLower(s) {
	case "high":
		return ConfidenceHigh
	case "medium":
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// MarshalJSON implements json.Marshaler for Confidence.
func (c Confidence) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON implements json.Unmarshaler for Confidence.
func (c *Confidence) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*c = ConfidenceFromString(str)
		return nil
	}

	var i int
	if err := json.Unmarshal(data, &i); err != nil {
		return fmt.Errorf("Confidence must be string or int: %w", err)
	}
	if i < int(ConfidenceLow) || i > int(ConfidenceHigh) {
		i = int(ConfidenceLow)
	}
	*c = Confidence(i)
	return nil
}

// =============================================================================
// FIX EXCHANGE TYPES
// =============================================================================

// FixAlternative is a secondary proposal attached to a CodeFix.
type FixAlternative struct {
	Code        string `json:"code"`
	Explanation string `json:"explanation,omitempty"`
}

// CodeFix is one proposed change from a fix collaborator. A fix carries
// either a currentCode/suggestedCode snippet pair or a unified-diff patch.
type CodeFix struct {
	// File is the path of the file to change, relative to the module dir.
	File string `json:"file" validate:"required"`

	// Line is a 1-based hint for where CurrentCode sits. Zero when unknown.
	Line int `json:"line,omitempty"`

	// CurrentCode is the exact text expected in the file today.
	CurrentCode string `json:"currentCode,omitempty" validate:"required_without=Patch"`

	// SuggestedCode replaces CurrentCode when the fix is applied.
	SuggestedCode string `json:"suggestedCode,omitempty" validate:"required_without=Patch"`

	// Patch is a unified diff, used instead of the snippet pair.
	Patch string `json:"patch,omitempty"`

	// Confidence is the collaborator's certainty. Only high is auto-applied.
	Confidence Confidence `json:"confidence"`

	// Alternatives are other candidate changes, recorded but never applied.
	Alternatives []FixAlternative `json:"alternatives,omitempty"`

	// References are supporting URLs. Opaque to the pipeline.
	References []string `json:"references,omitempty"`
}

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// Generator produces the initial source files for a module.
type Generator interface {
	GenerateModule(ctx context.Context, spec ModuleSpec) ([]SourceFile, error)
}

// FixSuggester proposes fixes for a failed validation pass.
type FixSuggester interface {
	SuggestFixes(ctx context.Context, result *validate.ValidationResult, files []SourceFile) ([]CodeFix, error)
}

// Client bundles both collaborator roles. The reference backends implement it.
type Client interface {
	Generator
	FixSuggester
}

// BackendConfig selects and configures a reference collaborator backend at
// startup.
type BackendConfig struct {
	// Backend is "openai" or "ollama".
	Backend string `yaml:"backend"`

	OpenAI OpenAIConfig `yaml:"openai"`
	Ollama OllamaConfig `yaml:"ollama"`
}

// NewClient constructs the configured collaborator backend.
func NewClient(cfg BackendConfig) (Client, error) {
	switch cfg.Backend {
	case "openai":
		return NewOpenAIClient(cfg.OpenAI)
	case "ollama":
		return NewOllamaClient(cfg.Ollama)
	default:
		return nil, fmt.Errorf("%w: unknown collaborator backend %q", ErrInvalidInput, cfg.Backend)
	}
}
