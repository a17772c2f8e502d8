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
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// collabValidate is the validator instance for collaborator payloads.
// Initialized once; validator.Validate is safe for concurrent use.
var collabValidate *validator.Validate

func init() {
	collabValidate = validator.New()
}

// generatePayload is the JSON envelope a generation collaborator must return.
type generatePayload struct {
	Files []SourceFile `json:"files" validate:"required,min=1,dive"`
}

// fixPayload is the JSON envelope a fix collaborator must return. An empty
// fixes list is a valid answer.
type fixPayload struct {
	Fixes []CodeFix `json:"fixes" validate:"dive"`
}

// decodeGenerateResponse parses and shape-validates a generation reply.
//
// Replies are untrusted. The JSON object is extracted (code fences and
// surrounding prose stripped), unmarshaled into the envelope, and validated
// against its tags. Any violation maps to ErrMalformedResponse so callers
// can apply their bounded retry.
func decodeGenerateResponse(raw string) ([]SourceFile, error) {
	doc := extractJSON(raw)
	if doc == "" {
		return nil, fmt.Errorf("%w: no JSON object in reply", ErrMalformedResponse)
	}

	var payload generatePayload
	if err := json.Unmarshal([]byte(doc), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := collabValidate.Struct(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return payload.Files, nil
}

// decodeFixResponse parses and shape-validates a fix reply.
func decodeFixResponse(raw string) ([]CodeFix, error) {
	doc := extractJSON(raw)
	if doc == "" {
		return nil, fmt.Errorf("%w: no JSON object in reply", ErrMalformedResponse)
	}

	var payload fixPayload
	if err := json.Unmarshal([]byte(doc), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := collabValidate.Struct(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if payload.Fixes == nil {
		return []CodeFix{}, nil
	}
	return payload.Fixes, nil
}

// extractJSON pulls the first complete JSON object out of a model reply.
//
// Fenced blocks are preferred: prose before a fence may contain stray
// braces. Generated file content legitimately holds unbalanced braces
// inside JSON strings, so the scan is string-aware rather than a bare
// brace count.
func extractJSON(reply string) string {
	s := strings.TrimSpace(reply)

	if start := strings.Index(s, "```"); start != -1 {
		rest := s[start:]
		if nl := strings.Index(rest, "\n"); nl != -1 {
			rest = rest[nl+1:]
			if end := strings.Index(rest, "```"); end != -1 {
				if body := strings.TrimSpace(rest[:end]); strings.HasPrefix(body, "{") {
					s = body
				}
			}
		}
	}

	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return s[start : i+1]
				}
			}
		}
	}
	return ""
}

// truncate shortens a string for logs and error payloads.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
