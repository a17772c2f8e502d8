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
	"errors"
	"fmt"
)

const (
	// DefaultMaxRetries bounds re-asks after a malformed collaborator reply.
	DefaultMaxRetries = 2

	// maxRawErrorBytes caps how much of a bad reply rides along in errors.
	maxRawErrorBytes = 512
)

var (
	// ErrMalformedResponse indicates the collaborator reply failed JSON
	// extraction, unmarshaling, or shape validation. Retried up to the
	// configured bound, never repaired ad hoc.
	ErrMalformedResponse = errors.New("malformed collaborator response")

	// ErrEmptyResponse indicates the backend returned no content at all.
	ErrEmptyResponse = errors.New("empty collaborator response")

	// ErrMissingAPIKey indicates no credential could be loaded for a backend.
	ErrMissingAPIKey = errors.New("collaborator API key not configured")

	// ErrInvalidInput indicates invalid arguments.
	ErrInvalidInput = errors.New("invalid input")
)

// ResponseError wraps a collaborator failure with backend and payload
// context for debugging.
type ResponseError struct {
	// Backend identifies the client ("openai", "ollama").
	Backend string

	// Attempts is how many times the request was issued before giving up.
	Attempts int

	// Err is the underlying error.
	Err error

	// Raw is a truncated copy of the offending reply, if any.
	Raw string
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	if e.Raw != "" {
		return fmt.Sprintf("%s collaborator after %d attempts: %v: %s", e.Backend, e.Attempts, e.Err, e.Raw)
	}
	return fmt.Sprintf("%s collaborator after %d attempts: %v", e.Backend, e.Attempts, e.Err)
}

// Unwrap returns the underlying error for errors.Is/errors.As.
func (e *ResponseError) Unwrap() error {
	return e.Err
}

// newResponseError creates a ResponseError, truncating the raw payload.
func newResponseError(backend string, attempts int, err error, raw string) *ResponseError {
	if len(raw) > maxRawErrorBytes {
		raw = raw[:maxRawErrorBytes] + "..."
	}
	return &ResponseError{
		Backend:  backend,
		Attempts: attempts,
		Err:      err,
		Raw:      raw,
	}
}
