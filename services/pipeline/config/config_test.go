// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParse_EmbeddedDefault verifies the embedded configuration parses and
// carries the documented defaults.
func TestParse_EmbeddedDefault(t *testing.T) {
	cfg, err := Parse(defaultConfigYAML)
	require.NoError(t, err)

	assert.Equal(t, "modulift", cfg.Service.Name)
	assert.Equal(t, 2, cfg.Patterns.Threshold)
	assert.Equal(t, "terraform", cfg.Validate.Dialect)
	assert.False(t, cfg.Validate.Skip)
	assert.Equal(t, 3, cfg.Fix.MaxIterations)
	assert.Equal(t, "ollama", cfg.Collab.Backend)
	assert.Equal(t, 0, cfg.Run.Workers)
	assert.Equal(t, 8080, cfg.Server.Port)
}

// TestParse_PartialOverride verifies an override file only changes the keys
// it names; everything else keeps the embedded defaults.
func TestParse_PartialOverride(t *testing.T) {
	cfg, err := Parse([]byte("validate:\n  dialect: bicep\nfix:\n  max_iterations: 5\n"))
	require.NoError(t, err)

	assert.Equal(t, "bicep", cfg.Validate.Dialect)
	assert.Equal(t, 5, cfg.Fix.MaxIterations)
	// Untouched keys keep defaults.
	assert.Equal(t, 2, cfg.Patterns.Threshold)
	assert.Equal(t, "ollama", cfg.Collab.Backend)
}

// TestParse_RejectsUnknownDialect verifies dialect validation.
func TestParse_RejectsUnknownDialect(t *testing.T) {
	_, err := Parse([]byte("validate:\n  dialect: cloudformation\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dialect")
}

// TestParse_RejectsUnknownBackend verifies backend validation.
func TestParse_RejectsUnknownBackend(t *testing.T) {
	_, err := Parse([]byte("collab:\n  backend: gemini\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend")
}

// TestParse_RejectsBadPort verifies port range validation.
func TestParse_RejectsBadPort(t *testing.T) {
	_, err := Parse([]byte("server:\n  port: 123456\n"))
	require.Error(t, err)
}

// TestGet_ExternalOverride verifies MODULIFT_CONFIG_PATH takes effect and
// that Reset allows reloading.
func TestGet_ExternalOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "override.yaml")
	require.NoError(t, os.WriteFile(path, []byte("validate:\n  dialect: bicep\n"), 0o644))

	t.Setenv(EnvConfigPath, path)
	Reset()
	t.Cleanup(Reset)

	cfg, err := Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bicep", cfg.Validate.Dialect)

	// Cached: a second call returns the same instance.
	cfg2, err := Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, cfg, cfg2)
}

// TestGet_BrokenExternalFallsBack verifies a corrupt override file does not
// take the service down.
func TestGet_BrokenExternalFallsBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("validate: [not a mapping"), 0o644))

	t.Setenv(EnvConfigPath, path)
	Reset()
	t.Cleanup(Reset)

	cfg, err := Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "terraform", cfg.Validate.Dialect)
}

// TestGet_NilContext verifies context validation.
func TestGet_NilContext(t *testing.T) {
	//nolint:staticcheck // deliberately passing nil
	_, err := Get(nil)
	require.Error(t, err)
}

// TestValidateConfig_Timeout verifies duration conversion.
func TestValidateConfig_Timeout(t *testing.T) {
	assert.Equal(t, time.Duration(0), ValidateConfig{}.Timeout())
	assert.Equal(t, 90*time.Second, ValidateConfig{TimeoutSeconds: 90}.Timeout())
}
