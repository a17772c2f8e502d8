// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package validate

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/mod/semver"
)

// =============================================================================
// DEFAULT TOOL CONFIGS
// =============================================================================

// DefaultTerraformConfig is the configuration for the terraform CLI.
//
// Description:
//
//	terraform validate -json checks a whole module directory at once and
//	reports structured diagnostics on stdout. It exits non-zero for an
//	invalid module while still producing the JSON report.
var DefaultTerraformConfig = ToolConfig{
	Dialect:     DialectTerraform,
	Command:     "terraform",
	Args:        []string{"validate", "-json"},
	Extensions:  []string{".tf", ".tf.json"},
	Timeout:     60 * time.Second,
	VersionArgs: []string{"version"},
	MinVersion:  "1.5.0",
}

// DefaultBicepConfig is the configuration for the bicep CLI.
//
// Description:
//
//	bicep build --stdout compiles one file and writes the ARM template to
//	stdout; diagnostics go to stderr as text lines. The tool runs once
//	per .bicep file in the module.
var DefaultBicepConfig = ToolConfig{
	Dialect:           DialectBicep,
	Command:           "bicep",
	Args:              []string{"build", "--stdout"},
	PerFile:           true,
	StderrDiagnostics: true,
	Extensions:        []string{".bicep"},
	Timeout:           60 * time.Second,
	VersionArgs:       []string{"--version"},
	MinVersion:        "0.20.0",
}

// =============================================================================
// CONFIG REGISTRY
// =============================================================================

// ConfigRegistry manages validator configurations for different dialects.
//
// Thread Safety: Safe for concurrent use after initialization.
type ConfigRegistry struct {
	mu      sync.RWMutex
	configs map[string]*ToolConfig
}

// NewConfigRegistry creates a new registry with default configurations.
func NewConfigRegistry() *ConfigRegistry {
	r := &ConfigRegistry{
		configs: make(map[string]*ToolConfig),
	}
	r.registerDefaults()
	return r
}

// registerDefaults adds the default validator configurations.
func (r *ConfigRegistry) registerDefaults() {
	r.Register(&DefaultTerraformConfig)
	r.Register(&DefaultBicepConfig)
}

// Register adds or updates a validator configuration.
//
// Thread Safety: Safe for concurrent use.
func (r *ConfigRegistry) Register(config *ToolConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[config.Dialect] = config.Clone()
}

// Get returns a clone of the configuration for a dialect, or nil if no
// configuration exists.
//
// Thread Safety: Safe for concurrent use.
func (r *ConfigRegistry) Get(dialect string) *ToolConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	config, ok := r.configs[dialect]
	if !ok {
		return nil
	}
	return config.Clone()
}

// Dialects returns all registered dialect names.
//
// Thread Safety: Safe for concurrent use.
func (r *ConfigRegistry) Dialects() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dialects := make([]string, 0, len(r.configs))
	for d := range r.configs {
		dialects = append(dialects, d)
	}
	return dialects
}

// SetAvailable marks a validator as available or unavailable.
//
// Description:
//
//	Updates the Available flag for a validator configuration.
//	Called by the runner after probing installed tools.
//
// Thread Safety: Safe for concurrent use.
func (r *ConfigRegistry) SetAvailable(dialect string, available bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if config, ok := r.configs[dialect]; ok {
		config.Available = available
	}
}

// =============================================================================
// DIALECT DETECTION
// =============================================================================

// DialectFromPath detects the IaC dialect from a file path.
//
// Description:
//
//	Matches by suffix rather than filepath.Ext because terraform's JSON
//	syntax uses the two-part ".tf.json" suffix. Returns empty string for
//	unknown files.
//
// Inputs:
//
//	filePath - Path to the file (relative or absolute)
//
// Outputs:
//
//	string - Dialect identifier ("terraform", "bicep") or empty string
func DialectFromPath(filePath string) string {
	lower := strings.ToLower(filePath)
	switch {
	case strings.HasSuffix(lower, ".tf"), strings.HasSuffix(lower, ".tf.json"):
		return DialectTerraform
	case strings.HasSuffix(lower, ".bicep"):
		return DialectBicep
	default:
		return ""
	}
}

// ExtensionForDialect returns the primary file extension for a dialect.
func ExtensionForDialect(dialect string) string {
	switch dialect {
	case DialectTerraform:
		return ".tf"
	case DialectBicep:
		return ".bicep"
	default:
		return ""
	}
}

// =============================================================================
// VERSION GATE
// =============================================================================

// versionRe extracts the first dotted version number from a tool's
// version report, e.g. "Terraform v1.7.5" or "Bicep CLI version 0.24.24".
var versionRe = regexp.MustCompile(`v?(\d+\.\d+\.\d+)`)

// extractVersion pulls a "major.minor.patch" version out of raw version
// output. Returns empty string when none is found.
func extractVersion(raw string) string {
	m := versionRe.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	return m[1]
}

// versionAtLeast reports whether found satisfies the min version.
// An empty min disables the gate; an empty found fails it.
func versionAtLeast(found, min string) bool {
	if min == "" {
		return true
	}
	if found == "" {
		return false
	}
	return semver.Compare("v"+found, "v"+min) >= 0
}
