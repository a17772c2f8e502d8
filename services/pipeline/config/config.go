// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config provides configuration loading for the pipeline service.
//
// An embedded default configuration ships with the binary; an external YAML
// file (MODULIFT_CONFIG_PATH or ./modulift.yaml) overrides it when present.
// Every component receives its settings as an explicit struct passed into
// its constructor; nothing reads configuration ambiently at run time.
//
// Thread Safety:
//
//	All exported functions and types are safe for concurrent use.
package config

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gopkg.in/yaml.v3"

	"github.com/modulift/modulift/services/pipeline/collab"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxYAMLFileSize is the maximum allowed configuration file size (1MB).
	// Prevents memory issues from oversized or hostile files.
	MaxYAMLFileSize = 1024 * 1024

	// EnvConfigPath names the environment variable holding an external
	// configuration file path.
	EnvConfigPath = "MODULIFT_CONFIG_PATH"
)

// =============================================================================
// Embedded Default Configuration
// =============================================================================

//go:embed modulift.yaml
var defaultConfigYAML []byte

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	configLoadErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_config_load_errors_total",
		Help: "Total pipeline configuration load errors",
	})

	configLoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pipeline_config_load_duration_seconds",
		Help:    "Duration of pipeline configuration loading",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5},
	})
)

var configTracer = otel.Tracer("modulift.config")

// =============================================================================
// Types
// =============================================================================

// Config is the root configuration for the pipeline service and CLI.
type Config struct {
	Service   ServiceConfig        `yaml:"service"`
	Patterns  PatternsConfig       `yaml:"patterns"`
	Validate  ValidateConfig       `yaml:"validate"`
	Fix       FixConfig            `yaml:"fix"`
	Collab    collab.BackendConfig `yaml:"collab"`
	Run       RunConfig            `yaml:"run"`
	Server    ServerConfig         `yaml:"server"`
	Telemetry TelemetryConfig      `yaml:"telemetry"`
}

// ServiceConfig identifies the deployment.
type ServiceConfig struct {
	// Name identifies this service in logs, traces, and metrics.
	Name string `yaml:"name"`

	// Environment is the deployment environment (development, production).
	Environment string `yaml:"environment"`
}

// PatternsConfig configures pattern consolidation.
type PatternsConfig struct {
	// Threshold is the minimum number of services that must require a
	// pattern before it is promoted to a shared module. Values < 1 fall
	// back to the consolidator default.
	Threshold int `yaml:"threshold"`
}

// ValidateConfig configures the validator adapters.
type ValidateConfig struct {
	// Dialect selects the target IaC dialect ("terraform" or "bicep").
	Dialect string `yaml:"dialect"`

	// Skip disables validation entirely. Modules report not_validated.
	Skip bool `yaml:"skip"`

	// TimeoutSeconds bounds one validator tool invocation.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// TerraformMinVersion gates the terraform binary version. Empty
	// disables the gate.
	TerraformMinVersion string `yaml:"terraform_min_version"`

	// BicepMinVersion gates the bicep binary version. Empty disables.
	BicepMinVersion string `yaml:"bicep_min_version"`
}

// Timeout returns the per-invocation timeout as a duration, or zero when
// unset so the tool registry default applies.
func (v ValidateConfig) Timeout() time.Duration {
	if v.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(v.TimeoutSeconds) * time.Second
}

// FixConfig configures the fix loop.
type FixConfig struct {
	// MaxIterations bounds how many fix rounds one module gets.
	MaxIterations int `yaml:"max_iterations"`

	// ValidateTimeoutSeconds bounds one validator call inside the loop.
	ValidateTimeoutSeconds int `yaml:"validate_timeout_seconds"`

	// SuggestTimeoutSeconds bounds one collaborator call inside the loop.
	SuggestTimeoutSeconds int `yaml:"suggest_timeout_seconds"`

	// MaxPatchLines caps the size of a unified-diff fix.
	MaxPatchLines int `yaml:"max_patch_lines"`
}

// RunConfig configures the orchestrator.
type RunConfig struct {
	// Workers bounds concurrent module pipelines. <= 0 uses GOMAXPROCS.
	Workers int `yaml:"workers"`

	// WorkDir is where module directories are materialized.
	WorkDir string `yaml:"work_dir"`

	// OutputDir receives the published report JSON files.
	OutputDir string `yaml:"output_dir"`

	// StorePath is the report store directory. Empty uses an in-memory
	// store that does not survive restarts.
	StorePath string `yaml:"store_path"`

	// GenerateTimeoutSeconds bounds one module-generation call.
	GenerateTimeoutSeconds int `yaml:"generate_timeout_seconds"`
}

// ServerConfig configures the HTTP daemon.
type ServerConfig struct {
	// Port is the listen port for moduliftd.
	Port int `yaml:"port"`
}

// TelemetryConfig selects trace and metric exporters for binaries.
type TelemetryConfig struct {
	// TraceExporter is "otlp", "stdout", or "none".
	TraceExporter string `yaml:"trace_exporter"`

	// MetricExporter is "prometheus", "stdout", or "none".
	MetricExporter string `yaml:"metric_exporter"`

	// OTLPEndpoint is the OTLP receiver endpoint for traces.
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// =============================================================================
// Singleton
// =============================================================================

var (
	configMu      sync.RWMutex
	cachedConfig  *Config
	configLoadErr error
)

// Get returns the cached configuration, loading it on first call.
//
// Description:
//
//	Loads the configuration once and caches it for subsequent calls.
//	Loading never fails outright when only the external file is broken:
//	the embedded default is the fallback, and the error is reserved for
//	an unparsable embedded default (a build defect).
//
// Inputs:
//
//	ctx - Context for tracing. Must not be nil.
//
// Outputs:
//
//	*Config - The loaded configuration. Never nil on success.
//	error - Non-nil if loading failed.
//
// Thread Safety: Safe for concurrent use.
func Get(ctx context.Context) (*Config, error) {
	if ctx == nil {
		return nil, fmt.Errorf("config.Get: ctx must not be nil")
	}

	configMu.RLock()
	if cachedConfig != nil || configLoadErr != nil {
		cfg, err := cachedConfig, configLoadErr
		configMu.RUnlock()
		return cfg, err
	}
	configMu.RUnlock()

	configMu.Lock()
	defer configMu.Unlock()

	if cachedConfig == nil && configLoadErr == nil {
		cachedConfig, configLoadErr = load(ctx)
	}
	return cachedConfig, configLoadErr
}

// Reset clears the cached configuration for testing.
//
// WARNING: Testing only. Calling this while other goroutines hold the
// previous configuration is safe, but they keep seeing the old values.
func Reset() {
	configMu.Lock()
	defer configMu.Unlock()
	cachedConfig = nil
	configLoadErr = nil
}

// =============================================================================
// Loading Logic
// =============================================================================

// load reads the configuration, preferring an external file and falling
// back to the embedded default.
func load(ctx context.Context) (*Config, error) {
	ctx, span := configTracer.Start(ctx, "config.Load")
	defer span.End()

	startTime := time.Now()
	defer func() {
		configLoadDuration.Observe(time.Since(startTime).Seconds())
	}()

	var yamlData []byte
	source := "embedded"

	if externalPath := externalConfigPath(); externalPath != "" {
		data, err := loadExternalYAML(externalPath)
		if err == nil {
			yamlData = data
			source = "external"
			slog.Info("Loaded pipeline configuration",
				slog.String("path", externalPath))
		} else {
			slog.Warn("External configuration not usable, using embedded default",
				slog.String("path", externalPath),
				slog.String("error", err.Error()))
		}
	}

	if yamlData == nil {
		yamlData = defaultConfigYAML
		slog.Debug("Using embedded pipeline configuration")
	}

	span.SetAttributes(
		attribute.String("source", source),
		attribute.Int("yaml_size", len(yamlData)),
	)

	cfg, err := Parse(yamlData)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "parse failed")
		configLoadErrors.Inc()

		if source == "external" {
			// Broken override must not take the service down.
			slog.Warn("External configuration invalid, using embedded default",
				slog.String("error", err.Error()))
			return Parse(defaultConfigYAML)
		}
		return nil, fmt.Errorf("parsing embedded configuration: %w", err)
	}

	return cfg, nil
}

// Parse unmarshals YAML into a Config over the embedded defaults, so a
// partial override file only changes the keys it names.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(defaultConfigYAML, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling default configuration: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling configuration: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validate rejects configurations no component could run with.
func (c *Config) validate() error {
	switch c.Validate.Dialect {
	case "terraform", "bicep":
	case "":
		return fmt.Errorf("validate.dialect must be set")
	default:
		return fmt.Errorf("unknown validate.dialect %q", c.Validate.Dialect)
	}

	switch c.Collab.Backend {
	case "openai", "ollama":
	default:
		return fmt.Errorf("unknown collab.backend %q", c.Collab.Backend)
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	return nil
}

// externalConfigPath returns the external configuration file path, or empty
// when none is configured.
func externalConfigPath() string {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path
	}

	locations := []string{
		"./modulift.yaml",
		"./config/modulift.yaml",
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			absPath, _ := filepath.Abs(loc)
			return absPath
		}
	}
	return ""
}

// loadExternalYAML reads an external file with path and size checks.
func loadExternalYAML(path string) ([]byte, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	if strings.Contains(absPath, "..") {
		return nil, fmt.Errorf("path traversal not allowed: %s", absPath)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.Size() > MaxYAMLFileSize {
		return nil, fmt.Errorf("configuration file too large: %d bytes (max %d)", info.Size(), MaxYAMLFileSize)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}
