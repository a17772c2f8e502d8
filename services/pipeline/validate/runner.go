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
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/sys/unix"
)

// =============================================================================
// RUNNER
// =============================================================================

// Runner executes validator tools and manages their detection state.
//
// Description:
//
//	Shared subprocess machinery for all dialect adapters. Probes the
//	system PATH for each configured tool, gates on minimum versions,
//	and runs invocations under per-tool timeouts. One Runner is meant
//	to be shared by every adapter in a run.
//
// Thread Safety: Safe for concurrent use.
type Runner struct {
	configs  *ConfigRegistry
	policies *PolicyRegistry

	availMu   sync.RWMutex
	available map[string]bool
	probed    map[string]bool
	versions  map[string]string

	// probeGroup dedupes concurrent first-use probes per dialect.
	probeGroup singleflight.Group
}

// Option configures the Runner.
type Option func(*Runner)

// WithConfigs sets a custom config registry.
func WithConfigs(configs *ConfigRegistry) Option {
	return func(r *Runner) {
		r.configs = configs
	}
}

// WithPolicies sets a custom policy registry.
func WithPolicies(policies *PolicyRegistry) Option {
	return func(r *Runner) {
		r.policies = policies
	}
}

// NewRunner creates a new validator runner.
//
// Description:
//
//	Creates a runner with default or custom configurations. Tools are
//	probed lazily on first use; call DetectTools at startup to probe
//	eagerly and log what is installed.
//
// Inputs:
//
//	opts - Optional configuration options
//
// Outputs:
//
//	*Runner - The configured runner
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		configs:   NewConfigRegistry(),
		policies:  NewPolicyRegistry(),
		available: make(map[string]bool),
		probed:    make(map[string]bool),
		versions:  make(map[string]string),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Configs returns the config registry for customization.
func (r *Runner) Configs() *ConfigRegistry {
	return r.configs
}

// Policies returns the policy registry for customization.
func (r *Runner) Policies() *PolicyRegistry {
	return r.policies
}

// =============================================================================
// TOOL DETECTION
// =============================================================================

// DetectTools probes which validator tools are installed and usable.
//
// Description:
//
//	Checks the system PATH for each configured tool, runs its version
//	command, and gates on the configured minimum version. Updates the
//	Available flag in configurations and returns a map of dialect to
//	availability.
//
// Inputs:
//
//	ctx - Context for cancellation
//
// Outputs:
//
//	map[string]bool - Map of dialect to whether the tool is usable
//
// Thread Safety: Safe for concurrent use.
func (r *Runner) DetectTools(ctx context.Context) map[string]bool {
	result := make(map[string]bool)

	for _, dialect := range r.configs.Dialects() {
		config := r.configs.Get(dialect)
		if config == nil {
			continue
		}

		available := r.probe(ctx, config)
		result[dialect] = available

		if available {
			slog.Info("Validator available",
				slog.String("dialect", dialect),
				slog.String("command", config.Command),
				slog.String("version", r.Version(dialect)),
			)
		} else {
			slog.Warn("Validator not usable",
				slog.String("dialect", dialect),
				slog.String("command", config.Command),
				slog.String("min_version", config.MinVersion),
			)
		}
	}

	return result
}

// IsAvailable returns whether a usable tool was detected for a dialect.
// Returns false for dialects that have not been probed yet.
//
// Thread Safety: Safe for concurrent use.
func (r *Runner) IsAvailable(dialect string) bool {
	r.availMu.RLock()
	defer r.availMu.RUnlock()
	return r.available[dialect]
}

// Version returns the detected tool version for a dialect, or empty
// string when unknown.
func (r *Runner) Version(dialect string) string {
	r.availMu.RLock()
	defer r.availMu.RUnlock()
	return r.versions[dialect]
}

// ensureAvailable probes the dialect's tool on first use and returns
// ErrToolUnavailable when it is missing or below the minimum version.
func (r *Runner) ensureAvailable(ctx context.Context, config *ToolConfig) error {
	r.availMu.RLock()
	probed := r.probed[config.Dialect]
	available := r.available[config.Dialect]
	r.availMu.RUnlock()

	if !probed {
		available = r.probe(ctx, config)
	}

	if !available {
		return NewToolError(config.Command, config.Dialect, ErrToolUnavailable).
			WithOutput("binary not found in PATH or below minimum version " + config.MinVersion)
	}
	return nil
}

// probe checks PATH and the tool version for one dialect. Concurrent
// probes for the same dialect are deduped.
func (r *Runner) probe(ctx context.Context, config *ToolConfig) bool {
	resultI, _, _ := r.probeGroup.Do(config.Dialect, func() (any, error) {
		r.availMu.RLock()
		if r.probed[config.Dialect] {
			available := r.available[config.Dialect]
			r.availMu.RUnlock()
			return available, nil
		}
		r.availMu.RUnlock()

		available, version := r.probeTool(ctx, config)

		r.availMu.Lock()
		r.probed[config.Dialect] = true
		r.available[config.Dialect] = available
		r.versions[config.Dialect] = version
		r.availMu.Unlock()
		r.configs.SetAvailable(config.Dialect, available)

		return available, nil
	})

	available, ok := resultI.(bool)
	if !ok {
		return false
	}
	return available
}

// probeTool does the actual PATH lookup and version check.
func (r *Runner) probeTool(ctx context.Context, config *ToolConfig) (bool, string) {
	if _, err := exec.LookPath(config.Command); err != nil {
		return false, ""
	}

	if len(config.VersionArgs) == 0 {
		return true, ""
	}

	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, config.Command, config.VersionArgs...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stdout
	if err := cmd.Run(); err != nil {
		slog.Warn("Validator version probe failed",
			slog.String("dialect", config.Dialect),
			slog.String("command", config.Command),
			slog.String("error", err.Error()),
		)
		return false, ""
	}

	version := extractVersion(stdout.String())
	if !versionAtLeast(version, config.MinVersion) {
		slog.Warn("Validator below minimum version",
			slog.String("dialect", config.Dialect),
			slog.String("found", version),
			slog.String("min_version", config.MinVersion),
		)
		return false, version
	}

	return true, version
}

// =============================================================================
// TOOL EXECUTION
// =============================================================================

// toolOutput captures one tool invocation.
type toolOutput struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// Diagnostics returns the stream the dialect's tool reports on.
func (o *toolOutput) Diagnostics(config *ToolConfig) []byte {
	if config.StderrDiagnostics {
		return o.Stderr
	}
	return o.Stdout
}

// execute runs one validator invocation in dir.
//
// Description:
//
//	Runs the tool under the config's timeout with stdout and stderr
//	captured separately. A non-zero exit is not an error here; the
//	dialect adapter decides whether the exit carried diagnostics.
//	Errors are limited to timeout, cancellation, and failure to start
//	the process at all.
//
// Inputs:
//
//	ctx - Context for cancellation
//	config - The tool configuration
//	dir - Working directory for the invocation
//	extraArgs - Appended after config.Args (e.g., a per-file path)
//
// Outputs:
//
//	*toolOutput - Captured streams and exit code
//	error - ErrToolTimeout, ErrToolUnavailable, or ctx.Err()
func (r *Runner) execute(ctx context.Context, config *ToolConfig, dir string, extraArgs ...string) (*toolOutput, error) {
	args := make([]string, 0, len(config.Args)+len(extraArgs))
	args = append(args, config.Args...)
	args = append(args, extraArgs...)

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, config.Command, args...)
	cmd.Dir = dir
	// Run the tool in its own process group and kill the whole group on
	// cancel or timeout, so spawned children (terraform provider plugins)
	// die with it instead of surviving as orphans.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	// Backstop: stop waiting on inherited pipes if anything outside the
	// group still holds them after the kill.
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	if cmdCtx.Err() == context.DeadlineExceeded {
		return nil, NewToolError(config.Command, config.Dialect, ErrToolTimeout).
			WithOutput(stderr.String())
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	out := &toolOutput{
		Stdout: stdout.Bytes(),
		Stderr: stderr.Bytes(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			// The process never ran (missing binary, permissions).
			return nil, NewToolError(config.Command, config.Dialect, ErrToolUnavailable).
				WithOutput(err.Error())
		}
		out.ExitCode = exitErr.ExitCode()
	}

	slog.Debug("Validator invocation finished",
		slog.String("dialect", config.Dialect),
		slog.String("command", config.Command),
		slog.Int("exit_code", out.ExitCode),
		slog.Duration("duration", time.Since(start)),
	)

	return out, nil
}

// parseDiagnostics feeds the tool's diagnostic stream through the
// dialect's parser and applies the severity policy.
func (r *Runner) parseDiagnostics(config *ToolConfig, out *toolOutput) ([]ValidationIssue, error) {
	parser := GetParser(config.Dialect)
	if parser == nil {
		return nil, fmt.Errorf("%w: no parser for %s", ErrUnsupportedDialect, config.Dialect)
	}

	issues, err := parser(out.Diagnostics(config))
	if err != nil {
		return nil, NewToolError(config.Command, config.Dialect, ErrParseOutput).
			WithOutput(err.Error())
	}

	return ApplyPolicy(issues, r.policies.Get(config.Dialect)), nil
}
