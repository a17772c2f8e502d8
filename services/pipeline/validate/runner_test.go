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
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

// Fake tool scripts stand in for the real CLIs so the subprocess plumbing
// is tested deterministically, without terraform or bicep installed.

const fakeTerraformPass = `#!/bin/sh
if [ "$1" = "version" ]; then
  echo "Terraform v1.7.5"
  exit 0
fi
echo '{"format_version":"1.0","valid":true,"error_count":0,"warning_count":0,"diagnostics":[]}'
`

const fakeTerraformFail = `#!/bin/sh
if [ "$1" = "version" ]; then
  echo "Terraform v1.7.5"
  exit 0
fi
cat <<'EOF'
{"format_version":"1.0","valid":false,"error_count":1,"warning_count":1,"diagnostics":[{"severity":"error","summary":"Unsupported argument","detail":"An argument named \"nmae\" is not expected here.","range":{"filename":"main.tf","start":{"line":5,"column":3,"byte":40},"end":{"line":5,"column":7,"byte":44}},"snippet":{"context":"resource \"azurerm_storage_account\" \"sa\"","code":"  nmae = \"demo\"","start_line":5}},{"severity":"warning","summary":"Deprecated attribute","detail":"Use account_tier instead.","range":{"filename":"main.tf","start":{"line":9,"column":3,"byte":80},"end":{"line":9,"column":10,"byte":87}}}]}
EOF
exit 1
`

const fakeTerraformBroken = `#!/bin/sh
if [ "$1" = "version" ]; then
  echo "Terraform v1.7.5"
  exit 0
fi
echo "Error: Initialization required." >&2
exit 3
`

const fakeTerraformOld = `#!/bin/sh
echo "Terraform v0.11.14"
exit 0
`

const fakeTerraformHang = `#!/bin/sh
if [ "$1" = "version" ]; then
  echo "Terraform v1.7.5"
  exit 0
fi
exec sleep 5
`

const fakeTerraformForking = `#!/bin/sh
if [ "$1" = "version" ]; then
  echo "Terraform v1.7.5"
  exit 0
fi
sleep 30 &
echo $! > "$FAKE_TOOL_PIDFILE"
wait
`

const fakeBicepFail = `#!/bin/sh
if [ "$1" = "--version" ]; then
  echo "Bicep CLI version 0.26.54 (5a7f0b0c8d)"
  exit 0
fi
echo '{"$schema":"https://schema.management.azure.com/schemas/2019-04-01/deploymentTemplate.json#"}'
echo "$3(4,7) : Error BCP018: Expected the \"=\" character at this location." >&2
echo "$3(2,7) : Warning no-unused-params: Parameter \"sku\" is declared but never used." >&2
echo "WARNING: The configuration file was loaded from defaults." >&2
exit 1
`

const fakeBicepPass = `#!/bin/sh
if [ "$1" = "--version" ]; then
  echo "Bicep CLI version 0.26.54 (5a7f0b0c8d)"
  exit 0
fi
echo '{"$schema":"arm"}'
exit 0
`

const fakeBicepBroken = `#!/bin/sh
if [ "$1" = "--version" ]; then
  echo "Bicep CLI version 0.26.54 (5a7f0b0c8d)"
  exit 0
fi
exit 2
`

func skipIfNoSh(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tool scripts require sh")
	}
}

// writeFakeTool installs a fake CLI script under binDir.
func writeFakeTool(t *testing.T, binDir, name, script string) string {
	t.Helper()
	path := filepath.Join(binDir, name)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("writing fake %s: %v", name, err)
	}
	return path
}

// useFakeBin prepends binDir to PATH for the duration of the test.
func useFakeBin(t *testing.T, binDir string) {
	t.Helper()
	t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

// newModuleDir creates a module directory holding the named source files.
func newModuleDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("// generated\n"), 0o644); err != nil {
			t.Fatalf("writing module file %s: %v", name, err)
		}
	}
	return dir
}

func TestNewRunner(t *testing.T) {
	runner := NewRunner()

	if runner.configs == nil {
		t.Error("Configs should not be nil")
	}
	if runner.policies == nil {
		t.Error("Policies should not be nil")
	}
	if runner.available == nil {
		t.Error("Available map should not be nil")
	}
}

func TestRunner_DetectTools(t *testing.T) {
	skipIfNoSh(t)

	binDir := t.TempDir()
	writeFakeTool(t, binDir, "terraform", fakeTerraformPass)
	writeFakeTool(t, binDir, "bicep", fakeBicepPass)
	useFakeBin(t, binDir)

	runner := NewRunner()
	available := runner.DetectTools(context.Background())

	if !available[DialectTerraform] {
		t.Error("terraform should be detected")
	}
	if !available[DialectBicep] {
		t.Error("bicep should be detected")
	}

	for dialect, avail := range available {
		if runner.IsAvailable(dialect) != avail {
			t.Errorf("IsAvailable(%q) inconsistent with DetectTools", dialect)
		}
	}

	if got := runner.Version(DialectTerraform); got != "1.7.5" {
		t.Errorf("Version(terraform) = %q, want 1.7.5", got)
	}
	if got := runner.Version(DialectBicep); got != "0.26.54" {
		t.Errorf("Version(bicep) = %q, want 0.26.54", got)
	}
}

func TestRunner_DetectTools_NotInstalled(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	runner := NewRunner()
	available := runner.DetectTools(context.Background())

	if available[DialectTerraform] {
		t.Error("terraform should not be detected on an empty PATH")
	}
	if available[DialectBicep] {
		t.Error("bicep should not be detected on an empty PATH")
	}
}

func TestRunner_VersionGate(t *testing.T) {
	skipIfNoSh(t)

	binDir := t.TempDir()
	writeFakeTool(t, binDir, "terraform", fakeTerraformOld)
	t.Setenv("PATH", binDir)

	runner := NewRunner()
	available := runner.DetectTools(context.Background())

	if available[DialectTerraform] {
		t.Error("terraform 0.11.14 should fail the 1.5.0 minimum version gate")
	}
}

func TestRunner_DetectionCached(t *testing.T) {
	skipIfNoSh(t)

	binDir := t.TempDir()
	path := writeFakeTool(t, binDir, "terraform", fakeTerraformPass)
	useFakeBin(t, binDir)

	runner := NewRunner()
	runner.DetectTools(context.Background())

	if !runner.IsAvailable(DialectTerraform) {
		t.Fatal("terraform should be detected")
	}

	// Detection is probed once; removing the binary does not flip it.
	if err := os.Remove(path); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if !runner.IsAvailable(DialectTerraform) {
		t.Error("availability should be cached after detection")
	}
}

func TestForDialect(t *testing.T) {
	v, err := ForDialect(DialectTerraform, nil)
	if err != nil {
		t.Fatalf("ForDialect(terraform): %v", err)
	}
	if _, ok := v.(*TerraformValidator); !ok {
		t.Errorf("ForDialect(terraform) = %T, want *TerraformValidator", v)
	}
	if v.Dialect() != DialectTerraform {
		t.Errorf("Dialect() = %q, want terraform", v.Dialect())
	}

	runner := NewRunner()
	v, err = ForDialect(DialectBicep, runner)
	if err != nil {
		t.Fatalf("ForDialect(bicep): %v", err)
	}
	if _, ok := v.(*BicepValidator); !ok {
		t.Errorf("ForDialect(bicep) = %T, want *BicepValidator", v)
	}

	_, err = ForDialect("pulumi", runner)
	if !errors.Is(err, ErrUnsupportedDialect) {
		t.Errorf("ForDialect(pulumi) error = %v, want ErrUnsupportedDialect", err)
	}
}

func TestTerraformValidator_Pass(t *testing.T) {
	skipIfNoSh(t)

	binDir := t.TempDir()
	writeFakeTool(t, binDir, "terraform", fakeTerraformPass)
	useFakeBin(t, binDir)

	moduleDir := newModuleDir(t, "main.tf", "variables.tf")
	v := NewTerraformValidator(NewRunner())

	result, err := v.Validate(context.Background(), moduleDir)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if result.OverallStatus != StatusPass {
		t.Errorf("OverallStatus = %v, want pass", result.OverallStatus)
	}
	if result.IssueCount() != 0 {
		t.Errorf("IssueCount = %d, want 0", result.IssueCount())
	}
	if result.Summary.FileCount != 2 {
		t.Errorf("FileCount = %d, want 2", result.Summary.FileCount)
	}
	if result.Dialect != DialectTerraform || result.Tool != "terraform" {
		t.Errorf("result identity = %q/%q", result.Dialect, result.Tool)
	}
	if result.ModuleDir != moduleDir {
		t.Errorf("ModuleDir = %q, want %q", result.ModuleDir, moduleDir)
	}
}

func TestTerraformValidator_Fail(t *testing.T) {
	skipIfNoSh(t)

	binDir := t.TempDir()
	writeFakeTool(t, binDir, "terraform", fakeTerraformFail)
	useFakeBin(t, binDir)

	moduleDir := newModuleDir(t, "main.tf")
	v := NewTerraformValidator(NewRunner())

	// Exit 1 with a JSON report is a failed module, not a broken tool.
	result, err := v.Validate(context.Background(), moduleDir)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if result.OverallStatus != StatusFail {
		t.Errorf("OverallStatus = %v, want fail", result.OverallStatus)
	}
	if result.Summary.ErrorCount != 1 || result.Summary.WarningCount != 1 {
		t.Errorf("Summary = %+v, want 1 error 1 warning", result.Summary)
	}

	first := result.Issues[0]
	if first.File != "main.tf" {
		t.Errorf("Issue 0 File = %q, want main.tf", first.File)
	}
	if first.Line == nil || *first.Line != 5 {
		t.Errorf("Issue 0 Line = %v, want 5", first.Line)
	}
	if first.CurrentCode != `  nmae = "demo"` {
		t.Errorf("Issue 0 CurrentCode = %q", first.CurrentCode)
	}
	if first.RuleOrType != "Unsupported argument" {
		t.Errorf("Issue 0 RuleOrType = %q", first.RuleOrType)
	}
}

func TestTerraformValidator_ToolUnavailable(t *testing.T) {
	skipIfNoSh(t)

	binDir := t.TempDir()
	writeFakeTool(t, binDir, "terraform", fakeTerraformBroken)
	useFakeBin(t, binDir)

	moduleDir := newModuleDir(t, "main.tf")
	v := NewTerraformValidator(NewRunner())

	_, err := v.Validate(context.Background(), moduleDir)
	if !errors.Is(err, ErrToolUnavailable) {
		t.Fatalf("error = %v, want ErrToolUnavailable", err)
	}

	var toolErr *ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("error should be a *ToolError, got %T", err)
	}
	if !strings.Contains(toolErr.Output, "Initialization required") {
		t.Errorf("ToolError.Output = %q, want tool stderr", toolErr.Output)
	}
}

func TestTerraformValidator_NotInstalled(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	moduleDir := newModuleDir(t, "main.tf")
	v := NewTerraformValidator(NewRunner())

	_, err := v.Validate(context.Background(), moduleDir)
	if !errors.Is(err, ErrToolUnavailable) {
		t.Fatalf("error = %v, want ErrToolUnavailable", err)
	}
}

func TestTerraformValidator_Timeout(t *testing.T) {
	skipIfNoSh(t)

	binDir := t.TempDir()
	writeFakeTool(t, binDir, "terraform", fakeTerraformHang)
	useFakeBin(t, binDir)

	configs := NewConfigRegistry()
	config := DefaultTerraformConfig.Clone()
	config.Timeout = 200 * time.Millisecond
	configs.Register(config)

	moduleDir := newModuleDir(t, "main.tf")
	v := NewTerraformValidator(NewRunner(WithConfigs(configs)))

	_, err := v.Validate(context.Background(), moduleDir)
	if !errors.Is(err, ErrToolTimeout) {
		t.Fatalf("error = %v, want ErrToolTimeout", err)
	}
}

// TestTerraformValidator_TimeoutKillsChildren verifies a timed-out tool's
// spawned processes die with it instead of surviving as orphans.
func TestTerraformValidator_TimeoutKillsChildren(t *testing.T) {
	skipIfNoSh(t)

	binDir := t.TempDir()
	writeFakeTool(t, binDir, "terraform", fakeTerraformForking)
	useFakeBin(t, binDir)

	pidFile := filepath.Join(t.TempDir(), "child.pid")
	t.Setenv("FAKE_TOOL_PIDFILE", pidFile)

	configs := NewConfigRegistry()
	config := DefaultTerraformConfig.Clone()
	config.Timeout = 300 * time.Millisecond
	configs.Register(config)

	moduleDir := newModuleDir(t, "main.tf")
	v := NewTerraformValidator(NewRunner(WithConfigs(configs)))

	_, err := v.Validate(context.Background(), moduleDir)
	if !errors.Is(err, ErrToolTimeout) {
		t.Fatalf("error = %v, want ErrToolTimeout", err)
	}

	data, err := os.ReadFile(pidFile)
	if err != nil {
		t.Fatalf("reading child pid file: %v", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		t.Fatalf("parsing child pid %q: %v", data, err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if unix.Kill(pid, 0) == unix.ESRCH {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("child process %d survived the timeout kill", pid)
}

func TestTerraformValidator_Idempotent(t *testing.T) {
	skipIfNoSh(t)

	binDir := t.TempDir()
	writeFakeTool(t, binDir, "terraform", fakeTerraformFail)
	useFakeBin(t, binDir)

	moduleDir := newModuleDir(t, "main.tf")
	v := NewTerraformValidator(NewRunner())

	first, err := v.Validate(context.Background(), moduleDir)
	if err != nil {
		t.Fatalf("first Validate: %v", err)
	}
	second, err := v.Validate(context.Background(), moduleDir)
	if err != nil {
		t.Fatalf("second Validate: %v", err)
	}

	if first.OverallStatus != second.OverallStatus {
		t.Errorf("status changed between runs: %v vs %v", first.OverallStatus, second.OverallStatus)
	}
	if first.IssueCount() != second.IssueCount() {
		t.Errorf("issue count changed between runs: %d vs %d", first.IssueCount(), second.IssueCount())
	}
	if first.Summary != second.Summary {
		t.Errorf("summary changed between runs: %+v vs %+v", first.Summary, second.Summary)
	}
}

func TestTerraformValidator_InvalidInput(t *testing.T) {
	v := NewTerraformValidator(NewRunner())

	_, err := v.Validate(nil, "/mod") //nolint:staticcheck
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("nil ctx error = %v, want ErrInvalidInput", err)
	}

	_, err = v.Validate(context.Background(), "")
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty moduleDir error = %v, want ErrInvalidInput", err)
	}
}

func TestBicepValidator_FailWithRetainedLines(t *testing.T) {
	skipIfNoSh(t)

	binDir := t.TempDir()
	writeFakeTool(t, binDir, "bicep", fakeBicepFail)
	useFakeBin(t, binDir)

	moduleDir := newModuleDir(t, "main.bicep")
	v := NewBicepValidator(NewRunner())

	result, err := v.Validate(context.Background(), moduleDir)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if result.OverallStatus != StatusFail {
		t.Errorf("OverallStatus = %v, want fail", result.OverallStatus)
	}
	if result.IssueCount() != 3 {
		t.Fatalf("IssueCount = %d, want 3 (error, warning, retained banner)", result.IssueCount())
	}
	if result.Summary.ErrorCount != 1 || result.Summary.WarningCount != 1 {
		t.Errorf("Summary = %+v, want 1 error 1 warning", result.Summary)
	}
	if result.Summary.FileCount != 1 {
		t.Errorf("FileCount = %d, want 1", result.Summary.FileCount)
	}

	if result.Issues[0].RuleOrType != "BCP018" {
		t.Errorf("Issue 0 RuleOrType = %q, want BCP018", result.Issues[0].RuleOrType)
	}
	if result.Issues[0].File != "main.bicep" {
		t.Errorf("Issue 0 File = %q, want relative main.bicep", result.Issues[0].File)
	}

	banner := result.Issues[2]
	if banner.Severity != SeverityInfo || banner.RuleOrType != RuleRawOutput {
		t.Errorf("banner issue = %v/%q, want retained info raw-output", banner.Severity, banner.RuleOrType)
	}
	if banner.Line != nil {
		t.Errorf("banner Line = %v, want nil", banner.Line)
	}
}

func TestBicepValidator_MultiFileOrder(t *testing.T) {
	skipIfNoSh(t)

	binDir := t.TempDir()
	writeFakeTool(t, binDir, "bicep", fakeBicepFail)
	useFakeBin(t, binDir)

	moduleDir := newModuleDir(t, "b.bicep", "a.bicep")
	v := NewBicepValidator(NewRunner())

	result, err := v.Validate(context.Background(), moduleDir)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if result.Summary.FileCount != 2 {
		t.Errorf("FileCount = %d, want 2", result.Summary.FileCount)
	}
	if result.IssueCount() != 6 {
		t.Fatalf("IssueCount = %d, want 6", result.IssueCount())
	}

	// Files are processed in sorted order regardless of creation order.
	if result.Issues[0].File != "a.bicep" {
		t.Errorf("Issue 0 File = %q, want a.bicep first", result.Issues[0].File)
	}
	if result.Issues[3].File != "b.bicep" {
		t.Errorf("Issue 3 File = %q, want b.bicep second", result.Issues[3].File)
	}
}

func TestBicepValidator_NoFiles(t *testing.T) {
	skipIfNoSh(t)

	binDir := t.TempDir()
	writeFakeTool(t, binDir, "bicep", fakeBicepPass)
	useFakeBin(t, binDir)

	moduleDir := t.TempDir()
	v := NewBicepValidator(NewRunner())

	result, err := v.Validate(context.Background(), moduleDir)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if result.OverallStatus != StatusPass {
		t.Errorf("OverallStatus = %v, want pass for empty module", result.OverallStatus)
	}
	if result.Summary.FileCount != 0 {
		t.Errorf("FileCount = %d, want 0", result.Summary.FileCount)
	}
}

func TestBicepValidator_ToolUnavailable(t *testing.T) {
	skipIfNoSh(t)

	binDir := t.TempDir()
	writeFakeTool(t, binDir, "bicep", fakeBicepBroken)
	useFakeBin(t, binDir)

	moduleDir := newModuleDir(t, "main.bicep")
	v := NewBicepValidator(NewRunner())

	_, err := v.Validate(context.Background(), moduleDir)
	if !errors.Is(err, ErrToolUnavailable) {
		t.Fatalf("error = %v, want ErrToolUnavailable for silent non-zero exit", err)
	}
}

func TestDialectFromPath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"main.tf", DialectTerraform},
		{"main.tf.json", DialectTerraform},
		{"MAIN.TF", DialectTerraform},
		{"storage.bicep", DialectBicep},
		{"/abs/path/network.bicep", DialectBicep},
		{"main.json", ""},
		{"README.md", ""},
	}

	for _, tt := range tests {
		if got := DialectFromPath(tt.path); got != tt.want {
			t.Errorf("DialectFromPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestExtensionForDialect(t *testing.T) {
	tests := []struct {
		dialect string
		want    string
	}{
		{DialectTerraform, ".tf"},
		{DialectBicep, ".bicep"},
		{"unknown", ""},
	}

	for _, tt := range tests {
		if got := ExtensionForDialect(tt.dialect); got != tt.want {
			t.Errorf("ExtensionForDialect(%q) = %q, want %q", tt.dialect, got, tt.want)
		}
	}
}

func TestExtractVersion(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"Terraform v1.7.5\non linux_amd64", "1.7.5"},
		{"Bicep CLI version 0.26.54 (5a7f0b0c8d)", "0.26.54"},
		{"no version here", ""},
	}

	for _, tt := range tests {
		if got := extractVersion(tt.raw); got != tt.want {
			t.Errorf("extractVersion(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestVersionAtLeast(t *testing.T) {
	tests := []struct {
		found string
		min   string
		want  bool
	}{
		{"1.7.5", "1.5.0", true},
		{"1.5.0", "1.5.0", true},
		{"0.11.14", "1.5.0", false},
		{"0.26.54", "0.20.0", true},
		{"", "1.0.0", false},
		{"1.0.0", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		if got := versionAtLeast(tt.found, tt.min); got != tt.want {
			t.Errorf("versionAtLeast(%q, %q) = %v, want %v", tt.found, tt.min, got, tt.want)
		}
	}
}

func TestConfigRegistry(t *testing.T) {
	registry := NewConfigRegistry()

	tf := registry.Get(DialectTerraform)
	if tf == nil {
		t.Fatal("Expected terraform config")
	}
	if registry.Get(DialectBicep) == nil {
		t.Fatal("Expected bicep config")
	}
	if registry.Get("unknown") != nil {
		t.Error("Expected nil for unknown dialect")
	}

	// Get returns clones; mutations do not leak back.
	tf.Command = "mutated"
	if registry.Get(DialectTerraform).Command == "mutated" {
		t.Error("Get should return a clone")
	}

	registry.SetAvailable(DialectTerraform, true)
	if !registry.Get(DialectTerraform).Available {
		t.Error("SetAvailable should update the stored config")
	}

	dialects := registry.Dialects()
	if len(dialects) != 2 {
		t.Errorf("Dialects() = %v, want 2 entries", dialects)
	}
}
