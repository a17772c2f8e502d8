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
	"testing"
)

func TestMatchesRule(t *testing.T) {
	tests := []struct {
		rule    string
		pattern string
		want    bool
	}{
		{"bcp018", "bcp018", true},
		{"bcp018", "bcp", true},   // code prefix followed by digit
		{"bcpx", "bcp", false},    // prefix not followed by digit
		{"no-unused-params", "no-unused-params", true},
		{"no-unused-params", "no-unused", false}, // partial name does not match
		{"deprecated/attribute", "deprecated", true},
		{"deprecated attribute", "deprecated", false},
		{"bcp018", "no-unused-params", false},
	}

	for _, tt := range tests {
		if got := matchesRule(tt.rule, tt.pattern); got != tt.want {
			t.Errorf("matchesRule(%q, %q) = %v, want %v", tt.rule, tt.pattern, got, tt.want)
		}
	}
}

func TestRulePolicy_Override(t *testing.T) {
	policy := RulePolicy{
		ErrorOn: []string{"secure-parameter-default"},
		WarnOn:  []string{"no-unused-params"},
		Ignore:  []string{"prefer-interpolation"},
	}

	tests := []struct {
		name     string
		rule     string
		reported Severity
		want     Severity
	}{
		{"ErrorOn escalates", "secure-parameter-default", SeverityWarning, SeverityError},
		{"WarnOn holds warning", "no-unused-params", SeverityWarning, SeverityWarning},
		{"Ignore downgrades to info", "prefer-interpolation", SeverityWarning, SeverityInfo},
		{"unmatched keeps reported error", "BCP018", SeverityError, SeverityError},
		{"unmatched keeps reported info", "raw-output", SeverityInfo, SeverityInfo},
		{"matching is case-insensitive", "Secure-Parameter-Default", SeverityWarning, SeverityError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := policy.Override(tt.rule, tt.reported); got != tt.want {
				t.Errorf("Override(%q, %v) = %v, want %v", tt.rule, tt.reported, got, tt.want)
			}
		})
	}
}

func TestRulePolicy_IgnoreTakesPrecedence(t *testing.T) {
	policy := RulePolicy{
		ErrorOn: []string{"no-unused"},
		Ignore:  []string{"no-unused-params"},
	}

	// The more specific Ignore entry wins over the ErrorOn prefix.
	if got := policy.Override("no-unused-params", SeverityWarning); got != SeverityInfo {
		t.Errorf("Override = %v, want info", got)
	}
}

func TestApplyPolicy(t *testing.T) {
	issues := []ValidationIssue{
		{RuleOrType: "BCP018", Severity: SeverityError},
		{RuleOrType: "no-unused-params", Severity: SeverityWarning},
		{RuleOrType: "prefer-interpolation", Severity: SeverityWarning},
		{RuleOrType: "outputs-should-not-contain-secrets", Severity: SeverityWarning},
	}

	out := ApplyPolicy(issues, &DefaultBicepPolicy)

	if len(out) != len(issues) {
		t.Fatalf("ApplyPolicy changed issue count: %d, want %d", len(out), len(issues))
	}

	// Order is preserved
	for i := range out {
		if out[i].RuleOrType != issues[i].RuleOrType {
			t.Errorf("Issue %d reordered: %q, want %q", i, out[i].RuleOrType, issues[i].RuleOrType)
		}
	}

	if out[0].Severity != SeverityError {
		t.Errorf("BCP018 = %v, want error kept", out[0].Severity)
	}
	if out[1].Severity != SeverityWarning {
		t.Errorf("no-unused-params = %v, want warning", out[1].Severity)
	}
	if out[2].Severity != SeverityInfo {
		t.Errorf("prefer-interpolation = %v, want info (ignored, retained)", out[2].Severity)
	}
	if out[3].Severity != SeverityError {
		t.Errorf("outputs-should-not-contain-secrets = %v, want error (escalated)", out[3].Severity)
	}

	// Input left untouched
	if issues[2].Severity != SeverityWarning {
		t.Error("ApplyPolicy must not mutate its input")
	}
}

func TestApplyPolicy_NilPolicy(t *testing.T) {
	issues := []ValidationIssue{{RuleOrType: "BCP018", Severity: SeverityError}}

	out := ApplyPolicy(issues, nil)
	if len(out) != 1 || out[0].Severity != SeverityError {
		t.Errorf("nil policy should return issues unchanged, got %+v", out)
	}
}

func TestPolicyRegistry(t *testing.T) {
	registry := NewPolicyRegistry()

	if registry.Get(DialectTerraform) == nil {
		t.Error("Expected default terraform policy")
	}
	if registry.Get(DialectBicep) == nil {
		t.Error("Expected default bicep policy")
	}
	if registry.Get("unknown") != nil {
		t.Error("Expected nil for unknown dialect")
	}

	custom := &RulePolicy{Ignore: []string{"everything"}}
	registry.Register("custom", custom)
	if registry.Get("custom") != custom {
		t.Error("Register should store the custom policy")
	}
}
