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
	"strings"
	"sync"
)

// =============================================================================
// RULE POLICY
// =============================================================================

// RulePolicy overrides issue severities for specific validator rules.
//
// Description:
//
//	Rules are matched by prefix. For example, "BCP" matches "BCP018",
//	"BCP037", etc. Issues whose rule matches no list keep the severity
//	the tool reported. Ignored rules are downgraded to info rather than
//	dropped, so every diagnostic still reaches the report.
//
// Thread Safety: Treat as immutable after creation.
type RulePolicy struct {
	// ErrorOn are rules that always fail the module.
	ErrorOn []string

	// WarnOn are rules demoted (or promoted) to warnings.
	WarnOn []string

	// Ignore are rules downgraded to info.
	Ignore []string
}

// Override returns the severity a rule should carry, given what the tool
// reported. Ignore takes precedence, then ErrorOn, then WarnOn; rules
// matching no list keep the reported severity.
func (p *RulePolicy) Override(rule string, reported Severity) Severity {
	rule = strings.ToLower(rule)
	for _, pattern := range p.Ignore {
		if matchesRule(rule, strings.ToLower(pattern)) {
			return SeverityInfo
		}
	}
	for _, pattern := range p.ErrorOn {
		if matchesRule(rule, strings.ToLower(pattern)) {
			return SeverityError
		}
	}
	for _, pattern := range p.WarnOn {
		if matchesRule(rule, strings.ToLower(pattern)) {
			return SeverityWarning
		}
	}
	return reported
}

// matchesRule checks if a rule matches a pattern.
// Pattern matching is by exact match, hierarchy, or code prefix.
// Examples:
//   - "no-unused-params" matches "no-unused-params"
//   - "BCP037" matches "BCP" (prefix followed by a digit)
//   - "deprecated/attribute" matches "deprecated" (hierarchy)
func matchesRule(rule, pattern string) bool {
	if rule == pattern {
		return true
	}
	if strings.HasPrefix(rule, pattern+"/") {
		return true
	}
	if strings.HasPrefix(rule, pattern) && len(rule) > len(pattern) {
		next := rule[len(pattern)]
		if next >= '0' && next <= '9' {
			return true
		}
	}
	return false
}

// =============================================================================
// DEFAULT POLICIES
// =============================================================================

// DefaultTerraformPolicy is the default policy for terraform diagnostics.
//
// Description:
//
//	terraform has no rule codes; RuleOrType carries the diagnostic
//	summary, so matching works on summary prefixes. terraform's own
//	severities are already what the pipeline wants, so the default only
//	keeps deprecation notices from failing a module.
var DefaultTerraformPolicy = RulePolicy{
	WarnOn: []string{
		"deprecated",
	},
}

// DefaultBicepPolicy is the default policy for bicep diagnostics.
//
// Description:
//
//	BCP codes are the compiler's own errors and keep their reported
//	severity. Linter rules about secrets escalate to errors; pure style
//	suggestions drop to info.
var DefaultBicepPolicy = RulePolicy{
	ErrorOn: []string{
		"secure-parameter-default",
		"outputs-should-not-contain-secrets",
	},
	WarnOn: []string{
		"no-unused-params",
		"no-unused-vars",
	},
	Ignore: []string{
		"prefer-interpolation",
		"simplify-interpolation",
	},
}

// =============================================================================
// POLICY REGISTRY
// =============================================================================

// PolicyRegistry manages policies for different dialects.
//
// Thread Safety: Safe for concurrent use after initialization.
type PolicyRegistry struct {
	mu       sync.RWMutex
	policies map[string]*RulePolicy
}

// NewPolicyRegistry creates a new registry with default policies.
func NewPolicyRegistry() *PolicyRegistry {
	r := &PolicyRegistry{
		policies: make(map[string]*RulePolicy),
	}
	r.registerDefaults()
	return r
}

// registerDefaults adds the default policies.
func (r *PolicyRegistry) registerDefaults() {
	r.policies[DialectTerraform] = &DefaultTerraformPolicy
	r.policies[DialectBicep] = &DefaultBicepPolicy
}

// Get returns the policy for a dialect, or nil if none is registered.
//
// Thread Safety: Safe for concurrent use.
func (r *PolicyRegistry) Get(dialect string) *RulePolicy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.policies[dialect]
}

// Register adds or updates a policy for a dialect.
//
// Thread Safety: Safe for concurrent use.
func (r *PolicyRegistry) Register(dialect string, policy *RulePolicy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.policies[dialect] = policy
}

// ApplyPolicy reclassifies issue severities according to a policy.
//
// Description:
//
//	Returns the issues in their original order with severities replaced
//	where the policy matches. A nil policy returns the issues unchanged.
//	Issues are never removed; the fix loop and report depend on every
//	diagnostic surviving this step.
//
// Inputs:
//
//	issues - Normalized issues from the parser
//	policy - The policy to apply, or nil
//
// Outputs:
//
//	[]ValidationIssue - The reclassified issues, same order and length
func ApplyPolicy(issues []ValidationIssue, policy *RulePolicy) []ValidationIssue {
	if policy == nil || len(issues) == 0 {
		return issues
	}

	out := make([]ValidationIssue, len(issues))
	copy(out, issues)
	for i := range out {
		out[i].Severity = policy.Override(out[i].RuleOrType, out[i].Severity)
	}
	return out
}
