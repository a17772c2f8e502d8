// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fix

import (
	"encoding/json"

	"github.com/modulift/modulift/services/pipeline/collab"
	"github.com/modulift/modulift/services/pipeline/validate"
)

// =============================================================================
// TERMINATION
// =============================================================================

// Termination describes why the fix loop stopped.
type Termination int

const (
	// TerminationSuccess means the last validation pass came back clean
	// (pass or warning) and no further fixing was needed.
	TerminationSuccess Termination = iota

	// TerminationMaxIterations means the loop ran its full iteration budget
	// without reaching a clean validation.
	TerminationMaxIterations

	// TerminationConverged means the error count stopped improving between
	// iterations, so further rounds would only burn collaborator calls.
	TerminationConverged

	// TerminationTimeout means a validator or collaborator call exceeded its
	// per-call timeout. The module fails; sibling modules are unaffected.
	TerminationTimeout

	// TerminationToolUnavailable means the validator tool is missing or
	// broken. This is fatal for the whole run, not just this module.
	TerminationToolUnavailable

	// TerminationCollaborator means the collaborator returned an error the
	// retry budget could not absorb (malformed replies, transport failure).
	TerminationCollaborator

	// TerminationCanceled means the run context was canceled mid-loop.
	TerminationCanceled

	// TerminationInternal means the loop itself failed: the file set could
	// not be written, or the validator returned an unclassified error.
	TerminationInternal
)

// String returns the string representation of the termination reason.
func (t Termination) String() string {
	switch t {
	case TerminationSuccess:
		return "success"
	case TerminationMaxIterations:
		return "max_iterations_exceeded"
	case TerminationConverged:
		return "converged"
	case TerminationTimeout:
		return "timeout"
	case TerminationToolUnavailable:
		return "tool_unavailable"
	case TerminationCollaborator:
		return "collaborator_error"
	case TerminationCanceled:
		return "canceled"
	case TerminationInternal:
		return "internal_error"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler.
func (t Termination) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// =============================================================================
// ITERATION RECORDS
// =============================================================================

// SkippedFix is a high-confidence fix the loop refused to apply, with the
// reason. Medium and low confidence fixes are never candidates, so they are
// reported under FixesProposed only.
type SkippedFix struct {
	// Fix is the proposal that was skipped.
	Fix collab.CodeFix `json:"fix"`

	// Reason says why (drift, path escape, oversized patch, ...).
	Reason string `json:"reason"`
}

// FixIteration is one pass of the fix loop: the validation result the pass
// opened with, the fixes proposed and applied in response, and the validation
// result those fixes produced. A terminal pass (clean input, exhausted
// budget, stalled error count) records its input and no fixes.
type FixIteration struct {
	// IterationNumber is 1-based.
	IterationNumber int `json:"iteration_number"`

	// InputResult is the validation result the iteration started from.
	// Nil only when the very first validation itself failed to run.
	InputResult *validate.ValidationResult `json:"input_result"`

	// FixesProposed is everything the collaborator suggested, at every
	// confidence level.
	FixesProposed []collab.CodeFix `json:"fixes_proposed,omitempty"`

	// FixesApplied is the subset of FixesProposed that was high confidence
	// and applied cleanly.
	FixesApplied []collab.CodeFix `json:"fixes_applied,omitempty"`

	// FixesSkipped lists high-confidence fixes that could not be applied.
	FixesSkipped []SkippedFix `json:"fixes_skipped,omitempty"`

	// OutputResult is the validation result after applying fixes. Nil on
	// terminal passes that did not re-validate.
	OutputResult *validate.ValidationResult `json:"output_result,omitempty"`

	// Error records a validator or collaborator failure that ended the
	// loop during this iteration.
	Error string `json:"error,omitempty"`
}

// =============================================================================
// OUTCOME
// =============================================================================

// Outcome is the full result of a fix loop run for one module.
//
// Thread Safety: Immutable after Run returns.
type Outcome struct {
	// ModuleDir is the directory the loop validated and wrote into.
	ModuleDir string `json:"module_dir"`

	// Files is the final file set, including every applied fix.
	Files []collab.SourceFile `json:"files"`

	// FinalResult is the last validation result that completed. Nil when
	// the first validation never produced one.
	FinalResult *validate.ValidationResult `json:"final_result"`

	// Iterations is the complete pass-by-pass history, kept even when the
	// loop ends in failure or cancellation.
	Iterations []FixIteration `json:"iterations"`

	// Termination says why the loop stopped.
	Termination Termination `json:"termination"`

	// Err classifies terminal failures for errors.Is checks. Nil on
	// success. Not serialized; Iterations carry the message for reports.
	Err error `json:"-"`
}

// Status returns the module status the outcome resolves to. A loop that
// ended for any reason other than a clean validation is a failure no matter
// what the last result said.
func (o *Outcome) Status() validate.Status {
	if o.Termination != TerminationSuccess {
		return validate.StatusFail
	}
	if o.FinalResult == nil {
		return validate.StatusNotValidated
	}
	return o.FinalResult.OverallStatus
}
