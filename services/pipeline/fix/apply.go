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
	"fmt"
	"strings"

	"github.com/modulift/modulift/services/pipeline/collab"
)

// applyFixes applies the high-confidence subset of fixes to the in-memory
// file set, one fix at a time in proposal order. A fix that fails to apply
// is skipped with a reason and the remaining fixes still run against the
// updated files, so a later fix can drift because an earlier one rewrote the
// same region. That is intended: force-applying a stale fix is worse than
// skipping it.
//
// Medium and low confidence fixes are never candidates here; callers report
// them under FixesProposed only.
func applyFixes(files []collab.SourceFile, fixes []collab.CodeFix, maxPatchLines int) ([]collab.SourceFile, []collab.CodeFix, []SkippedFix) {
	out := make([]collab.SourceFile, len(files))
	copy(out, files)

	var applied []collab.CodeFix
	var skipped []SkippedFix

	for _, fx := range fixes {
		if fx.Confidence != collab.ConfidenceHigh {
			continue
		}

		next, err := applyOne(out, fx, maxPatchLines)
		if err != nil {
			skipped = append(skipped, SkippedFix{Fix: fx, Reason: err.Error()})
			continue
		}
		out = next
		applied = append(applied, fx)
	}

	return out, applied, skipped
}

// applyOne applies a single fix and returns the updated file set. The input
// slice is never mutated; on error it is returned unchanged semantics-wise
// (callers keep their own reference).
func applyOne(files []collab.SourceFile, fx collab.CodeFix, maxPatchLines int) ([]collab.SourceFile, error) {
	if fx.Patch != "" {
		return applyPatch(files, fx, maxPatchLines)
	}
	if fx.CurrentCode == "" {
		return nil, fmt.Errorf("%w: fix has neither snippet nor patch", ErrInvalidInput)
	}

	idx := fileIndex(files, fx.File)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s not in module file set", ErrFixDrift, fx.File)
	}

	content, err := applySnippet(files[idx].Content, fx)
	if err != nil {
		return nil, err
	}

	out := make([]collab.SourceFile, len(files))
	copy(out, files)
	out[idx].Content = content
	return out, nil
}

// applySnippet replaces CurrentCode with SuggestedCode in content. The fix's
// line number is a hint, not a requirement: when the snippet occurs more than
// once, the occurrence starting nearest the hinted line wins.
func applySnippet(content string, fx collab.CodeFix) (string, error) {
	offsets := snippetOffsets(content, fx.CurrentCode)
	if len(offsets) == 0 {
		return "", fmt.Errorf("%w: current code not found in %s", ErrFixDrift, fx.File)
	}

	off := offsets[0]
	if len(offsets) > 1 && fx.Line > 0 {
		off = nearestToLine(content, offsets, fx.Line)
	}

	return content[:off] + fx.SuggestedCode + content[off+len(fx.CurrentCode):], nil
}

// snippetOffsets returns the byte offsets of every occurrence of snippet.
func snippetOffsets(content, snippet string) []int {
	var offsets []int
	for start := 0; ; {
		i := strings.Index(content[start:], snippet)
		if i < 0 {
			return offsets
		}
		offsets = append(offsets, start+i)
		start += i + 1
	}
}

// nearestToLine picks the offset whose 1-based starting line is closest to
// the hinted line.
func nearestToLine(content string, offsets []int, line int) int {
	best := offsets[0]
	bestDist := -1
	for _, off := range offsets {
		occLine := strings.Count(content[:off], "\n") + 1
		dist := occLine - line
		if dist < 0 {
			dist = -dist
		}
		if bestDist < 0 || dist < bestDist {
			best = off
			bestDist = dist
		}
	}
	return best
}

// fileIndex returns the index of path in files, or -1.
func fileIndex(files []collab.SourceFile, path string) int {
	for i := range files {
		if files[i].Path == path {
			return i
		}
	}
	return -1
}
