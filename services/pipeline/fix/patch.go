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
	"path/filepath"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/modulift/modulift/services/pipeline/collab"
)

const devNull = "/dev/null"

// applyPatch applies a unified-diff fix to the file set. A patch must parse,
// stay under the line cap, target exactly one file, and that file must match
// the one the fix names. Hunk context is verified line by line against the
// current content; any mismatch is drift and the whole patch is rejected
// without partial application.
//
// Creating a new file (orig /dev/null) is allowed. Deleting one is not: the
// loop repairs modules, it does not prune them.
func applyPatch(files []collab.SourceFile, fx collab.CodeFix, maxLines int) ([]collab.SourceFile, error) {
	if strings.Count(fx.Patch, "\n") > maxLines {
		return nil, fmt.Errorf("%w: patch exceeds %d lines", ErrPatchInvalid, maxLines)
	}

	fds, err := diff.NewMultiFileDiffReader(strings.NewReader(fx.Patch)).ReadAllFiles()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPatchInvalid, err)
	}
	if len(fds) != 1 {
		return nil, fmt.Errorf("%w: patch must target exactly one file, got %d", ErrPatchInvalid, len(fds))
	}

	fd := fds[0]
	origName := stripDiffPrefix(fd.OrigName)
	newName := stripDiffPrefix(fd.NewName)

	if newName == devNull {
		return nil, fmt.Errorf("%w: patch deletes %s", ErrPatchInvalid, origName)
	}
	if newName != fx.File {
		return nil, fmt.Errorf("%w: patch targets %s, fix names %s", ErrPatchInvalid, newName, fx.File)
	}
	if !filepath.IsLocal(newName) {
		return nil, fmt.Errorf("%w: %s escapes the module directory", ErrPatchInvalid, newName)
	}

	if origName == devNull {
		return createFromPatch(files, newName, fd.Hunks)
	}

	idx := fileIndex(files, newName)
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s not in module file set", ErrFixDrift, newName)
	}

	content, err := applyHunks(files[idx].Content, fd.Hunks)
	if err != nil {
		return nil, err
	}

	out := make([]collab.SourceFile, len(files))
	copy(out, files)
	out[idx].Content = content
	return out, nil
}

// createFromPatch builds a brand new file from a /dev/null patch. Only
// additions make sense against an empty original.
func createFromPatch(files []collab.SourceFile, path string, hunks []*diff.Hunk) ([]collab.SourceFile, error) {
	if fileIndex(files, path) >= 0 {
		return nil, fmt.Errorf("%w: patch creates %s but it already exists", ErrPatchInvalid, path)
	}

	var lines []string
	for _, h := range hunks {
		for _, bl := range strings.Split(string(h.Body), "\n") {
			switch {
			case bl == "" || strings.HasPrefix(bl, `\`):
				continue
			case bl[0] == '+':
				lines = append(lines, bl[1:])
			default:
				return nil, fmt.Errorf("%w: new-file patch contains non-addition line %q", ErrPatchInvalid, bl)
			}
		}
	}

	out := make([]collab.SourceFile, len(files)+1)
	copy(out, files)
	out[len(files)] = collab.SourceFile{Path: path, Content: strings.Join(lines, "\n") + "\n"}
	return out, nil
}

// applyHunks replays the hunks over the original content. Context and
// removal lines must match the original exactly; the collaborator built the
// patch from a snapshot, and if the file moved on, the patch is stale.
func applyHunks(original string, hunks []*diff.Hunk) (string, error) {
	origLines := strings.Split(original, "\n")

	var out []string
	idx := 0

	for _, h := range hunks {
		start := int(h.OrigStartLine) - 1
		if start < 0 || start > len(origLines) {
			return "", fmt.Errorf("%w: hunk starts at line %d of a %d-line file", ErrFixDrift, h.OrigStartLine, len(origLines))
		}

		for idx < start {
			out = append(out, origLines[idx])
			idx++
		}

		for _, bl := range strings.Split(string(h.Body), "\n") {
			switch {
			case bl == "" || strings.HasPrefix(bl, `\`):
				// Trailing split artifact or no-newline marker.
				continue
			case bl[0] == '+':
				out = append(out, bl[1:])
			case bl[0] == '-':
				if idx >= len(origLines) || origLines[idx] != bl[1:] {
					return "", hunkDrift(origLines, idx, bl[1:])
				}
				idx++
			case bl[0] == ' ':
				if idx >= len(origLines) || origLines[idx] != bl[1:] {
					return "", hunkDrift(origLines, idx, bl[1:])
				}
				out = append(out, origLines[idx])
				idx++
			default:
				// Some generators drop the leading space on context lines.
				if idx >= len(origLines) || origLines[idx] != bl {
					return "", hunkDrift(origLines, idx, bl)
				}
				out = append(out, origLines[idx])
				idx++
			}
		}
	}

	for idx < len(origLines) {
		out = append(out, origLines[idx])
		idx++
	}

	return strings.Join(out, "\n"), nil
}

// hunkDrift builds the drift error for a context or removal mismatch.
func hunkDrift(origLines []string, idx int, want string) error {
	got := "<end of file>"
	if idx < len(origLines) {
		got = origLines[idx]
	}
	return fmt.Errorf("%w: hunk expects %q at line %d, file has %q", ErrFixDrift, want, idx+1, got)
}

// stripDiffPrefix removes the conventional a/ or b/ prefix from a diff path.
func stripDiffPrefix(name string) string {
	if strings.HasPrefix(name, "a/") || strings.HasPrefix(name, "b/") {
		return name[2:]
	}
	return name
}
