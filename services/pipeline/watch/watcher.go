// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package watch re-validates a module directory when its source files
// change. It wraps fsnotify with debouncing so a burst of editor writes
// triggers one validation pass, not one per keystroke.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/modulift/modulift/services/pipeline/validate"
)

// ResultHandler receives each validation pass triggered by a change
// batch. err is non-nil when the validator itself failed to run.
type ResultHandler func(result *validate.ValidationResult, err error)

// Options configures the Watcher.
type Options struct {
	// DebounceWindow is how long to wait for more changes before
	// re-validating. Default: 500ms
	DebounceWindow time.Duration

	// IgnorePatterns are glob patterns for files and directories to
	// ignore. Default: [".git", ".terraform", "*.swp", "*.tmp"]
	IgnorePatterns []string

	// BufferSize is the size of the change buffer channel.
	// Default: 1000
	BufferSize int
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		DebounceWindow: 500 * time.Millisecond,
		IgnorePatterns: []string{".git", ".terraform", "*.swp", "*.tmp"},
		BufferSize:     1000,
	}
}

// Watcher re-runs validation for a module directory on file changes.
//
// # Description
//
// Watches the module directory recursively. Change events are collected
// into a buffer; when the debounce window expires without new events,
// one validation pass runs and the result goes to the handler. No fix
// loop is involved, this is a read-only feedback tool.
//
// # Thread Safety
//
// Safe for concurrent use. The handler is called from a single
// goroutine, one validation pass at a time.
type Watcher struct {
	moduleDir string
	validator validate.Validator
	handler   ResultHandler
	fsw       *fsnotify.Watcher
	debounce  time.Duration
	ignore    []string

	changes  chan string
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	watching bool
}

// NewWatcher creates a watcher for the given module directory.
//
// Description:
//
//	The validator decides which dialect's tooling runs on each change
//	batch. Call Start to begin watching and Stop to release the
//	underlying fsnotify resources.
//
// Inputs:
//
//	moduleDir - Module directory to watch
//	validator - Validator to run on each change batch
//	handler - Receives each validation result
//	opts - Optional configuration (nil uses defaults)
//
// Outputs:
//
//	*Watcher - Ready-to-use watcher
//	error - Non-nil if the fsnotify watcher could not be created
func NewWatcher(moduleDir string, validator validate.Validator, handler ResultHandler, opts *Options) (*Watcher, error) {
	if opts == nil {
		defaults := DefaultOptions()
		opts = &defaults
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		moduleDir: moduleDir,
		validator: validator,
		handler:   handler,
		fsw:       fsw,
		debounce:  opts.DebounceWindow,
		ignore:    opts.IgnorePatterns,
		changes:   make(chan string, opts.BufferSize),
		done:      make(chan struct{}),
	}, nil
}

// Start begins watching and validating.
//
// Spawns two goroutines: an event processor converting fsnotify events
// into change notifications, and a debouncer that batches them and runs
// validation. Both exit when Stop is called or ctx is canceled.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil // Already watching
	}
	w.watching = true
	w.mu.Unlock()

	if err := w.addRecursive(w.moduleDir); err != nil {
		return err
	}

	go w.processEvents(ctx)
	go w.debounceLoop(ctx)

	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.fsw.Close()

		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	})
}

// IsWatching returns true if the watcher is currently active.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.watching
}

// addRecursive adds a directory and all subdirectories to the watch list.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Ignore errors, continue walking
		}
		if !d.IsDir() {
			return nil
		}
		if w.shouldIgnore(path) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// shouldIgnore checks if a path matches any ignore pattern.
func (w *Watcher) shouldIgnore(path string) bool {
	base := filepath.Base(path)

	for _, pattern := range w.ignore {
		if base == pattern {
			return true
		}
		matched, _ := filepath.Match(pattern, base)
		if matched {
			return true
		}
		if strings.Contains(path, string(filepath.Separator)+pattern+string(filepath.Separator)) {
			return true
		}
	}

	return false
}

// processEvents converts fsnotify events into change notifications.
func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}

			if w.shouldIgnore(event.Name) {
				continue
			}

			select {
			case w.changes <- event.Name:
			default:
				// Buffer full; the debouncer will still fire from
				// earlier events, so dropping is safe.
			}

			// New directories need their own watch entry.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					w.fsw.Add(event.Name)
				}
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("File watcher error", "module_dir", w.moduleDir, "error", err)
		}
	}
}

// debounceLoop batches changes and validates after the quiet window.
func (w *Watcher) debounceLoop(ctx context.Context) {
	var pending []string
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(pending) > 0 {
			w.validateBatch(ctx, dedupe(pending))
			pending = pending[:0]
		}
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case path := <-w.changes:
			pending = append(pending, path)

			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case <-timerC:
			flush()
		}
	}
}

// validateBatch runs one validation pass and reports the result.
func (w *Watcher) validateBatch(ctx context.Context, changed []string) {
	slog.Debug("Re-validating module",
		"module_dir", w.moduleDir, "changed_files", len(changed))

	result, err := w.validator.Validate(ctx, w.moduleDir)
	if w.handler != nil {
		w.handler(result, err)
	}
}

// dedupe removes duplicate paths, preserving first-seen order.
func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
