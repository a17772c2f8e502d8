// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/modulift/modulift/services/pipeline/validate"
	"github.com/modulift/modulift/services/pipeline/watch"
)

// runWatch re-validates a module directory on every change until
// interrupted.
func runWatch(cmd *cobra.Command, args []string) {
	out := outputConfig()
	moduleDir := args[0]

	dialect := dialectFlag
	if dialect == "" {
		dialect = appConfig.Validate.Dialect
	}

	validator, err := validate.ForDialect(dialect, validate.NewRunner())
	if err != nil {
		OutputError(out.JSON, "Failed to create validator", err)
		os.Exit(CLIExitError)
	}

	handler := func(result *validate.ValidationResult, err error) {
		if err != nil {
			OutputError(out.JSON, "Validation pass failed", err)
			return
		}
		if out.Quiet {
			return
		}
		if out.JSON {
			OutputJSON(result, out.Compact)
			return
		}
		fmt.Printf("--- %s ---\n", time.Now().Format(time.TimeOnly))
		printValidationSummary(result)
	}

	opts := watch.DefaultOptions()
	if debounceMs > 0 {
		opts.DebounceWindow = time.Duration(debounceMs) * time.Millisecond
	}

	watcher, err := watch.NewWatcher(moduleDir, validator, handler, &opts)
	if err != nil {
		OutputError(out.JSON, "Failed to create watcher", err)
		os.Exit(CLIExitError)
	}
	defer watcher.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := watcher.Start(ctx); err != nil {
		OutputError(out.JSON, "Failed to start watcher", err)
		os.Exit(CLIExitError)
	}

	if !out.JSON && !out.Quiet {
		fmt.Printf("Watching %s (%s), Ctrl-C to stop\n", moduleDir, dialect)
	}

	<-ctx.Done()
	os.Exit(CLIExitSuccess)
}
