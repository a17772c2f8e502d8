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
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/modulift/modulift/services/pipeline/validate"
)

// runValidate runs one validation pass against a module directory.
func runValidate(cmd *cobra.Command, args []string) {
	start := time.Now()
	out := outputConfig()
	moduleDir := args[0]

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dialect := dialectFlag
	if dialect == "" {
		dialect = appConfig.Validate.Dialect
	}

	validator, err := validate.ForDialect(dialect, validate.NewRunner())
	if err != nil {
		os.Exit(OutputResult(out, "validate", start, nil, false, err))
	}

	if timeout := appConfig.Validate.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result, err := validator.Validate(ctx, moduleDir)
	if err != nil {
		os.Exit(OutputResult(out, "validate", start, nil, false, err))
	}

	if !out.JSON && !out.Quiet {
		printValidationSummary(result)
	}

	hasFindings := result.OverallStatus != validate.StatusPass
	os.Exit(OutputResult(out, "validate", start, result, hasFindings, nil))
}
