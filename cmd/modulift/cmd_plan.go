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
	"time"

	"github.com/spf13/cobra"

	"github.com/modulift/modulift/services/pipeline/run"
)

// runPlan assembles and prints the build plan for a batch file.
func runPlan(cmd *cobra.Command, args []string) {
	start := time.Now()
	out := outputConfig()

	plan, err := assemblePlan(cmd.Context())
	if err != nil {
		os.Exit(OutputResult(out, "plan", start, nil, false, err))
	}

	if !out.JSON && !out.Quiet {
		printPlanSummary(plan)
	}

	// Broken dependency cycles are findings; the plan is still usable
	// but the input batch deserves attention.
	hasFindings := len(plan.Cycles) > 0
	os.Exit(OutputResult(out, "plan", start, plan, hasFindings, nil))
}

// assemblePlan loads the batch file and assembles a plan with the
// effective threshold and dialect.
func assemblePlan(ctx context.Context) (*run.Plan, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	batch, err := LoadServicesFile(servicesFile)
	if err != nil {
		return nil, err
	}

	threshold := thresholdFlag
	if threshold < 1 {
		threshold = appConfig.Patterns.Threshold
	}
	dialect := dialectFlag
	if dialect == "" {
		dialect = appConfig.Validate.Dialect
	}

	return run.Assemble(ctx, batch, threshold, dialect)
}
