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
	"time"

	"github.com/spf13/cobra"

	"github.com/modulift/modulift/services/pipeline/report"
)

// runReport fetches a persisted run report from the report store.
func runReport(cmd *cobra.Command, args []string) {
	start := time.Now()
	out := outputConfig()
	runID := args[0]

	if appConfig.Run.StorePath == "" {
		err := fmt.Errorf("no persistent report store configured (run.store_path is empty)")
		os.Exit(OutputResult(out, "report", start, nil, false, err))
	}

	store, err := report.OpenStore(report.DefaultStoreConfig(appConfig.Run.StorePath))
	if err != nil {
		os.Exit(OutputResult(out, "report", start, nil, false, err))
	}
	defer store.Close()

	rep, err := store.Get(context.Background(), runID)
	if err != nil {
		os.Exit(OutputResult(out, "report", start, nil, false, err))
	}

	if !out.JSON && !out.Quiet {
		printRunSummary(rep)
	}

	hasFindings := rep.Summary.Failed > 0
	os.Exit(OutputResult(out, "report", start, rep, hasFindings, nil))
}
