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
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/modulift/modulift/pkg/logging"
	"github.com/modulift/modulift/services/pipeline/config"
)

// appConfig holds the loaded configuration for all subcommands.
var appConfig *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(CLIExitError)
	}
}

func init() {
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		level := logging.LevelInfo
		if verbose {
			level = logging.LevelDebug
		}
		logger := logging.New(logging.Config{
			Level:   level,
			Service: "modulift",
			Quiet:   outputQuiet,
		})
		slog.SetDefault(logger.Slog())

		cfg, err := config.Get(context.Background())
		if err != nil {
			OutputError(outputJSON, "Failed to load configuration", err)
			os.Exit(CLIExitError)
		}
		appConfig = cfg
	}
}
