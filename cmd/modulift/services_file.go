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
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/modulift/modulift/services/pipeline/graph"
)

// MaxServicesFileSize caps the batch definition file at 1MB.
const MaxServicesFileSize = 1024 * 1024

// serviceEntry is one service in the batch definition file.
type serviceEntry struct {
	// ID is the unique service identifier.
	ID string `yaml:"id"`

	// DependsOn lists service ids this service requires.
	DependsOn []string `yaml:"depends_on"`

	// Patterns lists infrastructure pattern keys this service uses.
	Patterns []string `yaml:"patterns"`
}

// servicesFileDoc is the batch definition file layout.
//
// Example:
//
//	services:
//	  - id: web_app
//	    depends_on: [sql_db]
//	    patterns: [diagnostics, private_endpoint]
//	  - id: sql_db
//	    patterns: [diagnostics]
type servicesFileDoc struct {
	Services []serviceEntry `yaml:"services"`
}

// LoadServicesFile reads a batch definition into graph nodes.
//
// Description:
//
//	Parses the YAML batch file used by plan and build. Pattern lists
//	become the required-pattern sets consumed by consolidation.
//
// Inputs:
//
//	path - Path to the services YAML file
//
// Outputs:
//
//	[]graph.ServiceNode - The parsed batch
//	error - Read, size, parse, or empty-batch errors
func LoadServicesFile(path string) ([]graph.ServiceNode, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading services file: %w", err)
	}
	if info.Size() > MaxServicesFileSize {
		return nil, fmt.Errorf("services file %s exceeds %d bytes", path, MaxServicesFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading services file: %w", err)
	}

	var doc servicesFileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing services file: %w", err)
	}
	if len(doc.Services) == 0 {
		return nil, fmt.Errorf("services file %s defines no services", path)
	}

	batch := make([]graph.ServiceNode, len(doc.Services))
	for i, entry := range doc.Services {
		node := graph.ServiceNode{
			ID:        entry.ID,
			DependsOn: entry.DependsOn,
		}
		if len(entry.Patterns) > 0 {
			node.Patterns = make(map[string]bool, len(entry.Patterns))
			for _, p := range entry.Patterns {
				node.Patterns[p] = true
			}
		}
		batch[i] = node
	}
	return batch, nil
}
