// Copyright (C) 2025 Vikings Event Management (dev@vikingeventmgmt.org.uk)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// vikingsync is the command-line host for the offline-first sync
// core: it wires the cache, rate-limit queue, auth gate and network
// probe around the backend proxy and exposes the resource operations
// for inspection and scripting.
package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/vikings-eventmgmt/vikings-sync-go/internal/config"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}

var rootCmd = &cobra.Command{
	Use:   "vikingsync",
	Short: "Offline-first sync core for Scout event management",
	Long: `vikingsync keeps Scout event data usable offline.

Reads serve cached data whenever upstream is rate-limited, unreachable
or the session has expired; writes are refused rather than queued when
the preconditions do not hold. All upstream traffic is smoothed
through a single FIFO dispatcher.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		if err := config.Load(); err != nil {
			log.Fatalf("Error loading configuration: %v", err)
		}
	}

	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(termsCmd)
	rootCmd.AddCommand(sectionsCmd)
	rootCmd.AddCommand(membersCmd)
	rootCmd.AddCommand(flexiCmd)
	rootCmd.AddCommand(diagCmd)
}
