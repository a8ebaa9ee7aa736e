// Copyright (C) 2025 Vikings Event Management (dev@vikingeventmgmt.org.uk)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/vikings-eventmgmt/vikings-sync-go/internal/cache"
	"github.com/vikings-eventmgmt/vikings-sync-go/internal/telemetry"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	diagMetricsAddr string
	diagPrefix      string
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// diagCmd inspects the local cache and optionally serves Prometheus
// metrics for scraping.
var diagCmd = &cobra.Command{
	Use:   "diag",
	Short: "Inspect cached entries and their freshness",
	Long: `Walks the persistent store and prints every cached entry with its
age. With --serve-metrics, additionally serves the Prometheus
registry on the given address until interrupted.

Examples:
  vikingsync diag
  vikingsync diag --prefix viking_flexi
  vikingsync diag --serve-metrics :9091`,
	RunE: runDiag,
}

func init() {
	diagCmd.Flags().StringVar(&diagMetricsAddr, "serve-metrics", "", "address to serve /metrics on")
	diagCmd.Flags().StringVar(&diagPrefix, "prefix", "viking_", "key prefix to list")
}

func runDiag(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	keys := a.store.KeysWithPrefix(diagPrefix)
	sort.Strings(keys)

	now := time.Now()
	fmt.Printf("%-60s %-12s %s\n", "KEY", "SIZE", "AGE")
	for _, key := range keys {
		raw := a.store.Get(key, nil)
		if raw == nil {
			continue
		}
		age := "unstamped"
		if at, ok := cache.CachedAt(raw); ok {
			age = now.Sub(at).Round(time.Second).String()
		}
		fmt.Printf("%-60s %-12d %s\n", key, len(raw), age)
	}
	fmt.Printf("\n%d entries\n", len(keys))

	if diagMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", telemetry.Handler())
		fmt.Printf("Serving metrics on %s/metrics\n", diagMetricsAddr)
		return http.ListenAndServe(diagMetricsAddr, mux)
	}
	return nil
}
