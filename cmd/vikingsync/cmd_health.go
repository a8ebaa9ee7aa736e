// Copyright (C) 2025 Vikings Event Management (dev@vikingeventmgmt.org.uk)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vikings-eventmgmt/vikings-sync-go/internal/config"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	healthJSONOutput bool // Output as JSON for scripting
	healthTimeout    time.Duration
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// healthCmd reports connectivity to the backend proxy plus the local
// sync core's gate and queue state.
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check backend connectivity and sync core state",
	Long: `Checks the backend proxy's health endpoint and reports the local
sync state: network probe, auth gate, rate-limit queue and session
block flag.

Examples:
  vikingsync health
  vikingsync health --json`,
	RunE: runHealth,
}

func init() {
	healthCmd.Flags().BoolVar(&healthJSONOutput, "json", false, "output as JSON")
	healthCmd.Flags().DurationVar(&healthTimeout, "timeout", 10*time.Second, "health check timeout")
}

type healthReport struct {
	Backend    string `json:"backend"`
	Reachable  bool   `json:"reachable"`
	Online     bool   `json:"online"`
	GateState  string `json:"gateState"`
	QueueState string `json:"queueState"`
	QueueDepth int    `json:"queueDepth"`
	Requests   uint64 `json:"requests"`
	Demo       bool   `json:"demo"`
}

func runHealth(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithTimeout(cmd.Context(), healthTimeout)
	defer cancel()

	report := healthReport{
		Backend: config.Global.API.BaseURL,
		Online:  a.probe.Online(),
		Demo:    config.Global.Demo,
	}
	report.Reachable = a.client.Health(ctx) == nil
	report.GateState = a.gate.State().String()

	stats := a.queue.Stats()
	report.QueueState = stats.State.String()
	report.QueueDepth = stats.QueueLength
	report.Requests = stats.TotalRequests

	if healthJSONOutput {
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	status := "UNREACHABLE"
	if report.Reachable {
		status = "OK"
	}
	fmt.Printf("Backend:     %s [%s]\n", report.Backend, status)
	fmt.Printf("Network:     online=%v\n", report.Online)
	fmt.Printf("Auth gate:   %s\n", report.GateState)
	fmt.Printf("Queue:       %s (depth %d, %d requests)\n",
		report.QueueState, report.QueueDepth, report.Requests)
	if report.Demo {
		fmt.Println("Demo mode:   enabled (no network traffic)")
	}
	return nil
}
