// Copyright (C) 2025 Vikings Event Management (dev@vikingeventmgmt.org.uk)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/vikings-eventmgmt/vikings-sync-go/internal/resources"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	termsForce      bool
	termsJSONOutput bool
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// termsCmd lists terms per section, via the cache decision procedure.
var termsCmd = &cobra.Command{
	Use:   "terms",
	Short: "List terms per section",
	Long: `Lists every term the user can see, grouped by section. Respects the
cache: a fresh entry is served without touching the network, and a
stale one is refreshed through the rate-limit queue.

Examples:
  vikingsync terms
  vikingsync terms --force`,
	RunE: runTerms,
}

func init() {
	termsCmd.Flags().BoolVar(&termsForce, "force", false, "bypass the cache freshness check")
	termsCmd.Flags().BoolVar(&termsJSONOutput, "json", false, "output as JSON")
}

func runTerms(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	raw, source, err := a.res.GetTerms(cmd.Context(), termsForce)
	if err != nil {
		return err
	}
	if termsJSONOutput {
		fmt.Println(string(raw))
		return nil
	}

	parsed, err := resources.ParseTerms(raw)
	if err != nil {
		return err
	}
	sectionIDs := make([]string, 0, len(parsed))
	for id := range parsed {
		sectionIDs = append(sectionIDs, id)
	}
	sort.Strings(sectionIDs)

	fmt.Printf("Terms (source: %s)\n", source)
	for _, id := range sectionIDs {
		fmt.Printf("  section %s:\n", id)
		for _, term := range parsed[id] {
			fmt.Printf("    %-12s %-20s ends %s\n", term.TermID, term.Name, term.EndDate)
		}
	}
	return nil
}

// printJSON is shared by the list-style commands.
func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
