// Copyright (C) 2025 Vikings Event Management (dev@vikingeventmgmt.org.uk)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vikings-eventmgmt/vikings-sync-go/internal/resources"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	membersSection    int
	membersTerm       string
	membersAll        bool
	membersForce      bool
	membersJSONOutput bool
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// membersCmd lists members, either one section's grid or the merged
// deduplicated list across every section.
var membersCmd = &cobra.Command{
	Use:   "members",
	Short: "List members for a section or across all sections",
	Long: `Lists members. With --section (and optionally --term) the flattened
grid for that section is shown; with --all, every section is fetched
sequentially with pacing and members are deduplicated by scout id.

Examples:
  vikingsync members --section 49
  vikingsync members --all --json`,
	RunE: runMembers,
}

func init() {
	membersCmd.Flags().IntVar(&membersSection, "section", 0, "section id")
	membersCmd.Flags().StringVar(&membersTerm, "term", "", "term id (defaults to the most recent)")
	membersCmd.Flags().BoolVar(&membersAll, "all", false, "merge members across all sections")
	membersCmd.Flags().BoolVar(&membersForce, "force", false, "bypass the cache freshness check")
	membersCmd.Flags().BoolVar(&membersJSONOutput, "json", false, "output as JSON")
}

func runMembers(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()
	ctx := cmd.Context()

	var members []resources.Member
	switch {
	case membersAll:
		sections, err := a.res.GetSections(ctx, false)
		if err != nil {
			return err
		}
		members, err = a.res.GetListOfMembers(ctx, sections)
		if err != nil {
			return err
		}
	case membersSection != 0:
		termID := membersTerm
		if termID == "" {
			term, err := a.res.MostRecentTerm(ctx, membersSection)
			if err != nil {
				return err
			}
			termID = term.TermID
		}
		members, err = a.res.GetMembersGrid(ctx, membersSection, termID, membersForce)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("either --section or --all is required")
	}

	if membersJSONOutput {
		return printJSON(members)
	}

	fmt.Printf("%-12s %-15s %-15s %-14s %s\n", "SCOUT ID", "FIRST", "LAST", "TYPE", "SECTIONS")
	for _, m := range members {
		fmt.Printf("%-12s %-15s %-15s %-14s %s\n",
			m.ScoutID, m.FirstName, m.LastName, m.PersonType,
			strings.Join(m.Sections, ","))
	}
	fmt.Printf("\n%d members\n", len(members))
	return nil
}
