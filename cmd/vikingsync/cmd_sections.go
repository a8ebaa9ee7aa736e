// Copyright (C) 2025 Vikings Event Management (dev@vikingeventmgmt.org.uk)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	sectionsForce      bool
	sectionsJSONOutput bool
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// sectionsCmd enumerates the user's sections.
var sectionsCmd = &cobra.Command{
	Use:   "sections",
	Short: "List the user's sections",
	Long: `Enumerates the sections the user has a role in. Sections persist
indefinitely and are replaced wholesale on each successful
enumeration, so this works fully offline once populated.`,
	RunE: runSections,
}

func init() {
	sectionsCmd.Flags().BoolVar(&sectionsForce, "force", false, "bypass the cache freshness check")
	sectionsCmd.Flags().BoolVar(&sectionsJSONOutput, "json", false, "output as JSON")
}

func runSections(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	sections, err := a.res.GetSections(cmd.Context(), sectionsForce)
	if err != nil {
		return err
	}
	if sectionsJSONOutput {
		return printJSON(sections)
	}

	fmt.Printf("%-10s %-25s %-10s %s\n", "ID", "NAME", "TYPE", "DEFAULT")
	for _, s := range sections {
		def := ""
		if s.IsDefault {
			def = "*"
		}
		fmt.Printf("%-10d %-25s %-10s %s\n", s.SectionID, s.Name, s.Type, def)
	}
	return nil
}
