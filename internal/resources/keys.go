// Copyright (C) 2025 Vikings Event Management (dev@vikingeventmgmt.org.uk)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resources

import (
	"fmt"
	"strconv"
)

// Persistent store keys, prefix viking_. The layout is shared with
// earlier releases; readers of old installs depend on the exact
// shapes, including the misspelled legacy sections key.
const (
	KeyTerms          = "viking_terms_offline"
	KeyStartupData    = "viking_startup_data_offline"
	KeySections       = "viking_sections_offline"
	KeySectionsLegacy = "vikings_sections_offline" // historic misspelling, migrated on startup
	KeyMembersMerged  = "vikings_sections_members_offline"
)

// Session store keys.
const (
	SessionKeyUserInfo = "user_info"
)

func KeyEvents(sectionID int, termID string) string {
	return fmt.Sprintf("viking_events_%d_%s_offline", sectionID, termID)
}

func KeyAttendance(sectionID int, termID, eventID string) string {
	return fmt.Sprintf("viking_attendance_%d_%s_%s_offline", sectionID, termID, eventID)
}

func KeyMembersGrid(sectionID int, termID string) string {
	return fmt.Sprintf("viking_members_%d_%s_offline", sectionID, termID)
}

func KeyFlexiLists(sectionID int) string {
	return "viking_flexi_lists_" + strconv.Itoa(sectionID) + "_offline"
}

// KeyFlexiRecords is the legacy per-archived-flag catalog key. Kept
// readable for installs written before the catalog moved to
// KeyFlexiLists.
func KeyFlexiRecords(sectionID int, archived bool) string {
	flag := "n"
	if archived {
		flag = "y"
	}
	return fmt.Sprintf("viking_flexi_records_%d_archived_%s_offline", sectionID, flag)
}

func KeyFlexiStructure(extraID string) string {
	return "viking_flexi_structure_" + extraID + "_offline"
}

func KeyFlexiData(flexiID string, sectionID int, termID string) string {
	return fmt.Sprintf("viking_flexi_data_%s_%d_%s_offline", flexiID, sectionID, termID)
}

func KeySharedMetadata(eventID string) string {
	return "viking_shared_metadata_" + eventID
}

func KeySharedAttendance(eventID string, sectionID int) string {
	return fmt.Sprintf("viking_shared_attendance_%s_%d_offline", eventID, sectionID)
}
