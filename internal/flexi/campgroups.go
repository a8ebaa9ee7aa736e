// Copyright (C) 2025 Vikings Event Management (dev@vikingeventmgmt.org.uk)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package flexi

import (
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// UnassignedGroupName is the bucket for members with no camp group.
const UnassignedGroupName = "Group Unassigned"

// CampGroup is one bucket of young people.
type CampGroup struct {
	Name    string        `json:"name"`
	Number  string        `json:"number"`
	Members []EventMember `json:"members"`
}

// CampGroupSummary aggregates a camp-group organization run.
type CampGroupSummary struct {
	TotalGroups      int  `json:"totalGroups"`
	TotalMembers     int  `json:"totalMembers"`
	TotalLeaders     int  `json:"totalLeaders"`
	TotalYoungPeople int  `json:"totalYoungPeople"`
	HasUnassigned    bool `json:"hasUnassigned"`
}

// CampGroups is the organized result, keyed by display name.
type CampGroups struct {
	Groups  map[string]CampGroup `json:"groups"`
	Order   []string             `json:"order"`
	Summary CampGroupSummary     `json:"summary"`
}

// OrganizeByCampGroup buckets young people by their CampGroup value.
// Leaders and young leaders are excluded from the buckets but counted
// in the summary. Members with no group land in "Group Unassigned".
// Order lists display names ascending by group number, non-numeric
// groups after numeric ones, unassigned last. Members inside a bucket
// sort by last name then first name using British English collation.
func OrganizeByCampGroup(members []EventMember) *CampGroups {
	out := &CampGroups{Groups: make(map[string]CampGroup)}

	for _, m := range members {
		switch m.PersonType {
		case PersonTypeLeaders, PersonTypeYoungLeaders:
			out.Summary.TotalLeaders++
			continue
		}
		out.Summary.TotalYoungPeople++

		number := m.campGroupValue()
		name := displayName(number)
		group, ok := out.Groups[name]
		if !ok {
			group = CampGroup{Name: name, Number: number}
		}
		group.Members = append(group.Members, m)
		out.Groups[name] = group
		out.Summary.TotalMembers++
	}

	coll := collate.New(language.BritishEnglish, collate.IgnoreCase)
	for name, group := range out.Groups {
		sortMembers(coll, group.Members)
		out.Groups[name] = group
		out.Order = append(out.Order, name)
	}
	sortGroupNames(out.Order)

	out.Summary.TotalGroups = len(out.Groups)
	_, out.Summary.HasUnassigned = out.Groups[UnassignedGroupName]
	return out
}

func displayName(number string) string {
	if number == "" {
		return UnassignedGroupName
	}
	if strings.HasPrefix(strings.ToLower(number), "group ") {
		return number
	}
	return "Group " + number
}

func sortMembers(coll *collate.Collator, members []EventMember) {
	sort.SliceStable(members, func(i, j int) bool {
		if c := coll.CompareString(members[i].LastName, members[j].LastName); c != 0 {
			return c < 0
		}
		return coll.CompareString(members[i].FirstName, members[j].FirstName) < 0
	})
}

// sortGroupNames orders display names: numeric groups ascending, then
// non-numeric groups alphabetically, then the unassigned bucket.
func sortGroupNames(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		return groupLess(names[i], names[j])
	})
}

func groupLess(a, b string) bool {
	ua, ub := a == UnassignedGroupName, b == UnassignedGroupName
	if ua || ub {
		return !ua && ub
	}
	na, aNum := groupNumber(a)
	nb, bNum := groupNumber(b)
	switch {
	case aNum && bNum:
		return na < nb
	case aNum != bNum:
		return aNum
	default:
		return a < b
	}
}

func groupNumber(name string) (int, bool) {
	rest := strings.TrimPrefix(name, "Group ")
	n, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil {
		return 0, false
	}
	return n, true
}
