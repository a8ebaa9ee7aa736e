// Copyright (C) 2025 Vikings Event Management (dev@vikingeventmgmt.org.uk)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resources

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/vikings-eventmgmt/vikings-sync-go/internal/flexi"
)

// Term is one bounded date range within a section. Upstream groups
// terms by section id under a top-level mapping.
type Term struct {
	TermID    string `json:"termid"`
	Name      string `json:"name"`
	StartDate string `json:"startdate,omitempty"`
	EndDate   string `json:"enddate"`
}

// endTime parses the term's end date; ok is false for unparseable
// dates, which callers skip rather than fail on.
func (t Term) endTime() (time.Time, bool) {
	if t.EndDate == "" {
		return time.Time{}, false
	}
	parsed, err := time.Parse("2006-01-02", t.EndDate)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

// TermsBySection is the /get-terms envelope: section id to its terms.
type TermsBySection map[string][]Term

// Section is one administrative grouping of members, built from the
// user-roles enumeration.
type Section struct {
	SectionID   int            `json:"sectionid"`
	Name        string         `json:"sectionname"`
	Type        string         `json:"section"`
	IsDefault   bool           `json:"isDefault"`
	Permissions map[string]any `json:"permissions,omitempty"`
}

// Event is one upstream event. Every event carries its own term id;
// nothing downstream infers it.
type Event struct {
	EventID   string `json:"eventid"`
	Name      string `json:"name"`
	StartDate string `json:"startdate"`
	SectionID int    `json:"sectionid"`
	TermID    string `json:"termid"`
}

// AttendanceRecord is one member's attendance state for one event.
type AttendanceRecord struct {
	ScoutID     string `json:"scoutid"`
	EventID     string `json:"eventid"`
	SectionID   int    `json:"sectionid"`
	SectionName string `json:"sectionname,omitempty"`
	EventName   string `json:"eventname,omitempty"`
	EventDate   string `json:"eventdate,omitempty"`
	Attending   string `json:"attending"`
}

// Member is a flattened grid row: a typed kernel of canonical fields
// plus an open bag for the prefixed custom columns (for example
// primary_contact_1__phone_1), which are a poor fit for static typing.
type Member struct {
	ScoutID     string `json:"scoutid"`
	FirstName   string `json:"firstname"`
	LastName    string `json:"lastname"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
	SectionID   int    `json:"sectionid"`
	PatrolID    int    `json:"patrolid"`
	PersonType  string `json:"person_type"`

	// Sections accumulates the names of every section this member was
	// seen in during a multi-section merge.
	Sections []string `json:"sections,omitempty"`

	CustomFields map[string]any `json:"custom_fields,omitempty"`
}

// HasSection reports whether name is already in the member's section
// set.
func (m *Member) HasSection(name string) bool {
	for _, s := range m.Sections {
		if s == name {
			return true
		}
	}
	return false
}

// Patrol ids with reserved meanings.
const (
	patrolIDLeaders      = -2
	patrolIDYoungLeaders = -3
)

// PersonTypeFromPatrolID classifies a member from its patrol id.
func PersonTypeFromPatrolID(patrolID int) string {
	switch patrolID {
	case patrolIDLeaders:
		return flexi.PersonTypeLeaders
	case patrolIDYoungLeaders:
		return flexi.PersonTypeYoungLeaders
	default:
		return flexi.PersonTypeYoungPeople
	}
}

// coerceInt accepts the upstream's mixed integer encodings: 7, "7",
// 7.0.
func coerceInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case int:
		return t, true
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func coerceString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
