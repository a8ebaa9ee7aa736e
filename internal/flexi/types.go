// Copyright (C) 2025 Vikings Event Management (dev@vikingeventmgmt.org.uk)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package flexi transforms flexible-record documents: it joins the
// schema (field-id to human name) with row data keyed by opaque ids
// like f_1, and organizes the result by camp group.
//
// A flexible record is a user-definable spreadsheet-like table
// attached to a section. Column names live in a separate structure
// document, so raw rows arrive as {"scoutid": ..., "f_1": 1, "f_2": ...}.
// Everything in this package is pure: no I/O, no owned state.
package flexi

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// fieldIDPattern is the only accepted shape for flexi column ids.
var fieldIDPattern = regexp.MustCompile(`^f_\d+$`)

// ValidFieldID reports whether id is an opaque flexi column id
// (strictly f_<digits>). Mutations targeting anything else fail
// before dispatch.
func ValidFieldID(id string) bool {
	return fieldIDPattern.MatchString(id)
}

// Person types classify members, derived upstream from patrol id.
const (
	PersonTypeYoungPeople  = "Young People"
	PersonTypeYoungLeaders = "Young Leaders"
	PersonTypeLeaders      = "Leaders"
)

// Viking-Event field names the sign-in/out flow writes.
const (
	FieldCampGroup     = "CampGroup"
	FieldSignedInBy    = "SignedInBy"
	FieldSignedInWhen  = "SignedInWhen"
	FieldSignedOutBy   = "SignedOutBy"
	FieldSignedOutWhen = "SignedOutWhen"
)

// looseBool tolerates the upstream's mixed encodings: true, "true",
// "1", 1.
type looseBool bool

func (b *looseBool) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch string(trimmed) {
	case "true", `"true"`, "1", `"1"`:
		*b = true
	default:
		*b = false
	}
	return nil
}

// FieldMeta is what the schema knows about one f_<n> column.
type FieldMeta struct {
	FieldID   string `json:"fieldId"`
	Name      string `json:"name"`
	Width     string `json:"width,omitempty"`
	Editable  bool   `json:"editable,omitempty"`
	Formatter string `json:"formatter,omitempty"`
}

// FieldMap maps f_<n> ids to their metadata. Invariant: every row key
// of form f_<digits> in the data document should have an entry here;
// absence is a structural mismatch.
type FieldMap map[string]FieldMeta

// Structure is the schema document for one flexible record.
type Structure struct {
	ExtraID     string `json:"extraid"`
	SectionID   string `json:"sectionid"`
	Name        string `json:"name"`
	Archived    string `json:"archived"`
	SoftDeleted string `json:"soft_deleted"`

	// Config is a serialized field table: a JSON string holding
	// [{"id":"f_1","name":"CampGroup","width":"100px"}, ...].
	Config string `json:"config"`

	// Structure rows contribute editable and formatter metadata for
	// the same ids.
	Structure []StructureBlock `json:"structure"`
}

// StructureBlock is one section of the structure table.
type StructureBlock struct {
	Rows []StructureRow `json:"rows"`
}

// StructureRow describes one column inside a block.
type StructureRow struct {
	Field     string    `json:"field"`
	Name      string    `json:"name"`
	Width     string    `json:"width"`
	Editable  looseBool `json:"editable"`
	Formatter string    `json:"formatter"`
}

// configEntry is one element of the serialized Config table.
type configEntry struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Width string `json:"width"`
}

// Row is one data row; opaque f_<n> columns alongside scout fields.
type Row map[string]any

// Data is the row document for one flexible record.
type Data struct {
	Identifier string `json:"identifier"`
	Items      []Row  `json:"items"`
}

// TransformMeta is the bundle attached to a consolidated record.
type TransformMeta struct {
	OriginalFieldCount int    `json:"originalFieldCount"`
	TransformedAt      string `json:"transformedAt"`
	TotalItems         int    `json:"totalItems"`
}

// StructureInfo carries the structure identity on a consolidated
// record.
type StructureInfo struct {
	Name          string   `json:"name"`
	ExtraID       string   `json:"extraId"`
	FlexiRecordID string   `json:"flexiRecordId"`
	SectionID     string   `json:"sectionId"`
	Archived      bool     `json:"archived"`
	SoftDeleted   bool     `json:"softDeleted"`
	FieldMapping  FieldMap `json:"fieldMapping"`
}

// Consolidated is row data augmented in place with human-named copies
// of each f_<n> column.
type Consolidated struct {
	Identifier   string         `json:"identifier"`
	Items        []Row          `json:"items"`
	FieldMapping FieldMap       `json:"fieldMapping"`
	Metadata     TransformMeta  `json:"_metadata"`
	Structure    *StructureInfo `json:"_structure,omitempty"`
}

// EventMember is a member carrying per-event flexi data, the input to
// camp-group organization.
type EventMember struct {
	ScoutID         string         `json:"scoutid"`
	FirstName       string         `json:"firstname"`
	LastName        string         `json:"lastname"`
	PersonType      string         `json:"person_type"`
	VikingEventData map[string]any `json:"vikingEventData,omitempty"`
}

// campGroupValue extracts the member's camp-group as a string;
// "" when absent.
func (m EventMember) campGroupValue() string {
	if m.VikingEventData == nil {
		return ""
	}
	v, ok := m.VikingEventData[FieldCampGroup]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	default:
		return ""
	}
}
