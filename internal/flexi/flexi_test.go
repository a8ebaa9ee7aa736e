// Copyright (C) 2025 Vikings Event Management (dev@vikingeventmgmt.org.uk)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package flexi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleStructure() *Structure {
	return &Structure{
		ExtraID:   "72758",
		SectionID: "49097",
		Name:      "Viking Event Mgmt",
		Config:    `[{"id":"f_1","name":"CampGroup","width":"100px"},{"id":"f_2","name":"SignedInBy","width":"120px"}]`,
		Structure: []StructureBlock{
			{Rows: []StructureRow{
				{Field: "f_1", Name: "CampGroup", Editable: true},
				{Field: "f_2", Name: "SignedInBy", Editable: true},
				{Field: "f_3", Name: "SignedInWhen", Editable: true},
			}},
		},
	}
}

func TestParseStructureMergesConfigAndRows(t *testing.T) {
	fields := ParseStructure(sampleStructure(), nil)

	require.Len(t, fields, 3)
	assert.Equal(t, "CampGroup", fields["f_1"].Name)
	assert.Equal(t, "100px", fields["f_1"].Width)
	assert.True(t, fields["f_1"].Editable)
	// f_3 only exists in the structure rows.
	assert.Equal(t, "SignedInWhen", fields["f_3"].Name)
}

func TestParseStructureRowNameOverridesConfig(t *testing.T) {
	s := sampleStructure()
	s.Structure[0].Rows[0].Name = "Camp Group (renamed)"

	fields := ParseStructure(s, nil)
	assert.Equal(t, "Camp Group (renamed)", fields["f_1"].Name)
}

func TestParseStructureMalformedConfigIgnored(t *testing.T) {
	s := sampleStructure()
	s.Config = `{"not an array"`

	fields := ParseStructure(s, nil)
	// Structure rows alone still produce a usable map.
	require.Len(t, fields, 3)
	assert.Equal(t, "CampGroup", fields["f_1"].Name)
	assert.Empty(t, fields["f_1"].Width)
}

func TestParseStructureRejectsNonFieldIDs(t *testing.T) {
	s := sampleStructure()
	s.Config = `[{"id":"firstname","name":"First"},{"id":"f_9","name":"Real"}]`
	s.Structure = nil

	fields := ParseStructure(s, nil)
	require.Len(t, fields, 1)
	assert.Contains(t, fields, "f_9")
}

func TestTransformMapsFieldsAndPreservesOriginals(t *testing.T) {
	fields := ParseStructure(sampleStructure(), nil)
	data := &Data{
		Identifier: "scoutid",
		Items: []Row{
			{"scoutid": "101", "firstname": "Alice", "lastname": "Archer", "f_1": "3", "f_2": "J Smith"},
		},
	}

	now := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	got := Transform(data, fields, now)

	require.Len(t, got.Items, 1)
	row := got.Items[0]
	assert.Equal(t, "3", row["CampGroup"])
	assert.Equal(t, "J Smith", row["SignedInBy"])
	// Originals stay in place under their ids and under _original_.
	assert.Equal(t, "3", row["f_1"])
	assert.Equal(t, "3", row[OriginalValuePrefix+"f_1"])
	assert.Equal(t, "J Smith", row[OriginalValuePrefix+"f_2"])
	assert.Equal(t, 3, got.Metadata.OriginalFieldCount)
	assert.Equal(t, 1, got.Metadata.TotalItems)
	assert.Equal(t, "2025-07-01T12:00:00Z", got.Metadata.TransformedAt)

	// Input rows must not be mutated.
	assert.NotContains(t, data.Items[0], "CampGroup")
}

func TestTransformOverwritesClashingName(t *testing.T) {
	fields := FieldMap{"f_1": {FieldID: "f_1", Name: "CampGroup"}}
	data := &Data{Items: []Row{
		{"scoutid": "7", "f_1": "2", "CampGroup": "pre-existing"},
	}}

	got := Transform(data, fields, time.Now())
	row := got.Items[0]
	// The field value wins over a pre-existing name-keyed entry, and
	// _original_ carries the field value, not the displaced one.
	assert.Equal(t, "2", row["CampGroup"])
	assert.Equal(t, "2", row[OriginalValuePrefix+"f_1"])
}

func TestTransformUnmappedFieldStaysIDKeyed(t *testing.T) {
	fields := FieldMap{"f_1": {FieldID: "f_1", Name: "CampGroup"}}
	data := &Data{Items: []Row{{"f_1": "1", "f_99": "stray"}}}

	got := Transform(data, fields, time.Now())
	row := got.Items[0]
	assert.Equal(t, "stray", row["f_99"])
	assert.NotContains(t, row, "")
}

func TestExtractVikingEventFields(t *testing.T) {
	c := &Consolidated{Items: []Row{
		{
			"scoutid": "101", "firstname": "Alice", "lastname": "Archer",
			"CampGroup": "3", "SignedInBy": "J Smith", "unrelated": "x",
		},
		{"scoutid": float64(102), "firstname": "Ben", "lastname": "Brown"},
	}}

	members := ExtractVikingEventFields(c)
	require.Len(t, members, 2)

	assert.Equal(t, "101", members[0].ScoutID)
	assert.Equal(t, "3", members[0].VikingEventData["CampGroup"])
	assert.NotContains(t, members[0].VikingEventData, "unrelated")

	assert.Equal(t, "102", members[1].ScoutID)
	assert.Nil(t, members[1].VikingEventData)
}

func yp(first, last, group string) EventMember {
	m := EventMember{FirstName: first, LastName: last, PersonType: PersonTypeYoungPeople}
	if group != "" {
		m.VikingEventData = map[string]any{FieldCampGroup: group}
	}
	return m
}

func TestOrganizeByCampGroup(t *testing.T) {
	members := []EventMember{
		yp("Zara", "Young", "2"),
		yp("Alice", "Archer", "1"),
		yp("Ben", "Brown", "1"),
		yp("Cara", "Cole", ""),
		{FirstName: "Lead", LastName: "Er", PersonType: PersonTypeLeaders},
		{FirstName: "Young", LastName: "Leader", PersonType: PersonTypeYoungLeaders},
	}

	got := OrganizeByCampGroup(members)

	assert.Equal(t, []string{"Group 1", "Group 2", UnassignedGroupName}, got.Order)
	require.Len(t, got.Groups["Group 1"].Members, 2)
	assert.Equal(t, "Archer", got.Groups["Group 1"].Members[0].LastName)
	assert.Equal(t, "Brown", got.Groups["Group 1"].Members[1].LastName)

	assert.Equal(t, 3, got.Summary.TotalGroups)
	assert.Equal(t, 4, got.Summary.TotalMembers)
	assert.Equal(t, 4, got.Summary.TotalYoungPeople)
	assert.Equal(t, 2, got.Summary.TotalLeaders)
	assert.True(t, got.Summary.HasUnassigned)
}

func TestOrganizeByCampGroupNumericOrder(t *testing.T) {
	members := []EventMember{
		yp("A", "A", "10"),
		yp("B", "B", "2"),
		yp("C", "C", "1"),
	}

	got := OrganizeByCampGroup(members)
	// Numeric ascending, not lexicographic (10 after 2).
	assert.Equal(t, []string{"Group 1", "Group 2", "Group 10"}, got.Order)
	assert.False(t, got.Summary.HasUnassigned)
}

func TestOrganizeByCampGroupNumericValueFromJSON(t *testing.T) {
	m := EventMember{
		FirstName: "A", LastName: "A", PersonType: PersonTypeYoungPeople,
		VikingEventData: map[string]any{FieldCampGroup: float64(4)},
	}

	got := OrganizeByCampGroup([]EventMember{m})
	assert.Equal(t, []string{"Group 4"}, got.Order)
	assert.Equal(t, "4", got.Groups["Group 4"].Number)
}

func TestOrganizeByCampGroupLeadersOnly(t *testing.T) {
	got := OrganizeByCampGroup([]EventMember{
		{PersonType: PersonTypeLeaders},
	})
	assert.Empty(t, got.Groups)
	assert.Equal(t, 1, got.Summary.TotalLeaders)
	assert.Zero(t, got.Summary.TotalYoungPeople)
}

func TestValidFieldID(t *testing.T) {
	cases := map[string]bool{
		"f_1":       true,
		"f_4728":    true,
		"f_":        false,
		"f_1a":      false,
		"firstname": false,
		"F_1":       false,
		"":          false,
	}
	for id, want := range cases {
		assert.Equal(t, want, ValidFieldID(id), id)
	}
}
