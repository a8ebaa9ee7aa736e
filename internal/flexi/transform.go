// Copyright (C) 2025 Vikings Event Management (dev@vikingeventmgmt.org.uk)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package flexi

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"time"
)

// OriginalValuePrefix guards auditability: every mapped field value a
// row carries is also preserved under this prefix plus the field id,
// so later edits to the named copy never lose the upstream value.
const OriginalValuePrefix = "_original_"

// ParseStructure builds the field map for one structure document.
//
// Two sources are merged: the serialized Config table (ids, names,
// widths) and the structure rows (names, editable, formatter). Where
// both name a field, the structure row's name wins. A malformed
// Config string is logged and ignored rather than failing the parse,
// since structure rows alone are usually sufficient.
func ParseStructure(s *Structure, logger *slog.Logger) FieldMap {
	fields := make(FieldMap)
	if s == nil {
		return fields
	}

	if s.Config != "" {
		var entries []configEntry
		if err := json.Unmarshal([]byte(s.Config), &entries); err != nil {
			if logger != nil {
				logger.Warn("flexi structure config unparseable, using structure rows only",
					"extra_id", s.ExtraID, "error", err)
			}
		} else {
			for _, e := range entries {
				if !ValidFieldID(e.ID) {
					continue
				}
				fields[e.ID] = FieldMeta{
					FieldID: e.ID,
					Name:    e.Name,
					Width:   e.Width,
				}
			}
		}
	}

	for _, block := range s.Structure {
		for _, row := range block.Rows {
			if !ValidFieldID(row.Field) {
				continue
			}
			meta := fields[row.Field]
			meta.FieldID = row.Field
			if row.Name != "" {
				meta.Name = row.Name
			}
			if row.Width != "" {
				meta.Width = row.Width
			}
			meta.Editable = bool(row.Editable)
			if row.Formatter != "" {
				meta.Formatter = row.Formatter
			}
			fields[row.Field] = meta
		}
	}

	return fields
}

// Transform joins row data with a field map: each row gains a copy of
// every f_<n> value under its human name and under _original_<id>,
// with the id-keyed entry left in place. A pre-existing value at the
// human name is overwritten by the field value. Rows are cloned, the
// input is never mutated. Fields absent from the map stay id-keyed
// only.
func Transform(data *Data, fields FieldMap, now time.Time) *Consolidated {
	out := &Consolidated{
		FieldMapping: fields,
		Metadata: TransformMeta{
			OriginalFieldCount: len(fields),
			TransformedAt:      now.UTC().Format(time.RFC3339),
		},
	}
	if data == nil {
		out.Items = []Row{}
		return out
	}
	out.Identifier = data.Identifier
	out.Items = make([]Row, 0, len(data.Items))

	for _, item := range data.Items {
		row := make(Row, len(item)+len(fields))
		for k, v := range item {
			row[k] = v
		}
		for fieldID, meta := range fields {
			if meta.Name == "" {
				continue
			}
			value, ok := row[fieldID]
			if !ok {
				continue
			}
			row[OriginalValuePrefix+fieldID] = value
			row[meta.Name] = value
		}
		out.Items = append(out.Items, row)
	}

	out.Metadata.TotalItems = len(out.Items)
	return out
}

// vikingEventFields are the per-event columns the sign-in/out and
// camp-group flows care about.
var vikingEventFields = []string{
	FieldCampGroup,
	FieldSignedInBy,
	FieldSignedInWhen,
	FieldSignedOutBy,
	FieldSignedOutWhen,
}

// ExtractVikingEventFields projects each consolidated row down to the
// member identity plus the Viking-Event columns. Missing columns are
// simply absent from the projection.
func ExtractVikingEventFields(c *Consolidated) []EventMember {
	if c == nil {
		return nil
	}
	members := make([]EventMember, 0, len(c.Items))
	for _, row := range c.Items {
		m := EventMember{
			ScoutID:    stringField(row, "scoutid"),
			FirstName:  stringField(row, "firstname"),
			LastName:   stringField(row, "lastname"),
			PersonType: personTypeFromRow(row),
		}
		data := make(map[string]any)
		for _, name := range vikingEventFields {
			if v, ok := row[name]; ok {
				data[name] = v
			}
		}
		if len(data) > 0 {
			m.VikingEventData = data
		}
		members = append(members, m)
	}
	return members
}

// personTypeFromRow prefers an explicit person_type column and falls
// back to the reserved patrol ids (-2 leaders, -3 young leaders).
func personTypeFromRow(row Row) string {
	if v := stringField(row, "person_type"); v != "" {
		return v
	}
	switch stringField(row, "patrolid") {
	case "-2":
		return PersonTypeLeaders
	case "-3":
		return PersonTypeYoungLeaders
	default:
		return PersonTypeYoungPeople
	}
}

func stringField(row Row, key string) string {
	v, ok := row[key]
	if !ok || v == nil {
		return ""
	}
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
	default:
		return ""
	}
}
