// Copyright (C) 2025 Vikings Event Management (dev@vikingeventmgmt.org.uk)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resources

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/vikings-eventmgmt/vikings-sync-go/internal/cache"
)

// canonical grid columns; everything else lands in CustomFields.
var memberKernelFields = map[string]bool{
	"scoutid":       true,
	"firstname":     true,
	"lastname":      true,
	"date_of_birth": true,
	"dob":           true,
	"sectionid":     true,
	"patrolid":      true,
}

// GetMembersGrid fetches and flattens the member grid for one
// (section, term). The transformed sequence, not the raw grid, is
// what lands in the cache: member reads dominate user-visible
// latency, so the expensive flattening happens once, at write time.
func (s *Service) GetMembersGrid(ctx context.Context, sectionID int, termID string, force bool) ([]Member, error) {
	pol := cache.Policy{
		Kind:    "members-grid",
		Key:     KeyMembersGrid(sectionID, termID),
		TTL:     cache.TTLMembersGrid,
		Default: json.RawMessage(`[]`),
	}
	raw, _, err := s.cache.Read(ctx, pol, force, func(ctx context.Context) (json.RawMessage, error) {
		grid, err := s.queue.Enqueue(ctx, func(ctx context.Context) (json.RawMessage, error) {
			return s.client.GetMembersGrid(ctx, sectionID, termID)
		})
		if err != nil {
			return nil, err
		}
		members := s.flattenGrid(grid, sectionID)
		payload, err := json.Marshal(members)
		if err != nil {
			return nil, err
		}
		return payload, nil
	})
	if err != nil {
		return nil, err
	}
	return decodeMembers(raw), nil
}

// decodeMembers accepts both the stamped {"items": [...]} wrapper and a
// bare array.
func decodeMembers(raw json.RawMessage) []Member {
	var wrapped struct {
		Items []Member `json:"items"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Items != nil {
		return wrapped.Items
	}
	var members []Member
	if err := json.Unmarshal(raw, &members); err == nil {
		return members
	}
	return nil
}

// flattenGrid maps the {data: {members: [...]}} envelope into the flat
// Member schema. Rows without a scout id are dropped.
func (s *Service) flattenGrid(raw json.RawMessage, sectionID int) []Member {
	var envelope struct {
		Data struct {
			Members []map[string]any `json:"members"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		s.logger.Warn("members grid payload unparseable", "section_id", sectionID, "error", err)
		return nil
	}

	out := make([]Member, 0, len(envelope.Data.Members))
	for _, row := range envelope.Data.Members {
		scoutID := coerceString(row["scoutid"])
		if scoutID == "" {
			continue
		}
		m := Member{
			ScoutID:   scoutID,
			FirstName: coerceString(row["firstname"]),
			LastName:  coerceString(row["lastname"]),
			SectionID: sectionID,
		}
		if dob := coerceString(row["date_of_birth"]); dob != "" {
			m.DateOfBirth = dob
		} else {
			m.DateOfBirth = coerceString(row["dob"])
		}
		if id, ok := coerceInt(row["sectionid"]); ok && id != 0 {
			m.SectionID = id
		}
		if pid, ok := coerceInt(row["patrolid"]); ok {
			m.PatrolID = pid
		}
		m.PersonType = PersonTypeFromPatrolID(m.PatrolID)

		for key, val := range row {
			if memberKernelFields[key] || val == nil {
				continue
			}
			if m.CustomFields == nil {
				m.CustomFields = make(map[string]any)
			}
			m.CustomFields[key] = val
		}
		out = append(out, m)
	}
	return out
}

// GetListOfMembers merges the grids of several sections into one
// deduplicated list. Sections are fetched sequentially with an
// inter-section pause; a member appearing in more than one section
// gets one output record whose section set names them all. The merged
// list is persisted for offline use.
func (s *Service) GetListOfMembers(ctx context.Context, sections []Section) ([]Member, error) {
	merged := make(map[string]*Member)
	order := make([]string, 0)

	for i, section := range sections {
		if i > 0 {
			select {
			case <-time.After(s.memberPacing):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		term, err := s.MostRecentTerm(ctx, section.SectionID)
		if err != nil {
			s.logger.Warn("skipping section with no usable term",
				"section_id", section.SectionID, "error", err)
			continue
		}
		members, err := s.GetMembersGrid(ctx, section.SectionID, term.TermID, false)
		if err != nil {
			s.logger.Warn("skipping section after grid failure",
				"section_id", section.SectionID, "error", err)
			continue
		}

		for j := range members {
			m := members[j]
			existing, seen := merged[m.ScoutID]
			if !seen {
				copied := m
				copied.Sections = nil
				merged[m.ScoutID] = &copied
				order = append(order, m.ScoutID)
				existing = merged[m.ScoutID]
			}
			if section.Name != "" && !existing.HasSection(section.Name) {
				existing.Sections = append(existing.Sections, section.Name)
				sort.Strings(existing.Sections)
			}
		}
	}

	out := make([]Member, 0, len(order))
	for _, id := range order {
		out = append(out, *merged[id])
	}

	if payload, err := json.Marshal(out); err == nil {
		s.cache.Write(KeyMembersMerged, payload)
	}
	return out, nil
}
