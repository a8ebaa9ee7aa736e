// Copyright (C) 2025 Vikings Event Management (dev@vikingeventmgmt.org.uk)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package resources

import (
	"encoding/json"
	"strings"
)

// SharedEvent is the locally persisted view of a cross-section event:
// ownership metadata plus the per-section attendance payloads written
// by the host when sections share one event.
type SharedEvent struct {
	EventID    string                     `json:"eventId"`
	Metadata   json.RawMessage            `json:"metadata,omitempty"`
	Attendance map[string]json.RawMessage `json:"attendance,omitempty"`
}

// GetSharedEvent reads the shared-event entries for one event from
// the persistent store. This is a purely local read; shared entries
// are written by the host's sharing flow, the sync core only keeps
// them enumerable and offline-safe.
func (s *Service) GetSharedEvent(eventID string) *SharedEvent {
	out := &SharedEvent{EventID: eventID}
	out.Metadata = s.persist.Get(KeySharedMetadata(eventID), nil)

	prefix := "viking_shared_attendance_" + eventID + "_"
	for _, key := range s.persist.KeysWithPrefix(prefix) {
		payload := s.persist.Get(key, nil)
		if payload == nil {
			continue
		}
		sectionID := strings.TrimSuffix(strings.TrimPrefix(key, prefix), "_offline")
		if out.Attendance == nil {
			out.Attendance = make(map[string]json.RawMessage)
		}
		out.Attendance[sectionID] = payload
	}
	return out
}

// PutSharedAttendance persists one section's attendance payload for a
// shared event, stamped like every other cache entry.
func (s *Service) PutSharedAttendance(eventID string, sectionID int, payload json.RawMessage) bool {
	return s.cache.Write(KeySharedAttendance(eventID, sectionID), payload)
}

// PutSharedMetadata persists the ownership metadata for a shared
// event.
func (s *Service) PutSharedMetadata(eventID string, payload json.RawMessage) bool {
	return s.cache.Write(KeySharedMetadata(eventID), payload)
}
