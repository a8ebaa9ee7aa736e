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

	"github.com/vikings-eventmgmt/vikings-sync-go/internal/cache"
)

// GetEvents lists events for one (section, term).
func (s *Service) GetEvents(ctx context.Context, sectionID int, termID string, force bool) ([]Event, error) {
	pol := cache.Policy{
		Kind:    "events",
		Key:     KeyEvents(sectionID, termID),
		TTL:     cache.TTLEvents,
		Default: emptyObject,
	}
	raw, _, err := s.cache.Read(ctx, pol, force, s.queued(func(ctx context.Context) (json.RawMessage, error) {
		return s.client.GetEvents(ctx, sectionID, termID)
	}))
	if err != nil {
		return nil, err
	}
	var envelope struct {
		Items []Event `json:"items"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		s.logger.Warn("events payload unparseable", "section_id", sectionID, "error", err)
		return nil, nil
	}
	return envelope.Items, nil
}

// GetEventAttendance lists attendance rows for one event.
func (s *Service) GetEventAttendance(ctx context.Context, sectionID int, eventID, termID string, force bool) ([]AttendanceRecord, error) {
	pol := cache.Policy{
		Kind:    "attendance",
		Key:     KeyAttendance(sectionID, termID, eventID),
		TTL:     cache.TTLAttendance,
		Default: emptyObject,
	}
	raw, _, err := s.cache.Read(ctx, pol, force, s.queued(func(ctx context.Context) (json.RawMessage, error) {
		return s.client.GetEventAttendance(ctx, sectionID, eventID, termID)
	}))
	if err != nil {
		return nil, err
	}
	var envelope struct {
		Items []AttendanceRecord `json:"items"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		s.logger.Warn("attendance payload unparseable",
			"section_id", sectionID, "event_id", eventID, "error", err)
		return nil, nil
	}
	return envelope.Items, nil
}
