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
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/vikings-eventmgmt/vikings-sync-go/internal/cache"
	"github.com/vikings-eventmgmt/vikings-sync-go/internal/flexi"
	"github.com/vikings-eventmgmt/vikings-sync-go/internal/osm"
)

// FlexiListItem is one catalog entry: a flexible record available to
// a section.
type FlexiListItem struct {
	ExtraID string `json:"extraid"`
	Name    string `json:"name"`
}

// GetFlexiList returns the catalog of non-archived flexible records
// for one section.
func (s *Service) GetFlexiList(ctx context.Context, sectionID int, force bool) ([]FlexiListItem, error) {
	pol := cache.Policy{
		Kind:    "flexi-list",
		Key:     KeyFlexiLists(sectionID),
		TTL:     cache.TTLFlexiList,
		Default: emptyObject,
	}
	raw, _, err := s.cache.Read(ctx, pol, force, s.queued(func(ctx context.Context) (json.RawMessage, error) {
		return s.client.GetFlexiRecords(ctx, sectionID, false)
	}))
	if err != nil {
		return nil, err
	}
	var envelope struct {
		Items []FlexiListItem `json:"items"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		s.logger.Warn("flexi list payload unparseable", "section_id", sectionID, "error", err)
		return nil, nil
	}
	return envelope.Items, nil
}

// GetFlexiStructure returns the parsed schema document for one
// flexible record.
func (s *Service) GetFlexiStructure(ctx context.Context, flexiID string, sectionID int, termID string, force bool) (*flexi.Structure, error) {
	pol := cache.Policy{
		Kind:    "flexi-structure",
		Key:     KeyFlexiStructure(flexiID),
		TTL:     cache.TTLFlexiStructure,
		Default: emptyObject,
	}
	raw, _, err := s.cache.Read(ctx, pol, force, s.queued(func(ctx context.Context) (json.RawMessage, error) {
		return s.client.GetFlexiStructure(ctx, flexiID, sectionID, termID)
	}))
	if err != nil {
		return nil, err
	}
	var structure flexi.Structure
	if err := json.Unmarshal(raw, &structure); err != nil {
		return nil, &osm.APIError{Kind: osm.KindInvalidJSON, Op: "get-flexi-structure", Message: "structure payload unparseable", Err: osm.ErrInvalidJSON}
	}
	return &structure, nil
}

// GetFlexiData returns the row document for one flexible record
// scoped to (section, term).
func (s *Service) GetFlexiData(ctx context.Context, flexiID string, sectionID int, termID string, force bool) (*flexi.Data, error) {
	pol := cache.Policy{
		Kind:    "flexi-data",
		Key:     KeyFlexiData(flexiID, sectionID, termID),
		TTL:     cache.TTLFlexiData,
		Default: emptyObject,
	}
	raw, _, err := s.cache.Read(ctx, pol, force, s.queued(func(ctx context.Context) (json.RawMessage, error) {
		return s.client.GetSingleFlexiRecord(ctx, flexiID, sectionID, termID)
	}))
	if err != nil {
		return nil, err
	}
	var data flexi.Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, &osm.APIError{Kind: osm.KindInvalidJSON, Op: "get-flexi-data", Message: "data payload unparseable", Err: osm.ErrInvalidJSON}
	}
	return &data, nil
}

// GetConsolidatedFlexiRecord joins structure and data for one
// flexible record. The two reads run concurrently; actual network
// traffic still serialises through the rate-limit queue. Structure
// and data stay independently cached, there is no merged key, so
// invalidating one never strands the other.
func (s *Service) GetConsolidatedFlexiRecord(ctx context.Context, flexiID string, sectionID int, termID string, force bool) (*flexi.Consolidated, error) {
	var (
		structure *flexi.Structure
		data      *flexi.Data
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		structure, err = s.GetFlexiStructure(gctx, flexiID, sectionID, termID, force)
		return err
	})
	g.Go(func() error {
		var err error
		data, err = s.GetFlexiData(gctx, flexiID, sectionID, termID, force)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fields := flexi.ParseStructure(structure, s.logger.Slog())
	out := flexi.Transform(data, fields, s.clock())
	out.Structure = &flexi.StructureInfo{
		Name:          structure.Name,
		ExtraID:       structure.ExtraID,
		FlexiRecordID: structure.ExtraID,
		SectionID:     structure.SectionID,
		Archived:      structure.Archived == "1",
		SoftDeleted:   structure.SoftDeleted == "1",
		FieldMapping:  fields,
	}
	return out, nil
}

// UpdateFlexiField writes one cell of a flexible record. Strict write
// semantics: the call refuses up front when the token is absent, the
// probe reports offline or the auth gate is tripped, and the field id
// is validated before any dispatch. The raw upstream acknowledgement
// is returned for the caller to verify.
func (s *Service) UpdateFlexiField(ctx context.Context, sectionID int, scoutID, flexiID, fieldID, value, termID, sectionType string) (json.RawMessage, error) {
	const op = "update-flexi-field"
	if err := s.canWrite(op); err != nil {
		return nil, err
	}
	if !flexi.ValidFieldID(fieldID) {
		return nil, &osm.APIError{
			Kind:    osm.KindValidation,
			Op:      op,
			Message: "field id must match f_<digits>, got " + strconv.Quote(fieldID),
			Err:     osm.ErrValidation,
		}
	}

	ack, err := s.queue.Enqueue(ctx, func(ctx context.Context) (json.RawMessage, error) {
		return s.client.UpdateFlexiRecord(ctx, osm.UpdateFlexiRequest{
			SectionID:     sectionID,
			ScoutID:       scoutID,
			FlexiRecordID: flexiID,
			ColumnID:      fieldID,
			Value:         value,
			TermID:        termID,
			Section:       sectionType,
		})
	})
	if err != nil {
		return nil, err
	}
	return ack, nil
}

// RefreshFlexiRecord forces a re-read of one record's data after
// writes. Happy-path writes never invalidate implicitly, the explicit
// refresh is the only invalidation trigger.
func (s *Service) RefreshFlexiRecord(ctx context.Context, flexiID string, sectionID int, termID string) error {
	_, err := s.GetFlexiData(ctx, flexiID, sectionID, termID, true)
	return err
}
