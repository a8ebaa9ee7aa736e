// Copyright (C) 2025 Vikings Event Management (dev@vikingeventmgmt.org.uk)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package assignment

import (
	"context"
	"strings"
	"time"

	"github.com/vikings-eventmgmt/vikings-sync-go/internal/flexi"
	"github.com/vikings-eventmgmt/vikings-sync-go/internal/osm"
)

// vikingEventNameFragment identifies the flexible record the
// sign-in/out flow writes to, matched case-insensitively against the
// section's catalog.
const vikingEventNameFragment = "viking event"

// SignInOutResult reports a completed (or partially completed)
// sign-in/out sequence.
type SignInOutResult struct {
	Action        string   `json:"action"`
	MemberID      string   `json:"memberId"`
	SignedBy      string   `json:"signedBy"`
	When          string   `json:"when"`
	FieldsWritten []string `json:"fieldsWritten"`
}

// SignInOut records a member's arrival or departure at an event by
// writing the By/When pair of the Viking Event flexible record, and
// clears the opposite pair when it holds real values. Writes are
// sequenced with an inter-write pause. Cancellation is honoured
// before each write and before the final refresh; already-committed
// writes are not reverted.
func (s *Service) SignInOut(ctx context.Context, member flexi.EventMember, sectionID int, sectionType, action string) (*SignInOutResult, error) {
	const op = "sign-in-out"
	if action != ActionSignIn && action != ActionSignOut {
		return nil, &osm.APIError{
			Kind:    osm.KindValidation,
			Op:      op,
			Message: "action must be signin or signout, got " + action,
			Err:     osm.ErrValidation,
		}
	}

	user := s.res.CurrentUserName(ctx)

	term, err := s.res.MostRecentTerm(ctx, sectionID)
	if err != nil {
		return nil, err
	}

	record, fields, err := s.findVikingEventRecord(ctx, sectionID, term.TermID)
	if err != nil {
		return nil, err
	}

	byField, whenField, clearBy, clearWhen, err := resolveSignFields(fields, action)
	if err != nil {
		return nil, err
	}

	// Current row decides whether the opposite pair needs clearing.
	row := s.memberRow(ctx, record, sectionID, term.TermID, member.ScoutID)

	now := s.clock().UTC().Format(time.RFC3339)
	writes := []struct {
		fieldID string
		value   string
	}{
		{byField, user},
		{whenField, now},
	}
	if hasRealValue(row, fields, clearBy) || hasRealValue(row, fields, clearWhen) {
		writes = append(writes,
			struct {
				fieldID string
				value   string
			}{clearBy, ""},
			struct {
				fieldID string
				value   string
			}{clearWhen, ""},
		)
	}

	result := &SignInOutResult{
		Action:   action,
		MemberID: member.ScoutID,
		SignedBy: user,
		When:     now,
	}

	for i, w := range writes {
		if i > 0 {
			if err := s.pause(ctx); err != nil {
				return result, err
			}
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		ack, err := s.res.UpdateFlexiField(ctx, sectionID, member.ScoutID,
			record, w.fieldID, w.value, term.TermID, sectionType)
		if err == nil {
			err = ackError(op, ack)
		}
		if err != nil {
			s.logger.Warn("sign in/out write failed",
				"action", action, "member_id", member.ScoutID,
				"field_id", w.fieldID, "error", err)
			return result, err
		}
		result.FieldsWritten = append(result.FieldsWritten, w.fieldID)
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}
	if err := s.res.RefreshFlexiRecord(ctx, record, sectionID, term.TermID); err != nil {
		// The writes landed; a failed refresh only delays visibility.
		s.logger.Warn("post-write refresh failed",
			"flexi_id", record, "section_id", sectionID, "error", err)
	}

	s.logger.Info("sign in/out complete",
		"action", action, "member_id", member.ScoutID,
		"signed_by", user, "fields", len(result.FieldsWritten))
	return result, nil
}

// findVikingEventRecord locates the section's Viking Event flexible
// record and its parsed field map.
func (s *Service) findVikingEventRecord(ctx context.Context, sectionID int, termID string) (string, flexi.FieldMap, error) {
	const op = "sign-in-out"
	items, err := s.res.GetFlexiList(ctx, sectionID, false)
	if err != nil {
		return "", nil, err
	}
	var extraID string
	for _, item := range items {
		if strings.Contains(strings.ToLower(item.Name), vikingEventNameFragment) {
			extraID = item.ExtraID
			break
		}
	}
	if extraID == "" {
		return "", nil, &osm.APIError{
			Kind:    osm.KindValidation,
			Op:      op,
			Message: "no viking event flexible record found for this section",
			Err:     osm.ErrValidation,
		}
	}

	structure, err := s.res.GetFlexiStructure(ctx, extraID, sectionID, termID, false)
	if err != nil {
		return "", nil, err
	}
	return extraID, flexi.ParseStructure(structure, s.logger.Slog()), nil
}

// resolveSignFields maps the action to its write pair and the
// opposite pair to clear.
func resolveSignFields(fields flexi.FieldMap, action string) (byField, whenField, clearBy, clearWhen string, err error) {
	byName := make(map[string]string, len(fields))
	for id, meta := range fields {
		byName[meta.Name] = id
	}
	missing := func(name string) error {
		return &osm.APIError{
			Kind:    osm.KindValidation,
			Op:      "sign-in-out",
			Message: "viking event record has no " + name + " column",
			Err:     osm.ErrValidation,
		}
	}
	lookup := func(name string) (string, error) {
		id, ok := byName[name]
		if !ok {
			return "", missing(name)
		}
		return id, nil
	}

	if action == ActionSignIn {
		if byField, err = lookup(flexi.FieldSignedInBy); err != nil {
			return
		}
		if whenField, err = lookup(flexi.FieldSignedInWhen); err != nil {
			return
		}
		clearBy = byName[flexi.FieldSignedOutBy]
		clearWhen = byName[flexi.FieldSignedOutWhen]
		return
	}
	if byField, err = lookup(flexi.FieldSignedOutBy); err != nil {
		return
	}
	if whenField, err = lookup(flexi.FieldSignedOutWhen); err != nil {
		return
	}
	clearBy = byName[flexi.FieldSignedInBy]
	clearWhen = byName[flexi.FieldSignedInWhen]
	return
}

// memberRow fetches the member's current flexi row; nil when the data
// read fails or the member is absent, in which case no clearing
// happens.
func (s *Service) memberRow(ctx context.Context, flexiID string, sectionID int, termID, scoutID string) flexi.Row {
	data, err := s.res.GetFlexiData(ctx, flexiID, sectionID, termID, false)
	if err != nil || data == nil {
		return nil
	}
	for _, row := range data.Items {
		if id, ok := row["scoutid"]; ok {
			if str, ok := id.(string); ok && str == scoutID {
				return row
			}
		}
	}
	return nil
}

// placeholder values that do not count as a real sign-in/out entry.
func isPlaceholder(v string) bool {
	switch strings.TrimSpace(v) {
	case "", "-", "--", "n/a", "N/A":
		return true
	default:
		return false
	}
}

// hasRealValue reports whether the row holds a non-placeholder value
// for fieldID, checking both the id-keyed and the name-keyed copy.
func hasRealValue(row flexi.Row, fields flexi.FieldMap, fieldID string) bool {
	if row == nil || fieldID == "" {
		return false
	}
	if v, ok := row[fieldID].(string); ok && !isPlaceholder(v) {
		return true
	}
	if meta, ok := fields[fieldID]; ok && meta.Name != "" {
		if v, ok := row[meta.Name].(string); ok && !isPlaceholder(v) {
			return true
		}
	}
	return false
}
