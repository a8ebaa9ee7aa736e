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
	"github.com/vikings-eventmgmt/vikings-sync-go/internal/telemetry"
)

// MoveContext identifies the flexi column a camp-group move writes
// to. ColumnID must be an f_<digits> id, checked before dispatch.
// Groups is the current organization; a move to a group it does not
// contain is rejected before anything is dispatched.
type MoveContext struct {
	FlexiRecordID string `validate:"required"`
	ColumnID      string `validate:"required,flexifield"`
	SectionID     int    `validate:"required"`
	TermID        string `validate:"required"`
	Section       string `validate:"required"`
	Groups        *flexi.CampGroups
}

// knownGroup reports whether target names an existing camp group,
// either by display name ("Group 2") or by bare number ("2").
func (m MoveContext) knownGroup(target string) bool {
	if m.Groups == nil {
		return false
	}
	if _, ok := m.Groups.Groups[target]; ok {
		return true
	}
	for _, g := range m.Groups.Groups {
		if g.Number == target || g.Name == target {
			return true
		}
	}
	return false
}

// MoveResult reports one camp-group move.
type MoveResult struct {
	MemberID  string        `json:"memberId"`
	FromGroup string        `json:"fromGroup"`
	ToGroup   string        `json:"toGroup"`
	Value     string        `json:"value"`
	Duration  time.Duration `json:"duration"`
}

// MoveCampGroup reassigns one young person to another camp group.
// Moving to Unassigned (or an empty target) clears the field. The
// upstream acknowledgement is verified; a failure shape inside an
// HTTP 200 fails the move and leaves the cache untouched.
func (s *Service) MoveCampGroup(ctx context.Context, member flexi.EventMember, fromGroup, toGroup string, mctx MoveContext) (*MoveResult, error) {
	const op = "move-camp-group"
	start := s.clock()

	if member.PersonType != flexi.PersonTypeYoungPeople {
		return nil, &osm.APIError{
			Kind:    osm.KindValidation,
			Op:      op,
			Message: "only young people can be assigned to camp groups",
			Err:     osm.ErrValidation,
		}
	}
	if err := s.validate.Struct(mctx); err != nil {
		return nil, &osm.APIError{Kind: osm.KindValidation, Op: op, Message: err.Error(), Err: osm.ErrValidation}
	}

	value := toGroup
	if value == "" || strings.EqualFold(value, Unassigned) ||
		strings.EqualFold(value, flexi.UnassignedGroupName) {
		value = ""
	}
	if value != "" && !mctx.knownGroup(toGroup) {
		return nil, &osm.APIError{
			Kind:    osm.KindValidation,
			Op:      op,
			Message: "target camp group " + toGroup + " does not exist",
			Err:     osm.ErrValidation,
		}
	}

	tags := map[string]string{
		"op":         op,
		"member_id":  member.ScoutID,
		"from_group": fromGroup,
		"to_group":   toGroup,
	}

	ack, err := s.res.UpdateFlexiField(ctx, mctx.SectionID, member.ScoutID,
		mctx.FlexiRecordID, mctx.ColumnID, value, mctx.TermID, mctx.Section)
	if err == nil {
		err = ackError(op, ack)
	}

	elapsed := s.clock().Sub(start)
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	telemetry.WriteDuration.WithLabelValues(op, outcome).Observe(elapsed.Seconds())

	if err != nil {
		s.sink.Capture(err, tags, map[string]any{"duration_ms": elapsed.Milliseconds()})
		s.logger.Warn("camp group move failed",
			"member_id", member.ScoutID, "from_group", fromGroup,
			"to_group", toGroup, "duration", elapsed, "error", err)
		return nil, err
	}

	s.logger.Info("camp group move complete",
		"member_id", member.ScoutID, "from_group", fromGroup,
		"to_group", toGroup, "duration", elapsed)
	return &MoveResult{
		MemberID:  member.ScoutID,
		FromGroup: fromGroup,
		ToGroup:   toGroup,
		Value:     value,
		Duration:  elapsed,
	}, nil
}
