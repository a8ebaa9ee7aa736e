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
	"strings"

	"github.com/vikings-eventmgmt/vikings-sync-go/internal/cache"
	"github.com/vikings-eventmgmt/vikings-sync-go/internal/osm"
)

// GetTerms returns the terms mapping for every section the user can
// see, via the cache decision procedure. The payload keeps its
// upstream shape, section id to term list, with the freshness stamp
// inline.
func (s *Service) GetTerms(ctx context.Context, force bool) (json.RawMessage, cache.Source, error) {
	pol := cache.Policy{
		Kind:    "terms",
		Key:     KeyTerms,
		TTL:     cache.TTLTerms,
		Default: emptyObject,
	}
	return s.cache.Read(ctx, pol, force, s.queued(func(ctx context.Context) (json.RawMessage, error) {
		return s.client.GetTerms(ctx)
	}))
}

// ParseTerms decodes a terms payload into the by-section mapping,
// skipping the stamp and any other non-section top-level keys.
func ParseTerms(raw json.RawMessage) (TermsBySection, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, err
	}
	out := make(TermsBySection, len(top))
	for key, val := range top {
		if strings.HasPrefix(key, "_") {
			continue
		}
		if _, err := strconv.Atoi(key); err != nil {
			continue
		}
		var terms []Term
		if err := json.Unmarshal(val, &terms); err != nil {
			continue
		}
		out[key] = terms
	}
	return out, nil
}

// MostRecentTerm picks the term with the latest valid end date for
// one section. Terms with unparseable end dates are skipped and
// logged once per call, not failed on.
func (s *Service) MostRecentTerm(ctx context.Context, sectionID int) (*Term, error) {
	raw, _, err := s.GetTerms(ctx, false)
	if err != nil {
		return nil, err
	}
	parsed, err := ParseTerms(raw)
	if err != nil {
		return nil, &osm.APIError{Kind: osm.KindInvalidJSON, Op: "most-recent-term", Message: "terms payload unparseable", Err: osm.ErrInvalidJSON}
	}

	terms := parsed[strconv.Itoa(sectionID)]
	var best *Term
	skipped := 0
	for i := range terms {
		end, ok := terms[i].endTime()
		if !ok {
			skipped++
			continue
		}
		if best == nil {
			best = &terms[i]
			continue
		}
		bestEnd, _ := best.endTime()
		if end.After(bestEnd) {
			best = &terms[i]
		}
	}
	if skipped > 0 {
		s.logger.Warn("skipped terms with invalid end dates",
			"section_id", sectionID, "skipped", skipped)
	}
	if best == nil {
		return nil, &osm.APIError{
			Kind:    osm.KindValidation,
			Op:      "most-recent-term",
			Message: "no usable term for section " + strconv.Itoa(sectionID),
			Err:     osm.ErrValidation,
		}
	}
	return best, nil
}
