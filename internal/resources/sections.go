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
	"strconv"
	"strings"

	"github.com/vikings-eventmgmt/vikings-sync-go/internal/cache"
)

// GetSections enumerates the user's sections from the user-roles
// payload. Entries persist indefinitely and are replaced wholesale on
// each successful enumeration.
func (s *Service) GetSections(ctx context.Context, force bool) ([]Section, error) {
	pol := cache.Policy{
		Kind:    "sections",
		Key:     KeySections,
		TTL:     cache.TTLSections,
		Default: emptyObject,
	}
	raw, _, err := s.cache.Read(ctx, pol, force, s.queued(func(ctx context.Context) (json.RawMessage, error) {
		return s.client.GetUserRoles(ctx)
	}))
	if err != nil {
		return nil, err
	}
	return s.normalizeSections(raw), nil
}

// normalizeSections turns the numerically-keyed user-roles object
// into Section values. Keys that do not parse as integers are
// skipped; rows without a usable section id are logged and dropped.
func (s *Service) normalizeSections(raw json.RawMessage) []Section {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		s.logger.Warn("sections payload is not an object", "error", err)
		return nil
	}

	keys := make([]string, 0, len(top))
	for key := range top {
		if strings.HasPrefix(key, "_") {
			continue
		}
		if _, err := strconv.Atoi(key); err != nil {
			continue
		}
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, _ := strconv.Atoi(keys[i])
		b, _ := strconv.Atoi(keys[j])
		return a < b
	})

	out := make([]Section, 0, len(keys))
	dropped := 0
	for _, key := range keys {
		var row map[string]any
		if err := json.Unmarshal(top[key], &row); err != nil {
			dropped++
			continue
		}
		id, ok := coerceInt(row["sectionid"])
		if !ok || id == 0 {
			dropped++
			continue
		}
		sec := Section{
			SectionID: id,
			Name:      coerceString(row["sectionname"]),
			Type:      coerceString(row["section"]),
		}
		if d, ok := row["isDefault"].(bool); ok {
			sec.IsDefault = d
		} else if coerceString(row["isDefault"]) == "1" {
			sec.IsDefault = true
		}
		if perms, ok := row["permissions"].(map[string]any); ok {
			sec.Permissions = perms
		}
		out = append(out, sec)
	}
	if dropped > 0 {
		s.logger.Warn("dropped section rows without a usable id", "dropped", dropped)
	}
	return out
}
