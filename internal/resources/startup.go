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
	"strings"
)

// UnknownUser is the display-name fallback when neither the session
// nor the startup payload identifies the current user.
const UnknownUser = "Unknown User"

// GetStartupData returns the global user context. It is session
// scoped: served from the session store when present, fetched once
// otherwise, and mirrored to the persistent store for offline starts.
// Startup traffic runs outside the rate-limit queue and is therefore
// not ordered against queued resource reads.
func (s *Service) GetStartupData(ctx context.Context) (json.RawMessage, error) {
	if cached := s.session.Get(KeyStartupData, nil); cached != nil {
		return cached, nil
	}

	if s.token == nil || s.token() == "" || !s.probe.Online() || !s.gate.ShouldMakeUpstreamCall() {
		if persisted := s.persist.Get(KeyStartupData, nil); persisted != nil {
			return persisted, nil
		}
		return emptyObject, nil
	}

	payload, err := s.client.GetStartupData(ctx)
	if err != nil {
		if persisted := s.persist.Get(KeyStartupData, nil); persisted != nil {
			s.logger.Warn("startup data fetch failed, serving persisted copy", "error", err)
			return persisted, nil
		}
		return nil, err
	}
	s.session.Put(KeyStartupData, payload)
	s.persist.Put(KeyStartupData, payload)
	return payload, nil
}

type userInfo struct {
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
}

func (u userInfo) displayName() string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	return name
}

// CurrentUserName resolves the display name for attribution on
// writes: session user info first, then the startup payload's
// globals, finally the unknown placeholder.
func (s *Service) CurrentUserName(ctx context.Context) string {
	if raw := s.session.Get(SessionKeyUserInfo, nil); raw != nil {
		var info userInfo
		if err := json.Unmarshal(raw, &info); err == nil {
			if name := info.displayName(); name != "" {
				return name
			}
		}
	}

	startup, err := s.GetStartupData(ctx)
	if err == nil {
		var envelope struct {
			Globals userInfo `json:"globals"`
		}
		if err := json.Unmarshal(startup, &envelope); err == nil {
			if name := envelope.Globals.displayName(); name != "" {
				return name
			}
		}
	}
	return UnknownUser
}
