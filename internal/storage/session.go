// Copyright (C) 2025 Vikings Event Management (dev@vikingeventmgmt.org.uk)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package storage

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/vikings-eventmgmt/vikings-sync-go/pkg/logging"
)

// SessionStore is the session namespace: an in-memory Store whose
// contents live for the process only. It holds the user_info pair,
// the osm_blocked flag, and startup data.
type SessionStore struct {
	mu     sync.RWMutex
	data   map[string]json.RawMessage
	logger *logging.Logger
}

// NewSessionStore creates an empty session store. A nil logger falls
// back to the shared default logger.
func NewSessionStore(logger *logging.Logger) *SessionStore {
	if logger == nil {
		logger = logging.Default()
	}
	return &SessionStore{
		data:   make(map[string]json.RawMessage),
		logger: logger,
	}
}

// Get implements Store.
func (s *SessionStore) Get(key string, def json.RawMessage) json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.data[key]
	if !ok {
		return def
	}
	return raw
}

// Put implements Store.
func (s *SessionStore) Put(key string, value any) bool {
	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("session put failed", "key", key, "error", err)
		return false
	}
	s.mu.Lock()
	s.data[key] = data
	s.mu.Unlock()
	return true
}

// Remove implements Store.
func (s *SessionStore) Remove(key string) {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
}

// KeysWithPrefix implements Store.
func (s *SessionStore) KeysWithPrefix(prefix string) []string {
	s.mu.RLock()
	var keys []string
	for k := range s.data {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	s.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Clear drops every session entry. Called on app close / logout.
func (s *SessionStore) Clear() {
	s.mu.Lock()
	s.data = make(map[string]json.RawMessage)
	s.mu.Unlock()
}

var _ Store = (*SessionStore)(nil)
