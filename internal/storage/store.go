// Copyright (C) 2025 Vikings Event Management (dev@vikingeventmgmt.org.uk)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package storage provides the two namespaced JSON blob stores the
// cache layer is built on: a persistent store (BadgerDB, survives
// restarts) and a session store (in-memory, cleared on close).
//
// The adapter is deliberately failure-swallowing: Get returns the
// caller-supplied default on any failure, Put reports success as a
// bool, and neither ever returns an error. Decode failures are warned
// once per key per process so a corrupt entry doesn't flood the log.
package storage

import (
	"encoding/json"
)

// Store is the namespaced key-value surface used by the cache layer.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get reads the JSON blob at key. On a missing key, read failure,
	// or invalid JSON it returns def.
	Get(key string, def json.RawMessage) json.RawMessage

	// Put serialises value to JSON and writes it at key. Returns false
	// on serialisation or write failure; the failure is logged and
	// captured, never propagated.
	Put(key string, value any) bool

	// Remove deletes key. Missing keys are not an error.
	Remove(key string)

	// KeysWithPrefix lists stored keys beginning with prefix, sorted.
	KeysWithPrefix(prefix string) []string
}

// GetJSON reads key from s and decodes it into dest. Returns false
// when the key is absent or does not decode; dest is untouched then.
func GetJSON(s Store, key string, dest any) bool {
	raw := s.Get(key, nil)
	if raw == nil {
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false
	}
	return true
}
