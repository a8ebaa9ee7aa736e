// Copyright (C) 2025 Vikings Event Management (dev@vikingeventmgmt.org.uk)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"encoding/json"
	"time"
)

// CachedAtKey is the timestamp property stamped onto every entry the
// core writes. Age = now - _cachedAt.
const CachedAtKey = "_cachedAt"

// itemsKey wraps non-object payloads (arrays) so the timestamp has a
// place to live.
const itemsKey = "items"

// Stamp returns payload with _cachedAt set to now in epoch
// milliseconds. Object payloads are stamped in place; array and scalar
// payloads are wrapped as {"items": payload, "_cachedAt": ...}.
func Stamp(payload json.RawMessage, now time.Time) (json.RawMessage, error) {
	ms := now.UnixMilli()

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err == nil && obj != nil {
		ts, err := json.Marshal(ms)
		if err != nil {
			return nil, err
		}
		obj[CachedAtKey] = ts
		return json.Marshal(obj)
	}

	wrapper := map[string]any{
		itemsKey:    json.RawMessage(payload),
		CachedAtKey: ms,
	}
	return json.Marshal(wrapper)
}

// CachedAt extracts the stamp from a stored entry. ok is false when
// the entry carries no timestamp (it was not written by the core).
func CachedAt(raw json.RawMessage) (time.Time, bool) {
	var envelope struct {
		CachedAt *int64 `json:"_cachedAt"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.CachedAt == nil {
		return time.Time{}, false
	}
	return time.UnixMilli(*envelope.CachedAt), true
}

// Valid reports whether the entry at raw is inside its TTL window.
// A zero TTL means indefinite: any stamped entry is valid.
func Valid(raw json.RawMessage, ttl time.Duration, now time.Time) bool {
	at, ok := CachedAt(raw)
	if !ok {
		return false
	}
	if ttl == 0 {
		return true
	}
	return now.Sub(at) < ttl
}
