// Copyright (C) 2025 Vikings Event Management (dev@vikingeventmgmt.org.uk)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package osm

import (
	"github.com/vikings-eventmgmt/vikings-sync-go/internal/storage"
)

// SessionBlockedKey is the session-store key holding the sticky
// "upstream blocked" flag.
const SessionBlockedKey = "osm_blocked"

// BlockTracker is the session-sticky blocked flag. Once set it stays
// set until the session store is cleared (process restart); every
// upstream dispatch path checks it first.
type BlockTracker struct {
	session storage.Store
}

// NewBlockTracker wraps the session store.
func NewBlockTracker(session storage.Store) *BlockTracker {
	return &BlockTracker{session: session}
}

// Blocked reports whether the flag is set.
func (b *BlockTracker) Blocked() bool {
	var blocked bool
	if !storage.GetJSON(b.session, SessionBlockedKey, &blocked) {
		return false
	}
	return blocked
}

// SetBlocked latches the flag. There is no unset; only a session
// restart clears it.
func (b *BlockTracker) SetBlocked() {
	b.session.Put(SessionBlockedKey, true)
}
