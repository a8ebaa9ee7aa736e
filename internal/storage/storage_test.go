// Copyright (C) 2025 Vikings Event Management (dev@vikingeventmgmt.org.uk)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package storage

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBadgerStore_GetMissingReturnsDefault(t *testing.T) {
	s := openTestStore(t)

	def := json.RawMessage(`{}`)
	got := s.Get("viking_terms_offline", def)
	assert.Equal(t, def, got)

	assert.Nil(t, s.Get("absent", nil))
}

func TestBadgerStore_PutRoundTrip(t *testing.T) {
	s := openTestStore(t)

	ok := s.Put("viking_terms_offline", map[string]any{"49": []string{"T1"}})
	require.True(t, ok)

	var decoded map[string][]string
	require.True(t, GetJSON(s, "viking_terms_offline", &decoded))
	assert.Equal(t, []string{"T1"}, decoded["49"])
}

func TestBadgerStore_PutUnserialisableReturnsFalse(t *testing.T) {
	s := openTestStore(t)

	// Channels cannot be marshalled to JSON.
	ok := s.Put("bad", make(chan int))
	assert.False(t, ok)

	assert.Nil(t, s.Get("bad", nil))
}

func TestBadgerStore_Remove(t *testing.T) {
	s := openTestStore(t)

	require.True(t, s.Put("k", "v"))
	s.Remove("k")
	assert.Nil(t, s.Get("k", nil))

	// Removing an absent key is not an error.
	s.Remove("never-written")
}

func TestBadgerStore_KeysWithPrefix(t *testing.T) {
	s := openTestStore(t)

	require.True(t, s.Put("viking_flexi_lists_49_offline", 1))
	require.True(t, s.Put("viking_flexi_lists_50_offline", 2))
	require.True(t, s.Put("viking_terms_offline", 3))

	keys := s.KeysWithPrefix("viking_flexi_lists_")
	assert.Equal(t, []string{
		"viking_flexi_lists_49_offline",
		"viking_flexi_lists_50_offline",
	}, keys)

	assert.Empty(t, s.KeysWithPrefix("nothing_"))
}

func TestSessionStore_RoundTrip(t *testing.T) {
	s := NewSessionStore(nil)

	require.True(t, s.Put("user_info", map[string]string{"firstname": "Alice"}))
	var info map[string]string
	require.True(t, GetJSON(s, "user_info", &info))
	assert.Equal(t, "Alice", info["firstname"])

	s.Remove("user_info")
	assert.Nil(t, s.Get("user_info", nil))
}

func TestSessionStore_Clear(t *testing.T) {
	s := NewSessionStore(nil)
	s.Put("osm_blocked", true)
	s.Put("user_info", "x")

	s.Clear()
	assert.Nil(t, s.Get("osm_blocked", nil))
	assert.Empty(t, s.KeysWithPrefix(""))
}

func TestGetJSON_InvalidTargetReturnsFalse(t *testing.T) {
	s := NewSessionStore(nil)
	s.Put("n", 42)

	var str string
	assert.False(t, GetJSON(s, "n", &str))
	assert.Empty(t, str)
}
