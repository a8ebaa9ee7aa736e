// Copyright (C) 2025 Vikings Event Management (dev@vikingeventmgmt.org.uk)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vikings-eventmgmt/vikings-sync-go/internal/authgate"
	"github.com/vikings-eventmgmt/vikings-sync-go/internal/netprobe"
	"github.com/vikings-eventmgmt/vikings-sync-go/internal/osm"
	"github.com/vikings-eventmgmt/vikings-sync-go/internal/storage"
)

type fixture struct {
	layer *Layer
	store *storage.SessionStore
	probe *netprobe.Static
	gate  *authgate.Gate
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: storage.NewSessionStore(nil),
		probe: netprobe.NewStatic(true),
		gate:  authgate.New(nil, nil),
		now:   time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.layer = New(Layer{
		Persist: f.store,
		Probe:   f.probe,
		Gate:    f.gate,
		Token:   func() string { return "token" },
		Clock:   func() time.Time { return f.now },
	})
	return f
}

func termsPolicy() Policy {
	return Policy{
		Kind:    "terms",
		Key:     "viking_terms_offline",
		TTL:     TTLTerms,
		Default: json.RawMessage(`{}`),
	}
}

func staticFetch(payload string) FetchFunc {
	return func(ctx context.Context) (json.RawMessage, error) {
		return json.RawMessage(payload), nil
	}
}

func failingFetch(err error) FetchFunc {
	return func(ctx context.Context) (json.RawMessage, error) {
		return nil, err
	}
}

func TestStamp_ObjectPayload(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	stamped, err := Stamp(json.RawMessage(`{"49":[]}`), now)
	require.NoError(t, err)

	at, ok := CachedAt(stamped)
	require.True(t, ok)
	assert.Equal(t, now.UnixMilli(), at.UnixMilli())

	var obj map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(stamped, &obj))
	assert.Contains(t, obj, "49")
}

func TestStamp_ArrayPayloadWrapped(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	stamped, err := Stamp(json.RawMessage(`[{"scoutid":"1"}]`), now)
	require.NoError(t, err)

	var obj struct {
		Items    []map[string]string `json:"items"`
		CachedAt int64               `json:"_cachedAt"`
	}
	require.NoError(t, json.Unmarshal(stamped, &obj))
	assert.Len(t, obj.Items, 1)
	assert.Equal(t, now.UnixMilli(), obj.CachedAt)
}

func TestValid(t *testing.T) {
	now := time.Now()
	fresh, _ := Stamp(json.RawMessage(`{}`), now.Add(-10*time.Minute))
	stale, _ := Stamp(json.RawMessage(`{}`), now.Add(-45*time.Minute))

	assert.True(t, Valid(fresh, 30*time.Minute, now))
	assert.False(t, Valid(stale, 30*time.Minute, now))
	assert.True(t, Valid(stale, 0, now), "zero TTL means indefinite")
	assert.False(t, Valid(json.RawMessage(`{"no":"stamp"}`), 0, now))
}

func TestRead_FetchesAndStamps(t *testing.T) {
	f := newFixture(t)

	payload, source, err := f.layer.Read(context.Background(), termsPolicy(), false,
		staticFetch(`{"49":[{"termid":"T1"}]}`))
	require.NoError(t, err)
	assert.Equal(t, SourceNetwork, source)

	_, ok := CachedAt(payload)
	assert.True(t, ok, "network payload is stamped")

	stored := f.store.Get("viking_terms_offline", nil)
	require.NotNil(t, stored)
	assert.True(t, Valid(stored, TTLTerms, f.now))
}

func TestRead_ServesFreshCacheWithoutFetch(t *testing.T) {
	f := newFixture(t)
	pol := termsPolicy()

	_, _, err := f.layer.Read(context.Background(), pol, false, staticFetch(`{"49":[]}`))
	require.NoError(t, err)

	fetched := false
	payload, source, err := f.layer.Read(context.Background(), pol, false,
		func(ctx context.Context) (json.RawMessage, error) {
			fetched = true
			return nil, nil
		})
	require.NoError(t, err)
	assert.Equal(t, SourceCache, source)
	assert.False(t, fetched)

	var obj map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(payload, &obj))
	assert.Contains(t, obj, "49")
}

func TestRead_ForceRefreshBypassesFreshEntry(t *testing.T) {
	f := newFixture(t)
	pol := termsPolicy()

	_, _, err := f.layer.Read(context.Background(), pol, false, staticFetch(`{"old":1}`))
	require.NoError(t, err)

	payload, source, err := f.layer.Read(context.Background(), pol, true, staticFetch(`{"new":2}`))
	require.NoError(t, err)
	assert.Equal(t, SourceNetwork, source)
	assert.Contains(t, string(payload), `"new"`)
}

func TestRead_ExpiredEntryRefetches(t *testing.T) {
	f := newFixture(t)
	pol := termsPolicy()

	_, _, err := f.layer.Read(context.Background(), pol, false, staticFetch(`{"old":1}`))
	require.NoError(t, err)

	f.now = f.now.Add(TTLTerms + time.Minute)
	payload, source, err := f.layer.Read(context.Background(), pol, false, staticFetch(`{"new":2}`))
	require.NoError(t, err)
	assert.Equal(t, SourceNetwork, source)
	assert.Contains(t, string(payload), `"new"`)
}

func TestRead_OfflineServesCache(t *testing.T) {
	// Scenario S1: cached terms served offline, past TTL, no upstream call.
	f := newFixture(t)
	pol := termsPolicy()

	entry, _ := Stamp(json.RawMessage(`{"49":[{"termid":"T1","enddate":"2024-06-30","name":"Summer"}]}`),
		f.now.Add(-time.Hour))
	f.store.Put(pol.Key, json.RawMessage(entry))

	f.probe.Set(false)
	payload, source, err := f.layer.Read(context.Background(), pol, false,
		func(ctx context.Context) (json.RawMessage, error) {
			t.Fatal("no upstream call while offline")
			return nil, nil
		})
	require.NoError(t, err)
	assert.Equal(t, SourceCache, source)
	assert.Contains(t, string(payload), `"termid":"T1"`)

	at, ok := CachedAt(payload)
	require.True(t, ok)
	assert.Equal(t, f.now.Add(-time.Hour).UnixMilli(), at.UnixMilli())
}

func TestRead_OfflineNoEntryServesDefault(t *testing.T) {
	f := newFixture(t)
	f.probe.Set(false)

	payload, source, err := f.layer.Read(context.Background(), termsPolicy(), false,
		failingFetch(errors.New("unreachable")))
	require.NoError(t, err)
	assert.Equal(t, SourceDefault, source)
	assert.JSONEq(t, `{}`, string(payload))
}

func TestRead_NoTokenServesCacheOnly(t *testing.T) {
	f := newFixture(t)
	f.layer.Token = func() string { return "" }

	payload, source, err := f.layer.Read(context.Background(), termsPolicy(), false,
		func(ctx context.Context) (json.RawMessage, error) {
			t.Fatal("no upstream call without a token")
			return nil, nil
		})
	require.NoError(t, err)
	assert.Equal(t, SourceDefault, source)
	assert.JSONEq(t, `{}`, string(payload))
}

func TestRead_TrippedGateServesCacheNeverThrows(t *testing.T) {
	f := newFixture(t)
	pol := termsPolicy()

	_, _, err := f.layer.Read(context.Background(), pol, false, staticFetch(`{"49":[]}`))
	require.NoError(t, err)

	f.gate.ObserveResponse(401)
	f.now = f.now.Add(TTLTerms + time.Minute) // entry is stale, would normally refetch

	payload, source, err := f.layer.Read(context.Background(), pol, false,
		func(ctx context.Context) (json.RawMessage, error) {
			t.Fatal("no upstream call while gate is tripped")
			return nil, nil
		})
	require.NoError(t, err)
	assert.Equal(t, SourceCache, source)
	assert.Contains(t, string(payload), `"49"`)
}

func TestRead_FetchFailureServesStale(t *testing.T) {
	f := newFixture(t)
	pol := termsPolicy()

	_, _, err := f.layer.Read(context.Background(), pol, false, staticFetch(`{"49":[]}`))
	require.NoError(t, err)

	f.now = f.now.Add(TTLTerms + time.Minute)
	payload, source, err := f.layer.Read(context.Background(), pol, false,
		failingFetch(&osm.APIError{Kind: osm.KindHTTP, Status: 502}))
	require.NoError(t, err)
	assert.Equal(t, SourceStale, source)
	assert.Contains(t, string(payload), `"49"`)
}

func TestRead_FetchFailureNoEntrySurfaces(t *testing.T) {
	f := newFixture(t)

	wantErr := &osm.APIError{Kind: osm.KindHTTP, Status: 500}
	_, _, err := f.layer.Read(context.Background(), termsPolicy(), false, failingFetch(wantErr))
	require.Error(t, err)
	assert.Equal(t, osm.KindHTTP, osm.KindOf(err))

	// Invariant: error responses are never cached.
	assert.Nil(t, f.store.Get("viking_terms_offline", nil))
}

func TestRead_DemoModeServesDemoKey(t *testing.T) {
	f := newFixture(t)
	f.layer.Demo = true
	f.store.Put(DemoPrefix+"viking_terms_offline", map[string]any{"demo": true})

	payload, source, err := f.layer.Read(context.Background(), termsPolicy(), false,
		func(ctx context.Context) (json.RawMessage, error) {
			t.Fatal("no network in demo mode")
			return nil, nil
		})
	require.NoError(t, err)
	assert.Equal(t, SourceDemo, source)
	assert.Contains(t, string(payload), `"demo"`)
}

func TestRead_IndefiniteTTLServesAnyStampedEntry(t *testing.T) {
	f := newFixture(t)
	pol := Policy{Kind: "sections", Key: "viking_sections_offline", TTL: TTLSections, Default: json.RawMessage(`[]`)}

	_, _, err := f.layer.Read(context.Background(), pol, false, staticFetch(`{"0":{"sectionid":1}}`))
	require.NoError(t, err)

	f.now = f.now.Add(90 * 24 * time.Hour)
	_, source, err := f.layer.Read(context.Background(), pol, false,
		func(ctx context.Context) (json.RawMessage, error) {
			t.Fatal("indefinite entries never expire")
			return nil, nil
		})
	require.NoError(t, err)
	assert.Equal(t, SourceCache, source)
}

func TestWriteAndInvalidate(t *testing.T) {
	f := newFixture(t)

	require.True(t, f.layer.Write("viking_members_offline", json.RawMessage(`[{"scoutid":"42"}]`)))
	stored := f.store.Get("viking_members_offline", nil)
	require.NotNil(t, stored)
	_, ok := CachedAt(stored)
	assert.True(t, ok)

	f.layer.Invalidate("viking_members_offline")
	assert.Nil(t, f.store.Get("viking_members_offline", nil))
}

func TestRead_Idempotent(t *testing.T) {
	// Property 10: two reads without a network change yield equal
	// payloads modulo _cachedAt (here: exactly equal, same entry).
	f := newFixture(t)
	pol := termsPolicy()

	first, _, err := f.layer.Read(context.Background(), pol, false, staticFetch(`{"49":[]}`))
	require.NoError(t, err)
	second, _, err := f.layer.Read(context.Background(), pol, false, staticFetch(`{"won't":"run"}`))
	require.NoError(t, err)
	assert.JSONEq(t, string(first), string(second))
}
