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
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vikings-eventmgmt/vikings-sync-go/internal/authgate"
	"github.com/vikings-eventmgmt/vikings-sync-go/internal/cache"
	"github.com/vikings-eventmgmt/vikings-sync-go/internal/flexi"
	"github.com/vikings-eventmgmt/vikings-sync-go/internal/netprobe"
	"github.com/vikings-eventmgmt/vikings-sync-go/internal/notify"
	"github.com/vikings-eventmgmt/vikings-sync-go/internal/osm"
	"github.com/vikings-eventmgmt/vikings-sync-go/internal/queue"
	"github.com/vikings-eventmgmt/vikings-sync-go/internal/storage"
	"github.com/vikings-eventmgmt/vikings-sync-go/pkg/logging"
)

type fixture struct {
	svc      *Service
	server   *httptest.Server
	persist  *storage.SessionStore
	session  *storage.SessionStore
	probe    *netprobe.Static
	gate     *authgate.Gate
	token    atomic.Value
	requests atomic.Int64
	handlers map[string]http.HandlerFunc
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logging.New(logging.Config{Quiet: true})

	f := &fixture{
		persist:  storage.NewSessionStore(logger),
		session:  storage.NewSessionStore(logger),
		probe:    netprobe.NewStatic(true),
		handlers: map[string]http.HandlerFunc{},
	}
	f.token.Store("tok-1")

	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		if h, ok := f.handlers[r.URL.Path]; ok {
			h(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(f.server.Close)

	f.gate = authgate.New(notify.Nop{}, logger)
	block := osm.NewBlockTracker(f.session)
	norm := osm.NewNormalizer(f.gate, block, logger)
	tokenFn := func() string { return f.token.Load().(string) }
	client := osm.NewClient(osm.ClientConfig{
		BaseURL:    f.server.URL,
		Token:      tokenFn,
		Normalizer: norm,
		Logger:     logger,
	})
	q := queue.New(queue.Config{Gap: time.Millisecond, Block: block, Logger: logger})
	t.Cleanup(q.Close)

	layer := cache.New(cache.Layer{
		Persist: f.persist,
		Probe:   f.probe,
		Gate:    f.gate,
		Token:   tokenFn,
		Logger:  logger,
	})

	f.svc = NewService(ServiceConfig{
		Client:       client,
		Queue:        q,
		Cache:        layer,
		Persist:      f.persist,
		Session:      f.session,
		Probe:        f.probe,
		Gate:         f.gate,
		Token:        tokenFn,
		Logger:       logger,
		MemberPacing: time.Millisecond,
	})
	return f
}

func (f *fixture) respond(path, body string) {
	f.handlers[path] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func TestGetTermsFetchesAndCaches(t *testing.T) {
	f := newFixture(t)
	f.respond("/get-terms", `{"49":[{"termid":"T1","enddate":"2024-06-30","name":"Summer"}]}`)

	raw, source, err := f.svc.GetTerms(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, cache.SourceNetwork, source)

	parsed, err := ParseTerms(raw)
	require.NoError(t, err)
	require.Len(t, parsed["49"], 1)
	assert.Equal(t, "T1", parsed["49"][0].TermID)

	// Second read is served from cache without another request.
	before := f.requests.Load()
	_, source, err = f.svc.GetTerms(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, cache.SourceCache, source)
	assert.Equal(t, before, f.requests.Load())
}

func TestMostRecentTermSkipsInvalidEndDates(t *testing.T) {
	f := newFixture(t)
	f.respond("/get-terms", `{"49":[
		{"termid":"T1","enddate":"2024-06-30","name":"Summer"},
		{"termid":"T2","enddate":"not-a-date","name":"Broken"},
		{"termid":"T3","enddate":"2024-12-31","name":"Winter"}]}`)

	term, err := f.svc.MostRecentTerm(context.Background(), 49)
	require.NoError(t, err)
	assert.Equal(t, "T3", term.TermID)
}

func TestMostRecentTermNoUsableTerm(t *testing.T) {
	f := newFixture(t)
	f.respond("/get-terms", `{"49":[{"termid":"T1","enddate":"garbage"}]}`)

	_, err := f.svc.MostRecentTerm(context.Background(), 49)
	require.Error(t, err)
	assert.Equal(t, osm.KindValidation, osm.KindOf(err))
}

func TestGetSectionsNormalizes(t *testing.T) {
	f := newFixture(t)
	f.respond("/get-user-roles", `{
		"0": {"sectionid":"49","sectionname":"Cubs","section":"cubs","isDefault":"1"},
		"1": {"sectionid":50,"sectionname":"Scouts","section":"scouts"},
		"2": {"sectionname":"no id, dropped"},
		"meta": {"sectionid":"99","sectionname":"non-numeric key, skipped"}
	}`)

	sections, err := f.svc.GetSections(context.Background(), false)
	require.NoError(t, err)
	require.Len(t, sections, 2)
	assert.Equal(t, 49, sections[0].SectionID)
	assert.True(t, sections[0].IsDefault)
	assert.Equal(t, "Scouts", sections[1].Name)
}

func TestLegacySectionsKeyMigrated(t *testing.T) {
	f := newFixture(t)
	legacy := json.RawMessage(`{"0":{"sectionid":"7","sectionname":"Beavers"}}`)
	f.persist.Put(KeySectionsLegacy, legacy)

	// Re-running the constructor path performs the migration.
	f.svc.migrateLegacySections()
	migrated := f.persist.Get(KeySections, nil)
	assert.JSONEq(t, string(legacy), string(migrated))
}

func TestGetEventsReadsItems(t *testing.T) {
	f := newFixture(t)
	f.respond("/get-events", `{"items":[{"eventid":"E1","name":"Camp","termid":"T1","sectionid":49}]}`)

	events, err := f.svc.GetEvents(context.Background(), 49, "T1", false)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "E1", events[0].EventID)
	assert.Equal(t, "T1", events[0].TermID)
}

func TestGetEventAttendanceReadsItems(t *testing.T) {
	f := newFixture(t)
	f.respond("/get-event-attendance", `{"items":[{"scoutid":"42","eventid":"E1","attending":"Yes"}]}`)

	rows, err := f.svc.GetEventAttendance(context.Background(), 49, "E1", "T1", false)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Yes", rows[0].Attending)
}

func TestGetMembersGridFlattens(t *testing.T) {
	f := newFixture(t)
	f.respond("/get-members-grid", `{"data":{"members":[
		{"scoutid":"42","firstname":"Alice","lastname":"Archer","patrolid":3,"primary_contact_1__phone_1":"0123"},
		{"scoutid":"43","firstname":"Lead","lastname":"Er","patrolid":-2},
		{"firstname":"dropped, no scout id"}
	]}}`)

	members, err := f.svc.GetMembersGrid(context.Background(), 49, "T1", false)
	require.NoError(t, err)
	require.Len(t, members, 2)

	assert.Equal(t, flexi.PersonTypeYoungPeople, members[0].PersonType)
	assert.Equal(t, "0123", members[0].CustomFields["primary_contact_1__phone_1"])
	assert.Equal(t, flexi.PersonTypeLeaders, members[1].PersonType)

	// The transformed sequence, not the raw grid, is what got cached.
	cached := f.persist.Get(KeyMembersGrid(49, "T1"), nil)
	require.NotNil(t, cached)
	assert.Contains(t, string(cached), `"person_type"`)
	assert.NotContains(t, string(cached), `"data"`)
}

func TestGetListOfMembersDedupAcrossSections(t *testing.T) {
	f := newFixture(t)
	f.respond("/get-terms", `{
		"1":[{"termid":"T1","enddate":"2024-06-30"}],
		"2":[{"termid":"T2","enddate":"2024-06-30"}]}`)
	f.respond("/get-members-grid", `{"data":{"members":[
		{"scoutid":"42","firstname":"Alice","lastname":"Archer","patrolid":1}
	]}}`)

	sections := []Section{
		{SectionID: 1, Name: "Cubs"},
		{SectionID: 2, Name: "Scouts"},
	}
	members, err := f.svc.GetListOfMembers(context.Background(), sections)
	require.NoError(t, err)

	// Same scout in both sections collapses into one record naming
	// both sections.
	require.Len(t, members, 1)
	assert.ElementsMatch(t, []string{"Cubs", "Scouts"}, members[0].Sections)

	merged := f.persist.Get(KeyMembersMerged, nil)
	require.NotNil(t, merged)
}

func TestGetConsolidatedFlexiRecord(t *testing.T) {
	f := newFixture(t)
	f.respond("/get-flexi-structure", `{
		"extraid":"72758","sectionid":"49097","name":"Viking Event Mgmt","archived":"0",
		"config":"[{\"id\":\"f_1\",\"name\":\"CampGroup\"},{\"id\":\"f_2\",\"name\":\"SignedInBy\"}]",
		"structure":[]}`)
	f.respond("/get-single-flexi-record", `{
		"identifier":"scoutid",
		"items":[{"scoutid":"1809627","firstname":"Thea","f_1":1,"f_2":"Leader A"}]}`)

	got, err := f.svc.GetConsolidatedFlexiRecord(context.Background(), "72758", 49097, "T1", false)
	require.NoError(t, err)

	require.Len(t, got.Items, 1)
	row := got.Items[0]
	assert.Equal(t, float64(1), row["CampGroup"])
	assert.Equal(t, "Leader A", row["SignedInBy"])
	assert.Equal(t, float64(1), row["f_1"])
	assert.Equal(t, float64(1), row[flexi.OriginalValuePrefix+"f_1"])
	assert.Equal(t, "Leader A", row[flexi.OriginalValuePrefix+"f_2"])

	require.NotNil(t, got.Structure)
	assert.False(t, got.Structure.Archived)
	assert.Equal(t, "72758", got.Structure.FlexiRecordID)
	assert.Equal(t, "CampGroup", got.Structure.FieldMapping["f_1"].Name)
}

func TestUpdateFlexiFieldValidatesFieldID(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.UpdateFlexiField(context.Background(), 49, "42", "72758", "firstname", "x", "T1", "cubs")
	require.Error(t, err)
	assert.Equal(t, osm.KindValidation, osm.KindOf(err))
	// Nothing was dispatched.
	assert.Zero(t, f.requests.Load())
}

func TestUpdateFlexiFieldRefusedOffline(t *testing.T) {
	f := newFixture(t)
	f.probe.Set(false)

	_, err := f.svc.UpdateFlexiField(context.Background(), 49, "42", "72758", "f_1", "2", "T1", "cubs")
	assert.Equal(t, osm.KindOffline, osm.KindOf(err))
	assert.Zero(t, f.requests.Load())
}

func TestUpdateFlexiFieldRefusedWithoutToken(t *testing.T) {
	f := newFixture(t)
	f.token.Store("")

	_, err := f.svc.UpdateFlexiField(context.Background(), 49, "42", "72758", "f_1", "2", "T1", "cubs")
	assert.Equal(t, osm.KindNoToken, osm.KindOf(err))
}

func TestUpdateFlexiFieldRefusedWhenGateTripped(t *testing.T) {
	f := newFixture(t)
	f.gate.ObserveResponse(http.StatusUnauthorized)

	_, err := f.svc.UpdateFlexiField(context.Background(), 49, "42", "72758", "f_1", "2", "T1", "cubs")
	assert.Equal(t, osm.KindAuth, osm.KindOf(err))
}

func TestUpdateFlexiFieldDispatches(t *testing.T) {
	f := newFixture(t)
	var body map[string]any
	f.handlers["/update-flexi-record"] = func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}

	ack, err := f.svc.UpdateFlexiField(context.Background(), 49, "42", "72758", "f_1", "", "T1", "cubs")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(ack))
	assert.Equal(t, "", body["value"])
	assert.Equal(t, "f_1", body["columnid"])
}

func TestGetStartupDataSessionScoped(t *testing.T) {
	f := newFixture(t)
	f.respond("/get-startup-data", `{"globals":{"firstname":"Jo","lastname":"Leader","userid":"7"}}`)

	first, err := f.svc.GetStartupData(context.Background())
	require.NoError(t, err)
	assert.Contains(t, string(first), "Jo")

	// Second call hits the session store.
	before := f.requests.Load()
	_, err = f.svc.GetStartupData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before, f.requests.Load())

	// Persisted mirror survives a fresh session.
	f.session.Clear()
	f.probe.Set(false)
	offline, err := f.svc.GetStartupData(context.Background())
	require.NoError(t, err)
	assert.Contains(t, string(offline), "Jo")
}

func TestCurrentUserNameResolution(t *testing.T) {
	f := newFixture(t)

	// Session user info wins.
	f.session.Put(SessionKeyUserInfo, map[string]string{"firstname": "Sam", "lastname": "Scout"})
	assert.Equal(t, "Sam Scout", f.svc.CurrentUserName(context.Background()))

	// Falls back to startup globals.
	f.session.Remove(SessionKeyUserInfo)
	f.respond("/get-startup-data", `{"globals":{"firstname":"Jo","lastname":"Leader"}}`)
	assert.Equal(t, "Jo Leader", f.svc.CurrentUserName(context.Background()))

	// Finally the placeholder.
	f.session.Clear()
	f.probe.Set(false)
	f.persist.Remove(KeyStartupData)
	assert.Equal(t, UnknownUser, f.svc.CurrentUserName(context.Background()))
}

func TestSharedEventRoundTrip(t *testing.T) {
	f := newFixture(t)

	f.svc.PutSharedMetadata("E9", json.RawMessage(`{"ownerSection":49}`))
	f.svc.PutSharedAttendance("E9", 49, json.RawMessage(`[{"scoutid":"42","attending":"Yes"}]`))
	f.svc.PutSharedAttendance("E9", 50, json.RawMessage(`[{"scoutid":"7","attending":"No"}]`))

	shared := f.svc.GetSharedEvent("E9")
	require.NotNil(t, shared.Metadata)
	require.Len(t, shared.Attendance, 2)
	assert.Contains(t, string(shared.Attendance["49"]), "42")

	// Shared entries are stamped like every other cache write.
	_, ok := cache.CachedAt(shared.Metadata)
	assert.True(t, ok)
}
