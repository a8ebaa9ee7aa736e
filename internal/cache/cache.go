// Copyright (C) 2025 Vikings Event Management (dev@vikingeventmgmt.org.uk)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cache implements the per-kind TTL read path all resources
// share. One decision procedure, parameterised by key, TTL, and
// default, decides between serve-cache, fetch-and-cache, and
// serve-cache-as-fallback:
//
//	if demoMode:                       serve the demo entry
//	if no token:                       serve cache or the empty default
//	if offline:                        serve cache or the empty default
//	if !force and entry within TTL:    serve cache
//	if auth gate tripped:              serve cache or default (never error)
//	fetch via queue/normalizer:
//	    success: stamp, persist, serve
//	    failure: serve stale entry if one exists, else surface the error
//
// The cache layer owns every persisted entry: only it reads timestamps
// and decides invalidation. Error responses are never cached.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/vikings-eventmgmt/vikings-sync-go/internal/authgate"
	"github.com/vikings-eventmgmt/vikings-sync-go/internal/netprobe"
	"github.com/vikings-eventmgmt/vikings-sync-go/internal/osm"
	"github.com/vikings-eventmgmt/vikings-sync-go/internal/storage"
	"github.com/vikings-eventmgmt/vikings-sync-go/internal/telemetry"
	"github.com/vikings-eventmgmt/vikings-sync-go/pkg/logging"
)

// Per-kind TTL policy. Rationale lives with the numbers: terms and
// catalogs rarely change, attendance moves during live events.
const (
	TTLTerms          = 30 * time.Minute
	TTLSections       = 0 // indefinite; replaced on each successful enumeration
	TTLFlexiList      = 30 * time.Minute
	TTLFlexiStructure = 60 * time.Minute
	TTLFlexiData      = 5 * time.Minute
	TTLEvents         = 30 * time.Minute
	TTLAttendance     = 5 * time.Minute
	TTLMembersGrid    = 30 * time.Minute
)

// DemoPrefix namespaces the fixture entries served in demo mode.
const DemoPrefix = "demo_"

// Source says where a read was served from.
type Source string

const (
	SourceNetwork Source = "network"
	SourceCache   Source = "cache"
	SourceStale   Source = "stale-fallback"
	SourceDefault Source = "empty-default"
	SourceDemo    Source = "demo"
)

// Policy parameterises one read.
type Policy struct {
	// Kind labels the resource for metrics and telemetry tags.
	Kind string

	// Key is the storage key.
	Key string

	// TTL for freshness. Zero means indefinite.
	TTL time.Duration

	// Default is the empty-shaped payload served on degraded paths
	// when no entry exists. Usually `{}`.
	Default json.RawMessage
}

// FetchFunc performs the upstream call (already routed through the
// rate-limit queue) and returns the normalized payload.
type FetchFunc func(ctx context.Context) (json.RawMessage, error)

// Layer wires the decision procedure's collaborators.
type Layer struct {
	// Persist is the durable store holding the viking_* entries.
	Persist storage.Store

	// Probe supplies the online/offline signal.
	Probe netprobe.Probe

	// Gate is the session auth circuit breaker.
	Gate *authgate.Gate

	// Token reports whether the host has supplied a bearer token.
	Token osm.TokenProvider

	// Demo pins all reads to demo fixtures; no network.
	Demo bool

	// Clock is injectable for tests. Defaults to time.Now.
	Clock func() time.Time

	Logger *logging.Logger
	Sink   telemetry.Sink
}

// New creates a Layer with defaults filled in.
func New(l Layer) *Layer {
	if l.Clock == nil {
		l.Clock = time.Now
	}
	if l.Logger == nil {
		l.Logger = logging.Default()
	}
	if l.Sink == nil {
		l.Sink = telemetry.Nop{}
	}
	return &l
}

// Read runs the decision procedure for one resource read.
//
// The returned payload always carries the _cachedAt stamp, whether it
// came from the store or straight off the network. A nil error with
// SourceDefault means the degraded path served the empty default.
func (l *Layer) Read(ctx context.Context, pol Policy, force bool, fetch FetchFunc) (json.RawMessage, Source, error) {
	payload, source, err := l.read(ctx, pol, force, fetch)
	telemetry.CacheReads.WithLabelValues(pol.Kind, string(source)).Inc()
	return payload, source, err
}

func (l *Layer) read(ctx context.Context, pol Policy, force bool, fetch FetchFunc) (json.RawMessage, Source, error) {
	if l.Demo {
		return l.Persist.Get(DemoPrefix+pol.Key, pol.Default), SourceDemo, nil
	}

	if l.Token == nil || l.Token() == "" {
		return l.cachedOrDefault(pol, "no token")
	}

	if !l.Probe.Online() {
		return l.cachedOrDefault(pol, "offline")
	}

	if !force {
		if entry := l.Persist.Get(pol.Key, nil); entry != nil && Valid(entry, pol.TTL, l.Clock()) {
			return entry, SourceCache, nil
		}
	}

	if !l.Gate.ShouldMakeUpstreamCall() {
		// Never throw here: the gate has already told the user once.
		return l.cachedOrDefault(pol, "auth gate tripped")
	}

	payload, err := fetch(ctx)
	if err != nil {
		if entry := l.Persist.Get(pol.Key, nil); entry != nil {
			l.Logger.Warn("refresh failed, serving stale cache",
				"kind", pol.Kind, "key", pol.Key, "error", err)
			l.Sink.Capture(err,
				map[string]string{"op": pol.Kind, "kind": string(osm.KindOf(err)), "fallback": "stale"},
				map[string]any{"key": pol.Key})
			return entry, SourceStale, nil
		}
		l.Sink.Capture(err,
			map[string]string{"op": pol.Kind, "kind": string(osm.KindOf(err)), "fallback": "none"},
			map[string]any{"key": pol.Key})
		return nil, SourceNetwork, err
	}

	stamped, stampErr := Stamp(payload, l.Clock())
	if stampErr != nil {
		// Serve the fresh payload even if it cannot be persisted.
		l.Logger.Warn("cache stamp failed", "kind", pol.Kind, "error", stampErr)
		return payload, SourceNetwork, nil
	}
	l.Persist.Put(pol.Key, json.RawMessage(stamped))
	return stamped, SourceNetwork, nil
}

// Write stamps and persists a payload outside the read path. Used by
// the members-grid transform, which caches its output immediately.
func (l *Layer) Write(key string, payload json.RawMessage) bool {
	stamped, err := Stamp(payload, l.Clock())
	if err != nil {
		l.Logger.Warn("cache stamp failed", "key", key, "error", err)
		return false
	}
	return l.Persist.Put(key, json.RawMessage(stamped))
}

// Invalidate drops an entry so the next read refetches.
func (l *Layer) Invalidate(key string) {
	l.Persist.Remove(key)
}

func (l *Layer) cachedOrDefault(pol Policy, reason string) (json.RawMessage, Source, error) {
	if entry := l.Persist.Get(pol.Key, nil); entry != nil {
		l.Logger.Debug("serving cache", "kind", pol.Kind, "reason", reason)
		return entry, SourceCache, nil
	}
	l.Logger.Debug("serving empty default", "kind", pol.Kind, "reason", reason)
	return pol.Default, SourceDefault, nil
}
