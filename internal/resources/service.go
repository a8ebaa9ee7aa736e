// Copyright (C) 2025 Vikings Event Management (dev@vikingeventmgmt.org.uk)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package resources is the public surface of the sync core. Every
// read composes the rate-limit queue, the response normalizer, the
// auth gate and the cache layer; every write pre-checks token,
// connectivity and gate state before dispatch.
package resources

import (
	"context"
	"encoding/json"
	"time"

	"github.com/vikings-eventmgmt/vikings-sync-go/internal/authgate"
	"github.com/vikings-eventmgmt/vikings-sync-go/internal/cache"
	"github.com/vikings-eventmgmt/vikings-sync-go/internal/netprobe"
	"github.com/vikings-eventmgmt/vikings-sync-go/internal/osm"
	"github.com/vikings-eventmgmt/vikings-sync-go/internal/queue"
	"github.com/vikings-eventmgmt/vikings-sync-go/internal/storage"
	"github.com/vikings-eventmgmt/vikings-sync-go/internal/telemetry"
	"github.com/vikings-eventmgmt/vikings-sync-go/pkg/logging"
)

// DefaultMemberPacing is the pause between per-section grid fetches
// in GetListOfMembers. Bursting the grid endpoint across sections is
// the quickest way to earn a 429.
const DefaultMemberPacing = 1200 * time.Millisecond

var emptyObject = json.RawMessage(`{}`)

// Service composes the sync core's collaborators behind the public
// resource operations.
type Service struct {
	client  *osm.Client
	queue   *queue.Queue
	cache   *cache.Layer
	persist storage.Store
	session *storage.SessionStore
	probe   netprobe.Probe
	gate    *authgate.Gate
	token   osm.TokenProvider
	logger  *logging.Logger
	sink    telemetry.Sink

	// memberPacing is injectable so tests do not sleep.
	memberPacing time.Duration

	clock func() time.Time
}

// ServiceConfig wires a Service. Client, Queue, Cache, Persist,
// Session, Probe, Gate and Token are required.
type ServiceConfig struct {
	Client  *osm.Client
	Queue   *queue.Queue
	Cache   *cache.Layer
	Persist storage.Store
	Session *storage.SessionStore
	Probe   netprobe.Probe
	Gate    *authgate.Gate
	Token   osm.TokenProvider
	Logger  *logging.Logger
	Sink    telemetry.Sink

	MemberPacing time.Duration
	Clock        func() time.Time
}

// NewService builds the resource API and migrates legacy keys.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Sink == nil {
		cfg.Sink = telemetry.Nop{}
	}
	if cfg.MemberPacing == 0 {
		cfg.MemberPacing = DefaultMemberPacing
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	s := &Service{
		client:       cfg.Client,
		queue:        cfg.Queue,
		cache:        cfg.Cache,
		persist:      cfg.Persist,
		session:      cfg.Session,
		probe:        cfg.Probe,
		gate:         cfg.Gate,
		token:        cfg.Token,
		logger:       cfg.Logger,
		sink:         cfg.Sink,
		memberPacing: cfg.MemberPacing,
		clock:        cfg.Clock,
	}
	s.migrateLegacySections()
	return s
}

// queued routes an upstream call through the rate-limit dispatcher.
func (s *Service) queued(task queue.Task) cache.FetchFunc {
	return func(ctx context.Context) (json.RawMessage, error) {
		return s.queue.Enqueue(ctx, task)
	}
}

// canWrite enforces the write preconditions: token present, online,
// gate healthy. Reads degrade; writes refuse.
func (s *Service) canWrite(op string) error {
	if s.token == nil || s.token() == "" {
		return &osm.APIError{Kind: osm.KindNoToken, Op: op, Message: "no token available", Err: osm.ErrNoToken}
	}
	if !s.probe.Online() {
		return &osm.APIError{Kind: osm.KindOffline, Op: op, Message: "network offline", Err: osm.ErrOffline}
	}
	if !s.gate.ShouldMakeUpstreamCall() {
		return &osm.APIError{Kind: osm.KindAuth, Op: op, Message: "auth gate tripped", Err: osm.ErrAuthFailed}
	}
	return nil
}

// migrateLegacySections copies the historic misspelled sections key
// to the canonical one. The legacy entry is left in place for older
// builds sharing the store.
func (s *Service) migrateLegacySections() {
	if raw := s.persist.Get(KeySections, nil); raw != nil {
		return
	}
	legacy := s.persist.Get(KeySectionsLegacy, nil)
	if legacy == nil {
		return
	}
	s.logger.Info("migrating legacy sections key", "from", KeySectionsLegacy, "to", KeySections)
	s.persist.Put(KeySections, legacy)
}
