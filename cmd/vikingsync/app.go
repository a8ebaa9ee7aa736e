// Copyright (C) 2025 Vikings Event Management (dev@vikingeventmgmt.org.uk)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"

	"github.com/vikings-eventmgmt/vikings-sync-go/internal/assignment"
	"github.com/vikings-eventmgmt/vikings-sync-go/internal/authgate"
	"github.com/vikings-eventmgmt/vikings-sync-go/internal/cache"
	"github.com/vikings-eventmgmt/vikings-sync-go/internal/config"
	"github.com/vikings-eventmgmt/vikings-sync-go/internal/netprobe"
	"github.com/vikings-eventmgmt/vikings-sync-go/internal/notify"
	"github.com/vikings-eventmgmt/vikings-sync-go/internal/osm"
	"github.com/vikings-eventmgmt/vikings-sync-go/internal/queue"
	"github.com/vikings-eventmgmt/vikings-sync-go/internal/resources"
	"github.com/vikings-eventmgmt/vikings-sync-go/internal/storage"
	"github.com/vikings-eventmgmt/vikings-sync-go/internal/telemetry"
	"github.com/vikings-eventmgmt/vikings-sync-go/pkg/logging"
)

// EnvToken is how the host hands the upstream bearer token to the
// CLI. The core treats it as a presence bit plus opaque value.
const EnvToken = "VIKING_OSM_TOKEN"

// app is one fully wired sync core instance.
type app struct {
	logger *logging.Logger
	store  *storage.BadgerStore
	sess   *storage.SessionStore
	probe  *netprobe.HTTPProbe
	gate   *authgate.Gate
	queue  *queue.Queue
	client *osm.Client
	cache  *cache.Layer
	res    *resources.Service
	assign *assignment.Service
	bus    *notify.Bus
}

// newApp wires every collaborator from the loaded configuration.
func newApp() (*app, error) {
	cfg := config.Global

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.Dir,
		Service: "vikingsync",
		JSON:    cfg.Logging.JSON,
	})
	telemetry.Init()
	sink := telemetry.NewLogSink(logger)

	storeCfg := storage.DefaultConfig()
	storeCfg.Path = cfg.Cache.Dir
	storeCfg.InMemory = cfg.Cache.InMemory
	storeCfg.Logger = logger
	storeCfg.Sink = sink
	store, err := storage.Open(storeCfg)
	if err != nil {
		return nil, fmt.Errorf("opening cache store: %w", err)
	}

	sess := storage.NewSessionStore(logger)
	bus := notify.NewBus()
	gate := authgate.New(bus, logger)
	block := osm.NewBlockTracker(sess)
	norm := osm.NewNormalizer(gate, block, logger)

	token := func() string { return os.Getenv(EnvToken) }

	client := osm.NewClient(osm.ClientConfig{
		BaseURL:    cfg.API.BaseURL,
		Token:      token,
		Normalizer: norm,
		Logger:     logger,
	})

	probe := netprobe.NewHTTPProbe(netprobe.HTTPProbeConfig{
		HealthURL: cfg.API.HealthURL,
		Interval:  cfg.API.ProbeInterval,
		Timeout:   cfg.API.Timeout,
		Logger:    logger,
	})
	probe.Start()

	q := queue.New(queue.Config{Block: block, Logger: logger})

	layer := cache.New(cache.Layer{
		Persist: store,
		Probe:   probe,
		Gate:    gate,
		Token:   token,
		Demo:    cfg.Demo,
		Logger:  logger,
		Sink:    sink,
	})

	res := resources.NewService(resources.ServiceConfig{
		Client:  client,
		Queue:   q,
		Cache:   layer,
		Persist: store,
		Session: sess,
		Probe:   probe,
		Gate:    gate,
		Token:   token,
		Logger:  logger,
		Sink:    sink,
	})

	assign := assignment.New(assignment.Config{
		Resources: res,
		Logger:    logger,
		Sink:      sink,
	})

	return &app{
		logger: logger,
		store:  store,
		sess:   sess,
		probe:  probe,
		gate:   gate,
		queue:  q,
		client: client,
		cache:  layer,
		res:    res,
		assign: assign,
		bus:    bus,
	}, nil
}

// close shuts the app down in dependency order.
func (a *app) close() {
	a.probe.Stop()
	a.queue.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing cache store", "error", err)
	}
	a.logger.Close()
}
