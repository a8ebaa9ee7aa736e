// Copyright (C) 2025 Vikings Event Management (dev@vikingeventmgmt.org.uk)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package netprobe exposes the online/offline signal the cache layer
// consults before dispatching upstream calls.
package netprobe

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/vikings-eventmgmt/vikings-sync-go/pkg/logging"
)

// Probe reports current connectivity and supports change listeners.
type Probe interface {
	// Online returns the current state. Synchronous; never blocks on I/O.
	Online() bool

	// OnChange registers a listener invoked with the new state after
	// every transition. Returns an unsubscribe handle.
	OnChange(fn func(connected bool)) func()
}

// subscribers is the shared listener registry.
type subscribers struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(bool)
}

func newSubscribers() *subscribers {
	return &subscribers{subs: make(map[int]func(bool))}
}

func (s *subscribers) add(fn func(bool)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *subscribers) notify(connected bool) {
	s.mu.Lock()
	fns := make([]func(bool), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(connected)
	}
}

// Static is a fixed-state probe for tests and demo mode.
type Static struct {
	mu     sync.RWMutex
	online bool
	subs   *subscribers
}

// NewStatic creates a probe pinned to the given state.
func NewStatic(online bool) *Static {
	return &Static{online: online, subs: newSubscribers()}
}

func (p *Static) Online() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.online
}

func (p *Static) OnChange(fn func(bool)) func() {
	return p.subs.add(fn)
}

// Set flips the state, notifying listeners on transitions. Test hook.
func (p *Static) Set(online bool) {
	p.mu.Lock()
	changed := p.online != online
	p.online = online
	p.mu.Unlock()
	if changed {
		p.subs.notify(online)
	}
}

// HTTPProbe determines connectivity by polling the backend /health
// endpoint. Any received response counts as online; transport errors
// count as offline. If the probe cannot even be attempted (no URL
// configured), the state defaults to online so reads still try the
// network.
type HTTPProbe struct {
	url      string
	client   *http.Client
	interval time.Duration
	logger   *logging.Logger

	mu     sync.RWMutex
	online bool

	subs *subscribers
	stop chan struct{}
	done chan struct{}
}

// HTTPProbeConfig configures an HTTPProbe.
type HTTPProbeConfig struct {
	// HealthURL is the full URL of the backend health endpoint.
	HealthURL string

	// Interval between polls. Default: 30 seconds.
	Interval time.Duration

	// Timeout per probe request. Default: 5 seconds.
	Timeout time.Duration

	// Logger for state transitions. Defaults to the shared logger.
	Logger *logging.Logger
}

// NewHTTPProbe creates the probe and performs the initial synchronous
// check. Call Start to begin background polling and Stop to end it.
func NewHTTPProbe(cfg HTTPProbeConfig) *HTTPProbe {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	p := &HTTPProbe{
		url:      cfg.HealthURL,
		client:   &http.Client{Timeout: cfg.Timeout},
		interval: cfg.Interval,
		logger:   cfg.Logger,
		subs:     newSubscribers(),
	}
	p.online = p.check(context.Background())
	return p
}

func (p *HTTPProbe) Online() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.online
}

func (p *HTTPProbe) OnChange(fn func(bool)) func() {
	return p.subs.add(fn)
}

// Start begins background polling. Safe to call once.
func (p *HTTPProbe) Start() {
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.run()
}

// Stop halts polling and waits for the poller to exit.
func (p *HTTPProbe) Stop() {
	if p.stop == nil {
		return
	}
	close(p.stop)
	<-p.done
	p.stop = nil
}

func (p *HTTPProbe) run() {
	defer close(p.done)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.refresh()
		}
	}
}

func (p *HTTPProbe) refresh() {
	state := p.check(context.Background())

	p.mu.Lock()
	changed := p.online != state
	p.online = state
	p.mu.Unlock()

	if changed {
		p.logger.Info("connectivity changed", "online", state)
		p.subs.notify(state)
	}
}

func (p *HTTPProbe) check(ctx context.Context) bool {
	if p.url == "" {
		// Cannot probe; assume online so reads still try the network.
		return true
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		p.logger.Warn("health probe misconfigured", "url", p.url, "error", err)
		return true
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

var (
	_ Probe = (*Static)(nil)
	_ Probe = (*HTTPProbe)(nil)
)
