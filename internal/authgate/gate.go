// Copyright (C) 2025 Vikings Event Management (dev@vikingeventmgmt.org.uk)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package authgate implements the session auth circuit breaker.
//
// Without the gate, every page transition re-attempts dozens of
// upstream calls after a session expires and surfaces a flood of error
// toasts. With it, the first 401/403 quiesces the system: reads keep
// serving cached data, writes fail fast, and exactly one notification
// reaches the user. The gate stays tripped until the host completes a
// re-authentication and calls Reset.
package authgate

import (
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/vikings-eventmgmt/vikings-sync-go/internal/notify"
	"github.com/vikings-eventmgmt/vikings-sync-go/pkg/logging"
)

// State of the gate.
//
//	HEALTHY ──[observe 401|403]──► TRIPPED
//	   ▲                              │
//	   └──────────[Reset]─────────────┘
type State int

const (
	// StateHealthy is the normal operating state.
	StateHealthy State = iota

	// StateTripped means an auth failure was observed this session.
	StateTripped
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateHealthy:
		return "HEALTHY"
	case StateTripped:
		return "TRIPPED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// ErrGateTripped is returned by callers that refuse work while the
// gate is tripped.
var ErrGateTripped = errors.New("auth gate is tripped")

// Result of observing a response status.
type Result string

const (
	// ResultOK means the status carried no auth failure.
	ResultOK Result = "ok"

	// ResultAuthFailed means the status was 401 or 403.
	ResultAuthFailed Result = "auth-failed"
)

// Gate tracks whether this session has observed an auth failure.
// One instance per process in production; tests inject fresh ones.
// Safe for concurrent use.
type Gate struct {
	mu       sync.RWMutex
	state    State
	notified bool

	sink   notify.Sink
	logger *logging.Logger

	// OnStateChange, when set, is called after every transition.
	OnStateChange func(from, to State)
}

// New creates a healthy gate. Nil sink and logger fall back to no-op
// and the shared default logger respectively.
func New(sink notify.Sink, logger *logging.Logger) *Gate {
	if sink == nil {
		sink = notify.Nop{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Gate{sink: sink, logger: logger}
}

// ShouldMakeUpstreamCall reports whether upstream dispatch is allowed.
func (g *Gate) ShouldMakeUpstreamCall() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state == StateHealthy
}

// HasFailed reports whether the gate has tripped this session.
func (g *Gate) HasFailed() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state == StateTripped
}

// State returns the current state.
func (g *Gate) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// ObserveResponse inspects an upstream HTTP status. A 401 or 403 trips
// the gate and publishes an auth-expired notification, at most once
// per session. Any other status is ResultOK.
func (g *Gate) ObserveResponse(status int) Result {
	if status != http.StatusUnauthorized && status != http.StatusForbidden {
		return ResultOK
	}

	g.mu.Lock()
	first := g.state == StateHealthy
	g.state = StateTripped
	doNotify := !g.notified
	g.notified = true
	g.mu.Unlock()

	if first {
		g.logger.Warn("auth gate tripped", "status", status)
		if g.OnStateChange != nil {
			g.OnStateChange(StateHealthy, StateTripped)
		}
	}
	if doNotify {
		g.sink.Publish(notify.Notification{
			Severity: notify.SeverityWarning,
			Code:     "auth-expired",
			Message:  "Your session has expired. Cached data is shown; sign in again to refresh.",
		})
	}
	return ResultAuthFailed
}

// Reset clears the tripped state. Called by the host after a
// successful re-authentication. The notification latch clears too, so
// a failure in the new session notifies again.
func (g *Gate) Reset() {
	g.mu.Lock()
	was := g.state
	g.state = StateHealthy
	g.notified = false
	g.mu.Unlock()

	if was == StateTripped {
		g.logger.Info("auth gate reset")
		if g.OnStateChange != nil {
			g.OnStateChange(StateTripped, StateHealthy)
		}
	}
}
