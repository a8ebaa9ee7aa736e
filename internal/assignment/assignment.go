// Copyright (C) 2025 Vikings Event Management (dev@vikingeventmgmt.org.uk)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package assignment implements the user-facing mutation flows, camp
// group moves and event sign-in/out, on top of the resource API's
// single-field write. Writes are strict and sequenced; reads stay
// degradation tolerant.
package assignment

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vikings-eventmgmt/vikings-sync-go/internal/flexi"
	"github.com/vikings-eventmgmt/vikings-sync-go/internal/osm"
	"github.com/vikings-eventmgmt/vikings-sync-go/internal/resources"
	"github.com/vikings-eventmgmt/vikings-sync-go/internal/telemetry"
	"github.com/vikings-eventmgmt/vikings-sync-go/pkg/logging"
)

// DefaultWritePause spaces consecutive field writes inside one
// operation. Bursting update-flexi-record is the usual way a
// sign-in/out sequence earns a 429 mid-flight.
const DefaultWritePause = 800 * time.Millisecond

// Unassigned is the caller-facing name of the empty camp group.
const Unassigned = "Unassigned"

// Sign-in/out actions.
const (
	ActionSignIn  = "signin"
	ActionSignOut = "signout"
)

// Service runs assignment flows.
type Service struct {
	res      *resources.Service
	logger   *logging.Logger
	sink     telemetry.Sink
	validate *validator.Validate

	writePause time.Duration
	clock      func() time.Time
}

// Config wires a Service. Resources is required.
type Config struct {
	Resources *resources.Service
	Logger    *logging.Logger
	Sink      telemetry.Sink

	WritePause time.Duration
	Clock      func() time.Time
}

// New creates an assignment Service.
func New(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Sink == nil {
		cfg.Sink = telemetry.Nop{}
	}
	if cfg.WritePause == 0 {
		cfg.WritePause = DefaultWritePause
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	v := validator.New()
	_ = v.RegisterValidation("flexifield", func(fl validator.FieldLevel) bool {
		return flexi.ValidFieldID(fl.Field().String())
	})
	return &Service{
		res:        cfg.Resources,
		logger:     cfg.Logger,
		sink:       cfg.Sink,
		validate:   v,
		writePause: cfg.WritePause,
		clock:      cfg.Clock,
	}
}

// pause waits the inter-write gap, honouring cancellation.
func (s *Service) pause(ctx context.Context) error {
	select {
	case <-time.After(s.writePause):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ackError inspects an upstream acknowledgement for the known failure
// shapes. Upstream reports failure inside an HTTP 200 often enough
// that trusting the status code alone loses writes silently.
func ackError(op string, ack json.RawMessage) error {
	var body map[string]any
	if err := json.Unmarshal(ack, &body); err != nil {
		return &osm.APIError{Kind: osm.KindInvalidJSON, Op: op, Message: "acknowledgement unparseable", Err: osm.ErrInvalidJSON}
	}
	fail := func(field string) error {
		msg := "upstream acknowledgement reported failure (" + field + ")"
		if m, ok := body["error"].(string); ok && m != "" {
			msg = m
		} else if m, ok := body["message"].(string); ok && m != "" {
			msg = m
		}
		return &osm.APIError{Kind: osm.KindHTTP, Op: op, Message: msg}
	}
	if v, ok := body["ok"].(bool); ok && !v {
		return fail("ok")
	}
	if v, ok := body["status"].(string); ok && strings.EqualFold(v, "error") {
		return fail("status")
	}
	if v, ok := body["success"].(bool); ok && !v {
		return fail("success")
	}
	return nil
}
