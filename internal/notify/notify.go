// Copyright (C) 2025 Vikings Event Management (dev@vikingeventmgmt.org.uk)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package notify is the user-visible message bus. The core publishes
// toast-worthy events here (auth expired, upstream blocked); the
// presentation layer subscribes and renders them however it likes.
package notify

import "sync"

// Severity of a notification, for presentation-layer styling.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification is a user-visible message.
type Notification struct {
	Severity Severity
	// Code identifies the event kind ("auth-expired", "upstream-blocked").
	Code string
	// Message is display-ready text.
	Message string
}

// Sink receives published notifications. Implementations must not
// block; the bus calls them synchronously.
type Sink interface {
	Publish(n Notification)
}

// Nop discards notifications. Useful in tests and headless runs.
type Nop struct{}

func (Nop) Publish(Notification) {}

// Bus is an in-process fan-out Sink. Safe for concurrent use.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Notification)
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]func(Notification))}
}

// Subscribe registers a callback for every future notification and
// returns an unsubscribe handle.
func (b *Bus) Subscribe(fn func(Notification)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish delivers n to every subscriber.
func (b *Bus) Publish(n Notification) {
	b.mu.RLock()
	fns := make([]func(Notification), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()
	for _, fn := range fns {
		fn(n)
	}
}

var _ Sink = (*Bus)(nil)
