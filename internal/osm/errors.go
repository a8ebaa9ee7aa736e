// Copyright (C) 2025 Vikings Event Management (dev@vikingeventmgmt.org.uk)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package osm

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies upstream failures into a closed set. Callers
// branch on the kind rather than string-matching error messages.
type ErrorKind string

const (
	// KindRateLimit is an HTTP 429. RetryAfter carries the hint.
	KindRateLimit ErrorKind = "rate-limit"

	// KindAuth is an HTTP 401 or 403. The auth gate trips on it.
	KindAuth ErrorKind = "auth"

	// KindBlocked means upstream reported this account as blocked.
	// Session-sticky; no further calls are dispatched.
	KindBlocked ErrorKind = "blocked"

	// KindHTTP is any other non-2xx response.
	KindHTTP ErrorKind = "http"

	// KindInvalidJSON means the response body failed to parse.
	KindInvalidJSON ErrorKind = "invalid-json"

	// KindOffline means the network probe reports disconnected.
	KindOffline ErrorKind = "offline"

	// KindNoToken means no bearer token was supplied by the host.
	KindNoToken ErrorKind = "no-token"

	// KindValidation is a bad input caught before any dispatch.
	KindValidation ErrorKind = "validation"

	// KindCacheIO is a storage quota or serialisation failure.
	KindCacheIO ErrorKind = "cache-io"
)

// Sentinel values for errors.Is matching. An *APIError matches the
// sentinel of its kind.
var (
	ErrRateLimited = errors.New("upstream rate limited")
	ErrAuthFailed  = errors.New("upstream authentication failed")
	ErrBlocked     = errors.New("upstream access blocked")
	ErrOffline     = errors.New("network offline")
	ErrNoToken     = errors.New("no auth token")
	ErrValidation  = errors.New("invalid input")
	ErrInvalidJSON = errors.New("invalid json response")
)

// APIError is the structured error carried through the core. It
// replaces string-matching on exception messages with a tagged union.
type APIError struct {
	// Kind is the error classification.
	Kind ErrorKind

	// Status is the HTTP status code, when one was received.
	Status int

	// RetryAfter is the rate-limit hint, zero when absent.
	RetryAfter time.Duration

	// Message is the upstream-provided message, when one was parsed.
	Message string

	// Op names the operation for telemetry ("getTerms", "updateFlexiField").
	Op string

	// Err is the underlying cause, if any.
	Err error
}

func (e *APIError) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Message != "" {
		msg = msg + ": " + e.Message
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *APIError) Unwrap() error { return e.Err }

// Is maps each kind to its sentinel so callers can use errors.Is
// without caring about the concrete type.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.Kind == KindRateLimit
	case ErrAuthFailed:
		return e.Kind == KindAuth
	case ErrBlocked:
		return e.Kind == KindBlocked
	case ErrOffline:
		return e.Kind == KindOffline
	case ErrNoToken:
		return e.Kind == KindNoToken
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrInvalidJSON:
		return e.Kind == KindInvalidJSON
	}
	return false
}

// KindOf extracts the ErrorKind from err, or "" when err is not an
// *APIError anywhere in its chain.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// RetryAfterOf extracts the rate-limit hint from err, zero when absent.
func RetryAfterOf(err error) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}
	return 0
}
