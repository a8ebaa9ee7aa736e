// Copyright (C) 2025 Vikings Event Management (dev@vikingeventmgmt.org.uk)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package osm

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vikings-eventmgmt/vikings-sync-go/internal/authgate"
	"github.com/vikings-eventmgmt/vikings-sync-go/pkg/logging"
)

// rateLimitInfoKey is the metadata property the backend proxy attaches
// to successful payloads. It is stripped before the payload is returned.
const rateLimitInfoKey = "_rateLimitInfo"

// maxBodyBytes bounds response reads; upstream payloads are small.
const maxBodyBytes = 8 << 20

// Normalizer turns raw HTTP responses into payloads or tagged errors.
// It owns the two session side effects of response handling: tripping
// the auth gate on 401/403 and latching the blocked flag when the body
// says the account is blocked.
type Normalizer struct {
	gate   *authgate.Gate
	block  *BlockTracker
	logger *logging.Logger
}

// NewNormalizer wires a normalizer. gate and block may not be nil; a
// nil logger falls back to the shared default.
func NewNormalizer(gate *authgate.Gate, block *BlockTracker, logger *logging.Logger) *Normalizer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Normalizer{gate: gate, block: block, logger: logger}
}

// Normalize consumes resp and returns the stripped JSON payload, or an
// *APIError classifying the failure. op names the operation for error
// tagging. The response body is always fully read and closed.
func (n *Normalizer) Normalize(op string, resp *http.Response) (json.RawMessage, error) {
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &APIError{
			Kind:       KindRateLimit,
			Status:     resp.StatusCode,
			RetryAfter: parseRetryAfter(body, resp.Header),
			Op:         op,
		}

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		n.gate.ObserveResponse(resp.StatusCode)
		return nil, &APIError{Kind: KindAuth, Status: resp.StatusCode, Op: op}

	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg := parseMessage(body)
		if isBlockedMessage(msg) || isBlockedMessage(string(body)) {
			n.block.SetBlocked()
			n.logger.Error("upstream reported account blocked", "op", op, "status", resp.StatusCode)
			return nil, &APIError{Kind: KindBlocked, Status: resp.StatusCode, Message: msg, Op: op}
		}
		return nil, &APIError{Kind: KindHTTP, Status: resp.StatusCode, Message: msg, Op: op}
	}

	if readErr != nil {
		return nil, &APIError{Kind: KindInvalidJSON, Op: op, Err: readErr}
	}
	payload, err := stripRateLimitInfo(body)
	if err != nil {
		return nil, &APIError{Kind: KindInvalidJSON, Op: op, Err: err}
	}
	return payload, nil
}

// stripRateLimitInfo removes the top-level _rateLimitInfo property.
// Non-object payloads (arrays, scalars) pass through untouched.
func stripRateLimitInfo(body []byte) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, io.ErrUnexpectedEOF
	}
	if trimmed[0] != '{' {
		if !json.Valid([]byte(trimmed)) {
			return nil, &json.SyntaxError{}
		}
		return json.RawMessage(trimmed), nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, err
	}
	if _, ok := obj[rateLimitInfoKey]; !ok {
		return json.RawMessage(trimmed), nil
	}
	delete(obj, rateLimitInfoKey)
	return json.Marshal(obj)
}

// parseRetryAfter extracts the retry hint from a 429 body, accepting
// both `rateLimitInfo.retryAfter` and `rateLimit.retryAfter`, and the
// standard Retry-After header as a fallback.
//
// The upstream sends seconds while the backend proxy has been seen
// sending milliseconds; values under 1000 are read as seconds, larger
// ones as milliseconds.
func parseRetryAfter(body []byte, header http.Header) time.Duration {
	var envelope struct {
		RateLimitInfo struct {
			RetryAfter json.Number `json:"retryAfter"`
		} `json:"rateLimitInfo"`
		RateLimit struct {
			RetryAfter json.Number `json:"retryAfter"`
		} `json:"rateLimit"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if d, ok := retryAfterDuration(envelope.RateLimitInfo.RetryAfter); ok {
			return d
		}
		if d, ok := retryAfterDuration(envelope.RateLimit.RetryAfter); ok {
			return d
		}
	}
	if v := header.Get("Retry-After"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return 0
}

func retryAfterDuration(n json.Number) (time.Duration, bool) {
	v, err := n.Float64()
	if err != nil || v <= 0 {
		return 0, false
	}
	if v < 1000 {
		return time.Duration(v * float64(time.Second)), true
	}
	return time.Duration(v * float64(time.Millisecond)), true
}

// parseMessage pulls a human message out of an error body. The proxy
// uses several envelope shapes; try the common ones.
func parseMessage(body []byte) string {
	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Status  string `json:"status"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Message != "" {
			return envelope.Message
		}
		if envelope.Error != "" {
			return envelope.Error
		}
		if envelope.Status != "" && envelope.Status != "error" {
			return envelope.Status
		}
	}
	return ""
}

func isBlockedMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "permanently blocked") || strings.Contains(lower, "blocked")
}
