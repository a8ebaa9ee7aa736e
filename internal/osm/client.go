// Copyright (C) 2025 Vikings Event Management (dev@vikingeventmgmt.org.uk)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package osm is the upstream client: request building against the
// backend proxy, response normalization into payloads or tagged
// errors, and the session-sticky blocked flag.
//
// The proxy fronts the membership/event service; this package sees
// only URL paths, request bodies, and response envelopes. Every
// request carries `Authorization: Bearer <token>`; when the token is
// absent the request is never made.
package osm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vikings-eventmgmt/vikings-sync-go/pkg/logging"
)

// TokenProvider returns the current bearer token, or "" when the host
// has not supplied one. The token is opaque to the core.
type TokenProvider func() string

// Client issues requests to the backend proxy.
type Client struct {
	baseURL string
	http    *http.Client
	token   TokenProvider
	norm    *Normalizer
	logger  *logging.Logger
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// BaseURL of the backend proxy, without trailing slash.
	BaseURL string

	// Token supplies the bearer token. Required.
	Token TokenProvider

	// Normalizer handles response classification. Required.
	Normalizer *Normalizer

	// HTTPClient overrides the default client (host platform default
	// timeout; the core imposes none of its own).
	HTTPClient *http.Client

	// Logger defaults to the shared logger.
	Logger *logging.Logger
}

// NewClient creates a Client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    cfg.HTTPClient,
		token:   cfg.Token,
		norm:    cfg.Normalizer,
		logger:  cfg.Logger,
	}
}

// Get issues a GET and returns the normalized payload.
func (c *Client) Get(ctx context.Context, op, path string, query url.Values) (json.RawMessage, error) {
	return c.do(ctx, op, http.MethodGet, path, query, nil)
}

// Post issues a POST with a JSON body and returns the normalized payload.
func (c *Client) Post(ctx context.Context, op, path string, body any) (json.RawMessage, error) {
	return c.do(ctx, op, http.MethodPost, path, nil, body)
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body any) (json.RawMessage, error) {
	token := ""
	if c.token != nil {
		token = c.token()
	}
	if token == "" {
		return nil, &APIError{Kind: KindNoToken, Op: op}
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, &APIError{Kind: KindValidation, Op: op, Err: err}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, &APIError{Kind: KindValidation, Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &APIError{Kind: KindHTTP, Op: op, Err: err}
	}
	payload, err := c.norm.Normalize(op, resp)
	c.logger.Debug("upstream call",
		"op", op, "method", method, "path", path,
		"status", resp.StatusCode, "duration_ms", time.Since(start).Milliseconds(),
		"ok", err == nil)
	return payload, err
}

// Endpoint surface --------------------------------------------------------

// UpdateFlexiRequest is the body of /update-flexi-record.
type UpdateFlexiRequest struct {
	SectionID     int    `json:"sectionid"`
	ScoutID       string `json:"scoutid"`
	FlexiRecordID string `json:"flexirecordid"`
	ColumnID      string `json:"columnid"`
	Value         string `json:"value"`
	TermID        string `json:"termid"`
	Section       string `json:"section"`
}

// GetTerms fetches `{sectionId: [{termid, enddate, name}]}`.
func (c *Client) GetTerms(ctx context.Context) (json.RawMessage, error) {
	return c.Get(ctx, "getTerms", "/get-terms", nil)
}

// GetUserRoles fetches the numerically-keyed section enumeration.
func (c *Client) GetUserRoles(ctx context.Context) (json.RawMessage, error) {
	return c.Get(ctx, "getSections", "/get-user-roles", nil)
}

// GetEvents fetches `{items: [Event]}` for a section and term.
func (c *Client) GetEvents(ctx context.Context, sectionID int, termID string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("sectionid", itoa(sectionID))
	q.Set("termid", termID)
	return c.Get(ctx, "getEvents", "/get-events", q)
}

// GetEventAttendance fetches `{items: [Attendance]}`.
func (c *Client) GetEventAttendance(ctx context.Context, sectionID int, eventID, termID string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("sectionid", itoa(sectionID))
	q.Set("termid", termID)
	q.Set("eventid", eventID)
	return c.Get(ctx, "getEventAttendance", "/get-event-attendance", q)
}

// GetMembersGrid fetches `{data: {members: [...]}}` via POST.
func (c *Client) GetMembersGrid(ctx context.Context, sectionID int, termID string) (json.RawMessage, error) {
	body := map[string]any{"section_id": sectionID, "term_id": termID}
	return c.Post(ctx, "getMembersGrid", "/get-members-grid", body)
}

// GetFlexiRecords fetches a section's flexible-record catalog.
func (c *Client) GetFlexiRecords(ctx context.Context, sectionID int, archived bool) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("sectionid", itoa(sectionID))
	if archived {
		q.Set("archived", "y")
	} else {
		q.Set("archived", "n")
	}
	return c.Get(ctx, "getFlexiList", "/get-flexi-records", q)
}

// GetSingleFlexiRecord fetches `{identifier, items: [...]}` row data.
func (c *Client) GetSingleFlexiRecord(ctx context.Context, flexiID string, sectionID int, termID string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("flexirecordid", flexiID)
	q.Set("sectionid", itoa(sectionID))
	q.Set("termid", termID)
	return c.Get(ctx, "getFlexiData", "/get-single-flexi-record", q)
}

// GetFlexiStructure fetches the schema document for a flexi record.
func (c *Client) GetFlexiStructure(ctx context.Context, flexiID string, sectionID int, termID string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("flexirecordid", flexiID)
	q.Set("sectionid", itoa(sectionID))
	q.Set("termid", termID)
	return c.Get(ctx, "getFlexiStructure", "/get-flexi-structure", q)
}

// GetStartupData fetches the global user context.
func (c *Client) GetStartupData(ctx context.Context) (json.RawMessage, error) {
	return c.Get(ctx, "getStartupData", "/get-startup-data", nil)
}

// UpdateFlexiRecord posts a single field update and returns the raw
// upstream acknowledgement. Callers verify the acknowledgement's
// success flags.
func (c *Client) UpdateFlexiRecord(ctx context.Context, req UpdateFlexiRequest) (json.RawMessage, error) {
	return c.Post(ctx, "updateFlexiField", "/update-flexi-record", req)
}

// Health probes the backend health endpoint. The body is free-form
// text; only reachability matters.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	resp.Body.Close()
	return nil
}

func itoa(n int) string { return strconv.Itoa(n) }
