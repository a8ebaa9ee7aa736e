// Copyright (C) 2025 Vikings Event Management (dev@vikingeventmgmt.org.uk)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package telemetry

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestInitIdempotent(t *testing.T) {
	Init()
	// A second call must not panic with duplicate registration.
	Init()
}

func TestLogSinkCapture(t *testing.T) {
	Init()
	sink := NewLogSink(nil)

	before := testutil.ToFloat64(ErrorsTotal.WithLabelValues("move-camp-group", "auth-failed"))
	sink.Capture(errors.New("token rejected"),
		map[string]string{"op": "move-camp-group", "kind": "auth-failed"},
		map[string]any{"member_id": 42})
	after := testutil.ToFloat64(ErrorsTotal.WithLabelValues("move-camp-group", "auth-failed"))
	assert.Equal(t, before+1, after)
}

func TestLogSinkIgnoresNilError(t *testing.T) {
	Init()
	sink := NewLogSink(nil)

	before := testutil.ToFloat64(ErrorsTotal.WithLabelValues("", ""))
	sink.Capture(nil, nil, nil)
	after := testutil.ToFloat64(ErrorsTotal.WithLabelValues("", ""))
	assert.Equal(t, before, after)
}
