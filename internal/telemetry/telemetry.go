// Copyright (C) 2025 Vikings Event Management (dev@vikingeventmgmt.org.uk)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package telemetry captures errors with tags and contexts, and exposes
// Prometheus metrics for the sync core's internals (queue depth, cache
// read sources, storage failures).
//
// The Sink interface is the host-facing extension point: production
// hosts may forward captures to an external error tracker; the default
// implementation logs structured entries and increments counters.
package telemetry

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vikings-eventmgmt/vikings-sync-go/pkg/logging"
)

// Sink receives captured errors. Implementations must be safe for
// concurrent use and must never panic; capture is best-effort.
type Sink interface {
	// Capture records err with identifying tags (operation, resource
	// kind, fallback-used) and free-form contexts.
	Capture(err error, tags map[string]string, contexts map[string]any)
}

// Nop discards all captures. Useful in tests.
type Nop struct{}

func (Nop) Capture(error, map[string]string, map[string]any) {}

// Metrics for the sync core. Registered once via Init.
var (
	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vikingsync_errors_total",
			Help: "Captured errors by operation and kind.",
		},
		[]string{"op", "kind"},
	)

	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vikingsync_queue_depth",
		Help: "Requests waiting in the rate-limit queue.",
	})

	QueueRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vikingsync_queue_requests_total",
		Help: "Cumulative requests dispatched through the queue.",
	})

	CacheReads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vikingsync_cache_reads_total",
			Help: "Cache layer reads by resource kind and serving source.",
		},
		[]string{"kind", "source"},
	)

	StorageWriteFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vikingsync_storage_write_failures_total",
		Help: "Storage adapter put failures (quota, serialisation).",
	})

	WriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vikingsync_write_duration_seconds",
			Help:    "Field-update write latencies by operation and outcome.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op", "outcome"},
	)
)

var initOnce sync.Once

// Init registers the core's collectors with the default registry.
// Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			ErrorsTotal,
			QueueDepth,
			QueueRequestsTotal,
			CacheReads,
			StorageWriteFailures,
			WriteDuration,
		)
	})
}

// Handler exposes the default registry for hosts that serve /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// LogSink is the default Sink: structured log entry per capture, with
// a correlation id, plus an ErrorsTotal increment.
type LogSink struct {
	logger *logging.Logger
}

// NewLogSink creates a LogSink. A nil logger falls back to the shared
// default logger.
func NewLogSink(logger *logging.Logger) *LogSink {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Capture(err error, tags map[string]string, contexts map[string]any) {
	if err == nil {
		return
	}
	op := tags["op"]
	kind := tags["kind"]
	ErrorsTotal.WithLabelValues(op, kind).Inc()

	args := []any{"event_id", uuid.NewString(), "error", err}
	for k, v := range tags {
		args = append(args, "tag_"+k, v)
	}
	for k, v := range contexts {
		args = append(args, k, v)
	}
	s.logger.Error("captured error", args...)
}
