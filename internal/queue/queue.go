// Copyright (C) 2025 Vikings Event Management (dev@vikingeventmgmt.org.uk)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package queue serializes upstream dispatch: strict FIFO, one request
// in flight, a minimum inter-task gap to smooth bursts, a global pause
// with a single retry on 429, and a session-sticky blocked state.
//
// Requests initiated outside the queue are not coordinated; the
// resource layer is responsible for routing through Enqueue.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vikings-eventmgmt/vikings-sync-go/internal/osm"
	"github.com/vikings-eventmgmt/vikings-sync-go/internal/telemetry"
	"github.com/vikings-eventmgmt/vikings-sync-go/pkg/logging"
)

// DefaultGap is the minimum spacing between dispatched tasks.
const DefaultGap = 200 * time.Millisecond

// ErrClosed is returned for tasks still pending when the queue shuts down.
var ErrClosed = errors.New("rate-limit queue closed")

// Task performs one upstream call and returns its payload.
type Task func(ctx context.Context) (json.RawMessage, error)

// State of the dispatcher, for diagnostics.
//
//	idle ──enqueue──► running ──429──► paused ──timer──► running
//	  any state ──blocked body──► blocked (terminal until restart)
type State int

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateBlocked
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Stats is a diagnostic snapshot.
type Stats struct {
	State         State
	QueueLength   int
	Processing    bool
	TotalRequests uint64
}

// Config configures a Queue.
type Config struct {
	// Gap is the minimum inter-task spacing. Default: DefaultGap.
	Gap time.Duration

	// Block is the session-sticky blocked flag. Required.
	Block *osm.BlockTracker

	// Logger defaults to the shared logger.
	Logger *logging.Logger
}

type item struct {
	ctx    context.Context
	task   Task
	result chan outcome
}

type outcome struct {
	payload json.RawMessage
	err     error
}

// Queue is the FIFO dispatcher. Create with New, shut down with Close.
type Queue struct {
	limiter *rate.Limiter
	block   *osm.BlockTracker
	logger  *logging.Logger

	mu         sync.Mutex
	items      []*item
	state      State
	processing bool
	total      uint64

	wake chan struct{}
	stop chan struct{}
	done chan struct{}
}

// New creates a Queue and starts its dispatcher.
func New(cfg Config) *Queue {
	if cfg.Gap <= 0 {
		cfg.Gap = DefaultGap
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	q := &Queue{
		limiter: rate.NewLimiter(rate.Every(cfg.Gap), 1),
		block:   cfg.Block,
		logger:  cfg.Logger,
		state:   StateIdle,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

// Enqueue appends task and blocks until it completes, the queue
// closes, or ctx is done. Tasks run one at a time in FIFO order.
// Fails immediately with a blocked error once the session is blocked.
func (q *Queue) Enqueue(ctx context.Context, task Task) (json.RawMessage, error) {
	if q.block.Blocked() {
		return nil, &osm.APIError{Kind: osm.KindBlocked, Message: "session blocked, not dispatching"}
	}

	it := &item{ctx: ctx, task: task, result: make(chan outcome, 1)}
	q.mu.Lock()
	q.items = append(q.items, it)
	depth := len(q.items)
	q.mu.Unlock()
	telemetry.QueueDepth.Set(float64(depth))

	select {
	case q.wake <- struct{}{}:
	default:
	}

	select {
	case out := <-it.result:
		return out.payload, out.err
	case <-ctx.Done():
		// The dispatcher notices the dead context when it reaches the
		// item and discards it.
		return nil, ctx.Err()
	}
}

// Stats returns a diagnostic snapshot.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	state := q.state
	if q.block != nil && q.block.Blocked() {
		state = StateBlocked
	}
	return Stats{
		State:         state,
		QueueLength:   len(q.items),
		Processing:    q.processing,
		TotalRequests: q.total,
	}
}

// Close stops the dispatcher. Pending tasks fail with ErrClosed.
func (q *Queue) Close() {
	close(q.stop)
	<-q.done

	q.mu.Lock()
	pending := q.items
	q.items = nil
	q.mu.Unlock()
	for _, it := range pending {
		it.result <- outcome{err: ErrClosed}
	}
	telemetry.QueueDepth.Set(0)
}

func (q *Queue) run() {
	defer close(q.done)
	for {
		it := q.pop()
		if it == nil {
			select {
			case <-q.wake:
				continue
			case <-q.stop:
				return
			}
		}
		q.dispatch(it)
	}
}

func (q *Queue) pop() *item {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		q.state = StateIdle
		return nil
	}
	it := q.items[0]
	q.items = q.items[1:]
	q.state = StateRunning
	telemetry.QueueDepth.Set(float64(len(q.items)))
	return it
}

func (q *Queue) dispatch(it *item) {
	if it.ctx.Err() != nil {
		it.result <- outcome{err: it.ctx.Err()}
		return
	}
	if q.block.Blocked() {
		q.setState(StateBlocked)
		it.result <- outcome{err: &osm.APIError{Kind: osm.KindBlocked, Message: "session blocked, not dispatching"}}
		return
	}

	if err := q.limiter.Wait(it.ctx); err != nil {
		it.result <- outcome{err: err}
		return
	}

	payload, err := q.execute(it)
	if err != nil {
		if hint := osm.RetryAfterOf(err); osm.KindOf(err) == osm.KindRateLimit && hint > 0 {
			payload, err = q.pauseAndRetry(it, hint)
		}
	}
	if osm.KindOf(err) == osm.KindBlocked {
		// The normalizer has latched the session flag; mirror it in
		// the dispatcher state for diagnostics.
		q.setState(StateBlocked)
	}
	it.result <- outcome{payload: payload, err: err}
}

func (q *Queue) execute(it *item) (json.RawMessage, error) {
	q.setProcessing(true)
	defer q.setProcessing(false)
	telemetry.QueueRequestsTotal.Inc()

	q.mu.Lock()
	q.total++
	q.mu.Unlock()

	return it.task(it.ctx)
}

// pauseAndRetry suspends global dispatch for the hinted duration, then
// retries the same task once. A second 429 surfaces to the caller.
func (q *Queue) pauseAndRetry(it *item, hint time.Duration) (json.RawMessage, error) {
	q.setState(StatePaused)
	q.logger.Warn("rate limited, pausing dispatch", "retry_after", hint)

	timer := time.NewTimer(hint)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-it.ctx.Done():
		return nil, it.ctx.Err()
	case <-q.stop:
		return nil, ErrClosed
	}

	q.setState(StateRunning)
	return q.execute(it)
}

func (q *Queue) setState(s State) {
	q.mu.Lock()
	q.state = s
	q.mu.Unlock()
}

func (q *Queue) setProcessing(p bool) {
	q.mu.Lock()
	q.processing = p
	q.mu.Unlock()
}
