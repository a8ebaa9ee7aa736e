// Copyright (C) 2025 Vikings Event Management (dev@vikingeventmgmt.org.uk)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/vikings-eventmgmt/vikings-sync-go/internal/telemetry"
	"github.com/vikings-eventmgmt/vikings-sync-go/pkg/logging"
)

// Config holds configuration for the persistent store.
type Config struct {
	// Path is the directory for BadgerDB files. Required unless
	// InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives store warnings. Defaults to the shared logger.
	Logger *logging.Logger

	// Sink receives put-failure captures. Defaults to telemetry.Nop.
	Sink telemetry.Sink

	// GCInterval is how often value-log garbage collection runs.
	// Set to 0 to disable.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum discardable ratio before GC runs.
	GCDiscardRatio float64
}

// DefaultConfig returns production defaults: durable writes and a
// 5-minute GC interval.
func DefaultConfig() Config {
	return Config{
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for tests: in-memory mode,
// async writes, GC disabled.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts our logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *logging.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerStore is the persistent namespace. It implements Store over an
// embedded BadgerDB so cached payloads survive restarts.
//
// All read failures degrade to the caller's default and all write
// failures return false; nothing propagates. Badger itself is safe for
// concurrent use, so the only locking here guards the warn-once set.
type BadgerStore struct {
	db     *badger.DB
	logger *logging.Logger
	sink   telemetry.Sink

	warnMu sync.Mutex
	warned map[string]struct{}

	gcStop chan struct{}
	gcDone chan struct{}
}

// Open opens the persistent store. Creates the directory if needed and
// starts the GC runner when an interval is configured. Callers must
// Close when done.
func Open(cfg Config) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent store")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Sink == nil {
		cfg.Sink = telemetry.Nop{}
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)
	opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}

	s := &BadgerStore{
		db:     db,
		logger: cfg.Logger,
		sink:   cfg.Sink,
		warned: make(map[string]struct{}),
	}
	if cfg.GCInterval > 0 {
		s.gcStop = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return s, nil
}

// OpenInMemory opens an in-memory store for testing.
func OpenInMemory() (*BadgerStore, error) {
	return Open(InMemoryConfig())
}

// Get implements Store.
func (s *BadgerStore) Get(key string, def json.RawMessage) json.RawMessage {
	var out json.RawMessage
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append(json.RawMessage(nil), val...)
			return nil
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			s.warnOnce(key, "read failed", err)
		}
		return def
	}
	if !json.Valid(out) {
		s.warnOnce(key, "stored value is not valid JSON", nil)
		return def
	}
	return out
}

// Put implements Store.
func (s *BadgerStore) Put(key string, value any) bool {
	data, err := json.Marshal(value)
	if err != nil {
		s.captureWriteFailure(key, 0, err)
		return false
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		s.captureWriteFailure(key, len(data), err)
		return false
	}
	return true
}

// Remove implements Store.
func (s *BadgerStore) Remove(key string) {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		s.logger.Warn("storage remove failed", "key", key, "error", err)
	}
}

// KeysWithPrefix implements Store.
func (s *BadgerStore) KeysWithPrefix(prefix string) []string {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("storage iteration failed", "prefix", prefix, "error", err)
		return nil
	}
	sort.Strings(keys)
	return keys
}

// Close stops the GC runner and closes the database.
func (s *BadgerStore) Close() error {
	if s.gcStop != nil {
		close(s.gcStop)
		<-s.gcDone
		s.gcStop = nil
	}
	return s.db.Close()
}

func (s *BadgerStore) runGC(interval time.Duration, ratio float64) {
	defer close(s.gcDone)
	if ratio <= 0 || ratio > 1 {
		ratio = 0.5
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.gcStop:
			return
		case <-ticker.C:
			err := s.db.RunValueLogGC(ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				// ErrNoRewrite means no GC was needed, not an error.
				s.logger.Warn("badger value log GC error", "error", err)
			}
		}
	}
}

func (s *BadgerStore) warnOnce(key, msg string, err error) {
	s.warnMu.Lock()
	_, seen := s.warned[key]
	if !seen {
		s.warned[key] = struct{}{}
	}
	s.warnMu.Unlock()
	if seen {
		return
	}
	if err != nil {
		s.logger.Warn("storage "+msg, "key", key, "error", err)
	} else {
		s.logger.Warn("storage "+msg, "key", key)
	}
}

func (s *BadgerStore) captureWriteFailure(key string, size int, err error) {
	telemetry.StorageWriteFailures.Inc()
	s.sink.Capture(err,
		map[string]string{"op": "storage.put", "kind": "cache-io"},
		map[string]any{"key": key, "size_bytes": size},
	)
	s.logger.Warn("storage put failed", "key", key, "size_bytes", size, "error", err)
}

var _ Store = (*BadgerStore)(nil)
