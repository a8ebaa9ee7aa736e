// Copyright (C) 2025 Vikings Event Management (dev@vikingeventmgmt.org.uk)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads the sync core's configuration from
// ~/.vikingsync/vikingsync.yaml, created with defaults on first run,
// with environment variables taking precedence for deployment
// overrides.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
)

// Environment overrides. These win over the YAML file.
const (
	EnvAPIURL   = "VIKING_API_URL"
	EnvDemoMode = "VIKING_DEMO_MODE"
	EnvCacheDir = "VIKING_CACHE_DIR"
)

type SyncConfig struct {
	// API: the backend proxy fronting the upstream event system.
	API APIConfig `yaml:"api"`

	// Cache: where offline data lives on disk.
	Cache CacheConfig `yaml:"cache"`

	// Demo: serve canned demo_ keys and never touch the network.
	Demo bool `yaml:"demo"`

	// Logging: level and destination for structured logs.
	Logging LoggingConfig `yaml:"logging"`
}

type APIConfig struct {
	BaseURL   string        `yaml:"base_url" validate:"required,url"`
	HealthURL string        `yaml:"health_url" validate:"omitempty,url"`
	Timeout   time.Duration `yaml:"timeout" validate:"required"`

	// ProbeInterval controls how often connectivity is re-checked.
	ProbeInterval time.Duration `yaml:"probe_interval"`
}

type CacheConfig struct {
	Dir string `yaml:"dir" validate:"required"`

	// InMemory trades persistence for speed; used by tests.
	InMemory bool `yaml:"in_memory"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Dir   string `yaml:"dir"`
	JSON  bool   `yaml:"json"`
}

// DefaultConfig is what gets written on first run.
func DefaultConfig() SyncConfig {
	cacheDir := "~/.vikingsync/cache"
	if home, err := os.UserHomeDir(); err == nil {
		cacheDir = filepath.Join(home, ".vikingsync", "cache")
	}
	return SyncConfig{
		API: APIConfig{
			BaseURL:       "https://vikings-osm-backend.onrender.com",
			HealthURL:     "https://vikings-osm-backend.onrender.com/health",
			Timeout:       30 * time.Second,
			ProbeInterval: 30 * time.Second,
		},
		Cache: CacheConfig{Dir: cacheDir},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "~/.vikingsync/logs",
		},
	}
}

// Validate checks the loaded config against its struct tags.
func (c *SyncConfig) Validate() error {
	return validator.New().Struct(c)
}
