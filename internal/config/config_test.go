// Copyright (C) 2025 Vikings Event Management (dev@vikingeventmgmt.org.uk)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.NotEmpty(t, cfg.API.BaseURL)
	assert.NotZero(t, cfg.API.Timeout)
}

func TestValidateRejectsMissingBaseURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.API.BaseURL = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "loud"
	assert.Error(t, cfg.Validate())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvAPIURL, "https://staging.example.org/")
	t.Setenv(EnvDemoMode, "true")
	t.Setenv(EnvCacheDir, "/tmp/viking-cache")

	cfg := DefaultConfig()
	applyEnvOverrides(&cfg)

	assert.Equal(t, "https://staging.example.org", cfg.API.BaseURL)
	assert.Equal(t, "https://staging.example.org/health", cfg.API.HealthURL)
	assert.True(t, cfg.Demo)
	assert.Equal(t, "/tmp/viking-cache", cfg.Cache.Dir)
}

func TestEnvOverridesAbsentLeaveDefaults(t *testing.T) {
	t.Setenv(EnvAPIURL, "")
	t.Setenv(EnvDemoMode, "")

	cfg := DefaultConfig()
	base := cfg.API.BaseURL
	applyEnvOverrides(&cfg)

	assert.Equal(t, base, cfg.API.BaseURL)
	assert.False(t, cfg.Demo)
}
