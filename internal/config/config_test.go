// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package config_test

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OpenPSG/ecgmon/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ecgmon.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1.0, cfg.Speed)
	assert.Equal(t, 10.0, cfg.DisplaySeconds)
	assert.Equal(t, time.Second, cfg.RefreshInterval())
	assert.Equal(t, slog.LevelInfo, cfg.Level())
	assert.Empty(t, cfg.Telemetry.Broker)
	assert.Empty(t, cfg.Journal.Path)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `{
		"signal_file": "/data/101.edf",
		"recording_start": "2024-03-01T08:15:00Z",
		"synthetic_bpm": 72,
		"speed": 2.5,
		"refresh": "PT0.5S",
		"log_level": "debug",
		"telemetry": {"broker": "localhost:1883"},
		"journal": {"path": "/tmp/ecgmon.db"}
	}`)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/data/101.edf", cfg.SignalFile)
	assert.Equal(t, "100.qrs", cfg.AnnotationFile)
	require.NotNil(t, cfg.RecordingStart)
	assert.True(t, time.Date(2024, 3, 1, 8, 15, 0, 0, time.UTC).Equal(cfg.RecordingStart.Time()))
	assert.Equal(t, 72.0, cfg.SyntheticBPM)
	assert.Equal(t, 2.5, cfg.Speed)
	assert.Equal(t, 10.0, cfg.DisplaySeconds)
	assert.Equal(t, 500*time.Millisecond, cfg.RefreshInterval())
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.Equal(t, "localhost:1883", cfg.Telemetry.Broker)
	assert.Equal(t, "ecgmon/heartrate", cfg.Telemetry.Topic)
	assert.Equal(t, "/tmp/ecgmon.db", cfg.Journal.Path)
}

func TestLoadMissing(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.json"))
	require.ErrorIs(t, err, config.ErrNoConfig)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoadInvalid(t *testing.T) {
	_, err := config.Load(writeConfig(t, `{"speed": "fast"}`))
	require.Error(t, err)

	_, err = config.Load(writeConfig(t, `{"refresh": "one second"}`))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Config)
	}{
		{"no signal file", func(c *config.Config) { c.SignalFile = "" }},
		{"zero speed", func(c *config.Config) { c.Speed = 0 }},
		{"negative synthetic bpm", func(c *config.Config) { c.SyntheticBPM = -60 }},
		{"negative display", func(c *config.Config) { c.DisplaySeconds = -1 }},
		{"zero refresh", func(c *config.Config) { c.Refresh = 0 }},
		{"bad log level", func(c *config.Config) { c.LogLevel = "loud" }},
		{"broker without topic", func(c *config.Config) {
			c.Telemetry.Broker = "localhost:1883"
			c.Telemetry.Topic = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.modify(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestDurationText(t *testing.T) {
	b, err := json.Marshal(config.Duration(time.Second))
	require.NoError(t, err)
	assert.Equal(t, `"PT1S"`, string(b))

	var d config.Duration
	require.NoError(t, json.Unmarshal([]byte(`"PT2M"`), &d))
	assert.Equal(t, config.Duration(2*time.Minute), d)
}
