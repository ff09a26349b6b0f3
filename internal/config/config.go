// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package config loads the JSON settings file of the ecgmon command.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/relvacode/iso8601"
	"github.com/sosodev/duration"
)

// Config represents the application configuration
type Config struct {
	SignalFile     string    `json:"signal_file"`
	AnnotationFile string    `json:"annotation_file"`
	RecordingStart *DateTime `json:"recording_start,omitempty"`

	// SyntheticBPM, when positive, generates beat times at this rate if the
	// annotation file cannot be read.
	SyntheticBPM float64 `json:"synthetic_bpm"`

	Speed          float64  `json:"speed"`
	DisplaySeconds float64  `json:"display_seconds"`
	Refresh        Duration `json:"refresh"`
	LogLevel       string   `json:"log_level"`
	Plot           bool     `json:"plot"`

	Telemetry TelemetryConfig `json:"telemetry"`
	Journal   JournalConfig   `json:"journal"`
}

// TelemetryConfig holds the MQTT publishing settings. Publishing is disabled
// when Broker is empty.
type TelemetryConfig struct {
	Broker   string `json:"broker"`
	Topic    string `json:"topic"`
	ClientID string `json:"client_id"`
}

// JournalConfig holds the reading journal settings. The journal is disabled
// when Path is empty.
type JournalConfig struct {
	Path string `json:"path"`
}

type (
	// Duration is a time.Duration encoded as an ISO 8601 duration, e.g. "PT1S".
	Duration time.Duration

	// DateTime is a time.Time encoded as an ISO 8601 date-time.
	DateTime time.Time
)

// ErrNoConfig is returned when the config file doesn't exist
var ErrNoConfig = errors.New("config file not found")

// Default returns the default configuration
func Default() Config {
	return Config{
		SignalFile:     "100.edf",
		AnnotationFile: "100.qrs",
		Speed:          1,
		DisplaySeconds: 10,
		Refresh:        Duration(time.Second),
		LogLevel:       "info",
		Plot:           true,
		Telemetry: TelemetryConfig{
			Topic: "ecgmon/heartrate",
		},
	}
}

// Load reads the configuration at path. Fields absent from the file keep
// their default value.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, ErrNoConfig
	}
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// Validate checks the config for values the monitor cannot run with.
func (c *Config) Validate() error {
	if c.SignalFile == "" {
		return errors.New("signal_file is required")
	}
	if !(c.Speed > 0) {
		return fmt.Errorf("speed must be positive, got %v", c.Speed)
	}
	if c.SyntheticBPM < 0 {
		return fmt.Errorf("synthetic_bpm must not be negative, got %v", c.SyntheticBPM)
	}
	if !(c.DisplaySeconds > 0) {
		return fmt.Errorf("display_seconds must be positive, got %v", c.DisplaySeconds)
	}
	if c.Refresh <= 0 {
		return fmt.Errorf("refresh must be positive, got %s", c.Refresh)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Telemetry.Broker != "" && c.Telemetry.Topic == "" {
		return errors.New("telemetry.topic is required when telemetry.broker is set")
	}
	return nil
}

// RefreshInterval is the period between heart-rate updates.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Refresh)
}

// Level is the slog level named by LogLevel, defaulting to info.
func (c *Config) Level() slog.Level {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("log_level %q: %w", s, err)
	}
	return level, nil
}

// String returns the duration to an ISO 8601 string.
func (d Duration) String() string {
	return duration.Format(time.Duration(d))
}

// MarshalText marshals the duration to an ISO 8601 string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText unmarshals the duration from an ISO 8601 string.
func (d *Duration) UnmarshalText(b []byte) error {
	parsed, err := duration.Parse(string(b))
	if err != nil {
		return err
	}
	*d = Duration(parsed.ToTimeDuration())
	return nil
}

// Time returns the date-time as a time.Time.
func (dt DateTime) Time() time.Time {
	return time.Time(dt)
}

// MarshalText marshals the date-time to an ISO 8601 string.
func (dt DateTime) MarshalText() ([]byte, error) {
	return []byte(time.Time(dt).Format(time.RFC3339)), nil
}

// UnmarshalText unmarshals the date-time from an ISO 8601 string.
func (dt *DateTime) UnmarshalText(b []byte) error {
	parsed, err := iso8601.Parse(b)
	if err != nil {
		return err
	}
	*dt = DateTime(parsed)
	return nil
}
