// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package journal keeps a SQLite record of replay runs and the heart-rate
// readings taken during each of them.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a run doesn't exist
var ErrNotFound = errors.New("run not found")

// Run describes one replay of a recording.
type Run struct {
	ID             string
	SignalFile     string
	AnnotationFile string
	Strategy       string // how beat times were obtained
	SampleRate     float64
	Frames         int
	RecordingStart time.Time // zero when unknown
	StartedAt      time.Time
}

// Reading is one heart-rate estimate taken during a run.
type Reading struct {
	RunID     string
	At        time.Time
	BPM       int
	Synthetic bool
}

type runRow struct {
	ID             string  `db:"id"`
	SignalFile     string  `db:"signal_file"`
	AnnotationFile string  `db:"annotation_file"`
	Strategy       string  `db:"strategy"`
	SampleRate     float64 `db:"sample_rate"`
	Frames         int     `db:"frames"`
	RecordingStart int64   `db:"recording_start"`
	StartedAt      int64   `db:"started_at"`
}

type readingRow struct {
	RunID     string `db:"run_id"`
	At        int64  `db:"at"`
	BPM       int    `db:"bpm"`
	Synthetic bool   `db:"synthetic"`
}

// Store is a journal backed by a SQLite database.
type Store struct {
	db *sqlx.DB
}

// Open opens the SQLite database at path, creating it if necessary.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
	}

	db, err := sqlx.ConnectContext(ctx, "sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun records a new run. The ID and StartedAt are assigned when empty
// and the stored run is returned.
func (s *Store) StartRun(ctx context.Context, run Run) (Run, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	row := runRow{
		ID:             run.ID,
		SignalFile:     run.SignalFile,
		AnnotationFile: run.AnnotationFile,
		Strategy:       run.Strategy,
		SampleRate:     run.SampleRate,
		Frames:         run.Frames,
		RecordingStart: unixNano(run.RecordingStart),
		StartedAt:      unixNano(run.StartedAt),
	}
	if _, err := s.db.NamedExecContext(ctx, `
		INSERT INTO runs (id, signal_file, annotation_file, strategy, sample_rate, frames, recording_start, started_at)
		VALUES (:id, :signal_file, :annotation_file, :strategy, :sample_rate, :frames, :recording_start, :started_at)`,
		row); err != nil {
		return Run{}, fmt.Errorf("inserting run: %w", err)
	}

	return row.run(), nil
}

// Run returns the run with the given ID.
func (s *Store) Run(ctx context.Context, id string) (Run, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM runs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("querying run: %w", err)
	}
	return row.run(), nil
}

// RecordReading appends a heart-rate reading to a run.
func (s *Store) RecordReading(ctx context.Context, runID string, at time.Time, bpm int, synthetic bool) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO readings (run_id, at, bpm, synthetic) VALUES (?, ?, ?, ?)`,
		runID, at.UnixNano(), bpm, synthetic); err != nil {
		return fmt.Errorf("inserting reading: %w", err)
	}
	return nil
}

// Readings returns the readings of a run in the order they were taken.
func (s *Store) Readings(ctx context.Context, runID string) ([]Reading, error) {
	var rows []readingRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT run_id, at, bpm, synthetic FROM readings WHERE run_id = ? ORDER BY at, id`,
		runID); err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}

	readings := make([]Reading, len(rows))
	for i, row := range rows {
		readings[i] = Reading{
			RunID:     row.RunID,
			At:        time.Unix(0, row.At),
			BPM:       row.BPM,
			Synthetic: row.Synthetic,
		}
	}
	return readings, nil
}

func (r runRow) run() Run {
	run := Run{
		ID:             r.ID,
		SignalFile:     r.SignalFile,
		AnnotationFile: r.AnnotationFile,
		Strategy:       r.Strategy,
		SampleRate:     r.SampleRate,
		Frames:         r.Frames,
		StartedAt:      time.Unix(0, r.StartedAt),
	}
	if r.RecordingStart != 0 {
		run.RecordingStart = time.Unix(0, r.RecordingStart)
	}
	return run
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
