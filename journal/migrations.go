// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package journal

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// migrate runs all database migrations
func migrate(ctx context.Context, db *sqlx.DB) error {
	migrations := []string{
		// Runs (one per replay of a recording)
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			signal_file TEXT NOT NULL,
			annotation_file TEXT NOT NULL,
			strategy TEXT NOT NULL,
			sample_rate REAL NOT NULL,
			frames INTEGER NOT NULL,
			recording_start INTEGER NOT NULL,
			started_at INTEGER NOT NULL
		)`,

		// Readings (one per refresh while a run is replaying)
		`CREATE TABLE IF NOT EXISTS readings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			at INTEGER NOT NULL,
			bpm INTEGER NOT NULL,
			synthetic INTEGER NOT NULL,
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
		)`,

		`CREATE INDEX IF NOT EXISTS idx_readings_run ON readings(run_id, at)`,
	}

	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
