// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package wallclock indirects the time functions used by the replay loop and
// the heart-rate estimator so tests can control apparent time.
package wallclock

import "time"

type (
	// WallClock abstracts the subset of package time used by ecgmon.
	WallClock interface {
		Now() time.Time
		After(d time.Duration) <-chan time.Time
	}

	wallClock struct{}
)

// Now indirects time.Now.
func (wallClock) Now() time.Time {
	return time.Now()
}

// After indirects time.After.
func (wallClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// Instance is the WallClock used when a component is not given its own.
var Instance WallClock = wallClock{}

// Seconds converts t to fractional seconds since the Unix epoch.
func Seconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
