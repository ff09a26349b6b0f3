// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package annotation

import "github.com/OpenPSG/ecgmon/internal/lcg"

const (
	// SyntheticSeed seeds the jitter source of NewSyntheticSource.
	SyntheticSeed = 12345

	syntheticStart = 0.5 // seconds
	rrVariability  = 0.2 // peak to peak, as a fraction of the RR interval
)

// Rand is the jitter source used by Synthesize, *lcg.Source and *rand.Rand
// both satisfy it.
type Rand interface {
	Float64() float64
}

// NewSyntheticSource returns the generator conventionally used with
// Synthesize, so repeated runs produce identical beat trains.
func NewSyntheticSource() *lcg.Source {
	return lcg.New(SyntheticSeed)
}

// Synthesize produces beat times for a recording of the given duration at a
// target heart rate. Beats start at 0.5 s and each RR interval is perturbed
// by up to ±10%.
func Synthesize(duration, bpm float64, rng Rand) []float64 {
	if bpm <= 0 || duration <= syntheticStart {
		return nil
	}

	rr := 60 / bpm
	var times []float64
	for t := syntheticStart; t < duration; {
		times = append(times, t)
		jitter := (rng.Float64() - 0.5) * rrVariability
		t += rr * (1 + jitter)
	}
	return times
}
