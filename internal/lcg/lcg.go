// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package lcg implements the 64-bit linear congruential generator used for
// reproducible beat-interval jitter.
package lcg

import "math"

const (
	multiplier = 1664525
	increment  = 1013904223
)

// Source is a seedable generator. It is not safe for concurrent use, each
// component owns its own instance.
type Source struct {
	state uint64
}

// New returns a Source starting from seed.
func New(seed uint64) *Source {
	return &Source{state: seed}
}

// Uint64 advances the generator and returns the new state.
func (s *Source) Uint64() uint64 {
	s.state = s.state*multiplier + increment
	return s.state
}

// Float64 returns the next value scaled to [0, 1].
func (s *Source) Float64() float64 {
	return float64(s.Uint64()) / math.MaxUint64
}
