// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package heartrate derives a live heart rate from the beat flags of the most
// recently replayed frames.
package heartrate

import (
	"math"
	"sort"

	"github.com/OpenPSG/ecgmon/internal/wallclock"
	"github.com/OpenPSG/ecgmon/stream"
)

const (
	// ScanFrames is how many of the newest frames are inspected per estimate.
	ScanFrames = 100
	// DedupWindow merges beats closer than this many seconds.
	DedupWindow = 0.1
	// Horizon is how long, in seconds, a recorded beat contributes.
	Horizon = 10.0

	// FallbackMin and FallbackMax bound the synthetic rate.
	FallbackMin = 65
	FallbackMax = 90
)

// Reading is a heart-rate estimate. Synthetic readings are placeholders
// produced while too few beats are known and must not be treated as
// measurements.
type Reading struct {
	BPM       int
	Synthetic bool
}

// Estimator accumulates beat times across successive window snapshots. It is
// not safe for concurrent use; it belongs to the goroutine reading the
// window.
type Estimator struct {
	rate  float64
	clock wallclock.WallClock
	beats []float64 // wall-clock seconds
}

// Option configures an Estimator.
type Option func(*Estimator)

// WithClock sets the clock used to place beats in time.
func WithClock(clock wallclock.WallClock) Option {
	return func(e *Estimator) {
		e.clock = clock
	}
}

// New returns an Estimator for frames replayed at rate Hz. A non-positive
// rate falls back to 360 Hz.
func New(rate float64, opts ...Option) *Estimator {
	if !(rate > 0) {
		rate = 360
	}
	e := &Estimator{rate: rate, clock: wallclock.Instance}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Estimate records the beats among the newest frames of a window snapshot,
// oldest first, and returns the current heart rate.
func (e *Estimator) Estimate(frames []stream.Frame) Reading {
	now := wallclock.Seconds(e.clock.Now())

	for i := len(frames) - 1; i >= max(0, len(frames)-ScanFrames); i-- {
		if !frames[i].Beat {
			continue
		}
		// The newest frame was produced one sample period ago.
		t := now - float64(len(frames)-i)/e.rate
		if !e.known(t) {
			e.beats = append(e.beats, t)
		}
	}

	kept := e.beats[:0]
	for _, t := range e.beats {
		if now-t < Horizon {
			kept = append(kept, t)
		}
	}
	e.beats = kept

	if bpm, ok := FromBeats(e.beats); ok {
		return Reading{BPM: bpm}
	}
	return Reading{BPM: Fallback(now), Synthetic: true}
}

func (e *Estimator) known(t float64) bool {
	for _, b := range e.beats {
		if math.Abs(b-t) < DedupWindow {
			return true
		}
	}
	return false
}

// Beats returns a copy of the recorded beat times in wall-clock seconds.
func (e *Estimator) Beats() []float64 {
	return append([]float64(nil), e.beats...)
}

// Reset forgets every recorded beat.
func (e *Estimator) Reset() {
	e.beats = nil
}

// FromBeats returns round(60 / mean RR interval) for the given beat times.
// It reports false when fewer than two beats are given.
func FromBeats(beats []float64) (int, bool) {
	if len(beats) < 2 {
		return 0, false
	}
	sorted := append([]float64(nil), beats...)
	sort.Float64s(sorted)

	var sum float64
	for i := 1; i < len(sorted); i++ {
		sum += sorted[i] - sorted[i-1]
	}
	mean := sum / float64(len(sorted)-1)
	if !(mean > 0) {
		return 0, false
	}
	return int(math.Round(60 / mean)), true
}

// Fallback is the placeholder rate at wall-clock time t seconds: a resting
// rate modulated by a slow respiratory swing and a faster irregular term,
// kept within [FallbackMin, FallbackMax].
func Fallback(t float64) int {
	respiratory := math.Sin(t*0.3) * 2
	irregular := math.Sin(t*7.3) * math.Cos(t*11.7) * 1.5
	return int(max(FallbackMin, min(FallbackMax, 76+respiratory+irregular)))
}
