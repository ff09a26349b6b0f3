// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package stream turns decoded signal samples and beat annotations into the
// timestamped frames replayed to the display, and holds the bounded window
// shared between the replay loop and its readers.
package stream

import "math"

// BeatTolerance is the maximum distance in seconds between a frame and an
// annotation for the frame to be flagged as a beat.
const BeatTolerance = 0.01

// Frame is a single point in time of a three-lead ECG.
type Frame struct {
	Timestamp float64 // Seconds from the start of the recording
	Lead1     float64
	Lead2     float64
	LeadV1    float64
	Beat      bool // A QRS annotation lies within BeatTolerance
}

// Assemble builds one frame per sample vector. The first three channels map
// to leads I, II and V1, missing channels read as zero. Frame i is stamped
// i/rate seconds.
func Assemble(samples [][]float64, beats []float64, rate float64) []Frame {
	frames := make([]Frame, len(samples))
	for i, sample := range samples {
		ts := float64(i) / rate
		frames[i] = Frame{
			Timestamp: ts,
			Lead1:     channel(sample, 0),
			Lead2:     channel(sample, 1),
			LeadV1:    channel(sample, 2),
			Beat:      nearBeat(beats, ts),
		}
	}
	return frames
}

func channel(sample []float64, i int) float64 {
	if i < len(sample) {
		return sample[i]
	}
	return 0
}

// nearBeat compares against every annotation; frames and annotations are both
// small enough for the exhaustive scan.
func nearBeat(beats []float64, ts float64) bool {
	for _, b := range beats {
		if math.Abs(b-ts) < BeatTolerance {
			return true
		}
	}
	return false
}
