// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package annotation decodes QRS annotation streams that accompany an ECG
// recording into sorted beat times.
//
// The annotation files seen in the wild do not share a single layout, so
// decoding is a two-stage strategy: a fixed 4-byte record scan, and when that
// yields nothing, a heuristic scan over the raw bytes.
package annotation

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

const (
	// DefaultResolution is the number of ticks per second assumed when the
	// stream does not declare one.
	DefaultResolution = 1000.0

	// DedupEpsilon merges heuristic candidates closer than 1 ms.
	DedupEpsilon = 0.001
	// MaxPlausibleTime bounds heuristic candidates, in seconds.
	MaxPlausibleTime = 3600.0
	// MaxCandidates is the heuristic candidate count above which the
	// candidates are treated as noise and filtered by RR interval.
	MaxCandidates = 1000
	// MinRR and MaxRR bound a physiologically plausible beat-to-beat
	// interval, in seconds.
	MinRR = 0.3
	MaxRR = 2.0

	headerMarker     = "## "
	resolutionPrefix = "time resolution:"
	recordSize       = 4
)

// Strategy identifies which decoder produced a Result.
type Strategy int

const (
	// StrategyRecords is the fixed-record scan.
	StrategyRecords Strategy = iota
	// StrategyHeuristic is the raw 32-bit window scan used when the record
	// scan found no beats.
	StrategyHeuristic
)

func (s Strategy) String() string {
	switch s {
	case StrategyRecords:
		return "records"
	case StrategyHeuristic:
		return "heuristic"
	default:
		return "unknown"
	}
}

// Result is the outcome of decoding an annotation stream.
type Result struct {
	Times      []float64 // Beat times in seconds, ascending
	Resolution float64   // Ticks per second used for the conversion
	Strategy   Strategy  // Decoder that produced Times
}

// Load opens and decodes the annotation file at path.
func Load(path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("error opening annotations: %w", err)
	}
	defer f.Close()

	return Decode(f)
}

// Decode reads beat annotations from r. Only seek and read failures are
// errors, a stream without recognisable beats yields an empty result.
func Decode(r io.ReadSeeker) (Result, error) {
	res := Result{Resolution: DefaultResolution, Strategy: StrategyRecords}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return res, fmt.Errorf("error seeking annotations: %w", err)
	}
	br := bufio.NewReader(r)
	line, _ := br.ReadString('\n')
	res.Resolution = parseResolution(line)

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return res, fmt.Errorf("error seeking annotations: %w", err)
	}
	br.Reset(r)
	if prefix, err := br.Peek(recordSize); err == nil && bytes.HasPrefix(prefix, []byte(headerMarker)) {
		_, _ = br.ReadString('\n')
	}

	res.Times = scanRecords(br, res.Resolution)
	if len(res.Times) == 0 {
		if _, err := r.Seek(0, io.SeekStart); err != nil {
			return res, fmt.Errorf("error seeking annotations: %w", err)
		}
		content, err := io.ReadAll(r)
		if err != nil {
			return res, fmt.Errorf("error reading annotations: %w", err)
		}
		res.Times = scanHeuristic(content, res.Resolution)
		res.Strategy = StrategyHeuristic
	}

	sort.Float64s(res.Times)
	return res, nil
}

// parseResolution extracts the number following "time resolution:" from a
// header line.
func parseResolution(line string) float64 {
	_, after, ok := strings.Cut(line, resolutionPrefix)
	if !ok {
		return DefaultResolution
	}
	fields := strings.Fields(after)
	if len(fields) == 0 {
		return DefaultResolution
	}
	resolution, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || resolution <= 0 {
		return DefaultResolution
	}
	return resolution
}

// scanRecords reads 4-byte records (little-endian uint16 ticks, type code,
// subtype) until the first short read.
func scanRecords(r io.Reader, resolution float64) []float64 {
	var times []float64
	rec := make([]byte, recordSize)
	for {
		if _, err := io.ReadFull(r, rec); err != nil {
			return times
		}
		ticks := binary.LittleEndian.Uint16(rec[0:2])
		if IsBeat(rec[2]) {
			times = append(times, float64(ticks)/resolution)
		}
	}
}

// scanHeuristic treats every aligned 4-byte window as a little-endian sample
// number and keeps the plausible ones.
func scanHeuristic(content []byte, resolution float64) []float64 {
	var candidates []float64
	for i := 0; i+recordSize <= len(content); i += recordSize {
		t := float64(binary.LittleEndian.Uint32(content[i:])) / resolution
		if t > 0 && t < MaxPlausibleTime {
			candidates = append(candidates, t)
		}
	}

	sort.Float64s(candidates)
	candidates = dedup(candidates, DedupEpsilon)

	if len(candidates) > MaxCandidates {
		candidates = filterRR(candidates, MinRR, MaxRR)
	}
	return candidates
}

// dedup drops every sorted value closer than epsilon to the last kept one.
func dedup(sorted []float64, epsilon float64) []float64 {
	if len(sorted) == 0 {
		return sorted
	}
	kept := sorted[:1]
	for _, t := range sorted[1:] {
		if t-kept[len(kept)-1] >= epsilon {
			kept = append(kept, t)
		}
	}
	return kept
}

// filterRR keeps the first value and then every value whose gap from the
// previously kept one lies in [lo, hi].
func filterRR(sorted []float64, lo, hi float64) []float64 {
	kept := []float64{sorted[0]}
	for _, t := range sorted[1:] {
		gap := t - kept[len(kept)-1]
		if gap >= lo && gap <= hi {
			kept = append(kept, t)
		}
	}
	return kept
}
