// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	edf "github.com/OpenPSG/ecgmon"
	"github.com/OpenPSG/ecgmon/annotation"
	"github.com/OpenPSG/ecgmon/internal/config"
	"github.com/OpenPSG/ecgmon/internal/log"
	"github.com/OpenPSG/ecgmon/stream"
)

// strategyNone and strategySynthetic describe beat sources that are not
// annotation decoders.
const (
	strategyNone      = "none"
	strategySynthetic = "synthetic"
)

// recording is a decoded signal file ready for replay.
type recording struct {
	frames   []stream.Frame
	rate     float64
	strategy string
	start    time.Time // zero when unknown
}

// loadRecording decodes the signal and annotation files named by cfg. Only a
// signal file that cannot be opened or decoded is an error; every degraded
// path is logged and replay continues.
func loadRecording(ctx context.Context, logger log.Logger, cfg config.Config) (*recording, error) {
	f, err := os.Open(cfg.SignalFile)
	if err != nil {
		return nil, fmt.Errorf("opening signal file: %w", err)
	}
	defer f.Close()

	er, err := edf.Open(f)
	if err != nil {
		return nil, fmt.Errorf("decoding signal header: %w", err)
	}

	hdr := er.Header()
	for _, field := range hdr.Defaulted {
		logger.Warn(ctx, "malformed header field replaced by default", slog.String("field", field))
	}

	samples, err := er.ReadSignals()
	if err != nil {
		return nil, fmt.Errorf("reading signals: %w", err)
	}
	if er.Truncated() {
		logger.Warn(ctx, "signal data truncated",
			slog.Int("declared_records", hdr.DataRecords),
			slog.Int("frames", len(samples)))
	}

	rec := &recording{
		rate:  er.SampleRate(),
		start: hdr.Start(),
	}
	if cfg.RecordingStart != nil {
		rec.start = cfg.RecordingStart.Time()
	}

	beats, strategy := loadBeats(ctx, logger, cfg, float64(len(samples))/rec.rate)
	rec.frames = stream.Assemble(samples, beats, rec.rate)
	rec.strategy = strategy

	logger.Info(ctx, "recording loaded",
		slog.String("file", cfg.SignalFile),
		slog.Any("signals", er.SignalLabels()),
		slog.Float64("rate", rec.rate),
		slog.Int("frames", len(rec.frames)),
		slog.Int("beats", len(beats)),
		slog.String("strategy", strategy))

	return rec, nil
}

// loadBeats returns the beat times for a recording of the given duration and
// names the source they came from.
func loadBeats(ctx context.Context, logger log.Logger, cfg config.Config, duration float64) ([]float64, string) {
	if cfg.AnnotationFile != "" {
		res, err := annotation.Load(cfg.AnnotationFile)
		if err == nil {
			if res.Strategy == annotation.StrategyHeuristic {
				logger.Warn(ctx, "annotation records unreadable, beats recovered heuristically",
					slog.Int("beats", len(res.Times)))
			}
			return res.Times, res.Strategy.String()
		}
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn(ctx, "annotation file not found", slog.String("file", cfg.AnnotationFile))
		} else {
			logger.Err(ctx, err, slog.String("file", cfg.AnnotationFile))
		}
	}

	if cfg.SyntheticBPM > 0 {
		logger.Warn(ctx, "using synthetic beat times", slog.Float64("bpm", cfg.SyntheticBPM))
		return annotation.Synthesize(duration, cfg.SyntheticBPM, annotation.NewSyntheticSource()), strategySynthetic
	}
	return nil, strategyNone
}
