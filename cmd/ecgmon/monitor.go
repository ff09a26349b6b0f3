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
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/OpenPSG/ecgmon/heartrate"
	"github.com/OpenPSG/ecgmon/internal/log"
	"github.com/OpenPSG/ecgmon/journal"
	"github.com/OpenPSG/ecgmon/playback"
	"github.com/OpenPSG/ecgmon/stream"
	"github.com/OpenPSG/ecgmon/telemetry"
	"github.com/guptarohit/asciigraph"
)

const (
	speedStep = 0.25

	plotHeight = 10
	plotWidth  = 100
)

// monitor reads the replay window on every refresh and reports the heart
// rate to the terminal, the broker and the journal.
type monitor struct {
	log       log.Logger
	engine    *playback.Engine
	window    *stream.Window
	estimator *heartrate.Estimator
	runID     string
	refresh   time.Duration

	plot      io.Writer            // nil disables plotting
	publisher *telemetry.Publisher // nil disables publishing
	topic     string
	journal   *journal.Store // nil disables the journal
}

// run replays until ctx is done or the engine fails, and returns only after
// the last refresh has finished.
func (m *monitor) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	watched := make(chan struct{})
	go func() {
		defer close(watched)
		m.watch(ctx)
	}()

	err := m.engine.Run(ctx)
	cancel()
	<-watched
	return err
}

// watch refreshes until ctx is done.
func (m *monitor) watch(ctx context.Context) {
	ticker := time.NewTicker(m.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.update(ctx, now)
		}
	}
}

func (m *monitor) update(ctx context.Context, now time.Time) {
	frames := m.window.Snapshot()
	reading := m.estimator.Estimate(frames)

	m.log.Info(ctx, "heart rate",
		slog.Int("bpm", reading.BPM),
		slog.Bool("synthetic", reading.Synthetic),
		slog.Bool("running", m.engine.Running()),
		slog.Float64("speed", m.engine.Speed()),
		slog.Uint64("frames", m.engine.Emitted()))

	if m.plot != nil {
		m.render(reading, frames)
	}

	if m.publisher != nil {
		if err := m.publisher.Publish(ctx, m.topic, telemetry.Reading{
			Run:       m.runID,
			BPM:       reading.BPM,
			Synthetic: reading.Synthetic,
			Frames:    m.engine.Emitted(),
			Timestamp: now,
		}); err != nil {
			m.log.Err(ctx, err)
		}
	}

	if m.journal != nil {
		if err := m.journal.RecordReading(ctx, m.runID, now, reading.BPM, reading.Synthetic); err != nil {
			m.log.Err(ctx, err)
		}
	}
}

// render plots lead II of the window, downsampled to the plot width.
func (m *monitor) render(reading heartrate.Reading, frames []stream.Frame) {
	if len(frames) < 2 {
		return
	}

	step := max(1, len(frames)/plotWidth)
	data := make([]float64, 0, len(frames)/step+1)
	for i := 0; i < len(frames); i += step {
		data = append(data, frames[i].Lead2)
	}

	caption := fmt.Sprintf("Lead II  %d bpm", reading.BPM)
	if reading.Synthetic {
		caption += " (estimated)"
	}
	if !m.engine.Running() {
		caption += "  [paused]"
	}

	fmt.Fprintln(m.plot, asciigraph.Plot(data,
		asciigraph.Height(plotHeight),
		asciigraph.Width(plotWidth),
		asciigraph.Precision(2),
		asciigraph.Caption(caption),
	))
}

// control applies playback commands read line by line from r until r is
// exhausted or ctx is done: "p" toggles pause, "+" and "-" change the speed
// and "q" calls quit.
func (m *monitor) control(ctx context.Context, r io.Reader, quit func()) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		switch strings.TrimSpace(scanner.Text()) {
		case "p":
			if m.engine.Running() {
				m.engine.Pause()
				m.log.Info(ctx, "playback paused")
			} else {
				m.engine.Resume()
				m.log.Info(ctx, "playback resumed")
			}
		case "+":
			m.engine.SetSpeed(m.engine.Speed() + speedStep)
			m.log.Info(ctx, "playback speed", slog.Float64("speed", m.engine.Speed()))
		case "-":
			m.engine.SetSpeed(max(playback.MinSpeed, m.engine.Speed()-speedStep))
			m.log.Info(ctx, "playback speed", slog.Float64("speed", m.engine.Speed()))
		case "q":
			quit()
			return
		}
	}
}
