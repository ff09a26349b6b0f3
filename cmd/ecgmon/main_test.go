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
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	edf "github.com/OpenPSG/ecgmon"
	"github.com/OpenPSG/ecgmon/heartrate"
	"github.com/OpenPSG/ecgmon/internal/config"
	"github.com/OpenPSG/ecgmon/internal/log"
	"github.com/OpenPSG/ecgmon/journal"
	"github.com/OpenPSG/ecgmon/playback"
	"github.com/OpenPSG/ecgmon/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeRecording writes two seconds of a three lead recording at 360 Hz.
func writeRecording(t *testing.T, dir string) string {
	t.Helper()

	path := filepath.Join(dir, "100.edf")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	sig := func(label string) edf.Signal {
		return edf.Signal{
			Label:             label,
			PhysicalDimension: "mV",
			PhysicalMin:       -5,
			PhysicalMax:       5,
			DigitalMin:        -2048,
			DigitalMax:        2047,
			SamplesPerRecord:  360,
		}
	}
	hdr := edf.Header{
		DataRecordDuration: time.Second,
		SignalCount:        3,
		Signals:            []edf.Signal{sig("ECG I"), sig("ECG II"), sig("ECG V1")},
	}
	hdr.SetStart(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC))

	ew, err := edf.Create(f, hdr)
	require.NoError(t, err)
	for n := 0; n < 2; n++ {
		record := make([][]int16, 3)
		for i := range record {
			record[i] = make([]int16, 360)
		}
		require.NoError(t, ew.WriteDigitalRecord(record))
	}
	require.NoError(t, ew.Close())

	return path
}

// writeAnnotations writes normal beats at the given sample indices.
func writeAnnotations(t *testing.T, dir string, ticks ...uint16) string {
	t.Helper()

	var buf bytes.Buffer
	buf.WriteString("## time resolution: 360\n")
	for _, tick := range ticks {
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, tick))
		buf.Write([]byte{1, 0})
	}

	path := filepath.Join(dir, "100.qrs")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func testConfig(t *testing.T) config.Config {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.SignalFile = writeRecording(t, dir)
	cfg.AnnotationFile = filepath.Join(dir, "missing.qrs")
	return cfg
}

func TestLoadRecording(t *testing.T) {
	cfg := testConfig(t)
	cfg.AnnotationFile = writeAnnotations(t, filepath.Dir(cfg.SignalFile), 180, 540)

	rec, err := loadRecording(context.Background(), log.Logger{}, cfg)
	require.NoError(t, err)

	assert.Equal(t, 360.0, rec.rate)
	assert.Equal(t, "records", rec.strategy)
	assert.Equal(t, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), rec.start)
	require.Len(t, rec.frames, 720)

	var beats []int
	for i, f := range rec.frames {
		if f.Beat {
			beats = append(beats, i)
		}
	}
	// Frames within 10 ms of 0.5 s and 1.5 s.
	for _, i := range beats {
		assert.True(t, (i > 176 && i < 184) || (i > 536 && i < 544), "frame %d", i)
	}
	assert.Contains(t, beats, 180)
	assert.Contains(t, beats, 540)
}

func TestLoadRecordingWithoutAnnotations(t *testing.T) {
	cfg := testConfig(t)

	rec, err := loadRecording(context.Background(), log.Logger{}, cfg)
	require.NoError(t, err)
	assert.Equal(t, strategyNone, rec.strategy)
	for _, f := range rec.frames {
		require.False(t, f.Beat)
	}

	cfg.SyntheticBPM = 60
	start := config.DateTime(time.Date(2020, 5, 5, 0, 0, 0, 0, time.UTC))
	cfg.RecordingStart = &start

	rec, err = loadRecording(context.Background(), log.Logger{}, cfg)
	require.NoError(t, err)
	assert.Equal(t, strategySynthetic, rec.strategy)
	assert.Equal(t, start.Time(), rec.start)
	assert.True(t, rec.frames[180].Beat)
}

func TestLoadRecordingImplausibleRate(t *testing.T) {
	cfg := testConfig(t)

	b, err := os.ReadFile(cfg.SignalFile)
	require.NoError(t, err)
	copy(b[244:252], []byte("1e-9    "))
	require.NoError(t, os.WriteFile(cfg.SignalFile, b, 0o644))

	rec, err := loadRecording(context.Background(), log.Logger{}, cfg)
	require.NoError(t, err)
	assert.Equal(t, edf.DefaultSampleRate, rec.rate)
	assert.Equal(t, 3600, stream.WindowCapacity(rec.rate, cfg.DisplaySeconds))
	require.Len(t, rec.frames, 720)
	assert.InDelta(t, 1.0, rec.frames[360].Timestamp, 1e-12)
}

func TestLoadRecordingMissingSignal(t *testing.T) {
	cfg := config.Default()
	cfg.SignalFile = filepath.Join(t.TempDir(), "absent.edf")

	_, err := loadRecording(context.Background(), log.Logger{}, cfg)
	require.Error(t, err)
}

func TestMonitorUpdate(t *testing.T) {
	ctx := context.Background()

	store, err := journal.Open(ctx, filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	run, err := store.StartRun(ctx, journal.Run{SignalFile: "100.edf"})
	require.NoError(t, err)

	window := stream.NewWindow(360)
	for i := 0; i < 360; i++ {
		window.Push(stream.Frame{Timestamp: float64(i) / 360, Lead2: float64(i % 90)})
	}

	var plot bytes.Buffer
	engine := playback.New(nil, window, 360, playback.WithPaused())
	m := &monitor{
		engine:    engine,
		window:    window,
		estimator: heartrate.New(360),
		runID:     run.ID,
		refresh:   time.Second,
		plot:      &plot,
		journal:   store,
	}

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m.update(ctx, now)

	assert.Contains(t, plot.String(), "(estimated)")
	assert.Contains(t, plot.String(), "[paused]")

	readings, err := store.Readings(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.True(t, readings[0].Synthetic)
	assert.True(t, readings[0].At.Equal(now))
	assert.GreaterOrEqual(t, readings[0].BPM, heartrate.FallbackMin)
	assert.LessOrEqual(t, readings[0].BPM, heartrate.FallbackMax)
}

func TestMonitorControl(t *testing.T) {
	engine := playback.New(nil, stream.NewWindow(1), 360)
	m := &monitor{engine: engine}

	var quit bool
	m.control(context.Background(), strings.NewReader("p\n+\n+\nbogus\n-\nq\np\n"), func() { quit = true })

	assert.True(t, quit)
	assert.False(t, engine.Running())
	assert.InDelta(t, 1.25, engine.Speed(), 1e-9)
}

func TestMonitorControlSpeedFloor(t *testing.T) {
	engine := playback.New(nil, stream.NewWindow(1), 360, playback.WithSpeed(0.25))
	m := &monitor{engine: engine}

	m.control(context.Background(), strings.NewReader("-\n"), func() {})
	assert.InDelta(t, playback.MinSpeed, engine.Speed(), 1e-9)

	m.control(context.Background(), strings.NewReader("-\n"), func() {})
	assert.InDelta(t, playback.MinSpeed, engine.Speed(), 1e-9)
}

func TestMonitorRunStopsRefreshing(t *testing.T) {
	store, err := journal.Open(context.Background(), filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	run, err := store.StartRun(context.Background(), journal.Run{SignalFile: "100.edf"})
	require.NoError(t, err)

	window := stream.NewWindow(360)
	frames := make([]stream.Frame, 36)
	for i := range frames {
		frames[i].Timestamp = float64(i) / 360
	}
	m := &monitor{
		engine:    playback.New(frames, window, 360),
		window:    window,
		estimator: heartrate.New(360),
		runID:     run.ID,
		refresh:   5 * time.Millisecond,
		journal:   store,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, m.run(ctx), context.DeadlineExceeded)

	readings, err := store.Readings(context.Background(), run.ID)
	require.NoError(t, err)
	require.NotEmpty(t, readings)

	// No refresh may run once run has returned.
	time.Sleep(50 * time.Millisecond)
	after, err := store.Readings(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Len(t, after, len(readings))
}
