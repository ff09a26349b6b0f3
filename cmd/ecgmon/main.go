// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Command ecgmon replays an EDF recording at its recorded rate and reports
// the heart rate derived from its QRS annotations.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/OpenPSG/ecgmon/heartrate"
	"github.com/OpenPSG/ecgmon/internal/config"
	"github.com/OpenPSG/ecgmon/internal/log"
	"github.com/OpenPSG/ecgmon/journal"
	"github.com/OpenPSG/ecgmon/playback"
	"github.com/OpenPSG/ecgmon/stream"
	"github.com/OpenPSG/ecgmon/telemetry"
	"github.com/google/uuid"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ecgmon: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "ecgmon.json", "path to the JSON config file")
	signalFile := flag.String("signal", "", "EDF signal file (overrides config)")
	annotationFile := flag.String("annotations", "", "QRS annotation file (overrides config)")
	speed := flag.Float64("speed", 0, "initial playback speed (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil && !errors.Is(err, config.ErrNoConfig) {
		return fmt.Errorf("loading config: %w", err)
	}
	if *signalFile != "" {
		cfg.SignalFile = *signalFile
	}
	if *annotationFile != "" {
		cfg.AnnotationFile = *annotationFile
	}
	if *speed != 0 {
		cfg.Speed = *speed
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()})
	slogger := slog.New(handler)
	logger := log.Wrap(slogger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rec, err := loadRecording(ctx, logger, cfg)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	var store *journal.Store
	if cfg.Journal.Path != "" {
		store, err = journal.Open(ctx, cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		if _, err := store.StartRun(ctx, journal.Run{
			ID:             runID,
			SignalFile:     cfg.SignalFile,
			AnnotationFile: cfg.AnnotationFile,
			Strategy:       rec.strategy,
			SampleRate:     rec.rate,
			Frames:         len(rec.frames),
			RecordingStart: rec.start,
		}); err != nil {
			return err
		}
	}

	var publisher *telemetry.Publisher
	if cfg.Telemetry.Broker != "" {
		publisher, err = telemetry.Dial(ctx, cfg.Telemetry.Broker, cfg.Telemetry.ClientID,
			telemetry.WithLogger(slogger))
		if err != nil {
			return err
		}
		defer publisher.Close()
	}

	logger = logger.With("run", runID)
	window := stream.NewWindow(stream.WindowCapacity(rec.rate, cfg.DisplaySeconds))
	engine := playback.New(rec.frames, window, rec.rate,
		playback.WithSpeed(cfg.Speed),
		playback.WithLogger(slogger.With("run", runID)))

	m := &monitor{
		log:       logger,
		engine:    engine,
		window:    window,
		estimator: heartrate.New(rec.rate),
		runID:     runID,
		refresh:   cfg.RefreshInterval(),
		publisher: publisher,
		topic:     cfg.Telemetry.Topic,
		journal:   store,
	}
	if cfg.Plot {
		m.plot = os.Stdout
	}

	go m.control(ctx, os.Stdin, stop)

	// The journal and publisher are closed by the deferred calls above, after
	// the last refresh.
	if err := m.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info(context.Background(), "playback stopped",
		slog.Uint64("frames", engine.Emitted()),
		slog.Uint64("loops", engine.Loops()))
	return nil
}
