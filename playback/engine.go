// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package playback replays assembled frames into a stream.Window at a
// controllable rate.
package playback

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/OpenPSG/ecgmon/internal/log"
	"github.com/OpenPSG/ecgmon/internal/wallclock"
	"github.com/OpenPSG/ecgmon/stream"
)

const (
	// MinSpeed and MaxSpeed bound the replay speed multiplier.
	MinSpeed = 0.1
	MaxSpeed = 5.0

	// PausePoll is how often a paused engine checks whether to resume.
	PausePoll = 100 * time.Millisecond
)

// ErrAlreadyRunning is returned by Run when the engine is already replaying.
var ErrAlreadyRunning = errors.New("playback engine already running")

// Engine replays frames in index order, looping back to the first frame after
// the last. Pause, Resume and SetSpeed may be called from any goroutine while
// Run is active.
type Engine struct {
	frames []stream.Frame
	window *stream.Window
	rate   float64

	clock  wallclock.WallClock
	logger log.Logger

	speed   atomic.Uint64 // math.Float64bits of the multiplier
	running atomic.Bool
	active  atomic.Bool
	emitted atomic.Uint64
	loops   atomic.Uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for inter-frame waits.
func WithClock(clock wallclock.WallClock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithLogger sets the logger, by default the engine is silent.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = log.Wrap(logger)
	}
}

// WithSpeed sets the initial speed multiplier.
func WithSpeed(speed float64) Option {
	return func(e *Engine) {
		e.SetSpeed(speed)
	}
}

// WithPaused starts the engine paused.
func WithPaused() Option {
	return func(e *Engine) {
		e.running.Store(false)
	}
}

// New returns an engine replaying frames recorded at rate Hz into window.
// A non-positive rate falls back to 360 Hz.
func New(frames []stream.Frame, window *stream.Window, rate float64, opts ...Option) *Engine {
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		rate = 360
	}
	e := &Engine{
		frames: frames,
		window: window,
		rate:   rate,
		clock:  wallclock.Instance,
	}
	e.speed.Store(math.Float64bits(1))
	e.running.Store(true)
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run replays frames until ctx is done and returns ctx.Err(). Pausing does
// not end Run, it only suspends production.
func (e *Engine) Run(ctx context.Context) error {
	if !e.active.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer e.active.Store(false)

	e.logger.Info(ctx, "playback started",
		slog.Int("frames", len(e.frames)),
		slog.Float64("rate", e.rate),
		slog.Float64("speed", e.Speed()))

	index := 0
	for {
		if !e.running.Load() {
			if err := e.wait(ctx, PausePoll); err != nil {
				return err
			}
			continue
		}

		if len(e.frames) > 0 {
			e.window.Push(e.frames[index])
			e.emitted.Add(1)

			index++
			if index == len(e.frames) {
				index = 0
				loops := e.loops.Add(1)
				e.logger.Debug(ctx, "playback wrapped", slog.Uint64("loops", loops))
			}
		}

		if err := e.wait(ctx, e.Interval()); err != nil {
			return err
		}
	}
}

func (e *Engine) wait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.clock.After(d):
		return nil
	}
}

// Interval is the wait between two frames at the current speed.
func (e *Engine) Interval() time.Duration {
	return time.Duration(float64(time.Second) / (e.rate * e.Speed()))
}

// Pause suspends production, buffered frames are kept.
func (e *Engine) Pause() {
	e.running.Store(false)
}

// Resume continues production from the next frame.
func (e *Engine) Resume() {
	e.running.Store(true)
}

// Running reports whether the engine is producing frames.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// SetSpeed sets the speed multiplier, clamped to [MinSpeed, MaxSpeed]. Values
// that are not positive finite numbers are ignored. The change applies from
// the next inter-frame wait.
func (e *Engine) SetSpeed(speed float64) {
	if !(speed > 0) || math.IsInf(speed, 0) {
		return
	}
	speed = max(MinSpeed, min(MaxSpeed, speed))
	e.speed.Store(math.Float64bits(speed))
}

// Speed returns the current speed multiplier.
func (e *Engine) Speed() float64 {
	return math.Float64frombits(e.speed.Load())
}

// Emitted returns the number of frames pushed so far.
func (e *Engine) Emitted() uint64 {
	return e.emitted.Load()
}

// Loops returns how many times replay has wrapped back to the first frame.
func (e *Engine) Loops() uint64 {
	return e.loops.Load()
}
