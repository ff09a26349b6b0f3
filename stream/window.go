// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package stream

import "sync"

const (
	// DisplaySeconds is the span of replay kept in a Window by default.
	DisplaySeconds = 10.0
	// MaxCapacity bounds the number of frames a Window reserves.
	MaxCapacity = 1 << 20
)

// WindowCapacity returns the number of frames covering seconds at rate,
// between 1 and MaxCapacity.
func WindowCapacity(rate, seconds float64) int {
	n := rate * seconds
	if !(n >= 1) {
		return 1
	}
	if n >= MaxCapacity {
		return MaxCapacity
	}
	return int(n)
}

// Window is a bounded, time-ordered buffer of the most recent frames. When it
// is full, each Push evicts the oldest frame. It is safe for one writer and
// any number of readers; the lock is only held for a single Push or Snapshot.
type Window struct {
	mu     sync.Mutex
	frames []Frame // ring storage, len == capacity
	head   int     // index of the oldest frame
	size   int
}

// NewWindow returns an empty Window holding at most capacity frames.
func NewWindow(capacity int) *Window {
	return &Window{frames: make([]Frame, min(MaxCapacity, max(1, capacity)))}
}

// Push appends f, evicting the oldest frame if the window is full.
func (w *Window) Push(f Frame) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size == len(w.frames) {
		w.frames[w.head] = f
		w.head = (w.head + 1) % len(w.frames)
		return
	}
	w.frames[(w.head+w.size)%len(w.frames)] = f
	w.size++
}

// Snapshot returns a copy of the buffered frames, oldest first.
func (w *Window) Snapshot() []Frame {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]Frame, w.size)
	n := copy(out, w.frames[w.head:min(w.head+w.size, len(w.frames))])
	copy(out[n:], w.frames[:w.size-n])
	return out
}

// Len returns the number of buffered frames.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// Cap returns the maximum number of buffered frames.
func (w *Window) Cap() int {
	return len(w.frames)
}
