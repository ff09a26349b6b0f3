// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package lcg_test

import (
	"testing"

	"github.com/OpenPSG/ecgmon/internal/lcg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSource(t *testing.T) {
	s := lcg.New(12345)
	require.Equal(t, uint64(12345*1664525+1013904223), s.Uint64())

	a, b := lcg.New(7), lcg.New(7)
	for i := 0; i < 100; i++ {
		v := a.Float64()
		assert.Equal(t, v, b.Float64())
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestSourceWraps(t *testing.T) {
	s := lcg.New(^uint64(0))
	// Overflow wraps instead of panicking.
	require.Equal(t, uint64(1013904223-1664525), s.Uint64())
}
