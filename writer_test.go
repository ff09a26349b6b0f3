// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package edf_test

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	edf "github.com/OpenPSG/ecgmon"
	"github.com/stretchr/testify/require"
)

func TestWriter(t *testing.T) {
	f, err := os.OpenFile(filepath.Join(t.TempDir(), "test.edf"), os.O_RDWR|os.O_CREATE, 0o644)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, f.Close())
	})

	hdr := edf.Header{
		Version:            edf.Version0,
		PatientID:          "Patient X",
		RecordingID:        "Recording 1",
		DataRecordDuration: 500 * time.Millisecond,
		SignalCount:        1,
		Signals: []edf.Signal{
			{
				Label:             "ECG MLII",
				TransducerType:    "AgAgCl electrode",
				PhysicalDimension: "mV",
				PhysicalMin:       -5,
				PhysicalMax:       5,
				DigitalMin:        -2048,
				DigitalMax:        2047,
				SamplesPerRecord:  180,
			},
		},
	}
	hdr.SetStart(time.Now())

	ew, err := edf.Create(f, hdr)
	require.NoError(t, err)

	record := make([]float64, 180)
	for i := range record {
		record[i] = float64(i)/90 - 2
	}
	require.NoError(t, ew.WriteRecord([][]float64{record}))

	for i := range record {
		record[i] = float64(i+180)/90 - 2
	}
	require.NoError(t, ew.WriteRecord([][]float64{record}))

	// Wrong shape is rejected.
	require.Error(t, ew.WriteRecord([][]float64{record, record}))
	require.Error(t, ew.WriteDigitalRecord([][]int16{{1, 2, 3}}))

	// Close the writer (this writes the header)
	require.NoError(t, ew.Close())

	_, err = f.Seek(0, io.SeekStart)
	require.NoError(t, err)

	er, err := edf.Open(f)
	require.NoError(t, err)
	require.Equal(t, 2, er.Header().DataRecords)
	require.Equal(t, 360.0, er.SampleRate())

	frames, err := er.ReadSignals()
	require.NoError(t, err)
	require.Len(t, frames, 360)

	// One digital step is 10/4095 mV.
	for i, frame := range frames {
		require.InDelta(t, float64(i)/90-2, frame[0], 0.003)
	}
}

func TestWriterSignalCountMismatch(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "test.edf"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, f.Close())
	})

	_, err = edf.Create(f, edf.Header{SignalCount: 2})
	require.Error(t, err)
}

func TestPhysicalToDigital(t *testing.T) {
	sig := edf.Signal{PhysicalMin: -1, PhysicalMax: 1, DigitalMin: -100, DigitalMax: 100}

	require.Equal(t, int16(-100), edf.PhysicalToDigital(-1, sig))
	require.Equal(t, int16(50), edf.PhysicalToDigital(0.5, sig))
	require.Equal(t, int16(100), edf.PhysicalToDigital(1, sig))
	require.Equal(t, int16(100), edf.PhysicalToDigital(3, sig))

	// Nearest code, not truncation toward zero.
	require.Equal(t, int16(29), edf.PhysicalToDigital(0.28999, sig))
	require.Equal(t, int16(28), edf.PhysicalToDigital(0.284, sig))
	require.Equal(t, int16(-29), edf.PhysicalToDigital(-0.28999, sig))
	require.Equal(t, int16(0), edf.PhysicalToDigital(3, edf.Signal{PhysicalMin: 1, PhysicalMax: 1}))
}
