// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

package edf

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
)

// Writer writes EDF files.
type Writer struct {
	w           io.WriteSeeker
	hdr         *Header
	dataRecords int // Number of data records written so far.
}

// Create creates a new EDF writer that writes to the given writer.
func Create(w io.WriteSeeker, hdr Header) (*Writer, error) {
	if hdr.SignalCount != len(hdr.Signals) {
		return nil, fmt.Errorf("signal count %d does not match %d signals", hdr.SignalCount, len(hdr.Signals))
	}
	if hdr.Version == "" {
		hdr.Version = Version0
	}
	hdr.DataRecords = -1 // Unknown number of data records (at this time).

	ew := &Writer{w: w, hdr: &hdr}
	if err := ew.writeHeader(); err != nil {
		return nil, fmt.Errorf("error writing header: %w", err)
	}

	return ew, nil
}

// Close finalizes the EDF file by updating the header with the total number of data records.
func (ew *Writer) Close() error {
	ew.hdr.DataRecords = ew.dataRecords
	if err := ew.writeHeader(); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}

	return nil
}

// WriteRecord writes a single data record of physical values.
func (ew *Writer) WriteRecord(signals [][]float64) error {
	digital := make([][]int16, len(signals))
	for i, samples := range signals {
		if i >= len(ew.hdr.Signals) {
			break
		}
		digital[i] = make([]int16, len(samples))
		for j, sample := range samples {
			digital[i][j] = PhysicalToDigital(sample, ew.hdr.Signals[i])
		}
	}
	return ew.WriteDigitalRecord(digital)
}

// WriteDigitalRecord writes a single data record of raw digital values.
func (ew *Writer) WriteDigitalRecord(signals [][]int16) error {
	if len(signals) != ew.hdr.SignalCount {
		return fmt.Errorf("expected %d signals, got %d", ew.hdr.SignalCount, len(signals))
	}

	var totalSamples int
	for i, samples := range signals {
		if len(samples) != ew.hdr.Signals[i].SamplesPerRecord {
			return fmt.Errorf("signal %d: expected %d samples, got %d", i, ew.hdr.Signals[i].SamplesPerRecord, len(samples))
		}
		totalSamples += len(samples)
	}

	// As recommended by the EDF standard.
	if totalSamples*2 > 61440 {
		return fmt.Errorf("data record too large: %d bytes, max is 61440 bytes", totalSamples*2)
	}

	writer := bufio.NewWriter(ew.w)
	for _, samples := range signals {
		if err := binary.Write(writer, binary.LittleEndian, samples); err != nil {
			return err
		}
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	ew.dataRecords++
	return nil
}

func (ew *Writer) writeHeader() error {
	if _, err := ew.w.Seek(0, io.SeekStart); err != nil {
		return err
	}

	hdr := ew.hdr
	hdr.HeaderBytes = 256 + (hdr.SignalCount * 256)

	fw := &fieldWriter{w: bufio.NewWriter(ew.w)}
	fw.text(string(hdr.Version), 8)
	fw.text(hdr.PatientID, 80)
	fw.text(hdr.RecordingID, 80)
	fw.text(hdr.StartDate, 8)
	fw.text(hdr.StartTime, 8)
	fw.text(strconv.Itoa(hdr.HeaderBytes), 8)
	fw.text(hdr.DataFormat, 44)
	fw.text(strconv.Itoa(hdr.DataRecords), 8)
	fw.text(strconv.FormatFloat(hdr.DataRecordDuration.Seconds(), 'g', -1, 64), 8)
	fw.text(strconv.Itoa(hdr.SignalCount), 4)

	fw.each(hdr.Signals, 16, func(s Signal) string { return s.Label })
	fw.each(hdr.Signals, 80, func(s Signal) string { return s.TransducerType })
	fw.each(hdr.Signals, 8, func(s Signal) string { return s.PhysicalDimension })
	fw.each(hdr.Signals, 8, func(s Signal) string { return formatPhysicalValue(s.PhysicalMin) })
	fw.each(hdr.Signals, 8, func(s Signal) string { return formatPhysicalValue(s.PhysicalMax) })
	fw.each(hdr.Signals, 8, func(s Signal) string { return strconv.Itoa(s.DigitalMin) })
	fw.each(hdr.Signals, 8, func(s Signal) string { return strconv.Itoa(s.DigitalMax) })
	fw.each(hdr.Signals, 80, func(s Signal) string { return s.Prefiltering })
	fw.each(hdr.Signals, 8, func(s Signal) string { return strconv.Itoa(s.SamplesPerRecord) })
	fw.each(hdr.Signals, 32, func(s Signal) string { return s.Reserved })

	if fw.err != nil {
		return fw.err
	}
	return fw.w.Flush()
}

// PhysicalToDigital converts a physical value to a digital value using the
// calibration of the signal, rounding to the nearest code and clamping to the
// digital range.
func PhysicalToDigital(physical float64, sig Signal) int16 {
	if sig.PhysicalMax == sig.PhysicalMin {
		return 0
	}
	digital := (physical-sig.PhysicalMin)*float64(sig.DigitalMax-sig.DigitalMin)/(sig.PhysicalMax-sig.PhysicalMin) + float64(sig.DigitalMin)
	digital = max(float64(sig.DigitalMin), min(float64(sig.DigitalMax), digital))
	return int16(math.Round(digital))
}

func formatPhysicalValue(val float64) string {
	// Try with 2 decimal places
	s := strconv.FormatFloat(val, 'f', 2, 64)
	if len(s) > 8 {
		// Fall back to no decimal
		s = strconv.FormatFloat(val, 'f', 0, 64)
	}
	return s
}

// fieldWriter writes space padded fixed-width ASCII fields.
type fieldWriter struct {
	w   *bufio.Writer
	err error
}

func (fw *fieldWriter) text(s string, width int) {
	if fw.err != nil {
		return
	}
	if len(s) > width {
		s = s[:width]
	}
	_, fw.err = fmt.Fprintf(fw.w, "%-*s", width, s)
}

func (fw *fieldWriter) each(signals []Signal, width int, field func(Signal) string) {
	for _, sig := range signals {
		fw.text(field(sig), width)
	}
}
