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
	"strings"
	"time"
)

// Upper bound on the per-signal slice capacity reserved up front, a corrupt
// record count must not turn into a huge allocation.
const maxPrealloc = 1 << 20

// Reader reads EDF/EDF+ files.
type Reader struct {
	r         io.ReadSeeker
	hdr       *Header
	truncated bool
}

// Open opens an EDF/EDF+ file for reading.
//
// Only a header that is too short to read is an error. Numeric fields that
// fail to parse are replaced by their documented default and recorded in
// Header.Defaulted.
func Open(r io.ReadSeeker) (*Reader, error) {
	fr := &fieldReader{r: bufio.NewReader(r)}

	hdr := &Header{}
	hdr.Version = Version(fr.text(8))
	hdr.PatientID = fr.text(80)
	hdr.RecordingID = fr.text(80)
	hdr.StartDate = fr.text(8)
	hdr.StartTime = fr.text(8)
	hdr.HeaderBytes = hdr.intField("header bytes", fr.text(8), DefaultHeaderBytes, 0, 1<<31-1)
	hdr.DataFormat = fr.text(44)
	hdr.DataRecords = hdr.intField("data records", fr.text(8), DefaultDataRecords, 0, 1<<31-1)
	hdr.DataRecordDuration = hdr.durationField("data record duration", fr.text(8))
	hdr.SignalCount = hdr.intField("signal count", fr.text(4), DefaultSignalCount, 0, 1<<16-1)
	if fr.err != nil {
		return nil, fmt.Errorf("error reading header: %w", fr.err)
	}

	// Signal headers are stored field-major, all labels first, then all
	// transducer types and so on.
	n := hdr.SignalCount
	labels := fr.column(n, 16)
	transducers := fr.column(n, 80)
	dimensions := fr.column(n, 8)
	physMins := fr.column(n, 8)
	physMaxs := fr.column(n, 8)
	digMins := fr.column(n, 8)
	digMaxs := fr.column(n, 8)
	prefiltering := fr.column(n, 80)
	samples := fr.column(n, 8)
	reserved := fr.column(n, 32)
	if fr.err != nil {
		return nil, fmt.Errorf("error reading signal headers: %w", fr.err)
	}

	hdr.Signals = make([]Signal, n)
	for i := range hdr.Signals {
		sig := &hdr.Signals[i]
		sig.Label = labels[i]
		sig.TransducerType = transducers[i]
		sig.PhysicalDimension = dimensions[i]
		sig.PhysicalMin = hdr.floatField(fmt.Sprintf("signal %d physical min", i), physMins[i], DefaultPhysicalMin)
		sig.PhysicalMax = hdr.floatField(fmt.Sprintf("signal %d physical max", i), physMaxs[i], DefaultPhysicalMax)
		sig.DigitalMin = hdr.intField(fmt.Sprintf("signal %d digital min", i), digMins[i], DefaultDigitalMin, -1<<15, 1<<15-1)
		sig.DigitalMax = hdr.intField(fmt.Sprintf("signal %d digital max", i), digMaxs[i], DefaultDigitalMax, -1<<15, 1<<15-1)
		sig.Prefiltering = prefiltering[i]
		sig.SamplesPerRecord = hdr.intField(fmt.Sprintf("signal %d samples per record", i), samples[i], DefaultSamplesPerRecord, 0, 1<<16-1)
		sig.Reserved = reserved[i]
	}

	return &Reader{
		r:   r,
		hdr: hdr,
	}, nil
}

// Header returns the decoded header.
func (er *Reader) Header() *Header {
	return er.hdr
}

// SampleRate returns the sample rate of the first signal in Hz.
func (er *Reader) SampleRate() float64 {
	return er.hdr.SampleRate()
}

// SignalLabels returns the label of every signal in header order.
func (er *Reader) SignalLabels() []string {
	labels := make([]string, len(er.hdr.Signals))
	for i, sig := range er.hdr.Signals {
		labels[i] = sig.Label
	}
	return labels
}

// Truncated reports whether the last ReadSignals call ran out of data before
// the declared number of data records.
func (er *Reader) Truncated() bool {
	return er.truncated
}

// ReadSignals reads every data record and returns the calibrated samples in
// frame-major order: one vector per sample index, holding a value for every
// signal. Signals that run out of samples early are padded with zeros and the
// number of frames follows the first signal.
//
// Truncated data is not an error, all complete samples read so far are
// returned and Truncated reports true.
func (er *Reader) ReadSignals() ([][]float64, error) {
	if _, err := er.r.Seek(int64(er.hdr.HeaderBytes), io.SeekStart); err != nil {
		return nil, fmt.Errorf("error seeking to data records: %w", err)
	}
	br := bufio.NewReader(er.r)

	signals := make([][]float64, len(er.hdr.Signals))
	for i, sig := range er.hdr.Signals {
		signals[i] = make([]float64, 0, min(sig.SamplesPerRecord*er.hdr.DataRecords, maxPrealloc))
	}

	er.truncated = false
	buf := make([]byte, 2)

records:
	for record := 0; record < er.hdr.DataRecords; record++ {
		for i, sig := range er.hdr.Signals {
			for j := 0; j < sig.SamplesPerRecord; j++ {
				if _, err := io.ReadFull(br, buf); err != nil {
					er.truncated = true
					break records
				}
				digital := int16(binary.LittleEndian.Uint16(buf))
				signals[i] = append(signals[i], DigitalToPhysical(digital, sig))
			}
		}
	}

	return transpose(signals), nil
}

// SignalReader reads continuous signal data from an EDF/EDF+ file.
type SignalReader struct {
	r                io.ReadSeeker
	hdr              *Header
	signalIndex      int // Index of the signal to read
	currentRecord    int // Current record being processed
	currentSample    int // Current sample in the record
	recordSize       int // Total size of one data record in bytes
	signalOffset     int // Byte offset of the signal in a record
	samplesPerRecord int // Number of samples per record for the signal
}

// Signal creates a new SignalReader for a specified signal index.
func (er *Reader) Signal(signalIndex int) (*SignalReader, error) {
	if signalIndex < 0 || signalIndex >= len(er.hdr.Signals) {
		return nil, fmt.Errorf("signal index %d out of range", signalIndex)
	}

	signalOffset := 0
	for _, sig := range er.hdr.Signals[:signalIndex] {
		signalOffset += sig.SamplesPerRecord * 2
	}

	return &SignalReader{
		r:                er.r,
		hdr:              er.hdr,
		signalIndex:      signalIndex,
		recordSize:       er.hdr.RecordSamples() * 2,
		signalOffset:     signalOffset,
		samplesPerRecord: er.hdr.Signals[signalIndex].SamplesPerRecord,
	}, nil
}

// Read fills the provided float64 slice with the physical values from the
// signal. It returns io.EOF once every declared data record has been read.
func (sr *SignalReader) Read(data []float64) (int, error) {
	if sr.samplesPerRecord == 0 {
		return 0, io.EOF
	}

	signal := sr.hdr.Signals[sr.signalIndex]
	buf := make([]byte, 2)

	n := 0
	for n < len(data) {
		if sr.currentRecord >= sr.hdr.DataRecords {
			return n, io.EOF
		}

		pos := int64(sr.hdr.HeaderBytes) +
			int64(sr.currentRecord)*int64(sr.recordSize) +
			int64(sr.signalOffset) +
			int64(sr.currentSample*2)
		if _, err := sr.r.Seek(pos, io.SeekStart); err != nil {
			return n, fmt.Errorf("error seeking to position: %w", err)
		}

		if _, err := io.ReadFull(sr.r, buf); err != nil {
			return n, fmt.Errorf("error reading sample data: %w", err)
		}
		data[n] = DigitalToPhysical(int16(binary.LittleEndian.Uint16(buf)), signal)
		n++

		sr.currentSample++
		if sr.currentSample >= sr.samplesPerRecord {
			sr.currentSample = 0
			sr.currentRecord++
		}
	}

	return n, nil
}

// DigitalToPhysical converts a digital value to a physical value using the
// calibration of the signal. The result is 0 when the digital range is empty.
func DigitalToPhysical(digital int16, sig Signal) float64 {
	if sig.DigitalMax == sig.DigitalMin {
		return 0
	}
	normalized := (float64(digital) - float64(sig.DigitalMin)) / float64(sig.DigitalMax-sig.DigitalMin)
	return sig.PhysicalMin + normalized*(sig.PhysicalMax-sig.PhysicalMin)
}

func transpose(signals [][]float64) [][]float64 {
	if len(signals) == 0 || len(signals[0]) == 0 {
		return nil
	}

	frames := make([][]float64, len(signals[0]))
	for i := range frames {
		frame := make([]float64, len(signals))
		for j, samples := range signals {
			if i < len(samples) {
				frame[j] = samples[i]
			}
		}
		frames[i] = frame
	}
	return frames
}

// fieldReader reads fixed-width ASCII fields, remembering the first error so
// a whole block of fields can be checked at once.
type fieldReader struct {
	r   io.Reader
	err error
}

func (fr *fieldReader) text(width int) string {
	if fr.err != nil {
		return ""
	}
	b := make([]byte, width)
	if _, err := io.ReadFull(fr.r, b); err != nil {
		fr.err = err
		return ""
	}
	return strings.TrimSpace(string(b))
}

func (fr *fieldReader) column(count, width int) []string {
	values := make([]string, count)
	for i := range values {
		values[i] = fr.text(width)
	}
	return values
}

func (h *Header) intField(name, s string, def, lo, hi int) int {
	i, err := strconv.Atoi(s)
	if err != nil || i < lo || i > hi {
		h.Defaulted = append(h.Defaulted, name)
		return def
	}
	return i
}

func (h *Header) floatField(name, s string, def float64) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		h.Defaulted = append(h.Defaulted, name)
		return def
	}
	return f
}

// Longest record duration representable as a time.Duration, in seconds.
const maxRecordSeconds = float64(math.MaxInt64 / time.Second)

func (h *Header) durationField(name, s string) time.Duration {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || !(f > 0) || f > maxRecordSeconds {
		h.Defaulted = append(h.Defaulted, name)
		return DefaultRecordDuration
	}
	d := time.Duration(f * float64(time.Second))
	if d <= 0 {
		h.Defaulted = append(h.Defaulted, name)
		return DefaultRecordDuration
	}
	return d
}
