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
	"math"
	"time"
)

type Version string

const (
	// Version0 represents the version of the EDF/EDF+ standard.
	Version0 Version = "0"
)

// Defaults substituted for header fields that fail to parse.
const (
	DefaultHeaderBytes      = 256
	DefaultDataRecords      = 0
	DefaultRecordDuration   = time.Second
	DefaultSignalCount      = 1
	DefaultPhysicalMin      = -2048.0
	DefaultPhysicalMax      = 2047.0
	DefaultDigitalMin       = -2048
	DefaultDigitalMax       = 2047
	DefaultSamplesPerRecord = 360

	// DefaultSampleRate is the nominal ECG sample rate in Hz, used when the
	// header does not describe a usable rate.
	DefaultSampleRate = 360.0
	// MaxSampleRate is the highest rate in Hz accepted from a header.
	MaxSampleRate = 100_000.0
)

// Header represents the EDF/EDF+ file header.
type Header struct {
	Version            Version       // Version of the EDF/EDF+ standard (usually "0")
	PatientID          string        // Identification of the patient
	RecordingID        string        // Identification of the recording session
	StartDate          string        // Start date of the recording (dd.mm.yy)
	StartTime          string        // Start time of the recording (hh.mm.ss)
	HeaderBytes        int           // Number of bytes in the header
	DataFormat         string        // Reserved field, EDF+ stores the format variant here
	DataRecordDuration time.Duration // Duration of a single data record
	DataRecords        int           // Number of data records
	SignalCount        int           // Number of signals in each data record
	Signals            []Signal      // Details of each signal

	// Defaulted lists the header fields that could not be parsed and were
	// replaced by their default value.
	Defaulted []string
}

// Signal represents the characteristics of each signal in the EDF/EDF+ file.
type Signal struct {
	Label             string  // Label of the signal (e.g., ECG MLII)
	TransducerType    string  // Type of transducer used
	PhysicalDimension string  // Physical dimension (e.g., uV, mV)
	PhysicalMin       float64 // Minimum physical value
	PhysicalMax       float64 // Maximum physical value
	DigitalMin        int     // Minimum digital value (int16 range)
	DigitalMax        int     // Maximum digital value (int16 range)
	Prefiltering      string  // Pre-filtering information
	SamplesPerRecord  int     // Number of samples in each data record for this signal
	Reserved          string  // Reserved for future use
}

// Start combines the start date and time fields. The zero time is returned
// when either field is malformed.
func (h *Header) Start() time.Time {
	date, err := time.Parse("02.01.06", h.StartDate)
	if err != nil {
		return time.Time{}
	}
	clock, err := time.Parse("15.04.05", h.StartTime)
	if err != nil {
		return time.Time{}
	}
	return time.Date(date.Year(), date.Month(), date.Day(),
		clock.Hour(), clock.Minute(), clock.Second(), 0, time.UTC)
}

// SetStart fills the start date and time fields from t.
func (h *Header) SetStart(t time.Time) {
	h.StartDate = t.Format("02.01.06")
	h.StartTime = t.Format("15.04.05")
}

// SampleRate is the rate of the first signal in Hz, falling back to
// DefaultSampleRate when the record duration or sample count is not positive
// or the derived rate exceeds MaxSampleRate.
func (h *Header) SampleRate() float64 {
	if len(h.Signals) == 0 || h.DataRecordDuration <= 0 || h.Signals[0].SamplesPerRecord <= 0 {
		return DefaultSampleRate
	}
	rate := float64(h.Signals[0].SamplesPerRecord) / h.DataRecordDuration.Seconds()
	if math.IsInf(rate, 0) || math.IsNaN(rate) || rate > MaxSampleRate {
		return DefaultSampleRate
	}
	return rate
}

// RecordSamples is the total number of samples in one data record.
func (h *Header) RecordSamples() int {
	var n int
	for _, sig := range h.Signals {
		n += sig.SamplesPerRecord
	}
	return n
}
