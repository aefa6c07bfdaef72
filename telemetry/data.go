// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package telemetry

import (
	"context"
	"encoding/json"
	"time"
)

// Data is a struct type that holds all telemetry data of a parse run
type Data struct {
	// Anomalies is the number of structural anomalies found in the archive
	Anomalies int64

	// DetectedEncoding is the text encoding resolved for the archive
	DetectedEncoding string

	// Entries is the number of central directory entries
	Entries int64

	// InputSize is the size of the input
	InputSize int64

	// LastParseError is the last error during the parse run
	LastParseError error

	// LocalHeadersRead is the number of local file headers that were resolved
	LocalHeadersRead int64

	// ParseDuration is the time it took to parse the archive
	ParseDuration time.Duration

	// ParseErrors is the number of errors during the parse run
	ParseErrors int64

	// Zip64 indicates that a zip64 end of central directory record was used
	Zip64 bool
}

// String returns a string representation of [Data].
func (m Data) String() string {
	b, _ := json.Marshal(m)
	return string(b)
}

// MarshalJSON implements the [encoding/json.Marshaler] interface.
func (m Data) MarshalJSON() ([]byte, error) {
	var lastError string
	if m.LastParseError != nil {
		lastError = m.LastParseError.Error()
	}

	type Alias Data
	return json.Marshal(&struct {
		LastParseError string `json:"LastParseError"`
		*Alias
	}{
		LastParseError: lastError,
		Alias:          (*Alias)(&m),
	})
}

// TelemetryHook is a function type that performs operations on [Data]
// after a parse run has finished which can be used to submit the [Data]
// to a telemetry service, for example.
type TelemetryHook func(context.Context, *Data)
