// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package telemetry_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/hashicorp/go-ziplint/telemetry"
)

// TestDataString tests the String method of the data struct
func TestDataString(t *testing.T) {
	m := telemetry.Data{
		Anomalies:        3,
		DetectedEncoding: "cp437",
		Entries:          12,
		InputSize:        2048,
		LastParseError:   fmt.Errorf("example error"),
		LocalHeadersRead: 12,
		ParseDuration:    time.Duration(5 * time.Millisecond),
		ParseErrors:      1,
		Zip64:            true,
	}

	expected := `{"LastParseError":"example error","Anomalies":3,"DetectedEncoding":"cp437","Entries":12,"InputSize":2048,"LocalHeadersRead":12,"ParseDuration":5000000,"ParseErrors":1,"Zip64":true}`
	if m.String() != expected {
		t.Errorf("Expected '%s', but got '%s'", expected, m.String())
	}
}

// TestDataStringNoError ensures a run without errors serializes an empty string
func TestDataStringNoError(t *testing.T) {
	m := telemetry.Data{Entries: 1}
	expected := `{"LastParseError":"","Anomalies":0,"DetectedEncoding":"","Entries":1,"InputSize":0,"LocalHeadersRead":0,"ParseDuration":0,"ParseErrors":0,"Zip64":false}`
	if m.String() != expected {
		t.Errorf("Expected '%s', but got '%s'", expected, m.String())
	}
}
