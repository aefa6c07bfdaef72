// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package ziplint_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	ziplint "github.com/hashicorp/go-ziplint"
)

func TestParseNotAnArchive(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "too small", data: []byte("PK")},
		{name: "no signature", data: bytes.Repeat([]byte{0x42}, 1024)},
		{name: "truncated eocd", data: func() []byte {
			d := buildZip([]zipEntrySpec{{name: "f", data: []byte("x")}}, "")
			return d[:len(d)-4]
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ziplint.Parse(context.Background(), ziplint.NewBytesSource(tt.data))
			if !errors.Is(err, ziplint.ErrNotArchive) {
				t.Fatalf("Parse() error = %v, want ErrNotArchive", err)
			}
		})
	}
}

// A comment that itself contains a well-formed-looking end of central
// directory signature must not displace the real record.
func TestSpoofedSignatureInComment(t *testing.T) {
	spoof := make([]byte, 22)
	copy(spoof, []byte{0x50, 0x4b, 0x05, 0x06})
	spoof[20] = 0xff // the spoofed record's comment length points past EOF
	spoof[21] = 0xff

	data := buildZip([]zipEntrySpec{{name: "real", data: []byte("content")}}, string(spoof))
	a, err := ziplint.Parse(context.Background(), ziplint.NewBytesSource(data))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !bytes.Equal(a.RawComment, spoof) {
		t.Errorf("RawComment = %x, want the spoofed bytes preserved", a.RawComment)
	}
	if len(a.Entries) != 1 || a.Entries[0].Name != "real" {
		t.Fatalf("entries = %+v, want the single real entry", a.Entries)
	}
	if want := int64(len(data) - 22 - len(spoof)); a.EOCD.Offset != want {
		t.Errorf("EOCD offset = %d, want %d", a.EOCD.Offset, want)
	}
}

// Bytes appended after a valid archive must not prevent locating the record;
// they surface as an anomalous gap in the range report instead.
func TestTrailingJunk(t *testing.T) {
	junk := bytes.Repeat([]byte{0x5a}, 64)
	data := append(buildZip([]zipEntrySpec{{name: "f", data: []byte("payload")}}, ""), junk...)

	a, err := ziplint.Parse(context.Background(), ziplint.NewBytesSource(data))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(a.Entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(a.Entries))
	}

	report := a.Ranges()
	found := false
	for _, g := range report.Gaps {
		if g.End == int64(len(data)) && !g.Expected {
			found = true
		}
	}
	if !found {
		t.Errorf("range report gaps = %+v, want an unexpected trailing gap", report.Gaps)
	}
}

func TestArchiveComment(t *testing.T) {
	data := buildZip([]zipEntrySpec{{name: "f", data: []byte("x")}}, "built by tests")
	a, err := ziplint.Parse(context.Background(), ziplint.NewBytesSource(data))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if a.Comment != "built by tests" {
		t.Errorf("Comment = %q, want %q", a.Comment, "built by tests")
	}
}
