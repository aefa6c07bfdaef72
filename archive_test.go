// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package ziplint_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	ziplint "github.com/hashicorp/go-ziplint"
	"github.com/hashicorp/go-ziplint/telemetry"
)

// createTestZipNormal produces an archive with a directory and a few deflated
// files, written by the standard library writer.
func createTestZipNormal(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	if _, err := w.Create("sub/"); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"test":         "hello world",
		"sub/file":     "nested content",
		"sub/more.txt": "zip archives all the way down",
	}
	for name, content := range files {
		f, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestParseNormal(t *testing.T) {
	data := createTestZipNormal(t)
	a, err := ziplint.Parse(context.Background(), ziplint.NewBytesSource(data))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(a.Entries) != 4 {
		t.Fatalf("Parse() entries = %d, want 4", len(a.Entries))
	}
	if a.Partial {
		t.Error("Parse() partial = true, want false")
	}
	if a.EOCD.DirectoryRecords != 4 {
		t.Errorf("Parse() directory records = %d, want 4", a.EOCD.DirectoryRecords)
	}

	var dir *ziplint.Entry
	for _, e := range a.Entries {
		if e.Name == "sub/" {
			dir = e
		}
	}
	if dir == nil {
		t.Fatal("Parse() did not decode entry sub/")
	}
	if !dir.IsDir() {
		t.Error("IsDir() = false for sub/")
	}
}

func TestParseStoredOrder(t *testing.T) {
	names := []string{"zeta", "alpha", "mike", "bravo"}
	var entries []zipEntrySpec
	for _, n := range names {
		entries = append(entries, zipEntrySpec{name: n, data: []byte(n + " content")})
	}
	data := buildZip(entries, "")

	a, err := ziplint.Parse(context.Background(), ziplint.NewBytesSource(data))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	for i, e := range a.Entries {
		if e.Name != names[i] {
			t.Errorf("entry %d = %q, want %q", i, e.Name, names[i])
		}
		if e.Index() != i {
			t.Errorf("entry %q index = %d, want %d", e.Name, e.Index(), i)
		}
	}
}

func TestParseDeterministic(t *testing.T) {
	data := createTestZipNormal(t)
	first, err := ziplint.Parse(context.Background(), ziplint.NewBytesSource(data))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := ziplint.Parse(context.Background(), ziplint.NewBytesSource(data))
		if err != nil {
			t.Fatalf("Parse() error = %v", err)
		}
		if len(again.Entries) != len(first.Entries) || again.Encoding != first.Encoding {
			t.Fatalf("repeated parse diverged: %d/%s vs %d/%s",
				len(again.Entries), again.Encoding, len(first.Entries), first.Encoding)
		}
		for j := range again.Entries {
			if again.Entries[j].Name != first.Entries[j].Name {
				t.Fatalf("repeated parse entry %d = %q, want %q", j, again.Entries[j].Name, first.Entries[j].Name)
			}
		}
		if len(again.Anomalies()) != len(first.Anomalies()) {
			t.Fatalf("repeated parse anomalies = %d, want %d", len(again.Anomalies()), len(first.Anomalies()))
		}
	}
}

func TestOpenRoundTrip(t *testing.T) {
	data := createTestZipNormal(t)
	src := ziplint.NewBytesSource(data)
	a, err := ziplint.Parse(context.Background(), src)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	for _, e := range a.Entries {
		if e.IsDir() {
			continue
		}
		rc, err := a.Open(src, e)
		if err != nil {
			t.Fatalf("Open(%q) error = %v", e.Name, err)
		}
		content, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("read %q: %v", e.Name, err)
		}
		if err := rc.Close(); err != nil {
			t.Fatalf("close %q: %v", e.Name, err)
		}
		if int64(len(content)) != e.UncompressedSize {
			t.Errorf("%q content = %d bytes, want %d", e.Name, len(content), e.UncompressedSize)
		}
	}
}

func TestVerifyAll(t *testing.T) {
	data := createTestZipNormal(t)
	src := ziplint.NewBytesSource(data)
	a, err := ziplint.Parse(context.Background(), src)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := a.VerifyAll(context.Background(), src); err != nil {
		t.Fatalf("VerifyAll() error = %v", err)
	}
}

func TestVerifyAllCorrupt(t *testing.T) {
	data := buildZip([]zipEntrySpec{
		{name: "payload", data: []byte("some stored bytes that will be flipped"), badCRC: true},
	}, "")
	src := ziplint.NewBytesSource(data)
	a, err := ziplint.Parse(context.Background(), src)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	err = a.VerifyAll(context.Background(), src)
	var integrityError *ziplint.IntegrityError
	if !errors.As(err, &integrityError) {
		t.Fatalf("VerifyAll() error = %v, want IntegrityError", err)
	}
	if integrityError.Name != "payload" {
		t.Errorf("IntegrityError entry = %q, want payload", integrityError.Name)
	}
}

// A writer that never back-patched the deferred checksum into the central
// directory leaves a zero there; verification then holds the data to the
// descriptor's checksum instead of passing everything.
func TestVerifyAllDescriptorCRC(t *testing.T) {
	build := func(t *testing.T) []byte {
		t.Helper()
		data := buildZip([]zipEntrySpec{
			{name: "deferred", flags: 0x0008, data: []byte("descriptor checked body")},
		}, "")
		idx := bytes.Index(data, []byte{0x50, 0x4b, 0x01, 0x02})
		if idx < 0 {
			t.Fatal("no central directory header in fixture")
		}
		for i := 16; i < 20; i++ { // crc field of the central header
			data[idx+i] = 0
		}
		return data
	}

	intact := build(t)
	src := ziplint.NewBytesSource(intact)
	a, err := ziplint.Parse(context.Background(), src)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if a.Entries[0].CRC32 != 0 {
		t.Fatalf("central crc = %08x, want 0", a.Entries[0].CRC32)
	}
	if err := a.VerifyAll(context.Background(), src); err != nil {
		t.Fatalf("VerifyAll() error = %v on intact data", err)
	}

	corrupt := build(t)
	pos := bytes.Index(corrupt, []byte("descriptor checked body"))
	corrupt[pos] ^= 0xff
	src = ziplint.NewBytesSource(corrupt)
	a, err = ziplint.Parse(context.Background(), src)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	err = a.VerifyAll(context.Background(), src)
	var integrityError *ziplint.IntegrityError
	if !errors.As(err, &integrityError) {
		t.Fatalf("VerifyAll() error = %v, want IntegrityError", err)
	}
	if integrityError.ExpectedCRC32 == 0 {
		t.Error("expected checksum = 0, want the descriptor's")
	}
}

func TestOpenUnsupportedMethod(t *testing.T) {
	data := buildZip([]zipEntrySpec{
		{name: "odd", method: 97, data: []byte("x"), compressed: []byte{0x01}},
	}, "")
	src := ziplint.NewBytesSource(data)
	a, err := ziplint.Parse(context.Background(), src)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	_, err = a.Open(src, a.Entries[0])
	var unsupportedError *ziplint.UnsupportedMethodError
	if !errors.As(err, &unsupportedError) {
		t.Fatalf("Open() error = %v, want UnsupportedMethodError", err)
	}
	if unsupportedError.Method != 97 {
		t.Errorf("UnsupportedMethodError method = %d, want 97", unsupportedError.Method)
	}
}

func TestParseTelemetry(t *testing.T) {
	var captured telemetry.Data
	hook := func(_ context.Context, td *telemetry.Data) {
		captured = *td
	}
	data := createTestZipNormal(t)
	a, err := ziplint.Parse(context.Background(), ziplint.NewBytesSource(data),
		ziplint.WithTelemetryHook(hook))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if captured.Entries != int64(len(a.Entries)) {
		t.Errorf("telemetry entries = %d, want %d", captured.Entries, len(a.Entries))
	}
	if captured.InputSize != int64(len(data)) {
		t.Errorf("telemetry input size = %d, want %d", captured.InputSize, len(data))
	}
	if captured.LocalHeadersRead != int64(len(a.Entries)) {
		t.Errorf("telemetry local headers = %d, want %d", captured.LocalHeadersRead, len(a.Entries))
	}
	if captured.DetectedEncoding == "" {
		t.Error("telemetry detected encoding is empty")
	}
	if captured.ParseDuration <= 0 {
		t.Error("telemetry parse duration not recorded")
	}
}

func TestParseContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	data := createTestZipNormal(t)
	if _, err := ziplint.Parse(ctx, ziplint.NewBytesSource(data)); !errors.Is(err, context.Canceled) {
		t.Fatalf("Parse() error = %v, want context.Canceled", err)
	}
}

func TestParseZip64(t *testing.T) {
	content := bytes.Repeat([]byte("zip64 "), 100)
	data := buildZip64("big", content)
	src := ziplint.NewBytesSource(data)
	a, err := ziplint.Parse(context.Background(), src)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !a.EOCD.Zip64 {
		t.Error("EOCD zip64 = false, want true")
	}
	if len(a.Entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(a.Entries))
	}
	e := a.Entries[0]
	if !e.Zip64 {
		t.Error("entry zip64 = false, want true")
	}
	if e.UncompressedSize != int64(len(content)) || e.CompressedSize != int64(len(content)) {
		t.Errorf("entry sizes = %d/%d, want %d", e.UncompressedSize, e.CompressedSize, len(content))
	}
	rc, err := a.Open(src, e)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	got, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := rc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Error("zip64 entry content mismatch")
	}
}
