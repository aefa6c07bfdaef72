// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package ziplint

import (
	"errors"
	"fmt"
)

// ErrNotArchive is returned when no end of central directory signature can be
// found in the trailing scan window. The input is not a zip archive.
var ErrNotArchive = errors.New("ziplint: end of central directory signature not found")

// TruncatedError is returned when a fixed-size structure extends past the end
// of the byte source. It aborts the parse of that structure; if it occurs
// mid-directory the archive result may still contain the earlier entries.
type TruncatedError struct {
	// Structure names the record that could not be read in full
	Structure string

	// Offset is the position the structure was expected at
	Offset int64

	// Need is the number of bytes the structure requires
	Need int64

	// Have is the number of bytes that were available
	Have int64
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("ziplint: truncated %s at offset %d: need %d bytes, have %d", e.Structure, e.Offset, e.Need, e.Have)
}

// FieldOverflowError is returned when a variable-length field declares a
// length that exceeds the remaining bounds of its parent structure. It is
// scoped to a single entry.
type FieldOverflowError struct {
	// Field is the name of the variable-length field
	Field string

	// Declared is the length the header claims
	Declared int

	// Remaining is the number of bytes actually left in the parent structure
	Remaining int64
}

func (e *FieldOverflowError) Error() string {
	return fmt.Sprintf("ziplint: %s length %d exceeds remaining %d bytes", e.Field, e.Declared, e.Remaining)
}

// UnsupportedMethodError is returned when no decode capability is registered
// for an entry's compression method. Entry metadata is still available.
type UnsupportedMethodError struct {
	Method Method
}

func (e *UnsupportedMethodError) Error() string {
	return fmt.Sprintf("ziplint: no decompressor registered for method %s", e.Method)
}

// IntegrityError is returned after an entry's data has been fully decoded and
// the produced stream does not match the declared metadata. It is distinct
// from a structural parse failure.
type IntegrityError struct {
	// Name is the decoded entry name
	Name string

	// ExpectedCRC32 and CRC32 are the declared and computed checksums
	ExpectedCRC32 uint32
	CRC32         uint32

	// ExpectedSize and Size are the declared and produced uncompressed sizes
	ExpectedSize int64
	Size         int64

	// ExpectedCompressedSize and CompressedSize are the declared compressed
	// size and the bytes actually consumed by the decode capability
	ExpectedCompressedSize int64
	CompressedSize         int64
}

func (e *IntegrityError) Error() string {
	if e.ExpectedCRC32 != e.CRC32 {
		return fmt.Sprintf("ziplint: %q: checksum mismatch: declared %08x, computed %08x", e.Name, e.ExpectedCRC32, e.CRC32)
	}
	if e.ExpectedSize != e.Size {
		return fmt.Sprintf("ziplint: %q: size mismatch: declared %d, produced %d", e.Name, e.ExpectedSize, e.Size)
	}
	return fmt.Sprintf("ziplint: %q: compressed size mismatch: declared %d, consumed %d", e.Name, e.ExpectedCompressedSize, e.CompressedSize)
}

// DirectoryCountError is returned when the number of decodable central
// directory headers disagrees with the count the end of central directory
// record announced.
type DirectoryCountError struct {
	Expected uint64
	Actual   uint64
}

func (e *DirectoryCountError) Error() string {
	return fmt.Sprintf("ziplint: central directory announced %d entries, decoded %d", e.Expected, e.Actual)
}

// AnomalyKind classifies a non-fatal finding recorded on the [Archive].
type AnomalyKind string

const (
	// AnomalyDirectoryBounds flags a central directory whose declared
	// offset+size exceeds the archive size.
	AnomalyDirectoryBounds AnomalyKind = "directory-out-of-bounds"

	// AnomalyFieldOverflow flags an entry whose variable-length field claims
	// more bytes than remain in the central directory.
	AnomalyFieldOverflow AnomalyKind = "field-overflow"

	// AnomalySentinelUnresolved flags a saturated 32-bit field with no zip64
	// extra field to resolve it.
	AnomalySentinelUnresolved AnomalyKind = "zip64-sentinel-unresolved"

	// AnomalyDivergentLocalHeader flags an entry whose local file header
	// disagrees with the central directory.
	AnomalyDivergentLocalHeader AnomalyKind = "divergent-local-header"

	// AnomalyEncoding flags a name or comment field that could not be decoded
	// with the resolved encoding. Raw bytes are retained.
	AnomalyEncoding AnomalyKind = "encoding-failure"

	// AnomalyLongName flags an entry whose combined name+extra+comment length
	// exceeds the conventional 65535-byte bound. Advisory only, the entry
	// still parses.
	AnomalyLongName AnomalyKind = "name-exceeds-convention"

	// AnomalyPartialDirectory flags an archive whose central directory could
	// not be decoded in full.
	AnomalyPartialDirectory AnomalyKind = "partial-directory"

	// AnomalyGap flags unexplained bytes between two parsed structures.
	AnomalyGap AnomalyKind = "unexplained-gap"

	// AnomalyOverlap flags two parsed structures claiming the same bytes.
	AnomalyOverlap AnomalyKind = "structure-overlap"
)

// Anomaly is a single non-fatal finding. The parse run records anomalies
// instead of failing, because refusing to report anything about a malformed
// archive would discard the signal the caller is after.
type Anomaly struct {
	// Kind classifies the finding
	Kind AnomalyKind

	// Entry is the index of the affected entry, or -1 for archive-level findings
	Entry int

	// Detail is a human-readable description of the finding
	Detail string
}

func (a Anomaly) String() string {
	if a.Entry >= 0 {
		return fmt.Sprintf("%s (entry %d): %s", a.Kind, a.Entry, a.Detail)
	}
	return fmt.Sprintf("%s: %s", a.Kind, a.Detail)
}
