// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package ziplint

import (
	"io/fs"
	"time"
)

// EOCD summarizes the end of central directory record, with 32-bit sentinel
// fields already reconciled against the zip64 record when one was found.
type EOCD struct {
	// Offset is the position of the end of central directory record
	Offset int64

	// DirectoryOffset and DirectorySize locate the central directory
	DirectoryOffset int64
	DirectorySize   int64

	// DirectoryRecords is the announced number of entries
	DirectoryRecords uint64

	// DiskNumber is the disk this record lives on, DirectoryDisk the disk the
	// central directory starts on, RecordsOnDisk the entry count for this disk
	DiskNumber    uint32
	DirectoryDisk uint32
	RecordsOnDisk uint64

	// Comment is the raw global archive comment
	Comment []byte

	// Zip64 indicates a zip64 end of central directory record was used to
	// override saturated 32-bit fields
	Zip64 bool
}

// Entry is one logical file or directory within the archive, as described by
// its central directory header. The central directory view is authoritative;
// the optional local header view is advisory cross-validation material.
type Entry struct {
	// RawName is the name field exactly as stored. Name is the decoded text,
	// empty if decoding with the resolved encoding failed.
	RawName []byte
	Name    string

	// RawComment and Comment are the per-entry comment field
	RawComment []byte
	Comment    string

	// CreatorVersion is "version made by", ReaderVersion "version needed to extract"
	CreatorVersion uint16
	ReaderVersion  uint16

	// Flags is the general purpose bit flag
	Flags uint16

	// Method is the compression method identifier
	Method Method

	// Modified is the MS-DOS modification timestamp, overridden by an NTFS or
	// extended timestamp extra field when present. Created and Accessed are
	// zero unless such an extra field carries them.
	Modified time.Time
	Created  time.Time
	Accessed time.Time

	// CRC32 is the declared checksum of the uncompressed data
	CRC32 uint32

	// CompressedSize and UncompressedSize are the declared sizes, with zip64
	// extra fields already applied
	CompressedSize   int64
	UncompressedSize int64

	// HeaderOffset is the declared position of the local file header
	HeaderOffset int64

	// DiskStart is the disk the entry starts on
	DiskStart uint32

	// InternalAttrs and ExternalAttrs are the file attribute words; Mode is
	// the file mode derived from them per the creator OS
	InternalAttrs uint16
	ExternalAttrs uint32
	Mode          fs.FileMode

	// UID and GID are Unix owner ids from an Info-ZIP extra field, -1 if absent
	UID int64
	GID int64

	// Extra holds every extra field record, recognized or not
	Extra []ExtraField

	// Zip64 indicates a zip64 extra field was applied to this entry
	Zip64 bool

	index int
	local *LocalHeader
}

// Index returns the entry's position in archive (stored) order.
func (e *Entry) Index() int {
	return e.index
}

// IsDir reports whether the entry describes a directory.
func (e *Entry) IsDir() bool {
	if e.Mode&fs.ModeDir != 0 {
		return true
	}
	n := e.RawName
	return len(n) > 0 && (n[len(n)-1] == '/' || n[len(n)-1] == '\\')
}

// Encrypted reports whether the entry data is encrypted.
func (e *Entry) Encrypted() bool {
	return e.Flags&flagEncrypted != 0
}

// HasDataDescriptor reports whether sizes and checksum were deferred to a
// data descriptor trailing the entry data. The local header size and crc
// fields are placeholders for such entries.
func (e *Entry) HasDataDescriptor() bool {
	return e.Flags&flagDataDescriptor != 0
}

// UTF8 reports whether the entry declares its name and comment as utf-8.
func (e *Entry) UTF8() bool {
	return e.Flags&flagUTF8 != 0
}

// LocalHeader returns the cached local header view, or nil if it has not
// been resolved. Use [Archive.ResolveLocalHeader] to populate it.
func (e *Entry) LocalHeader() *LocalHeader {
	return e.local
}

// LocalHeader is an entry's local file header as read independently of the
// central directory, plus the outcome of cross-validating the two views.
type LocalHeader struct {
	// ReaderVersion is "version needed to extract"
	ReaderVersion uint16

	// Flags is the general purpose bit flag
	Flags uint16

	// Method is the compression method identifier
	Method Method

	// Modified is the MS-DOS modification timestamp
	Modified time.Time

	// CRC32 and the sizes are the locally declared values. For entries with a
	// data descriptor these are placeholders and excluded from comparison.
	CRC32            uint32
	CompressedSize   int64
	UncompressedSize int64

	// RawName is the local name field, which can differ from the central one
	RawName []byte

	// Extra holds the local extra field records
	Extra []ExtraField

	// DataOffset is where the entry's data begins
	DataOffset int64

	// Descriptor is the trailing data descriptor, if the entry declares one
	// and it could be read
	Descriptor *DataDescriptor

	// Divergent is set when any compared field disagrees with the central
	// directory; Divergences names each disagreeing field. Advisory only.
	Divergent   bool
	Divergences []string

	descriptorSpan int64
}

// DataDescriptor holds the deferred sizes and checksum trailing an entry's data.
type DataDescriptor struct {
	CRC32            uint32
	CompressedSize   int64
	UncompressedSize int64
}
