// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package ziplint

import (
	"encoding/binary"
)

// directoryEnd is the raw end of central directory record before zip64
// reconciliation. All values are as stored, sentinels included.
type directoryEnd struct {
	offset        int64
	diskNumber    uint16
	directoryDisk uint16
	recordsOnDisk uint16
	records       uint16
	directorySize uint32
	directoryOff  uint32
	commentLen    uint16
	comment       []byte
}

// saturated reports whether any 32-bit field holds the all-ones sentinel and
// the real value is expected in a zip64 record.
func (d *directoryEnd) saturated() bool {
	return d.diskNumber == sentinel16 ||
		d.directoryDisk == sentinel16 ||
		d.recordsOnDisk == sentinel16 ||
		d.records == sentinel16 ||
		d.directorySize == sentinel32 ||
		d.directoryOff == sentinel32
}

// findDirectoryEnd scans block backward for the end of central directory
// signature. block is the trailing window of the source; base is the file
// offset of block[0] and size the total source size.
//
// A comment can contain a spoofed signature, so a candidate is only taken
// outright when its declared comment length reaches exactly to end-of-file.
// Scanning backward, the first such candidate is the one closest to the true
// end. When no candidate lines up exactly (trailing junk was appended after
// the archive), the closest-to-end candidate whose record still fits inside
// the source is used instead.
func findDirectoryEnd(block []byte, base, size int64) (*directoryEnd, error) {
	fallback := int64(-1)
	for p := int64(len(block)) - directoryEndLen; p >= 0; p-- {
		if binary.LittleEndian.Uint32(block[p:]) != directoryEndSignature {
			continue
		}
		commentLen := int64(binary.LittleEndian.Uint16(block[p+20:]))
		switch end := base + p + directoryEndLen + commentLen; {
		case end == size:
			return parseDirectoryEnd(block[p:], base+p), nil
		case end < size && fallback < 0:
			fallback = p
		}
	}
	if fallback >= 0 {
		return parseDirectoryEnd(block[fallback:], base+fallback), nil
	}
	return nil, ErrNotArchive
}

// parseDirectoryEnd decodes the fixed record at block[0]. The caller has
// verified that at least directoryEndLen bytes and the declared comment are
// available.
func parseDirectoryEnd(block []byte, offset int64) *directoryEnd {
	b := readBuf(block)
	b.skip(4) // signature
	d := &directoryEnd{
		offset:        offset,
		diskNumber:    b.uint16(),
		directoryDisk: b.uint16(),
		recordsOnDisk: b.uint16(),
		records:       b.uint16(),
		directorySize: b.uint32(),
		directoryOff:  b.uint32(),
		commentLen:    b.uint16(),
	}
	if n := int(d.commentLen); n <= len(b) {
		d.comment = append([]byte(nil), b[:n]...)
	} else {
		// comment truncated by end of source, keep what is there
		d.comment = append([]byte(nil), b...)
	}
	return d
}

// directory64Loc is the zip64 end of central directory locator.
type directory64Loc struct {
	directoryDisk uint32
	recordOffset  int64
	totalDisks    uint32
}

// parseDirectory64Loc decodes the locator immediately preceding the end of
// central directory record. A signature mismatch returns nil: the archive is
// simply not zip64 and that is fine.
func parseDirectory64Loc(block []byte) *directory64Loc {
	if len(block) < directory64LocLen {
		return nil
	}
	b := readBuf(block)
	if b.uint32() != directory64LocSignature {
		return nil
	}
	return &directory64Loc{
		directoryDisk: b.uint32(),
		recordOffset:  int64(b.uint64()),
		totalDisks:    b.uint32(),
	}
}

// directory64End is the zip64 end of central directory record.
type directory64End struct {
	creatorVersion uint16
	readerVersion  uint16
	diskNumber     uint32
	directoryDisk  uint32
	recordsOnDisk  uint64
	records        uint64
	directorySize  uint64
	directoryOff   uint64
}

func parseDirectory64End(block []byte) *directory64End {
	if len(block) < directory64EndLen {
		return nil
	}
	b := readBuf(block)
	if b.uint32() != directory64EndSignature {
		return nil
	}
	b.skip(8) // size of the record itself
	return &directory64End{
		creatorVersion: b.uint16(),
		readerVersion:  b.uint16(),
		diskNumber:     b.uint32(),
		directoryDisk:  b.uint32(),
		recordsOnDisk:  b.uint64(),
		records:        b.uint64(),
		directorySize:  b.uint64(),
		directoryOff:   b.uint64(),
	}
}

// resolveEOCD merges the raw end of central directory record with an optional
// zip64 record into the reconciled [EOCD] summary.
func resolveEOCD(d *directoryEnd, d64 *directory64End) *EOCD {
	eocd := &EOCD{
		Offset:           d.offset,
		DirectoryOffset:  int64(d.directoryOff),
		DirectorySize:    int64(d.directorySize),
		DirectoryRecords: uint64(d.records),
		DiskNumber:       uint32(d.diskNumber),
		DirectoryDisk:    uint32(d.directoryDisk),
		RecordsOnDisk:    uint64(d.recordsOnDisk),
		Comment:          d.comment,
	}
	if d64 == nil {
		return eocd
	}
	eocd.Zip64 = true
	if d.directoryOff == sentinel32 {
		eocd.DirectoryOffset = int64(d64.directoryOff)
	}
	if d.directorySize == sentinel32 {
		eocd.DirectorySize = int64(d64.directorySize)
	}
	if d.records == sentinel16 {
		eocd.DirectoryRecords = d64.records
	}
	if d.recordsOnDisk == sentinel16 {
		eocd.RecordsOnDisk = d64.recordsOnDisk
	}
	if d.diskNumber == sentinel16 {
		eocd.DiskNumber = d64.diskNumber
	}
	if d.directoryDisk == sentinel16 {
		eocd.DirectoryDisk = d64.directoryDisk
	}
	return eocd
}
