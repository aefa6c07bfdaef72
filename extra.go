// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package ziplint

import (
	"encoding/binary"
	"time"
)

// ExtraField is one tag+length+payload record from a header's extra field.
// Unrecognized tags are retained verbatim rather than dropped, so an analysis
// consumer sees exactly what the archive carries.
type ExtraField struct {
	// Tag is the 16-bit record identifier
	Tag uint16

	// Data is the record payload, exactly as stored
	Data []byte
}

// parseExtraFields splits extra into its records. A record whose declared
// length overruns the remaining bytes is retained with the bytes that are
// actually there; the walk then stops.
func parseExtraFields(extra []byte) []ExtraField {
	var fields []ExtraField
	for len(extra) >= 4 {
		tag := binary.LittleEndian.Uint16(extra)
		size := int(binary.LittleEndian.Uint16(extra[2:]))
		extra = extra[4:]
		if size > len(extra) {
			fields = append(fields, ExtraField{Tag: tag, Data: extra})
			return fields
		}
		fields = append(fields, ExtraField{Tag: tag, Data: extra[:size]})
		extra = extra[size:]
	}
	if len(extra) > 0 {
		// trailing bytes too short to be a record header
		fields = append(fields, ExtraField{Data: extra})
	}
	return fields
}

// zip64Sentinels records which 32-bit header fields were saturated and
// therefore expect a 64-bit value in the zip64 extra field. The zip64 payload
// stores values for saturated fields only, in a fixed order.
type zip64Sentinels struct {
	uncompressedSize bool
	compressedSize   bool
	headerOffset     bool
	diskStart        bool
}

func (s zip64Sentinels) any() bool {
	return s.uncompressedSize || s.compressedSize || s.headerOffset || s.diskStart
}

// applyZip64 resolves saturated fields on e from a zip64 extra field payload.
// It returns false when the payload is too short for the values the header
// demands, in which case the sentinels stay in place.
func applyZip64(e *Entry, data []byte, need zip64Sentinels) bool {
	b := readBuf(data)
	if need.uncompressedSize {
		if len(b) < 8 {
			return false
		}
		e.UncompressedSize = int64(b.uint64())
	}
	if need.compressedSize {
		if len(b) < 8 {
			return false
		}
		e.CompressedSize = int64(b.uint64())
	}
	if need.headerOffset {
		if len(b) < 8 {
			return false
		}
		e.HeaderOffset = int64(b.uint64())
	}
	if need.diskStart {
		if len(b) < 4 {
			return false
		}
		e.DiskStart = b.uint32()
	}
	e.Zip64 = true
	return true
}

// ntfsTimeToTime converts an NTFS timestamp (100ns ticks since 1601) into a
// time.Time.
func ntfsTimeToTime(ticks uint64) time.Time {
	secs := int64(ticks / 1e7)
	nsec := int64(ticks%1e7) * 100
	return time.Unix(secs-11644473600, nsec).UTC()
}

// applyTimestampExtras overrides the MS-DOS timestamp on e with the higher
// resolution timestamps stored in NTFS or extended timestamp extra fields.
func applyTimestampExtras(e *Entry, f ExtraField) {
	switch f.Tag {
	case extraNTFSID:
		// reserved uint32, then attribute list; attribute 1 holds the times
		b := readBuf(f.Data)
		if len(b) < 4 {
			return
		}
		b.skip(4)
		for len(b) >= 4 {
			attrTag := b.uint16()
			attrSize := int(b.uint16())
			if attrSize > len(b) {
				return
			}
			attr := readBuf(b[:attrSize])
			b.skip(attrSize)
			if attrTag != 1 || attrSize < 24 {
				continue
			}
			e.Modified = ntfsTimeToTime(attr.uint64())
			e.Accessed = ntfsTimeToTime(attr.uint64())
			e.Created = ntfsTimeToTime(attr.uint64())
		}
	case extraExtTimeID:
		b := readBuf(f.Data)
		if len(b) < 1 {
			return
		}
		flags := b[0]
		b.skip(1)
		// flag bits: 1 mtime, 2 atime, 4 ctime; central directory headers
		// usually carry only the mtime even when atime/ctime bits are set
		if flags&1 != 0 && len(b) >= 4 {
			e.Modified = time.Unix(int64(int32(b.uint32())), 0).UTC()
		}
		if flags&2 != 0 && len(b) >= 4 {
			e.Accessed = time.Unix(int64(int32(b.uint32())), 0).UTC()
		}
		if flags&4 != 0 && len(b) >= 4 {
			e.Created = time.Unix(int64(int32(b.uint32())), 0).UTC()
		}
	}
}

// applyUnixExtras fills uid/gid from the Info-ZIP Unix extra field variants.
func applyUnixExtras(e *Entry, f ExtraField) {
	switch f.Tag {
	case extraUnixID:
		// atime, mtime uint32, then uid, gid uint16
		b := readBuf(f.Data)
		if len(b) < 12 {
			return
		}
		b.skip(4)
		e.Modified = time.Unix(int64(int32(b.uint32())), 0).UTC()
		e.UID = int64(b.uint16())
		e.GID = int64(b.uint16())
	case extraNewUnixID:
		b := readBuf(f.Data)
		if len(b) < 2 {
			return
		}
		if version := b[0]; version != 1 {
			return
		}
		b.skip(1)
		uidSize := int(b[0])
		b.skip(1)
		if uidSize > len(b) {
			return
		}
		e.UID = littleEndianID(b[:uidSize])
		b.skip(uidSize)
		if len(b) < 1 {
			return
		}
		gidSize := int(b[0])
		b.skip(1)
		if gidSize > len(b) {
			return
		}
		e.GID = littleEndianID(b[:gidSize])
	}
}

// littleEndianID reads a variable-width little-endian id, capped at 8 bytes.
func littleEndianID(b []byte) int64 {
	var v uint64
	if len(b) > 8 {
		b = b[:8]
	}
	for i, c := range b {
		v |= uint64(c) << (8 * i)
	}
	return int64(v)
}
