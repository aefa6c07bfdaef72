// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package ziplint

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
)

// errNeedMoreData signals that the buffered window does not yet hold a
// complete record. Internal to the decode loop, never surfaced to callers.
var errNeedMoreData = errors.New("need more data")

// errSignatureMismatch signals that the bytes at the cursor are not a central
// directory header. This is the normal stop condition after the last entry.
var errSignatureMismatch = errors.New("no central directory header signature")

// directorySignature is the byte form of directoryHeaderSignature, for resync scans.
var directorySignature = []byte{0x50, 0x4b, 0x01, 0x02}

// decodeDirectoryHeader decodes one central directory file header from buf.
// offset is the absolute position of buf[0], used only for error reporting.
// remaining is the number of bytes left in the declared directory window
// starting at buf[0]; declared variable-length fields are trusted but checked
// against it. buf may hold less than remaining when the window is still
// arriving, which yields [errNeedMoreData].
//
// The returned anomalies are entry-scoped findings that do not prevent the
// entry from being used.
func decodeDirectoryHeader(buf []byte, offset int64, index int, remaining int64) (*Entry, int, []Anomaly, error) {
	if int64(len(buf)) > remaining {
		buf = buf[:remaining]
	}
	if len(buf) < 4 {
		if remaining < 4 {
			return nil, 0, nil, errSignatureMismatch
		}
		return nil, 0, nil, errNeedMoreData
	}
	if binary.LittleEndian.Uint32(buf) != directoryHeaderSignature {
		return nil, 0, nil, errSignatureMismatch
	}
	if remaining < directoryHeaderLen {
		return nil, 0, nil, &TruncatedError{Structure: "central directory header", Offset: offset, Need: directoryHeaderLen, Have: remaining}
	}
	if len(buf) < directoryHeaderLen {
		return nil, 0, nil, errNeedMoreData
	}

	b := readBuf(buf)
	b.skip(4)
	e := &Entry{
		index:          index,
		UID:            -1,
		GID:            -1,
		CreatorVersion: b.uint16(),
		ReaderVersion:  b.uint16(),
		Flags:          b.uint16(),
		Method:         Method(b.uint16()),
	}
	dosTime := b.uint16()
	dosDate := b.uint16()
	e.Modified = msDosTimeToTime(dosDate, dosTime)
	e.CRC32 = b.uint32()
	compressedSize := b.uint32()
	uncompressedSize := b.uint32()
	nameLen := int(b.uint16())
	extraLen := int(b.uint16())
	commentLen := int(b.uint16())
	diskStart := b.uint16()
	e.InternalAttrs = b.uint16()
	e.ExternalAttrs = b.uint32()
	headerOffset := b.uint32()

	total := directoryHeaderLen + nameLen + extraLen + commentLen
	if int64(total) > remaining {
		return nil, 0, nil, &FieldOverflowError{
			Field:     "name+extra+comment",
			Declared:  total - directoryHeaderLen,
			Remaining: remaining - directoryHeaderLen,
		}
	}
	if len(buf) < total {
		return nil, 0, nil, errNeedMoreData
	}

	e.RawName = append([]byte(nil), buf[directoryHeaderLen:directoryHeaderLen+nameLen]...)
	rawExtra := buf[directoryHeaderLen+nameLen : directoryHeaderLen+nameLen+extraLen]
	e.RawComment = append([]byte(nil), buf[directoryHeaderLen+nameLen+extraLen:total]...)

	e.CompressedSize = int64(compressedSize)
	e.UncompressedSize = int64(uncompressedSize)
	e.HeaderOffset = int64(headerOffset)
	e.DiskStart = uint32(diskStart)

	var anomalies []Anomaly

	need := zip64Sentinels{
		uncompressedSize: uncompressedSize == sentinel32,
		compressedSize:   compressedSize == sentinel32,
		headerOffset:     headerOffset == sentinel32,
		diskStart:        diskStart == sentinel16,
	}
	e.Extra = parseExtraFields(rawExtra)
	resolved := !need.any()
	for _, f := range e.Extra {
		switch f.Tag {
		case extraZip64ID:
			if need.any() && applyZip64(e, f.Data, need) {
				resolved = true
			}
		case extraNTFSID, extraExtTimeID:
			applyTimestampExtras(e, f)
		case extraUnixID, extraNewUnixID:
			applyUnixExtras(e, f)
		}
	}
	if !resolved {
		anomalies = append(anomalies, Anomaly{
			Kind:   AnomalySentinelUnresolved,
			Entry:  index,
			Detail: "32-bit field saturated with no usable zip64 extra field",
		})
	}

	// the format's 65535-byte bound on name+extra+comment is advisory only;
	// flag it but keep the entry
	if total-directoryHeaderLen > maxCommentLen {
		anomalies = append(anomalies, Anomaly{
			Kind:   AnomalyLongName,
			Entry:  index,
			Detail: fmt.Sprintf("name+extra+comment is %d bytes", total-directoryHeaderLen),
		})
	}

	e.Mode = entryMode(e)
	return e, total, anomalies, nil
}

// entryMode derives a file mode from the external attributes, interpreted
// per the creator OS in the "version made by" high byte.
func entryMode(e *Entry) fs.FileMode {
	var mode fs.FileMode
	switch e.CreatorVersion >> 8 {
	case creatorUnix, creatorMacOSX:
		mode = unixModeToFileMode(e.ExternalAttrs >> 16)
	case creatorNTFS, creatorVFAT, creatorFAT:
		mode = msdosModeToFileMode(e.ExternalAttrs)
	}
	if n := e.RawName; len(n) > 0 && (n[len(n)-1] == '/' || n[len(n)-1] == '\\') {
		mode |= fs.ModeDir
	}
	return mode
}

// resyncDirectory scans buf for the next central directory header signature.
// The caller has already stepped past the failed header's signature word, so
// the scan starts at buf[0]; a hit there is a genuine candidate, not the
// header that just failed. Returns -1 when no signature is buffered.
func resyncDirectory(buf []byte) int {
	return bytes.Index(buf, directorySignature)
}
