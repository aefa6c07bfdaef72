// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package ziplint

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrLocalHeaderSignature is returned when the bytes at an entry's declared
// local header offset do not start with the local file header signature.
var ErrLocalHeaderSignature = errors.New("ziplint: local file header signature not found at declared offset")

// resolveLocalHeader reads the local file header at e's declared offset,
// independently of the central directory, and cross-validates the two views.
// Divergence is advisory information for integrity analysis, never an error;
// only failing to read or recognize the header at all is.
func resolveLocalHeader(src Source, e *Entry) (*LocalHeader, error) {
	var fixed [fileHeaderLen]byte
	if err := readFull(src, e.HeaderOffset, fixed[:], "local file header"); err != nil {
		return nil, err
	}

	b := readBuf(fixed[:])
	if b.uint32() != fileHeaderSignature {
		return nil, ErrLocalHeaderSignature
	}
	lh := &LocalHeader{
		ReaderVersion: b.uint16(),
		Flags:         b.uint16(),
		Method:        Method(b.uint16()),
	}
	dosTime := b.uint16()
	dosDate := b.uint16()
	lh.Modified = msDosTimeToTime(dosDate, dosTime)
	lh.CRC32 = b.uint32()
	compressedSize := b.uint32()
	uncompressedSize := b.uint32()
	nameLen := int(b.uint16())
	extraLen := int(b.uint16())

	variable := make([]byte, nameLen+extraLen)
	if err := readFull(src, e.HeaderOffset+fileHeaderLen, variable, "local file header name and extra"); err != nil {
		return nil, err
	}
	lh.RawName = variable[:nameLen]
	lh.Extra = parseExtraFields(variable[nameLen:])

	lh.CompressedSize = int64(compressedSize)
	lh.UncompressedSize = int64(uncompressedSize)
	if compressedSize == sentinel32 || uncompressedSize == sentinel32 {
		// the local zip64 extra field carries both sizes
		for _, f := range lh.Extra {
			if f.Tag != extraZip64ID || len(f.Data) < 16 {
				continue
			}
			z := readBuf(f.Data)
			lh.UncompressedSize = int64(z.uint64())
			lh.CompressedSize = int64(z.uint64())
			break
		}
	}

	lh.DataOffset = e.HeaderOffset + fileHeaderLen + int64(nameLen) + int64(extraLen)

	if lh.Flags&flagDataDescriptor != 0 {
		// the central directory's compressed size governs where the entry
		// data ends and the descriptor begins
		lh.Descriptor, lh.descriptorSpan = readDataDescriptor(src, lh.DataOffset+e.CompressedSize, e.Zip64)
	}

	compareLocalHeader(e, lh)
	return lh, nil
}

// readDataDescriptor reads the descriptor trailing the entry data and the
// number of bytes it occupies. The leading signature word is optional per the
// format; zip64 entries carry 8-byte sizes. Best effort: a truncated
// descriptor is simply absent.
func readDataDescriptor(src Source, off int64, zip64 bool) (*DataDescriptor, int64) {
	full := dataDescriptorLen // signature word included
	if zip64 {
		full = dataDescriptor64Len
	}
	buf := make([]byte, full)
	if err := readFull(src, off, buf, "data descriptor"); err != nil {
		// the signature word is optional; retry with the bare form
		buf = buf[:full-4]
		if err := readFull(src, off, buf, "data descriptor"); err != nil {
			return nil, 0
		}
	}

	consumed := int64(full - 4)
	b := readBuf(buf)
	if binary.LittleEndian.Uint32(buf) == dataDescriptorSignature {
		b.skip(4)
		consumed += 4
	} else if len(buf) == full {
		b = b[:full-4]
	}
	if len(b) < full-4 {
		// signature present but the body is cut off by end of source
		return nil, 0
	}
	d := &DataDescriptor{CRC32: b.uint32()}
	if zip64 {
		d.CompressedSize = int64(b.uint64())
		d.UncompressedSize = int64(b.uint64())
	} else {
		d.CompressedSize = int64(b.uint32())
		d.UncompressedSize = int64(b.uint32())
	}
	return d, consumed
}

// compareLocalHeader checks the fields both views declare and records each
// disagreement. Size and checksum fields of entries with a data descriptor
// are placeholders in the local header and excluded from comparison.
func compareLocalHeader(e *Entry, lh *LocalHeader) {
	diverge := func(field string, central, local interface{}) {
		lh.Divergent = true
		lh.Divergences = append(lh.Divergences, fmt.Sprintf("%s: central %v, local %v", field, central, local))
	}

	if !bytes.Equal(e.RawName, lh.RawName) {
		diverge("name", fmt.Sprintf("%q", e.RawName), fmt.Sprintf("%q", lh.RawName))
	}
	if e.Method != lh.Method {
		diverge("method", e.Method, lh.Method)
	}
	if lh.Flags&flagDataDescriptor != 0 {
		return
	}
	if e.CRC32 != lh.CRC32 {
		diverge("crc32", fmt.Sprintf("%08x", e.CRC32), fmt.Sprintf("%08x", lh.CRC32))
	}
	if e.CompressedSize != lh.CompressedSize {
		diverge("compressed size", e.CompressedSize, lh.CompressedSize)
	}
	if e.UncompressedSize != lh.UncompressedSize {
		diverge("uncompressed size", e.UncompressedSize, lh.UncompressedSize)
	}
}
