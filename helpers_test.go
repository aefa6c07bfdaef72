// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package ziplint_test

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
)

// zipEntrySpec describes one entry of a hand-built test archive. The builder
// writes exactly the headers described, which makes malformed and divergent
// archives as easy to produce as well-formed ones.
type zipEntrySpec struct {
	name       string
	localName  string // local header name when it should differ, else name
	comment    string
	method     uint16
	flags      uint16
	data       []byte // uncompressed content
	compressed []byte // bytes stored in the archive; nil means data as-is
	badCRC     bool   // corrupt the declared checksum
}

func le16(b *bytes.Buffer, v uint16) { _ = binary.Write(b, binary.LittleEndian, v) }
func le32(b *bytes.Buffer, v uint32) { _ = binary.Write(b, binary.LittleEndian, v) }
func le64(b *bytes.Buffer, v uint64) { _ = binary.Write(b, binary.LittleEndian, v) }

// buildZip assembles a single-disk archive from the entry descriptions, in order,
// followed by the central directory and an end of central directory record
// carrying comment.
func buildZip(entries []zipEntrySpec, comment string) []byte {
	var out bytes.Buffer
	offsets := make([]int64, len(entries))
	crcs := make([]uint32, len(entries))
	stored := make([][]byte, len(entries))

	for i, e := range entries {
		offsets[i] = int64(out.Len())
		crcs[i] = crc32.ChecksumIEEE(e.data)
		if e.badCRC {
			crcs[i]++
		}
		stored[i] = e.compressed
		if stored[i] == nil {
			stored[i] = e.data
		}
		localName := e.localName
		if localName == "" {
			localName = e.name
		}

		le32(&out, 0x04034b50)
		le16(&out, 20)       // version needed
		le16(&out, e.flags)  // general purpose flags
		le16(&out, e.method) // compression method
		le32(&out, 0)        // dos time and date
		if e.flags&0x0008 != 0 {
			le32(&out, 0) // deferred crc and sizes
			le32(&out, 0)
			le32(&out, 0)
		} else {
			le32(&out, crcs[i])
			le32(&out, uint32(len(stored[i])))
			le32(&out, uint32(len(e.data)))
		}
		le16(&out, uint16(len(localName)))
		le16(&out, 0) // extra length
		out.WriteString(localName)
		out.Write(stored[i])
		if e.flags&0x0008 != 0 {
			le32(&out, 0x08074b50)
			le32(&out, crcs[i])
			le32(&out, uint32(len(stored[i])))
			le32(&out, uint32(len(e.data)))
		}
	}

	dirOffset := out.Len()
	for i, e := range entries {
		le32(&out, 0x02014b50)
		le16(&out, 20) // version made by
		le16(&out, 20) // version needed
		le16(&out, e.flags)
		le16(&out, e.method)
		le32(&out, 0) // dos time and date
		le32(&out, crcs[i])
		le32(&out, uint32(len(stored[i])))
		le32(&out, uint32(len(e.data)))
		le16(&out, uint16(len(e.name)))
		le16(&out, 0) // extra length
		le16(&out, uint16(len(e.comment)))
		le16(&out, 0) // disk number start
		le16(&out, 0) // internal attributes
		le32(&out, 0) // external attributes
		le32(&out, uint32(offsets[i]))
		out.WriteString(e.name)
		out.WriteString(e.comment)
	}
	dirSize := out.Len() - dirOffset

	le32(&out, 0x06054b50)
	le16(&out, 0) // this disk
	le16(&out, 0) // directory disk
	le16(&out, uint16(len(entries)))
	le16(&out, uint16(len(entries)))
	le32(&out, uint32(dirSize))
	le32(&out, uint32(dirOffset))
	le16(&out, uint16(len(comment)))
	out.WriteString(comment)

	return out.Bytes()
}

// buildZip64 assembles an archive with one stored entry whose central
// directory sizes are 32 bit sentinels resolved through a zip64 extra field,
// finished by a zip64 end of central directory record and locator.
func buildZip64(name string, data []byte) []byte {
	var out bytes.Buffer
	crc := crc32.ChecksumIEEE(data)

	le32(&out, 0x04034b50)
	le16(&out, 45)
	le16(&out, 0)
	le16(&out, 0)
	le32(&out, 0)
	le32(&out, crc)
	le32(&out, uint32(len(data)))
	le32(&out, uint32(len(data)))
	le16(&out, uint16(len(name)))
	le16(&out, 0)
	out.WriteString(name)
	out.Write(data)

	dirOffset := out.Len()
	le32(&out, 0x02014b50)
	le16(&out, 45)
	le16(&out, 45)
	le16(&out, 0)
	le16(&out, 0)
	le32(&out, 0)
	le32(&out, crc)
	le32(&out, 0xffffffff) // compressed size in the zip64 extra
	le32(&out, 0xffffffff) // uncompressed size in the zip64 extra
	le16(&out, uint16(len(name)))
	le16(&out, 20) // extra length
	le16(&out, 0)
	le16(&out, 0)
	le16(&out, 0)
	le32(&out, 0)
	le32(&out, 0) // header offset
	out.WriteString(name)
	le16(&out, 0x0001) // zip64 extra field
	le16(&out, 16)
	le64(&out, uint64(len(data)))
	le64(&out, uint64(len(data)))
	dirSize := out.Len() - dirOffset

	recordOffset := out.Len()
	le32(&out, 0x06064b50)
	le64(&out, 44) // size of remaining record
	le16(&out, 45)
	le16(&out, 45)
	le32(&out, 0)
	le32(&out, 0)
	le64(&out, 1)
	le64(&out, 1)
	le64(&out, uint64(dirSize))
	le64(&out, uint64(dirOffset))

	le32(&out, 0x07064b50)
	le32(&out, 0)
	le64(&out, uint64(recordOffset))
	le32(&out, 1)

	le32(&out, 0x06054b50)
	le16(&out, 0)
	le16(&out, 0)
	le16(&out, 0xffff)
	le16(&out, 0xffff)
	le32(&out, 0xffffffff)
	le32(&out, 0xffffffff)
	le16(&out, 0)

	return out.Bytes()
}
