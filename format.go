// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package ziplint

import (
	"encoding/binary"
	"fmt"
	"io/fs"
	"time"
)

// Fixed record sizes and signatures from the zip application note.
const (
	fileHeaderLen       = 30 // + filename + extra
	directoryHeaderLen  = 46 // + filename + extra + comment
	directoryEndLen     = 22 // + comment
	directory64LocLen   = 20
	directory64EndLen   = 56 // + extensible data
	dataDescriptorLen   = 16 // four uint32: descriptor signature, crc32, compressed size, size
	dataDescriptor64Len = 24 // descriptor with 8 byte sizes

	fileHeaderSignature      = 0x04034b50
	directoryHeaderSignature = 0x02014b50
	directoryEndSignature    = 0x06054b50
	directory64LocSignature  = 0x07064b50
	directory64EndSignature  = 0x06064b50
	dataDescriptorSignature  = 0x08074b50

	// maxCommentLen bounds the backward scan for the end of central
	// directory record: the record itself plus the largest comment a uint16
	// length can declare.
	maxCommentLen = 1<<16 - 1

	// sentinel values indicating the real value lives in a zip64 field
	sentinel16 = 0xffff
	sentinel32 = 0xffffffff
)

// Extra field tags decoded by this package. Unrecognized tags are retained verbatim.
const (
	extraZip64ID   = 0x0001 // zip64 extended information
	extraNTFSID    = 0x000a // NTFS timestamps
	extraUnixID    = 0x000d // Info-ZIP Unix (original)
	extraExtTimeID = 0x5455 // extended timestamp
	extraNewUnixID = 0x7875 // Info-ZIP new Unix (uid/gid)
)

// General purpose bit flags.
const (
	flagEncrypted      = 1 << 0 // entry data is encrypted
	flagDataDescriptor = 1 << 3 // sizes and crc32 follow the data
	flagUTF8           = 1 << 11 // name and comment are utf-8
)

// Method is a compression method identifier as stored in zip headers.
type Method uint16

// Compression methods this package knows by name. Decoders are registered
// per method and independently toggleable; see [WithDecompressor].
const (
	Store     Method = 0
	Deflate   Method = 8
	Deflate64 Method = 9
	Bzip2     Method = 12
	Lzma      Method = 14
	Zstd      Method = 93
	Xz        Method = 95
)

func (m Method) String() string {
	switch m {
	case Store:
		return "store"
	case Deflate:
		return "deflate"
	case Deflate64:
		return "deflate64"
	case Bzip2:
		return "bzip2"
	case Lzma:
		return "lzma"
	case Zstd:
		return "zstd"
	case Xz:
		return "xz"
	}
	return fmt.Sprintf("unknown (%d)", uint16(m))
}

// Creator OS identifiers from the "version made by" high byte.
const (
	creatorFAT    = 0
	creatorUnix   = 3
	creatorNTFS   = 11
	creatorVFAT   = 14
	creatorMacOSX = 19
)

// readBuf is a little-endian cursor over a byte slice. Callers are expected
// to have bounds-checked the slice up front.
type readBuf []byte

func (b *readBuf) uint16() uint16 {
	v := binary.LittleEndian.Uint16(*b)
	*b = (*b)[2:]
	return v
}

func (b *readBuf) uint32() uint32 {
	v := binary.LittleEndian.Uint32(*b)
	*b = (*b)[4:]
	return v
}

func (b *readBuf) uint64() uint64 {
	v := binary.LittleEndian.Uint64(*b)
	*b = (*b)[8:]
	return v
}

func (b *readBuf) skip(n int) *readBuf {
	*b = (*b)[n:]
	return b
}

// msDosTimeToTime converts an MS-DOS date and time into a time.Time.
// The resolution is 2s; the timezone is unspecified and taken as UTC.
func msDosTimeToTime(dosDate, dosTime uint16) time.Time {
	return time.Date(
		int(dosDate>>9+1980),
		time.Month(dosDate>>5&0xf),
		int(dosDate&0x1f),
		int(dosTime>>11),
		int(dosTime>>5&0x3f),
		int(dosTime&0x1f*2),
		0,
		time.UTC,
	)
}

// Unix permission and type bits as stored in the external attributes high word.
const (
	sIFMT   = 0xf000
	sIFSOCK = 0xc000
	sIFLNK  = 0xa000
	sIFREG  = 0x8000
	sIFBLK  = 0x6000
	sIFDIR  = 0x4000
	sIFCHR  = 0x2000
	sIFIFO  = 0x1000
	sISUID  = 0x800
	sISGID  = 0x400
	sISVTX  = 0x200

	msdosDir      = 0x10
	msdosReadOnly = 0x01
)

func unixModeToFileMode(m uint32) fs.FileMode {
	mode := fs.FileMode(m & 0777)
	switch m & sIFMT {
	case sIFBLK:
		mode |= fs.ModeDevice
	case sIFCHR:
		mode |= fs.ModeDevice | fs.ModeCharDevice
	case sIFDIR:
		mode |= fs.ModeDir
	case sIFIFO:
		mode |= fs.ModeNamedPipe
	case sIFLNK:
		mode |= fs.ModeSymlink
	case sIFSOCK:
		mode |= fs.ModeSocket
	}
	if m&sISGID != 0 {
		mode |= fs.ModeSetgid
	}
	if m&sISUID != 0 {
		mode |= fs.ModeSetuid
	}
	if m&sISVTX != 0 {
		mode |= fs.ModeSticky
	}
	return mode
}

func msdosModeToFileMode(m uint32) fs.FileMode {
	var mode fs.FileMode
	if m&msdosDir != 0 {
		mode = fs.ModeDir | 0777
	} else {
		mode = 0666
	}
	if m&msdosReadOnly != 0 {
		mode &^= 0222
	}
	return mode
}
