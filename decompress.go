// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package ziplint

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash"
	"hash/crc32"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

// Decompressor is a decode capability for one compression method. It wraps
// the entry's raw compressed byte stream into a reader producing the decoded
// bytes. The entry provides method-specific context such as the declared
// uncompressed size.
type Decompressor func(r io.Reader, e *Entry) (io.ReadCloser, error)

// defaultDecompressors returns the stock method registry. Deflate64 has no
// credible Go implementation and therefore no stock decoder; its method
// identifier is still known and a caller can register a capability for it
// with [WithDecompressor].
func defaultDecompressors() map[Method]Decompressor {
	return map[Method]Decompressor{
		Store:   decompressStore,
		Deflate: decompressDeflate,
		Bzip2:   decompressBzip2,
		Lzma:    decompressLzma,
		Zstd:    decompressZstd,
		Xz:      decompressXz,
	}
}

// noopReaderCloser implements io.ReadCloser with a no-op Close method, for
// decoders that expose a bare io.Reader.
type noopReaderCloser struct {
	io.Reader
}

func (n *noopReaderCloser) Close() error {
	return nil
}

func decompressStore(r io.Reader, _ *Entry) (io.ReadCloser, error) {
	return &noopReaderCloser{r}, nil
}

func decompressDeflate(r io.Reader, _ *Entry) (io.ReadCloser, error) {
	return flate.NewReader(r), nil
}

func decompressBzip2(r io.Reader, _ *Entry) (io.ReadCloser, error) {
	return bzip2.NewReader(r, nil)
}

func decompressZstd(r io.Reader, _ *Entry) (io.ReadCloser, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return zr.IOReadCloser(), nil
}

func decompressXz(r io.Reader, _ *Entry) (io.ReadCloser, error) {
	xr, err := xz.NewReader(r)
	if err != nil {
		return nil, err
	}
	return &noopReaderCloser{xr}, nil
}

// decompressLzma unwraps the zip framing around an lzma stream: a 2-byte
// version, a 2-byte properties length, then the properties themselves. The
// classic lzma header the decoder expects is reassembled from those
// properties plus a size field. Flag bit 1 on the entry means the stream ends
// with an end-of-stream marker instead of running to a known size.
func decompressLzma(r io.Reader, e *Entry) (io.ReadCloser, error) {
	var framing [4]byte
	if _, err := io.ReadFull(r, framing[:]); err != nil {
		return nil, fmt.Errorf("lzma framing: %w", err)
	}
	propLen := int(binary.LittleEndian.Uint16(framing[2:]))
	if propLen < 5 {
		return nil, fmt.Errorf("lzma framing: properties length %d too short", propLen)
	}
	props := make([]byte, propLen)
	if _, err := io.ReadFull(r, props); err != nil {
		return nil, fmt.Errorf("lzma properties: %w", err)
	}

	header := make([]byte, 13)
	copy(header, props[:5])
	size := uint64(1<<64 - 1) // unknown, expect an end-of-stream marker
	if e != nil && e.Flags&0x2 == 0 && e.UncompressedSize >= 0 {
		size = uint64(e.UncompressedSize)
	}
	binary.LittleEndian.PutUint64(header[5:], size)

	lr, err := lzma.NewReader(io.MultiReader(bytes.NewReader(header), r))
	if err != nil {
		return nil, err
	}
	return &noopReaderCloser{lr}, nil
}

// countReader counts how many bytes the decode capability actually consumed
// from the compressed range, so the declared compressed size can be verified.
type countReader struct {
	R io.Reader // underlying reader
	N int64     // number of bytes read
}

func (c *countReader) Read(p []byte) (int, error) {
	n, err := c.R.Read(p)
	c.N += int64(n)
	return n, err
}

// checksumReader is the lazy decoded byte sequence handed to callers. It
// accumulates CRC-32 and byte count while being consumed and verifies both
// against the entry's declared values at end of stream. The sequence is
// finite and not restartable; re-invoke [Archive.Open] for another pass.
type checksumReader struct {
	rc         io.ReadCloser
	hash       hash.Hash32
	nread      int64
	entry      *Entry
	compressed *countReader
	err        error // sticky

	// expected values, reconciled across central directory and data descriptor
	wantCRC   uint32
	wantSize  int64
	wantCSize int64
}

func newChecksumReader(rc io.ReadCloser, e *Entry, lh *LocalHeader, compressed *countReader) *checksumReader {
	r := &checksumReader{
		rc:         rc,
		hash:       crc32.NewIEEE(),
		entry:      e,
		compressed: compressed,
		wantCRC:    e.CRC32,
		wantSize:   e.UncompressedSize,
		wantCSize:  e.CompressedSize,
	}
	// deferred values a writer never back-patched into the central directory
	// read as zero there; the trailing data descriptor holds the real ones
	if lh != nil && lh.Descriptor != nil {
		d := lh.Descriptor
		if r.wantCRC == 0 {
			r.wantCRC = d.CRC32
		}
		if r.wantSize == 0 && d.UncompressedSize > 0 {
			r.wantSize = d.UncompressedSize
		}
		if r.wantCSize == 0 && d.CompressedSize > 0 {
			r.wantCSize = d.CompressedSize
		}
	}
	return r
}

func (r *checksumReader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	n, err := r.rc.Read(p)
	r.hash.Write(p[:n])
	r.nread += int64(n)
	if err == nil {
		return n, nil
	}
	if err == io.EOF {
		if verr := r.verify(); verr != nil {
			err = verr
		}
	}
	r.err = err
	return n, err
}

// verify compares the produced stream against the reconciled declared
// metadata. A zero expected checksum with no descriptor to supply one means
// the checksum is unverifiable and only the sizes are checked. A mismatch
// here never implies a structural parse failure.
func (r *checksumReader) verify() error {
	ok := r.nread == r.wantSize &&
		(r.wantCRC == 0 || r.hash.Sum32() == r.wantCRC) &&
		r.compressed.N == r.wantCSize
	if ok {
		return nil
	}
	return &IntegrityError{
		Name:                   r.entry.Name,
		ExpectedCRC32:          r.wantCRC,
		CRC32:                  r.hash.Sum32(),
		ExpectedSize:           r.wantSize,
		Size:                   r.nread,
		ExpectedCompressedSize: r.wantCSize,
		CompressedSize:         r.compressed.N,
	}
}

func (r *checksumReader) Close() error {
	return r.rc.Close()
}
