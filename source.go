// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package ziplint

import (
	"bytes"
	"io"
	"os"
)

// Source is the byte source contract consumed by the parser: random-access
// reads of byte windows plus a known total size. A Source may be backed by a
// memory buffer, a file handle, or a partially-received network stream; the
// parser never writes through it and never assumes a read completes
// immediately.
type Source interface {
	io.ReaderAt
	Size() int64
}

type bytesSource struct {
	*bytes.Reader
}

func (s bytesSource) Size() int64 {
	return s.Reader.Size()
}

// NewBytesSource returns a Source backed by an in-memory buffer.
func NewBytesSource(data []byte) Source {
	return bytesSource{bytes.NewReader(data)}
}

type readerAtSource struct {
	io.ReaderAt
	size int64
}

func (s readerAtSource) Size() int64 {
	return s.size
}

// NewReaderAtSource returns a Source reading from ra with the given total size.
func NewReaderAtSource(ra io.ReaderAt, size int64) Source {
	return readerAtSource{ReaderAt: ra, size: size}
}

// NewFileSource returns a Source backed by an open file handle.
func NewFileSource(f *os.File) (Source, error) {
	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return readerAtSource{ReaderAt: f, size: stat.Size()}, nil
}

// readFull reads exactly len(p) bytes from src at off. It maps short reads at
// the end of the source to a [TruncatedError] for the named structure.
func readFull(src Source, off int64, p []byte, structure string) error {
	n, err := src.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF || err == nil {
		return &TruncatedError{Structure: structure, Offset: off, Need: int64(len(p)), Have: int64(n)}
	}
	return err
}
