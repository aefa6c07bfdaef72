// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package ziplint

import (
	"errors"
	"fmt"
)

// ErrInvalidZip64 is returned when the zip64 end of central directory locator
// points at bytes that are not a zip64 end of central directory record.
var ErrInvalidZip64 = errors.New("ziplint: invalid zip64 end of central directory record")

// Stage identifies how far a [Parser] has progressed. Together with
// [Parser.EntriesDecoded] it is the checkpointable parse state.
type Stage int

const (
	// StageLocateEOCD scans the trailing window for the end of central directory record
	StageLocateEOCD Stage = iota

	// StageZip64Locator probes for a zip64 locator preceding the record
	StageZip64Locator

	// StageZip64Record reads the zip64 end of central directory record
	StageZip64Record

	// StageDirectory decodes central directory headers
	StageDirectory

	// StageDone means the archive result has been produced
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageLocateEOCD:
		return "locate-eocd"
	case StageZip64Locator:
		return "zip64-locator"
	case StageZip64Record:
		return "zip64-record"
	case StageDirectory:
		return "central-directory"
	case StageDone:
		return "done"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// ReadRequest asks the caller to read Length bytes at Offset and hand them to
// [Parser.Feed]. Partial fills are fine; the parser re-requests the remainder.
type ReadRequest struct {
	Offset int64
	Length int64
}

// Parser is an incremental, suspendable structural parser for one archive.
//
// The parser performs no I/O and holds no locks. The caller drives it:
//
//	p := ziplint.NewParser(size)
//	for {
//		if req, ok := p.WantsRead(); ok {
//			// read up to req.Length bytes at req.Offset, from anywhere
//			p.Feed(data)
//		}
//		archive, err := p.Process()
//		if err != nil {
//			return err
//		}
//		if archive != nil {
//			return use(archive)
//		}
//	}
//
// Because all parse state lives in the Parser value rather than on a call
// stack blocked in a read, the loop can be suspended indefinitely between
// steps, e.g. while a network range request is in flight. Parsers for
// different archives share no state.
type Parser struct {
	size  int64
	cfg   *Config
	stage Stage

	// current read window and buffered, unconsumed bytes. The fill position
	// is bufOffset+len(buf): consuming from the front advances bufOffset.
	winEnd    int64
	bufOffset int64
	buf       []byte

	rawEOCD *directoryEnd
	eocd    *EOCD

	entries   []*Entry
	dirEnd    int64
	partial   bool
	resyncing bool
	anomalies []Anomaly
	tracker   rangeTracker

	archive *Archive
}

// NewParser creates a parser for an archive of the given total size.
func NewParser(size int64, opts ...ConfigOption) *Parser {
	p := &Parser{
		size:  size,
		cfg:   NewConfig(opts...),
		stage: StageLocateEOCD,
	}
	start := size - (directoryEndLen + maxCommentLen)
	if start < 0 {
		start = 0
	}
	p.setWindow(start, size)
	return p
}

// Stage returns the parser's current stage.
func (p *Parser) Stage() Stage {
	return p.stage
}

// EntriesDecoded returns the number of central directory entries decoded so far.
func (p *Parser) EntriesDecoded() int {
	return len(p.entries)
}

func (p *Parser) setWindow(start, end int64) {
	p.buf = nil
	p.bufOffset = start
	p.winEnd = end
}

func (p *Parser) fillPos() int64 {
	return p.bufOffset + int64(len(p.buf))
}

// WantsRead reports the next byte window the parser needs. It returns false
// when no read is pending, either because parsing is done or because
// [Parser.Process] can already make progress.
func (p *Parser) WantsRead() (ReadRequest, bool) {
	if p.stage == StageDone || p.size < directoryEndLen {
		return ReadRequest{}, false
	}
	fill := p.fillPos()
	if fill >= p.winEnd {
		return ReadRequest{}, false
	}
	return ReadRequest{Offset: fill, Length: p.winEnd - fill}, true
}

// Feed appends bytes for the pending read request and returns how many were
// accepted. Bytes beyond the requested window are left for the caller.
func (p *Parser) Feed(data []byte) int {
	room := p.winEnd - p.fillPos()
	if room <= 0 {
		return 0
	}
	if int64(len(data)) > room {
		data = data[:room]
	}
	p.buf = append(p.buf, data...)
	return len(data)
}

// Process advances the parser over the buffered bytes. It returns the parsed
// [Archive] when done, or (nil, nil) when the caller should satisfy the next
// read request and call Process again. Errors are caused by the archive's
// structure, never by I/O.
func (p *Parser) Process() (*Archive, error) {
	for {
		switch p.stage {
		case StageLocateEOCD:
			if p.size < directoryEndLen {
				return nil, ErrNotArchive
			}
			if p.fillPos() < p.winEnd {
				return nil, nil
			}
			d, err := findDirectoryEnd(p.buf, p.bufOffset, p.size)
			if err != nil {
				return nil, err
			}
			p.rawEOCD = d
			p.cfg.Logger().Debug("located end of central directory record",
				"offset", d.offset, "records", d.records, "saturated", d.saturated())
			p.tracker.observe(d.offset, directoryEndLen+int64(len(d.comment)), RangeEOCD, "")
			if d.offset >= directory64LocLen {
				p.stage = StageZip64Locator
				p.setWindow(d.offset-directory64LocLen, d.offset)
				continue
			}
			p.beginDirectory(resolveEOCD(d, nil))

		case StageZip64Locator:
			if p.fillPos() < p.winEnd {
				return nil, nil
			}
			loc := parseDirectory64Loc(p.buf)
			if loc == nil {
				// not a zip64 archive, which is fine
				p.beginDirectory(resolveEOCD(p.rawEOCD, nil))
				continue
			}
			p.cfg.Logger().Debug("found zip64 end of central directory locator", "recordOffset", loc.recordOffset)
			p.tracker.observe(p.bufOffset, directory64LocLen, RangeZip64Locator, "")
			if loc.recordOffset < 0 || loc.recordOffset+directory64EndLen > p.size {
				return nil, ErrInvalidZip64
			}
			p.stage = StageZip64Record
			p.setWindow(loc.recordOffset, loc.recordOffset+directory64EndLen)

		case StageZip64Record:
			if p.fillPos() < p.winEnd {
				return nil, nil
			}
			d64 := parseDirectory64End(p.buf)
			if d64 == nil {
				// the locator promised a record here
				return nil, ErrInvalidZip64
			}
			p.tracker.observe(p.bufOffset, directory64EndLen, RangeZip64EOCD, "")
			p.beginDirectory(resolveEOCD(p.rawEOCD, d64))

		case StageDirectory:
			done, err := p.processDirectory()
			if err != nil {
				return nil, err
			}
			if !done {
				return nil, nil
			}
			if err := p.finish(); err != nil {
				return nil, err
			}

		case StageDone:
			return p.archive, nil
		}
	}
}

// beginDirectory validates the reconciled directory bounds and transitions to
// decoding central directory headers.
func (p *Parser) beginDirectory(eocd *EOCD) {
	p.eocd = eocd
	p.stage = StageDirectory

	start := eocd.DirectoryOffset
	end := start + eocd.DirectorySize
	if start < 0 || start > p.size || end < start || end > p.size {
		p.anomalies = append(p.anomalies, Anomaly{
			Kind:  AnomalyDirectoryBounds,
			Entry: -1,
			Detail: fmt.Sprintf("central directory [%d, %d) exceeds archive size %d",
				start, end, p.size),
		})
		if start > p.size {
			start = p.size
		}
		if end > p.size || end < start {
			end = p.size
		}
	}
	p.dirEnd = end
	p.setWindow(start, end)
}

// processDirectory decodes as many central directory headers as the buffered
// bytes allow. It returns true when the directory window is fully accounted for.
func (p *Parser) processDirectory() (bool, error) {
	for {
		remaining := p.dirEnd - p.bufOffset
		if remaining <= 0 {
			return true, nil
		}

		// a suspended resync resumes scanning, never header decode: the bytes
		// at the cursor are known junk and their non-signature must not be
		// mistaken for the end of the directory
		if p.resyncing {
			ok, err := p.resync()
			if err != nil {
				return true, err
			}
			if !ok {
				return false, nil
			}
			continue
		}

		e, consumed, anomalies, err := decodeDirectoryHeader(p.buf, p.bufOffset, len(p.entries), remaining)
		switch {
		case err == nil:
			p.tracker.observe(p.bufOffset, int64(consumed), RangeDirectoryHeader, string(e.RawName))
			p.consume(consumed)
			p.entries = append(p.entries, e)
			p.anomalies = append(p.anomalies, anomalies...)

		case errors.Is(err, errNeedMoreData):
			if p.fillPos() < p.winEnd {
				return false, nil
			}
			// window exhausted mid-record
			return true, p.degradeDirectory(&TruncatedError{
				Structure: "central directory header",
				Offset:    p.bufOffset,
				Need:      int64(directoryHeaderLen),
				Have:      int64(len(p.buf)),
			})

		case errors.Is(err, errSignatureMismatch):
			// normal stop condition after the last decodable header; any
			// unconsumed directory bytes show up as a range gap
			return true, nil

		default:
			var overflow *FieldOverflowError
			if errors.As(err, &overflow) {
				p.anomalies = append(p.anomalies, Anomaly{
					Kind:   AnomalyFieldOverflow,
					Entry:  len(p.entries),
					Detail: overflow.Error(),
				})
				// step past the failed header's signature word so the resync
				// scan cannot land on it again
				p.consume(4)
				p.resyncing = true
				continue
			}
			return true, p.degradeDirectory(err)
		}
	}
}

// resync skips forward to the next buffered central directory header
// signature after a malformed entry. Skipped bytes are left unclaimed so the
// range report surfaces them. It returns false when the scan must suspend for
// more bytes; p.resyncing stays set until a signature is found or the window
// is exhausted.
func (p *Parser) resync() (bool, error) {
	if idx := resyncDirectory(p.buf); idx >= 0 {
		p.consume(idx)
		p.resyncing = false
		return true, nil
	}
	if p.fillPos() < p.winEnd {
		// keep up to 3 bytes in case a signature straddles the boundary
		if keep := 3; len(p.buf) > keep {
			p.consume(len(p.buf) - keep)
		}
		return false, nil
	}
	p.resyncing = false
	err := p.degradeDirectory(&TruncatedError{
		Structure: "central directory",
		Offset:    p.bufOffset,
		Need:      p.dirEnd - p.bufOffset,
		Have:      int64(len(p.buf)),
	})
	p.consume(len(p.buf))
	return true, err
}

// degradeDirectory applies the partial-result policy: keep the entries
// decoded so far and mark the archive partial, or abort the parse when the
// configuration demands it.
func (p *Parser) degradeDirectory(err error) error {
	if !p.cfg.ContinueOnError() {
		return err
	}
	p.cfg.Logger().Warn("central directory decoded partially", "error", err, "entries", len(p.entries))
	p.partial = true
	p.anomalies = append(p.anomalies, Anomaly{
		Kind:   AnomalyPartialDirectory,
		Entry:  -1,
		Detail: err.Error(),
	})
	return nil
}

func (p *Parser) consume(n int) {
	p.buf = p.buf[n:]
	p.bufOffset += int64(n)
}

// finish verifies the entry count, resolves the archive text encoding, and
// assembles the immutable [Archive] result.
func (p *Parser) finish() error {
	if !p.partial {
		expected := p.eocd.DirectoryRecords
		actual := uint64(len(p.entries))
		// non-zip64 archives wrap the 16-bit count at 65536 entries
		if !p.eocd.Zip64 {
			expected &= sentinel16
			actual &= sentinel16
		}
		if expected != actual {
			err := &DirectoryCountError{Expected: p.eocd.DirectoryRecords, Actual: uint64(len(p.entries))}
			if derr := p.degradeDirectory(err); derr != nil {
				return derr
			}
		}
	}

	enc := resolveArchiveEncoding(p.entries, p.cfg.DetectEncoding())
	for _, e := range p.entries {
		p.anomalies = append(p.anomalies, decodeEntryText(e, enc)...)
	}

	comment, ok := enc.decode(p.eocd.Comment, false)
	if !ok {
		p.anomalies = append(p.anomalies, Anomaly{
			Kind:   AnomalyEncoding,
			Entry:  -1,
			Detail: "archive comment bytes are not valid " + enc.label,
		})
	}

	p.archive = &Archive{
		Size:       p.size,
		EOCD:       p.eocd,
		Encoding:   enc.label,
		RawComment: p.eocd.Comment,
		Comment:    comment,
		Entries:    p.entries,
		Partial:    p.partial,
		anomalies:  p.anomalies,
		tracker:    &p.tracker,
		cfg:        p.cfg,
	}
	p.stage = StageDone
	return nil
}
