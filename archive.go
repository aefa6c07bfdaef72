// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package ziplint

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hashicorp/go-ziplint/telemetry"
)

// ErrEncrypted is returned by [Archive.Open] for entries whose general
// purpose flags declare encryption.
var ErrEncrypted = errors.New("ziplint: entry is encrypted")

// Archive is the immutable result of a completed parse: the reconciled end of
// central directory view, the decoded entries in archive order, and every
// structural anomaly observed along the way. An Archive holds no reference to
// the input bytes; operations that need them take a [Source].
type Archive struct {
	// Size is the total size of the parsed input in bytes
	Size int64

	// EOCD is the end of central directory view, with zip64 values already
	// reconciled per field
	EOCD *EOCD

	// Encoding is the label of the text encoding the name and comment
	// fields were decoded with, such as "utf-8" or "cp437"
	Encoding string

	// RawComment is the archive comment exactly as stored
	RawComment []byte

	// Comment is the decoded archive comment
	Comment string

	// Entries are the central directory entries in stored order
	Entries []*Entry

	// Partial reports that the central directory could not be decoded
	// completely and Entries holds a prefix of it
	Partial bool

	mu        sync.Mutex
	anomalies []Anomaly
	tracker   *rangeTracker
	cfg       *Config
}

// Parse reads src end to end and returns the parsed archive. It is the
// convenience driver around [Parser] for callers whose input is random
// access; streaming or checkpointing callers drive the [Parser] directly.
func Parse(ctx context.Context, src Source, opts ...ConfigOption) (*Archive, error) {
	cfg := NewConfig(opts...)

	// telemetry data collection
	td := &telemetry.Data{InputSize: src.Size()}
	start := time.Now()
	defer func() {
		td.ParseDuration = time.Since(start)
		cfg.TelemetryHook()(ctx, td)
	}()

	p := NewParser(src.Size(), opts...)
	a, err := drive(ctx, p, src)
	if err != nil {
		td.ParseErrors++
		td.LastParseError = err
		return nil, err
	}
	td.Entries = int64(len(a.Entries))
	td.DetectedEncoding = a.Encoding
	td.Zip64 = a.EOCD.Zip64

	if cfg.ResolveLocalHeaders() {
		for _, e := range a.Entries {
			if _, err := a.ResolveLocalHeader(src, e); err != nil {
				cfg.Logger().Warn("failed to resolve local file header",
					"entry", e.Name, "offset", e.HeaderOffset, "error", err)
				td.ParseErrors++
				td.LastParseError = err
				if !cfg.ContinueOnError() {
					return nil, fmt.Errorf("resolve local file header of %q: %w", e.Name, err)
				}
				continue
			}
			td.LocalHeadersRead++
		}
	}

	td.Anomalies = int64(len(a.Anomalies()))
	return a, nil
}

// drive satisfies the parser's read requests from src until it produces an
// archive.
func drive(ctx context.Context, p *Parser, src Source) (*Archive, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if req, ok := p.WantsRead(); ok {
			chunk := make([]byte, req.Length)
			n, err := src.ReadAt(chunk, req.Offset)
			if n == 0 && err != nil {
				return nil, fmt.Errorf("read %d bytes at offset %d: %w", req.Length, req.Offset, err)
			}
			p.Feed(chunk[:n])
		}
		a, err := p.Process()
		if err != nil {
			return nil, err
		}
		if a != nil {
			return a, nil
		}
	}
}

// Anomalies returns the structural anomalies recorded so far. Parsing records
// most of them; resolving local headers and building the range report can add
// more afterwards.
func (a *Archive) Anomalies() []Anomaly {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Anomaly, len(a.anomalies))
	copy(out, a.anomalies)
	return out
}

// Ranges builds the coverage report over every byte range the parse claimed.
// Gaps and overlaps between claimed ranges are classified in the report;
// resolving local headers first makes the report account for entry data too.
func (a *Archive) Ranges() RangeReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tracker.report(a.Size)
}

// ResolveLocalHeader reads and caches the local file header for e, recording
// a divergence anomaly when the local view disagrees with the central
// directory. The cached header is also available via [Entry.LocalHeader].
func (a *Archive) ResolveLocalHeader(src Source, e *Entry) (*LocalHeader, error) {
	a.mu.Lock()
	if e.local != nil {
		lh := e.local
		a.mu.Unlock()
		return lh, nil
	}
	a.mu.Unlock()

	lh, err := resolveLocalHeader(src, e)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if e.local != nil {
		return e.local, nil
	}
	e.local = lh
	a.tracker.observe(e.HeaderOffset, lh.DataOffset-e.HeaderOffset, RangeLocalHeader, string(e.RawName))
	a.tracker.observe(lh.DataOffset, e.CompressedSize, RangeEntryData, string(e.RawName))
	if lh.Descriptor != nil {
		a.tracker.observe(lh.DataOffset+e.CompressedSize, lh.descriptorSpan, RangeDataDescriptor, string(e.RawName))
	}
	if lh.Divergent {
		for _, d := range lh.Divergences {
			a.anomalies = append(a.anomalies, Anomaly{
				Kind:   AnomalyDivergentLocalHeader,
				Entry:  e.Index(),
				Detail: d,
			})
		}
	}
	return lh, nil
}

// Open returns a reader over the entry's decompressed content. The returned
// reader verifies the CRC-32 checksum and the declared sizes as a side effect
// of reading; the error surfacing at EOF is an [*IntegrityError].
func (a *Archive) Open(src Source, e *Entry) (io.ReadCloser, error) {
	if e.Encrypted() {
		return nil, ErrEncrypted
	}
	d := a.cfg.Decompressor(e.Method)
	if d == nil {
		return nil, &UnsupportedMethodError{Method: e.Method}
	}
	lh, err := a.ResolveLocalHeader(src, e)
	if err != nil {
		return nil, fmt.Errorf("resolve local file header of %q: %w", e.Name, err)
	}

	// the central directory is authoritative for the data bounds
	compressed := &countReader{R: io.NewSectionReader(src, lh.DataOffset, e.CompressedSize)}
	rc, err := d(compressed, e)
	if err != nil {
		return nil, fmt.Errorf("open %s entry %q: %w", e.Method, e.Name, err)
	}
	return newChecksumReader(rc, e, lh, compressed), nil
}

// VerifyAll decompresses every non-directory entry and checks its checksum
// and sizes, reading entries concurrently. It returns the first failure,
// which for corrupt entry data is an [*IntegrityError].
func (a *Archive) VerifyAll(ctx context.Context, src Source) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, e := range a.Entries {
		if e.IsDir() || e.Encrypted() {
			continue
		}
		e := e
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rc, err := a.Open(src, e)
			if err != nil {
				return err
			}
			_, err = io.Copy(io.Discard, rc)
			if cerr := rc.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return fmt.Errorf("verify %q: %w", e.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}
