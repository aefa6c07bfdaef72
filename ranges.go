// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package ziplint

import (
	"fmt"
	"sort"
)

// RangeKind identifies which structure produced a parsed range.
type RangeKind string

const (
	RangeEOCD            RangeKind = "end of central directory record"
	RangeZip64Locator    RangeKind = "zip64 end of central directory locator"
	RangeZip64EOCD       RangeKind = "zip64 end of central directory record"
	RangeDirectoryHeader RangeKind = "central directory header"
	RangeLocalHeader     RangeKind = "local file header"
	RangeEntryData       RangeKind = "entry data"
	RangeDataDescriptor  RangeKind = "data descriptor"
)

// ParsedRange is a [Start, End) byte interval attributed to one recognized
// structure. Detail carries the entry name for per-entry structures.
type ParsedRange struct {
	Start  int64
	End    int64
	Kind   RangeKind
	Detail string
}

func (r ParsedRange) String() string {
	if r.Detail != "" {
		return fmt.Sprintf("[%d, %d) %s (%s)", r.Start, r.End, r.Kind, r.Detail)
	}
	return fmt.Sprintf("[%d, %d) %s", r.Start, r.End, r.Kind)
}

// Gap is a run of bytes between parsed structures that no structure claimed.
type Gap struct {
	Start int64
	End   int64

	// Expected is true for byte runs with a benign explanation: a
	// self-extractor stub or other prefix before the first structure, or
	// sub-4-byte alignment padding. Everything else is a potential hidden
	// payload.
	Expected bool
	Reason   string
}

// Overlap is a pair of parsed structures claiming the same bytes. Always anomalous.
type Overlap struct {
	A ParsedRange
	B ParsedRange
}

// RangeReport is the final sorted view of every byte range the parse run
// attributed to a structure, with gap and overlap classification.
type RangeReport struct {
	Ranges   []ParsedRange
	Gaps     []Gap
	Overlaps []Overlap
}

// Anomalies converts the anomalous gaps and all overlaps into [Anomaly] values.
func (r RangeReport) Anomalies() []Anomaly {
	var out []Anomaly
	for _, g := range r.Gaps {
		if g.Expected {
			continue
		}
		out = append(out, Anomaly{
			Kind:   AnomalyGap,
			Entry:  -1,
			Detail: fmt.Sprintf("%d unexplained bytes at [%d, %d)", g.End-g.Start, g.Start, g.End),
		})
	}
	for _, o := range r.Overlaps {
		out = append(out, Anomaly{
			Kind:   AnomalyOverlap,
			Entry:  -1,
			Detail: fmt.Sprintf("%s overlaps %s", o.A, o.B),
		})
	}
	return out
}

// rangeTracker accepts (range, kind) observations from the other components
// as parsing proceeds. It performs no parsing itself; observations are
// append-only and classified once at report time.
type rangeTracker struct {
	ranges []ParsedRange
}

func (t *rangeTracker) observe(start, length int64, kind RangeKind, detail string) {
	if length <= 0 {
		return
	}
	t.ranges = append(t.ranges, ParsedRange{Start: start, End: start + length, Kind: kind, Detail: detail})
}

// report sorts the observed ranges and classifies the space they leave in a
// source of the given size. Duplicate observations of the identical interval
// (the same structure read twice) are collapsed, not reported as overlaps.
func (t *rangeTracker) report(size int64) RangeReport {
	sorted := make([]ParsedRange, len(t.ranges))
	copy(sorted, t.ranges)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})

	deduped := sorted[:0]
	for _, r := range sorted {
		if n := len(deduped); n > 0 {
			prev := deduped[n-1]
			if prev.Start == r.Start && prev.End == r.End && prev.Kind == r.Kind {
				continue
			}
		}
		deduped = append(deduped, r)
	}

	rep := RangeReport{Ranges: deduped}

	// covering is the range whose end reaches furthest so far
	var covering ParsedRange
	covered := int64(0)
	first := true
	for _, r := range deduped {
		if first {
			if r.Start > 0 {
				rep.Gaps = append(rep.Gaps, classifyGap(0, r.Start, true))
			}
			covering, covered, first = r, r.End, false
			continue
		}
		switch {
		case r.Start < covered:
			rep.Overlaps = append(rep.Overlaps, Overlap{A: covering, B: r})
		case r.Start > covered:
			rep.Gaps = append(rep.Gaps, classifyGap(covered, r.Start, false))
		}
		if r.End > covered {
			covering, covered = r, r.End
		}
	}
	if !first && covered < size {
		rep.Gaps = append(rep.Gaps, classifyGap(covered, size, false))
	}
	return rep
}

func classifyGap(start, end int64, leading bool) Gap {
	g := Gap{Start: start, End: end}
	switch {
	case leading:
		g.Expected = true
		g.Reason = "prefix before first structure, e.g. a self-extractor stub"
	case end-start < 4:
		g.Expected = true
		g.Reason = "alignment padding"
	default:
		g.Reason = "unexplained data"
	}
	return g
}
