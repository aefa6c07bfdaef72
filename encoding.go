// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package ziplint

import (
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

// maxDetectionCorpus caps how many name/comment bytes are fed to the
// statistical detector. Archives with thousands of entries gain nothing from
// feeding more.
const maxDetectionCorpus = 4096

// minDetectionConfidence is the chardet confidence below which the detection
// result is ignored in favor of the code page 437 fallback.
const minDetectionConfidence = 30

// resolvedEncoding is the single text encoding chosen for an archive's
// legacy-encoded names and comments. One archive is assumed to use one
// encoding throughout.
type resolvedEncoding struct {
	// label is the reporting name, e.g. "utf-8" or "cp437"
	label string

	// enc is nil for utf-8
	enc encoding.Encoding
}

var encodingCP437 = resolvedEncoding{label: "cp437", enc: charmap.CodePage437}

// detectable maps chardet charset names to the encodings this package is
// willing to trust. Latin-flavored detections are deliberately absent: DOS
// era archives dominate the legacy space and their box-drawing bytes fool
// Latin detectors, so anything unlisted falls back to code page 437.
var detectable = map[string]resolvedEncoding{
	"Shift_JIS":    {label: "shift_jis", enc: japanese.ShiftJIS},
	"EUC-JP":       {label: "euc-jp", enc: japanese.EUCJP},
	"EUC-KR":       {label: "euc-kr", enc: korean.EUCKR},
	"GB-18030":     {label: "gb18030", enc: simplifiedchinese.GB18030},
	"Big5":         {label: "big5", enc: traditionalchinese.Big5},
	"KOI8-R":       {label: "koi8-r", enc: charmap.KOI8R},
	"windows-1251": {label: "windows-1251", enc: charmap.Windows1251},
}

func allUTF8(entries []*Entry) bool {
	for _, e := range entries {
		if !e.UTF8() {
			return false
		}
	}
	return true
}

// resolveArchiveEncoding picks one encoding for the whole archive. Entries
// with the utf-8 flag contribute nothing; if every entry carries the flag (or
// there are no entries) the archive is utf-8. Otherwise the non-utf-8 name
// and comment bytes form a detection corpus, with code page 437 as the
// fallback when detection is disabled, unconfident, or the corpus is empty.
func resolveArchiveEncoding(entries []*Entry, detect bool) resolvedEncoding {
	if allUTF8(entries) {
		return resolvedEncoding{label: "utf-8"}
	}

	var corpus []byte
	suspicious := false // bytes that read as box-drawing characters in cp437
	feed := func(b []byte) {
		if len(corpus) >= maxDetectionCorpus {
			return
		}
		corpus = append(corpus, b...)
		for _, c := range b {
			if c >= 0xb0 && c <= 0xdf {
				suspicious = true
			}
		}
	}
	for _, e := range entries {
		if e.UTF8() {
			continue
		}
		feed(e.RawName)
		feed(e.RawComment)
		if len(corpus) >= maxDetectionCorpus {
			break
		}
	}

	if !detect || len(corpus) == 0 {
		return encodingCP437
	}

	best, err := chardet.NewTextDetector().DetectBest(corpus)
	if err != nil || best.Confidence < minDetectionConfidence {
		return encodingCP437
	}
	if best.Charset == "UTF-8" {
		// names without the flag can still be valid utf-8
		return resolvedEncoding{label: "utf-8"}
	}
	res, ok := detectable[best.Charset]
	if !ok {
		return encodingCP437
	}
	// Shift-JIS detections on pure-ASCII-plus-punctuation corpora are a known
	// false positive for cp437 content. Only trust it when bytes outside the
	// cp437 box-drawing range say a DOS name is implausible.
	if res.label == "shift_jis" && !suspicious {
		return encodingCP437
	}
	return res
}

// decode decodes raw per the resolved encoding. utf8Flagged marks fields
// whose header declares utf-8 regardless of the archive encoding; those are
// decoded strictly. The second return value is false when decoding failed and
// the caller should retain the raw bytes.
func (r resolvedEncoding) decode(raw []byte, utf8Flagged bool) (string, bool) {
	if len(raw) == 0 {
		return "", true
	}
	if utf8Flagged || r.enc == nil {
		if !utf8.Valid(raw) {
			return "", false
		}
		return string(raw), true
	}
	decoded, err := r.enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", false
	}
	// multibyte decoders substitute U+FFFD for invalid sequences instead of
	// erroring; any substitution marks the field undecodable
	if strings.ContainsRune(string(decoded), utf8.RuneError) {
		return "", false
	}
	return string(decoded), true
}

// decodeEntryText fills the decoded name and comment on e, returning an
// anomaly per field that could not be decoded. Raw bytes are always retained.
func decodeEntryText(e *Entry, enc resolvedEncoding) []Anomaly {
	var anomalies []Anomaly

	name, ok := enc.decode(e.RawName, e.UTF8())
	e.Name = name
	if !ok {
		anomalies = append(anomalies, Anomaly{
			Kind:   AnomalyEncoding,
			Entry:  e.index,
			Detail: "name bytes are not valid " + enc.fieldLabel(e),
		})
	}

	comment, ok := enc.decode(e.RawComment, e.UTF8())
	e.Comment = comment
	if !ok {
		anomalies = append(anomalies, Anomaly{
			Kind:   AnomalyEncoding,
			Entry:  e.index,
			Detail: "comment bytes are not valid " + enc.fieldLabel(e),
		})
	}
	return anomalies
}

func (r resolvedEncoding) fieldLabel(e *Entry) string {
	if e.UTF8() {
		return "utf-8"
	}
	return r.label
}
