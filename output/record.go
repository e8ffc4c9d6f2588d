// Package output implements the sharded output writer (§4.8): one
// append-only, size-rotated shard per (node, content-kind) pair, encoding
// each finished document in whichever of the three CLI-selectable formats
// (scheme, json, csv) the run was configured with.
//
// Grounded on the teacher's ingestor/output path for the general shape of
// "buffer writes, flush on a size or time trigger, rotate the backing
// file" — generalized from one access-log output stream to one shard per
// content kind, and on klauspost/compress/gzip for shard rotation, the
// same compressed-rotation library the example pack's log-processing
// repos reach for.
package output

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/docvellum/vellum/abi"
	"github.com/docvellum/vellum/manifest"
	"github.com/docvellum/vellum/pools"
	"github.com/docvellum/vellum/stage"
)

// jsonMarshalLine encodes rec as one compact JSON object terminated by a
// newline, the streaming-writable shape §6 requires of the json format.
func jsonMarshalLine(rec Record) ([]byte, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// Record is the per-document projection written to a shard: the fields
// of a ParseResult and StageResults worth persisting downstream, flattened
// out of the ABI's fixed-layout record and the pipeline's in-memory one.
type Record struct {
	Path        string  `json:"path"`
	ContentKind string  `json:"content_kind"`
	Status      string  `json:"status"`
	WordCount   int64   `json:"word_count"`
	CharCount   int64   `json:"char_count"`
	ParseTimeMs float64 `json:"parse_time_ms"`
	SHA256      string  `json:"sha256"`
	Title       string  `json:"title,omitempty"`
	Author      string  `json:"author,omitempty"`
	MimeType    string  `json:"mime_type,omitempty"`

	Language       string   `json:"language,omitempty"`
	Readability    float64  `json:"readability,omitempty"`
	Keywords       []string `json:"keywords,omitempty"`
	Citations      []string `json:"citations,omitempty"`
	PerceptualHash string   `json:"perceptual_hash,omitempty"`
	MerkleRoot     string   `json:"merkle_root,omitempty"`
	PREMIS         string   `json:"premis,omitempty"`
	RanMask        uint64   `json:"ran_mask"`
}

// BuildRecord projects a ParseResult and Results down to the flat Record
// the output formats encode.
func BuildRecord(entry manifest.Entry, pr *abi.ParseResult, sr stage.Results) Record {
	keywords := make([]string, 0, len(sr.Keywords))
	for _, kw := range sr.Keywords {
		keywords = append(keywords, kw.Token)
	}

	return Record{
		Path:           entry.Path,
		ContentKind:    pr.ContentKind.String(),
		Status:         pr.Status.String(),
		WordCount:      pr.WordCount,
		CharCount:      pr.CharCount,
		ParseTimeMs:    pr.ParseTimeMs,
		SHA256:         pr.GetSHA256(),
		Title:          pr.GetTitle(),
		Author:         pr.GetAuthor(),
		MimeType:       pr.GetMimeType(),
		Language:       sr.Language,
		Readability:    sr.Readability,
		Keywords:       keywords,
		Citations:      sr.Citations,
		PerceptualHash: sr.PerceptualHash,
		MerkleRoot:     sr.MerkleRoot,
		PREMIS:         sr.PREMIS,
		RanMask:        uint64(sr.RanMask),
	}
}

// schemeAtom renders one string S-expression field as (name "value").
// EncodeScheme writes numeric fields inline as (name value), and
// schemeList renders string lists as (name "a" "b" ...).
func schemeAtom(name, value string) string {
	return fmt.Sprintf("(%s %s)", name, schemeQuote(value))
}

func schemeQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

func schemeList(name string, values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = schemeQuote(v)
	}
	return fmt.Sprintf("(%s %s)", name, strings.Join(quoted, " "))
}

// EncodeScheme renders rec as a single S-expression, one per line. The
// strings.Builder doing the assembly is borrowed from pools and returned
// before EncodeScheme returns; the []byte handed back to the caller is an
// independent copy (the []byte conversion copies b.String()), so reusing the
// builder here is safe even though the result outlives this call.
func EncodeScheme(rec Record) []byte {
	b := pools.GetBuilder()
	defer pools.ReturnBuilder(b)
	b.WriteString("(document ")
	b.WriteString(schemeAtom("path", rec.Path))
	b.WriteString(" ")
	b.WriteString(schemeAtom("content-kind", rec.ContentKind))
	b.WriteString(" ")
	b.WriteString(schemeAtom("status", rec.Status))
	b.WriteString(" ")
	b.WriteString(fmt.Sprintf("(word-count %d)", rec.WordCount))
	b.WriteString(" ")
	b.WriteString(fmt.Sprintf("(char-count %d)", rec.CharCount))
	b.WriteString(" ")
	b.WriteString(fmt.Sprintf("(parse-time-ms %g)", rec.ParseTimeMs))
	b.WriteString(" ")
	b.WriteString(schemeAtom("sha256", rec.SHA256))
	if rec.Title != "" {
		b.WriteString(" ")
		b.WriteString(schemeAtom("title", rec.Title))
	}
	if rec.Author != "" {
		b.WriteString(" ")
		b.WriteString(schemeAtom("author", rec.Author))
	}
	if rec.MimeType != "" {
		b.WriteString(" ")
		b.WriteString(schemeAtom("mime-type", rec.MimeType))
	}
	if rec.Language != "" {
		b.WriteString(" ")
		b.WriteString(schemeAtom("language", rec.Language))
	}
	if rec.Readability != 0 {
		b.WriteString(" ")
		b.WriteString(fmt.Sprintf("(readability %g)", rec.Readability))
	}
	if len(rec.Keywords) > 0 {
		b.WriteString(" ")
		b.WriteString(schemeList("keywords", rec.Keywords))
	}
	if len(rec.Citations) > 0 {
		b.WriteString(" ")
		b.WriteString(schemeList("citations", rec.Citations))
	}
	if rec.PerceptualHash != "" {
		b.WriteString(" ")
		b.WriteString(schemeAtom("perceptual-hash", rec.PerceptualHash))
	}
	if rec.MerkleRoot != "" {
		b.WriteString(" ")
		b.WriteString(schemeAtom("merkle-root", rec.MerkleRoot))
	}
	if rec.PREMIS != "" {
		b.WriteString(" ")
		b.WriteString(schemeAtom("premis", rec.PREMIS))
	}
	b.WriteString(" ")
	b.WriteString(fmt.Sprintf("(ran-mask %d)", rec.RanMask))
	b.WriteString(")\n")
	return []byte(b.String())
}

// csvHeader is the fixed column order csvRow follows.
var csvHeader = []string{
	"path", "content_kind", "status", "word_count", "char_count",
	"parse_time_ms", "sha256", "title", "author", "mime_type",
	"language", "readability", "keywords", "citations",
	"perceptual_hash", "merkle_root", "premis", "ran_mask",
}

// csvRow renders rec's fields in csvHeader's order. Keyword and citation
// lists are joined with "|" since the outer format is already comma-
// delimited.
func csvRow(rec Record) []string {
	return []string{
		rec.Path,
		rec.ContentKind,
		rec.Status,
		fmt.Sprintf("%d", rec.WordCount),
		fmt.Sprintf("%d", rec.CharCount),
		fmt.Sprintf("%g", rec.ParseTimeMs),
		rec.SHA256,
		rec.Title,
		rec.Author,
		rec.MimeType,
		rec.Language,
		fmt.Sprintf("%g", rec.Readability),
		strings.Join(rec.Keywords, "|"),
		strings.Join(rec.Citations, "|"),
		rec.PerceptualHash,
		rec.MerkleRoot,
		rec.PREMIS,
		fmt.Sprintf("%d", rec.RanMask),
	}
}
