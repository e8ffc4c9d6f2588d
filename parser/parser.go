// Package parser is the native-parser adapter (§4.1): a polymorphic front
// over variant backends {pdf, image, audio/video, epub, geospatial},
// dispatching by the ContentKind the conduit already determined, and
// producing a fixed-layout abi.ParseResult plus the stage.Document the
// pipeline needs.
//
// Grounded on the teacher's analysis package shape — one function per
// analytical concern, each isolated so a single backend's failure never
// escapes as a panic — generalized here from "one static-trie pass" to
// "one content-kind's extraction backend."
package parser

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"
	"strings"
	"time"

	fitz "github.com/gen2brain/go-fitz"
	"github.com/paulmach/orb/geojson"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/docvellum/vellum/abi"
	"github.com/docvellum/vellum/errs"
	"github.com/docvellum/vellum/stage"
)

// minRasterPDFTextRatio is the extracted-characters-per-page floor below
// which a PDF is treated as raster (scanned) rather than text-native, so
// OCR-confidence knows to run.
const minRasterPDFTextRatio = 20

// Handle is one worker's adapter instance. The teacher's native-parser
// handles are not thread-safe in spec terms (§5): each worker owns one,
// initialized once at worker start. This adapter holds no backend state
// that actually requires per-handle isolation (every backend here is a
// pure function over input bytes), so Handle is a thin marker type kept
// for parity with the ABI's init/parse/free calling convention.
type Handle struct{}

// Init mirrors the ABI's init() -> handle call.
func Init() *Handle { return &Handle{} }

// Free mirrors the ABI's free(handle) call. A nil handle is a no-op
// (§6).
func (h *Handle) Free() {}

// Parse dispatches to the backend matching kind and returns a ParseResult
// plus the parsed Document the stage pipeline consumes. A nil handle
// returns status null-pointer, per §6.
func (h *Handle) Parse(kind abi.ContentKind, path string) (*abi.ParseResult, stage.Document, error) {
	if h == nil {
		res := &abi.ParseResult{Status: abi.StatusNullPointer}
		return res, stage.Document{}, nil
	}

	start := time.Now()
	var (
		res *abi.ParseResult
		doc stage.Document
		err error
	)

	switch kind {
	case abi.ContentPDF, abi.ContentEPUB:
		res, doc, err = parsePDFOrEPUB(path)
	case abi.ContentImage:
		res, doc, err = parseImage(path)
	case abi.ContentGeospatial:
		res, doc, err = parseGeospatial(path)
	case abi.ContentAudio, abi.ContentVideo:
		res, doc, err = parseAVHeader(path, kind)
	default:
		res = &abi.ParseResult{Status: abi.StatusUnsupportedFormat, ContentKind: kind}
		return res, stage.Document{}, nil
	}

	if err != nil {
		res = statusFromError(err, kind)
		return res, stage.Document{}, nil
	}

	res.ContentKind = kind
	res.ParseTimeMs = float64(time.Since(start).Microseconds()) / 1000.0
	return res, doc, nil
}

func statusFromError(err error, kind abi.ContentKind) *abi.ParseResult {
	status := abi.StatusParseError
	if os.IsNotExist(err) {
		status = abi.StatusFileNotFound
	}
	res := &abi.ParseResult{Status: status, ContentKind: kind}
	res.SetErrorMsg(err.Error())
	return res
}

func parsePDFOrEPUB(path string) (*abi.ParseResult, stage.Document, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, stage.Document{}, errs.New(errs.Parse, "parser: open pdf/epub", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	var sb strings.Builder
	for i := 0; i < pageCount; i++ {
		text, err := doc.Text(i)
		if err != nil {
			continue // one unreadable page does not fail the whole document
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	text := sb.String()

	var rawBytes []byte
	isRaster := pageCount > 0 && len(text)/pageCount < minRasterPDFTextRatio
	if isRaster {
		if img, err := doc.Image(0); err == nil {
			var buf bytes.Buffer
			if encErr := jpeg.Encode(&buf, img, nil); encErr == nil {
				rawBytes = buf.Bytes()
			}
		}
	}
	if rawBytes == nil {
		rawBytes, _ = os.ReadFile(path)
	}

	res := &abi.ParseResult{
		Status:    abi.StatusOK,
		PageCount: int32(pageCount),
		WordCount: int64(len(strings.Fields(text))),
		CharCount: int64(len(text)),
	}
	sdoc := stage.Document{
		Text:        text,
		WordCount:   len(strings.Fields(text)),
		RawBytes:    rawBytes,
		IsRasterPDF: isRaster,
		MimeType:    "application/pdf",
	}
	return res, sdoc, nil
}

func parseImage(path string) (*abi.ParseResult, stage.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, stage.Document{}, errs.New(errs.IO, "parser: read image", err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, stage.Document{}, errs.New(errs.Parse, "parser: decode image config", err)
	}
	if cfg.Width < 64 || cfg.Height < 64 {
		res := &abi.ParseResult{Status: abi.StatusParseError}
		res.SetErrorMsg(fmt.Sprintf("image dimensions %dx%d below the 64x64 floor", cfg.Width, cfg.Height))
		return res, stage.Document{}, nil
	}
	res := &abi.ParseResult{Status: abi.StatusOK}
	sdoc := stage.Document{
		RawBytes: raw,
		IsImage:  true,
		MimeType: "image/" + format,
	}
	return res, sdoc, nil
}

func parseGeospatial(path string) (*abi.ParseResult, stage.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, stage.Document{}, errs.New(errs.IO, "parser: read geospatial file", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, stage.Document{}, errs.New(errs.Parse, "parser: decode geojson", err)
	}
	res := &abi.ParseResult{Status: abi.StatusOK, WordCount: int64(len(fc.Features))}
	sdoc := stage.Document{
		Text:      geospatialSummary(fc),
		WordCount: len(fc.Features),
		RawBytes:  raw,
		MimeType:  "application/geo+json",
	}
	return res, sdoc, nil
}

func geospatialSummary(fc *geojson.FeatureCollection) string {
	var sb strings.Builder
	for _, f := range fc.Features {
		if name, ok := f.Properties["name"].(string); ok {
			sb.WriteString(name)
			sb.WriteString(" ")
		}
	}
	return sb.String()
}

// parseAVHeader reads the whole audio/video file into the document's raw
// bytes and reports a fixed MIME type for the kind (audio/mpeg or
// video/mp4). No container header (RIFF, ID3, ftyp) is parsed, so no
// duration is reported and DurationSec stays zero.
func parseAVHeader(path string, kind abi.ContentKind) (*abi.ParseResult, stage.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, stage.Document{}, errs.New(errs.IO, "parser: read av file", err)
	}
	res := &abi.ParseResult{Status: abi.StatusOK}
	mime := "audio/mpeg"
	if kind == abi.ContentVideo {
		mime = "video/mp4"
	}
	sdoc := stage.Document{RawBytes: raw, MimeType: mime}
	return res, sdoc, nil
}

