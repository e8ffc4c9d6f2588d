// Package conduit is the per-file preprocessor: magic-byte detection,
// minimum-size validation, and optional content-hash precomputation,
// ahead of the native-parser adapter call. Grounded on the teacher's
// ingestor preflight checks, generalized from "is this an HTTP access log
// line" to "is this file usable input for a parser at all" — the same
// fail-fast-before-the-expensive-step shape.
package conduit

import (
	"encoding/hex"
	"io"
	"os"

	"github.com/docvellum/vellum/abi"
	"github.com/docvellum/vellum/errs"
	"github.com/gabriel-vasile/mimetype"
	sha256simd "github.com/minio/sha256-simd"
)

// minSize is the minimum usable size per detected ContentKind (§4.2: images
// reject dimensions below 64x64, PDFs reject files under 8 bytes). Image
// dimension validation itself happens in the parser package once the image
// is decoded; here we only enforce the cheap byte-count floor the conduit
// can check without decoding.
var minSize = map[abi.ContentKind]int64{
	abi.ContentPDF:        8,
	abi.ContentEPUB:       32,
	abi.ContentImage:      64,
	abi.ContentAudio:      16,
	abi.ContentVideo:      16,
	abi.ContentGeospatial: 8,
}

// Run classifies path, validates its minimum usable size, and — when
// computeHash is true — streams the file once to compute its SHA-256
// using the hardware-accelerated implementation when available.
func Run(path string, computeHash bool) (*abi.ConduitResult, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.New(errs.IO, "conduit: file not found", err)
		}
		return nil, errs.New(errs.IO, "conduit: open failed", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errs.New(errs.IO, "conduit: stat failed", err)
	}

	return classify(f, info.Size(), computeHash)
}

// RunSized classifies an already-open reader whose size and mtime are
// already known (the enriched manifest format carries these, so the
// conduit can skip the stat call — §4.2 step 1).
func RunSized(r io.Reader, size int64, computeHash bool) (*abi.ConduitResult, error) {
	return classify(r, size, computeHash)
}

func classify(r io.Reader, size int64, computeHash bool) (*abi.ConduitResult, error) {
	head := make([]byte, 16)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, errs.New(errs.IO, "conduit: read header failed", err)
	}
	head = head[:n]

	result := &abi.ConduitResult{FileSize: size}

	kind := detectKind(head)
	result.Kind = kind

	switch {
	case len(head) == 0:
		result.Validation = abi.ValidationUnreadable
		return result, nil
	case kind == abi.ContentUnknown:
		result.Validation = abi.ValidationBadMagic
		return result, nil
	case size < minSize[kind]:
		result.Validation = abi.ValidationTooSmall
		return result, nil
	}
	result.Validation = abi.ValidationOK

	if computeHash {
		hash, err := hashStream(head, r)
		if err != nil {
			return nil, errs.New(errs.IO, "conduit: hash failed", err)
		}
		result.SetSHA256(hash)
	}

	return result, nil
}

// hashStream computes the SHA-256 of a stream whose first bytes (head)
// have already been consumed from r.
func hashStream(head []byte, r io.Reader) (string, error) {
	h := sha256simd.New()
	if _, err := h.Write(head); err != nil {
		return "", err
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashFile computes a content hash the same way the conduit does, for
// callers (the L2 cache probe) that need a hash independent of a
// classification pass.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errs.New(errs.IO, "conduit: file not found", err)
		}
		return "", errs.New(errs.IO, "conduit: open failed", err)
	}
	defer f.Close()

	h := sha256simd.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errs.New(errs.IO, "conduit: hash failed", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// detectKind classifies by magic bytes using mimetype's detection tree,
// then maps the matched MIME type (or, failing that, its nearest mapped
// parent) down to the conduit's closed ContentKind set. mimetype returns a
// single match, so when a header could fit more than one format the winner
// is decided by mimetype's own detection order; no separate kind-priority
// table is applied here.
func detectKind(head []byte) abi.ContentKind {
	mt := mimetype.Detect(head)
	for mt != nil {
		if kind, ok := kindForMIME(mt.String()); ok {
			return kind
		}
		mt = mt.Parent()
	}
	return abi.ContentUnknown
}

func kindForMIME(mime string) (abi.ContentKind, bool) {
	switch mime {
	case "application/pdf":
		return abi.ContentPDF, true
	case "application/epub+zip":
		return abi.ContentEPUB, true
	case "image/jpeg", "image/png", "image/gif", "image/bmp", "image/tiff", "image/webp":
		return abi.ContentImage, true
	case "audio/mpeg", "audio/wav", "audio/x-wav", "audio/flac", "audio/ogg":
		return abi.ContentAudio, true
	case "video/mp4", "video/x-matroska", "video/webm", "video/quicktime", "video/x-msvideo":
		return abi.ContentVideo, true
	case "application/geo+json", "application/vnd.google-earth.kml+xml":
		return abi.ContentGeospatial, true
	default:
		return abi.ContentUnknown, false
	}
}
