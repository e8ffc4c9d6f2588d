// Package abi defines the fixed-layout record types shared between the
// orchestration layer and the native-parser adapter layer. These types
// cross the boundary as raw bytes (a cgo call's return buffer, or a cached
// L1 record read back with zero-copy), so their size and field offsets are
// a contract, not an implementation detail — no general-purpose
// serialization library can own this layout; it is asserted directly with
// unsafe.Sizeof/unsafe.Offsetof in an init() check.
package abi

import "unsafe"

// ContentKind is the closed content-type enumeration, bijective with
// integers 0..6 at the ABI boundary.
type ContentKind int32

const (
	ContentPDF ContentKind = iota
	ContentImage
	ContentAudio
	ContentVideo
	ContentEPUB
	ContentGeospatial
	ContentUnknown
)

func (k ContentKind) String() string {
	switch k {
	case ContentPDF:
		return "pdf"
	case ContentImage:
		return "image"
	case ContentAudio:
		return "audio"
	case ContentVideo:
		return "video"
	case ContentEPUB:
		return "epub"
	case ContentGeospatial:
		return "geospatial"
	default:
		return "unknown"
	}
}

// ParseStatus is the closed parse-outcome enumeration, bijective with
// integers 0..6 at the ABI boundary. Error and OutOfMemory are retryable;
// the rest are terminal.
type ParseStatus int32

const (
	StatusOK ParseStatus = iota
	StatusError
	StatusFileNotFound
	StatusParseError
	StatusNullPointer
	StatusUnsupportedFormat
	StatusOutOfMemory
)

func (s ParseStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	case StatusFileNotFound:
		return "file_not_found"
	case StatusParseError:
		return "parse_error"
	case StatusNullPointer:
		return "null_pointer"
	case StatusUnsupportedFormat:
		return "unsupported_format"
	case StatusOutOfMemory:
		return "out_of_memory"
	default:
		return "unknown"
	}
}

// Retryable reports whether the fault handler should retry a document
// that failed with this status.
func (s ParseStatus) Retryable() bool {
	return s == StatusError || s == StatusOutOfMemory
}

// ParseResultSize is the ABI-fixed size of ParseResult in bytes.
const ParseResultSize = 952

// ParseResult is the fixed-layout record produced by the native-parser
// adapter for one document. Field offsets match §3 of the data model
// exactly; do not reorder fields without updating the offset assertions
// below and every caller that depends on ParseResultSize.
type ParseResult struct {
	Status      ParseStatus // offset 0
	ContentKind ContentKind // offset 4
	PageCount   int32       // offset 8
	_pad0       [4]byte
	WordCount   int64   // offset 16
	CharCount   int64   // offset 24
	DurationSec float64 // offset 32
	ParseTimeMs float64 // offset 40
	SHA256      [65]byte // offset 48: ASCII hex + NUL
	_pad1       [7]byte
	ErrorMsg [256]byte // offset 120
	Title    [256]byte // offset 376
	Author   [256]byte // offset 632
	MimeType [64]byte  // offset 888
}

func init() {
	var r ParseResult
	assertOffset("Status", unsafe.Offsetof(r.Status), 0)
	assertOffset("ContentKind", unsafe.Offsetof(r.ContentKind), 4)
	assertOffset("PageCount", unsafe.Offsetof(r.PageCount), 8)
	assertOffset("WordCount", unsafe.Offsetof(r.WordCount), 16)
	assertOffset("CharCount", unsafe.Offsetof(r.CharCount), 24)
	assertOffset("DurationSec", unsafe.Offsetof(r.DurationSec), 32)
	assertOffset("ParseTimeMs", unsafe.Offsetof(r.ParseTimeMs), 40)
	assertOffset("SHA256", unsafe.Offsetof(r.SHA256), 48)
	assertOffset("ErrorMsg", unsafe.Offsetof(r.ErrorMsg), 120)
	assertOffset("Title", unsafe.Offsetof(r.Title), 376)
	assertOffset("Author", unsafe.Offsetof(r.Author), 632)
	assertOffset("MimeType", unsafe.Offsetof(r.MimeType), 888)
	if sz := unsafe.Sizeof(r); sz != ParseResultSize {
		panic("abi: ParseResult size drifted from the 952-byte contract")
	}
}

func assertOffset(field string, got, want uintptr) {
	if got != want {
		panic("abi: ParseResult." + field + " offset drifted from the ABI contract")
	}
}

// setString copies s into a fixed-capacity NUL-terminated byte array,
// truncating if s does not fit (leaving room for the trailing NUL).
func setString(dst []byte, s string) {
	n := copy(dst[:len(dst)-1], s)
	dst[n] = 0
	for i := n + 1; i < len(dst); i++ {
		dst[i] = 0
	}
}

func getString(src []byte) string {
	for i, b := range src {
		if b == 0 {
			return string(src[:i])
		}
	}
	return string(src)
}

// SetSHA256 stores a 64-hex-char content hash plus its NUL terminator.
func (r *ParseResult) SetSHA256(hexHash string) { setString(r.SHA256[:], hexHash) }

// GetSHA256 returns the stored content hash as a string.
func (r *ParseResult) GetSHA256() string { return getString(r.SHA256[:]) }

// SetErrorMsg stores the native parser's error message, truncated to 255
// bytes if longer.
func (r *ParseResult) SetErrorMsg(msg string) { setString(r.ErrorMsg[:], msg) }

// GetErrorMsg returns the stored error message.
func (r *ParseResult) GetErrorMsg() string { return getString(r.ErrorMsg[:]) }

// SetTitle stores the document title.
func (r *ParseResult) SetTitle(title string) { setString(r.Title[:], title) }

// GetTitle returns the stored document title.
func (r *ParseResult) GetTitle() string { return getString(r.Title[:]) }

// SetAuthor stores the document author.
func (r *ParseResult) SetAuthor(author string) { setString(r.Author[:], author) }

// GetAuthor returns the stored document author.
func (r *ParseResult) GetAuthor() string { return getString(r.Author[:]) }

// SetMimeType stores the detected MIME type.
func (r *ParseResult) SetMimeType(mime string) { setString(r.MimeType[:], mime) }

// GetMimeType returns the stored MIME type.
func (r *ParseResult) GetMimeType() string { return getString(r.MimeType[:]) }

// Valid checks the lifecycle invariant from §3: status == ok implies a
// known content kind and a well-formed 64-hex-char SHA-256.
func (r *ParseResult) Valid() bool {
	if r.Status != StatusOK {
		return true
	}
	if r.ContentKind == ContentUnknown {
		return false
	}
	hash := r.GetSHA256()
	if len(hash) != 64 {
		return false
	}
	for _, c := range hash {
		if !isHexDigit(c) {
			return false
		}
	}
	return true
}

func isHexDigit(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
