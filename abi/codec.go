package abi

import (
	"fmt"
	"unsafe"
)

// Bytes returns a zero-copy view of r's underlying memory as a 952-byte
// slice, in the machine's native byte order. Used by the L1 cache to
// persist a ParseResult without a marshal step, and by the native-parser
// adapter boundary to hand back a raw buffer.
func (r *ParseResult) Bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(r)), ParseResultSize)
}

// DecodeParseResult reinterprets buf as a ParseResult without copying.
// buf must be exactly ParseResultSize bytes and must outlive the returned
// pointer. The L1 store's Get already returns a copy of the stored value,
// so a buffer obtained from it is safe to decode this way.
func DecodeParseResult(buf []byte) (*ParseResult, error) {
	if len(buf) != ParseResultSize {
		return nil, fmt.Errorf("abi: decode buffer is %d bytes, want %d", len(buf), ParseResultSize)
	}
	return (*ParseResult)(unsafe.Pointer(&buf[0])), nil
}

// CloneParseResult copies r into a freshly allocated ParseResult, for callers
// that need an owned copy outliving the source buffer (e.g. handing a
// cached result to a second waiter after the cache transaction closes).
func CloneParseResult(r *ParseResult) *ParseResult {
	clone := *r
	return &clone
}
