// Package pools provides sync.Pool-backed reuse for allocation hot spots
// that are built up once per document, at worker-pool concurrency, and
// then fully consumed before the call returns: output.EncodeScheme's
// strings.Builder is the first tenant. A generic byte-buffer pool is kept
// alongside it for any future record encoder with the same shape, but is
// deliberately NOT used for anything that escapes into the two-level
// cache or the singleflight group — a buffer shared across concurrent
// waiters cannot be safely recycled while any of them might still be
// reading it.
//
// Grounded on the teacher's GlobalPools/NodeAllocator: pre-sized sync.Pools
// keyed by the one value each holds, Get resets length/contents before
// handing the value back out, Return enforces a capacity ceiling so a
// single oversized document cannot pin a multi-megabyte buffer in the pool
// forever. The trie-node chunk allocator itself has its own adapted copy in
// dedup.Allocator (a binary-trie node, not a generic value, needs its own
// chunked-backing-array shape) and is not duplicated here.
package pools

import (
	"strings"
	"sync"
)

const (
	maxPooledBufferBytes  = 1 << 20 // 1 MiB
	maxPooledBuilderBytes = 1 << 16 // 64 KiB
)

var bufferPool = sync.Pool{
	New: func() interface{} {
		return make([]byte, 0, 4096)
	},
}

var builderPool = sync.Pool{
	New: func() interface{} {
		return &strings.Builder{}
	},
}

// GetBuffer returns a zero-length byte slice with at least capacityHint of
// backing capacity, either freshly allocated or recycled from a prior
// ReturnBuffer.
func GetBuffer(capacityHint int) []byte {
	buf := bufferPool.Get().([]byte)[:0]
	if cap(buf) < capacityHint {
		return make([]byte, 0, capacityHint)
	}
	return buf
}

// ReturnBuffer puts buf back in the pool unless it has grown past
// maxPooledBufferBytes, in which case it is left for the garbage collector
// rather than pinning an outsized allocation in the pool indefinitely.
func ReturnBuffer(buf []byte) {
	if cap(buf) > maxPooledBufferBytes {
		return
	}
	bufferPool.Put(buf[:0])
}

// GetBuilder returns a reset strings.Builder, either freshly allocated or
// recycled from a prior ReturnBuilder.
func GetBuilder() *strings.Builder {
	b := builderPool.Get().(*strings.Builder)
	b.Reset()
	return b
}

// ReturnBuilder puts b back in the pool unless its backing array has grown
// past maxPooledBuilderBytes.
func ReturnBuilder(b *strings.Builder) {
	if b.Cap() > maxPooledBuilderBytes {
		return
	}
	builderPool.Put(b)
}
