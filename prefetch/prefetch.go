// Package prefetch implements the I/O prefetcher: a sliding-window
// read-ahead over the upcoming manifest entries on each worker, so a
// worker's next file read has already landed in memory by the time the
// pipeline needs it. Grounded directly on sliding.SlidingWindow's
// max-time/max-size bounded queue, generalized from timed IP observations
// to timed manifest entries; the bounded prefetch buffer itself is new —
// the teacher has no analogue for "hold onto read bytes," only for
// "remember recent IPs" — so it is backed by an LRU cache instead of the
// teacher's unbounded haxmap, since prefetched bytes are far larger per
// entry than an IP observation and must be evictable under memory
// pressure.
package prefetch

import (
	"fmt"
	"os"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// QueuedEntry is one manifest entry awaiting or having completed
// prefetch.
type QueuedEntry struct {
	Path     string
	QueuedAt time.Time
}

// Window bounds the set of entries being tracked for read-ahead by both
// age and count, mirroring sliding.SlidingWindow's dual eviction
// criteria, and caches prefetched file contents in a bounded LRU.
type Window struct {
	mu         sync.Mutex
	entries    []QueuedEntry
	maxEntries int
	maxAge     time.Duration
	buffers    *lru.Cache[string, []byte]
}

// NewWindow builds a Window that tracks at most maxEntries queued paths
// no older than maxAge, and caches up to bufferCapacity prefetched file
// contents.
func NewWindow(maxEntries int, maxAge time.Duration, bufferCapacity int) (*Window, error) {
	buffers, err := lru.New[string, []byte](bufferCapacity)
	if err != nil {
		return nil, fmt.Errorf("prefetch: new lru: %w", err)
	}
	return &Window{
		maxEntries: maxEntries,
		maxAge:     maxAge,
		buffers:    buffers,
	}, nil
}

// Push records that path has been queued for prefetch at now, then
// drops any entries that have aged out or pushed the window over
// maxEntries — the same drain-from-the-front eviction
// sliding.SlidingWindow.InsertNew/DropOld perform.
func (w *Window) Push(path string, now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.entries = append(w.entries, QueuedEntry{Path: path, QueuedAt: now})
	w.dropOldLocked(now)
}

func (w *Window) dropOldLocked(now time.Time) {
	cutoff := now.Add(-w.maxAge)
	i := 0
	for i < len(w.entries) && w.entries[i].QueuedAt.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.entries = w.entries[i:]
	}

	if w.maxEntries > 0 && len(w.entries) > w.maxEntries {
		overflow := len(w.entries) - w.maxEntries
		w.entries = w.entries[overflow:]
	}
}

// Len returns the number of entries currently tracked in the window.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

// Prefetch reads path's full contents into the buffer cache ahead of use.
// A read failure is not fatal to the caller's pipeline — the conduit will
// simply re-read (and re-report) the failure when the document is
// actually processed — so Prefetch returns the error for logging only.
func (w *Window) Prefetch(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("prefetch: read %s: %w", path, err)
	}
	w.buffers.Add(path, data)
	return nil
}

// Take returns and evicts the prefetched bytes for path, if present.
func (w *Window) Take(path string) ([]byte, bool) {
	data, ok := w.buffers.Get(path)
	if ok {
		w.buffers.Remove(path)
	}
	return data, ok
}

// BufferLen returns the number of entries currently held in the prefetch
// buffer cache.
func (w *Window) BufferLen() int {
	return w.buffers.Len()
}
