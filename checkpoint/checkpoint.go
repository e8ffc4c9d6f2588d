// Package checkpoint implements the per-node append-only completion
// journal and resume skip-set (§4.7).
//
// Grounded on jail/io.go's ReadBanFile/WriteBanFile: a line-delimited file
// with a leading comment header, scanner-based read loop, comment lines
// skipped by prefix, and a tolerant malformed-line policy. Journal reuses
// that shape for {cache-key, terminal-status, timestamp} records instead
// of CIDR strings, and adds the §4.7 requirement that a truncated final
// line (a crash mid-write) is silently discarded rather than rejected.
package checkpoint

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Entry is one completed document's journal record.
type Entry struct {
	CacheKey string
	Status   string // terminal ParseStatus name, or "cached-hit"
	UnixNano int64
}

func (e Entry) marshal() string {
	return fmt.Sprintf("%s\t%s\t%d", e.CacheKey, e.Status, e.UnixNano)
}

func unmarshal(line string) (Entry, bool) {
	parts := strings.Split(line, "\t")
	if len(parts) != 3 {
		return Entry{}, false
	}
	ts, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return Entry{}, false
	}
	return Entry{CacheKey: parts[0], Status: parts[1], UnixNano: ts}, true
}

// Journal is a per-node append-only completion log with a configurable
// flush cadence.
type Journal struct {
	mu            sync.Mutex
	file          *os.File
	writer        *bufio.Writer
	flushEvery    int
	sinceLastSync int
}

// DefaultFlushInterval is §4.7's default flush cadence: every 10,000
// documents.
const DefaultFlushInterval = 10000

// Open opens (creating if needed) the journal file at path for appending.
func Open(path string, flushEvery int) (*Journal, error) {
	if flushEvery <= 0 {
		flushEvery = DefaultFlushInterval
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open journal %s: %w", path, err)
	}
	return &Journal{file: f, writer: bufio.NewWriter(f), flushEvery: flushEvery}, nil
}

// Append writes one completion record. Every flushEvery records (or on
// Close), the buffer is flushed and fsynced.
func (j *Journal) Append(e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.writer.WriteString(e.marshal() + "\n"); err != nil {
		return fmt.Errorf("checkpoint: append: %w", err)
	}
	j.sinceLastSync++
	if j.sinceLastSync >= j.flushEvery {
		if err := j.syncLocked(); err != nil {
			return err
		}
	}
	return nil
}

func (j *Journal) syncLocked() error {
	if err := j.writer.Flush(); err != nil {
		return fmt.Errorf("checkpoint: flush: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("checkpoint: fsync: %w", err)
	}
	j.sinceLastSync = 0
	return nil
}

// Close flushes and fsyncs any buffered records, then closes the file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.syncLocked(); err != nil {
		return err
	}
	return j.file.Close()
}

// Load reads path and returns the skip-set of cache keys already marked
// terminal, for resume=true startup. A truncated final line (the tab
// count doesn't parse) is discarded rather than erroring the whole load,
// since it is the expected shape of a crash mid-append.
func Load(path string) (map[string]bool, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return map[string]bool{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open journal %s: %w", path, err)
	}
	defer f.Close()

	skip := make(map[string]bool)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		e, ok := unmarshal(line)
		if !ok {
			continue
		}
		skip[e.CacheKey] = true
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("checkpoint: scan journal %s: %w", path, err)
	}
	return skip, nil
}
