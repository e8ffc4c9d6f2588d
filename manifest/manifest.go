// Package manifest loads the work list that drives a run: either a plain
// list of filesystem paths, or an enriched one-JSON-object-per-line format
// carrying precomputed size/mtime/kind so the conduit can skip a stat call.
//
// Grounded on the teacher's logparser package: the same batched-channel,
// worker-pool streaming shape that parses log lines in parallel is reused
// here to parse manifest lines in parallel, since both are "read a
// line-delimited file, parse each line independently, collect into a
// slice" problems at the same scale.
package manifest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
)

// Mode selects how a node obtains its manifest entries.
type Mode int

const (
	// Shared means every node reads the manifest independently off a
	// shared filesystem.
	Shared Mode = iota
	// Broadcast means one driver node reads the manifest and streams
	// entries to worker nodes over the cluster's message layer.
	Broadcast
)

func (m Mode) String() string {
	switch m {
	case Shared:
		return "shared"
	case Broadcast:
		return "broadcast"
	default:
		return "unknown"
	}
}

// ParseMode parses the manifest-mode configuration value.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "shared":
		return Shared, nil
	case "broadcast":
		return Broadcast, nil
	default:
		return 0, fmt.Errorf("manifest: unknown mode %q", s)
	}
}

// Entry is one unit of work: either a bare path (plain mode — Size/Mtime
// are zero and Kind is empty) or a fully enriched record.
type Entry struct {
	Path  string `json:"path"`
	Size  int64  `json:"size"`
	Mtime int64  `json:"mtime"`
	Kind  string `json:"kind,omitempty"`
}

// Enriched reports whether e carries precomputed stat metadata, letting
// the conduit skip its own stat call (§4.2 point 1).
func (e Entry) Enriched() bool {
	return e.Size != 0 || e.Mtime != 0
}

// parseBatchSize mirrors the teacher's logparser batching constant: batch
// line parsing to amortize channel overhead instead of paying it per line.
const parseBatchSize = 1024

// Load reads filename and returns its manifest entries. The format (plain
// path list vs enriched JSON) is auto-detected from the first non-empty
// line, per §6.
func Load(filename string) ([]Entry, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("manifest: open %s: %w", filename, err)
	}
	defer f.Close()

	enriched, first, err := detectFormat(f)
	if err != nil {
		return nil, err
	}

	if _, err := f.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("manifest: rewind %s: %w", filename, err)
	}

	return parseStreaming(f, enriched, first)
}

// detectFormat peeks at the first non-empty line of r to decide whether
// the manifest is enriched JSON or a plain path list: a line starting
// with '{' after leading whitespace is treated as enriched.
func detectFormat(r *os.File) (enriched bool, firstLine string, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		return strings.HasPrefix(line, "{"), line, nil
	}
	if err := scanner.Err(); err != nil {
		return false, "", fmt.Errorf("manifest: scan: %w", err)
	}
	return false, "", nil
}

// parseStreaming parses every line of r, fanning lines out across a
// worker pool in batches the same way logparser.Parser fans out log
// lines: a slab-backed line reader feeding batched channels, workers
// parsing each batch independently, a single collector goroutine
// appending results in arrival order (order across batches is not
// preserved across workers, which is acceptable — the dispatcher
// partitions by content, not by manifest order).
func parseStreaming(r *os.File, enriched bool, _ string) ([]Entry, error) {
	workers := runtime.NumCPU()
	if workers > 8 {
		workers = 8
	}
	if workers < 1 {
		workers = 1
	}

	linesChan := make(chan [][]byte, workers*2)
	resultsChan := make(chan []Entry, workers*2)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range linesChan {
				out := make([]Entry, 0, len(batch))
				for _, line := range batch {
					e, ok := parseLine(line, enriched)
					if ok {
						out = append(out, e)
					}
				}
				if len(out) > 0 {
					resultsChan <- out
				}
			}
		}()
	}

	var entries []Entry
	var collectorWG sync.WaitGroup
	collectorWG.Add(1)
	go func() {
		defer collectorWG.Done()
		for batch := range resultsChan {
			entries = append(entries, batch...)
		}
	}()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 256*1024), 4*1024*1024)

	const slabSize = 256 * 1024
	batch := make([][]byte, 0, parseBatchSize)
	slab := make([]byte, 0, slabSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		if len(slab)+len(line) > cap(slab) {
			newCap := slabSize
			if len(line) > newCap {
				newCap = len(line)
			}
			slab = make([]byte, 0, newCap)
		}
		start := len(slab)
		slab = append(slab, line...)
		batch = append(batch, slab[start:start+len(line)])

		if len(batch) >= parseBatchSize {
			linesChan <- batch
			batch = make([][]byte, 0, parseBatchSize)
			slab = make([]byte, 0, slabSize)
		}
	}
	if len(batch) > 0 {
		linesChan <- batch
	}

	close(linesChan)
	wg.Wait()
	close(resultsChan)
	collectorWG.Wait()

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("manifest: scan: %w", err)
	}
	return entries, nil
}

func parseLine(line []byte, enriched bool) (Entry, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Entry{}, false
	}
	if !enriched {
		return Entry{Path: string(line)}, true
	}
	var e Entry
	if err := json.Unmarshal(line, &e); err != nil {
		return Entry{}, false
	}
	if e.Path == "" {
		return Entry{}, false
	}
	return e, true
}
