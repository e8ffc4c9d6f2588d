package checkpoint

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"
)

func TestAppendAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.log")
	j, err := Open(path, 2)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := j.Append(Entry{CacheKey: "a", Status: "ok", UnixNano: 1}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := j.Append(Entry{CacheKey: "b", Status: "ok", UnixNano: 2}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	skip, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !skip["a"] || !skip["b"] {
		t.Fatalf("Load() = %v, want both a and b present", skip)
	}
}

func TestLoadMissingFileReturnsEmptySet(t *testing.T) {
	skip, err := Load(filepath.Join(t.TempDir(), "nope.log"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(skip) != 0 {
		t.Fatalf("expected empty skip-set, got %v", skip)
	}
}

func TestLoadDiscardsTruncatedFinalLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.log")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create fixture: %v", err)
	}
	w := bufio.NewWriter(f)
	w.WriteString(Entry{CacheKey: "a", Status: "ok", UnixNano: 1}.marshal() + "\n")
	w.WriteString("b\tok\t") // truncated: missing timestamp digits and newline
	if err := w.Flush(); err != nil {
		t.Fatalf("flush fixture: %v", err)
	}
	f.Close()

	skip, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !skip["a"] {
		t.Fatal("expected complete entry 'a' to load")
	}
	if skip["b"] {
		t.Fatal("truncated entry 'b' should not appear in the skip-set")
	}
}

func TestAppendFlushesAtInterval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.log")
	j, err := Open(path, 1)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer j.Close()

	if err := j.Append(Entry{CacheKey: "a", Status: "ok", UnixNano: 1}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	// flushEvery=1 means the record should already be durable on disk
	// without calling Close.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read journal file: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected the journal file to contain the flushed record")
	}
}
