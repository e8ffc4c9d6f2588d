package l1

import (
	"path/filepath"
	"testing"
)

func TestPutGetRoundTrip(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "cache.db"), DefaultOptions())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	key := Key{Path: "/corpus/a.pdf", MtimeNanos: 1000, SizeBytes: 4096}
	want := []byte("parse-result-blob")

	if err := store.Put(key, want); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := store.Get(key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected a cache hit")
	}
	if string(got) != string(want) {
		t.Fatalf("Get() = %q, want %q", got, want)
	}
}

func TestGetMiss(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "cache.db"), DefaultOptions())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	_, ok, err := store.Get(Key{Path: "/corpus/missing.pdf", MtimeNanos: 1, SizeBytes: 1})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected a cache miss")
	}
}

func TestCount(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "cache.db"), DefaultOptions())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	for i := 0; i < 5; i++ {
		key := Key{Path: "/corpus/doc.pdf", MtimeNanos: int64(i), SizeBytes: 10}
		if err := store.Put(key, []byte("x")); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	n, err := store.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 5 {
		t.Fatalf("Count() = %d, want 5", n)
	}
}

func TestKeyBytesStableAcrossCalls(t *testing.T) {
	key := Key{Path: "/corpus/a.pdf", MtimeNanos: 1000, SizeBytes: 4096}
	if string(key.Bytes()) != string(key.Bytes()) {
		t.Fatal("Key.Bytes() is not deterministic")
	}
}
