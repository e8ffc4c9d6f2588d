package cache

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/docvellum/vellum/cache/l1"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	store, err := l1.Open(filepath.Join(t.TempDir(), "cache.db"), l1.DefaultOptions())
	if err != nil {
		t.Fatalf("l1.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store, nil, nil)
}

func TestGetOrComputeMissRunsComputeOnce(t *testing.T) {
	c := newTestCache(t)
	key := l1.Key{Path: "/corpus/a.pdf", MtimeNanos: 1, SizeBytes: 10}

	var calls int32
	compute := func(contentHash string) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return []byte("result"), nil
	}

	value, hit, err := c.GetOrCompute(context.Background(), key, nil, compute)
	if err != nil {
		t.Fatalf("GetOrCompute: %v", err)
	}
	if hit {
		t.Fatal("expected a miss on first call")
	}
	if string(value) != "result" {
		t.Fatalf("value = %q", value)
	}
	if calls != 1 {
		t.Fatalf("compute called %d times, want 1", calls)
	}
}

func TestGetOrComputeSecondCallIsL1Hit(t *testing.T) {
	c := newTestCache(t)
	key := l1.Key{Path: "/corpus/a.pdf", MtimeNanos: 1, SizeBytes: 10}

	var calls int32
	compute := func(contentHash string) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return []byte("result"), nil
	}

	if _, _, err := c.GetOrCompute(context.Background(), key, nil, compute); err != nil {
		t.Fatalf("GetOrCompute: %v", err)
	}

	value, hit, err := c.GetOrCompute(context.Background(), key, nil, compute)
	if err != nil {
		t.Fatalf("GetOrCompute: %v", err)
	}
	if !hit {
		t.Fatal("expected a hit on second call")
	}
	if string(value) != "result" {
		t.Fatalf("value = %q", value)
	}
	if calls != 1 {
		t.Fatalf("compute called %d times, want 1 (L1 should have served the second call)", calls)
	}
}

func TestGetOrComputeConcurrentCallsShareOneCompute(t *testing.T) {
	c := newTestCache(t)
	key := l1.Key{Path: "/corpus/b.pdf", MtimeNanos: 1, SizeBytes: 10}

	var calls int32
	release := make(chan struct{})
	compute := func(contentHash string) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return []byte("result"), nil
	}

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := c.GetOrCompute(context.Background(), key, nil, compute)
			errs[i] = err
		}(i)
	}

	close(release)
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			t.Fatalf("GetOrCompute: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("compute called %d times, want 1 (singleflight should dedupe concurrent misses)", calls)
	}
}

func TestGetOrComputePropagatesComputeError(t *testing.T) {
	c := newTestCache(t)
	key := l1.Key{Path: "/corpus/c.pdf", MtimeNanos: 1, SizeBytes: 10}

	wantErr := errTestCompute
	_, _, err := c.GetOrCompute(context.Background(), key, nil, func(contentHash string) ([]byte, error) {
		return nil, wantErr
	})
	if err != wantErr {
		t.Fatalf("GetOrCompute err = %v, want %v", err, wantErr)
	}
}

func TestGetOrComputeHashFnOnlyRunsOnL1Miss(t *testing.T) {
	c := newTestCache(t)
	key := l1.Key{Path: "/corpus/d.pdf", MtimeNanos: 1, SizeBytes: 10}

	var hashCalls int32
	hashFn := func() (string, error) {
		atomic.AddInt32(&hashCalls, 1)
		return "deadbeef", nil
	}
	compute := func(contentHash string) ([]byte, error) {
		if contentHash != "deadbeef" {
			t.Fatalf("compute saw contentHash = %q, want %q", contentHash, "deadbeef")
		}
		return []byte("result"), nil
	}

	if _, hit, err := c.GetOrCompute(context.Background(), key, hashFn, compute); err != nil || hit {
		t.Fatalf("first call: hit=%v err=%v", hit, err)
	}
	if hashCalls != 1 {
		t.Fatalf("hashFn called %d times on miss, want 1", hashCalls)
	}

	if _, hit, err := c.GetOrCompute(context.Background(), key, hashFn, compute); err != nil || !hit {
		t.Fatalf("second call: hit=%v err=%v", hit, err)
	}
	if hashCalls != 1 {
		t.Fatalf("hashFn called %d times after L1 hit, want 1 (should not run again)", hashCalls)
	}
}

var errTestCompute = &testComputeError{}

type testComputeError struct{}

func (*testComputeError) Error() string { return "compute failed" }
