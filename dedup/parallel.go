package dedup

import (
	"runtime"
	"sort"
	"sync"
)

// ParallelTrie adds a thread-safe insertion path over Trie, for the stage
// pipeline's chunked document workers to share one dedup trie per run
// instead of merging per-worker tries afterward.
type ParallelTrie struct {
	*Trie
	mu sync.RWMutex
}

// NewParallelTrie creates an empty thread-safe Trie.
func NewParallelTrie() *ParallelTrie {
	return &ParallelTrie{Trie: NewTrie()}
}

// Insert adds one hash under lock.
func (pt *ParallelTrie) Insert(hash uint64) {
	pt.mu.Lock()
	pt.Trie.Insert(hash)
	pt.mu.Unlock()
}

// BatchInsert inserts a batch of hashes in parallel batches of
// numWorkers*4, sorting and deduping each batch before taking the lock to
// minimize contention, the same tradeoff the teacher makes for batch IP
// insertion.
func (pt *ParallelTrie) BatchInsert(hashes []uint64, numWorkers int) {
	if len(hashes) == 0 {
		return
	}
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	if len(hashes) < 10000 || numWorkers == 1 {
		pt.mu.Lock()
		pt.Trie.BatchInsert(hashes)
		pt.mu.Unlock()
		return
	}

	batchSize := len(hashes) / (numWorkers * 4)
	if batchSize < 1000 {
		batchSize = 1000
	}
	if batchSize > 50000 {
		batchSize = 50000
	}

	var wg sync.WaitGroup
	for start := 0; start < len(hashes); start += batchSize {
		end := start + batchSize
		if end > len(hashes) {
			end = len(hashes)
		}
		batch := hashes[start:end]
		wg.Add(1)
		go func(batch []uint64) {
			defer wg.Done()
			sorted := append([]uint64(nil), batch...)
			sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
			pt.mu.Lock()
			pt.Trie.BatchInsertSorted(sorted)
			pt.mu.Unlock()
		}(batch)
	}
	wg.Wait()
}

// Count returns the count for hash, thread-safely.
func (pt *ParallelTrie) Count(hash uint64) uint32 {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	return pt.Trie.Count(hash)
}

// CountAll returns the total inserted count, thread-safely.
func (pt *ParallelTrie) CountAll() uint32 {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	return pt.Trie.CountAll()
}

// CollectClusters runs cluster collection under a read lock.
func (pt *ParallelTrie) CollectClusters(minClusterSize uint32, minDepth, maxDepth uint8, meanBranchDifference float64) []Cluster {
	pt.mu.RLock()
	defer pt.mu.RUnlock()
	return pt.Trie.CollectClusters(minClusterSize, minDepth, maxDepth, meanBranchDifference)
}
