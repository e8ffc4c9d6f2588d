package dedup

import "testing"

func TestTrieCount(t *testing.T) {
	tests := []struct {
		name     string
		insert   []uint64
		query    uint64
		expected uint32
	}{
		{
			name:     "single inserted hash",
			insert:   []uint64{0x1},
			query:    0x1,
			expected: 1,
		},
		{
			name:     "duplicate hashes",
			insert:   []uint64{0xABCDEF, 0xABCDEF},
			query:    0xABCDEF,
			expected: 2,
		},
		{
			name:     "query for non-existent hash",
			insert:   []uint64{0x1},
			query:    0x2,
			expected: 0,
		},
		{
			name:     "one of multiple hashes",
			insert:   []uint64{0x1, 0x2, 0x2},
			query:    0x2,
			expected: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trie := NewTrie()
			for _, h := range tt.insert {
				trie.Insert(h)
			}
			if got := trie.Count(tt.query); got != tt.expected {
				t.Fatalf("Count(%x) = %d, want %d", tt.query, got, tt.expected)
			}
		})
	}
}

func TestTrieCountAll(t *testing.T) {
	trie := NewTrie()
	hashes := []uint64{0x1, 0x2, 0x3, 0x1}
	for _, h := range hashes {
		trie.Insert(h)
	}
	if got := trie.CountAll(); got != uint32(len(hashes)) {
		t.Fatalf("CountAll() = %d, want %d", got, len(hashes))
	}
}

func TestBatchInsertSortedMatchesInsert(t *testing.T) {
	sequential := NewTrie()
	batched := NewTrie()

	sorted := []uint64{0x10, 0x10, 0x20, 0x20, 0x20, 0x30}
	for _, h := range sorted {
		sequential.Insert(h)
	}
	batched.BatchInsertSorted(sorted)

	for _, h := range []uint64{0x10, 0x20, 0x30, 0x99} {
		if sequential.Count(h) != batched.Count(h) {
			t.Fatalf("Count(%x) diverged: sequential=%d batched=%d", h, sequential.Count(h), batched.Count(h))
		}
	}
}

func TestCollectClustersExactDepth(t *testing.T) {
	trie := NewTrie()
	// Two documents share the full 64-bit hash; a third is unrelated.
	trie.Insert(0xDEADBEEFCAFEF00D)
	trie.Insert(0xDEADBEEFCAFEF00D)
	trie.Insert(0x1122334455667788)

	clusters := trie.CollectClusters(2, 64, 64, 0)
	if len(clusters) != 1 {
		t.Fatalf("expected 1 cluster at full depth, got %d: %+v", len(clusters), clusters)
	}
	if clusters[0].Prefix != 0xDEADBEEFCAFEF00D || clusters[0].Size != 2 {
		t.Fatalf("unexpected cluster: %+v", clusters[0])
	}
}

func TestCollectClustersRespectsMinClusterSize(t *testing.T) {
	trie := NewTrie()
	trie.Insert(0x1)
	clusters := trie.CollectClusters(2, 0, 64, 0)
	if len(clusters) != 0 {
		t.Fatalf("expected no clusters below minClusterSize, got %+v", clusters)
	}
}

func TestParallelTrieBatchInsertMatchesSequential(t *testing.T) {
	hashes := make([]uint64, 0, 20000)
	for i := 0; i < 20000; i++ {
		hashes = append(hashes, uint64(i%500))
	}

	seq := NewTrie()
	seq.BatchInsert(hashes)

	par := NewParallelTrie()
	par.BatchInsert(hashes, 4)

	for _, h := range []uint64{0, 1, 250, 499} {
		if seq.Count(h) != par.Count(h) {
			t.Fatalf("Count(%d) diverged: sequential=%d parallel=%d", h, seq.Count(h), par.Count(h))
		}
	}
	if seq.CountAll() != par.CountAll() {
		t.Fatalf("CountAll diverged: sequential=%d parallel=%d", seq.CountAll(), par.CountAll())
	}
}
