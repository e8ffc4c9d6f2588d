package hashutil

import "github.com/cespare/xxhash/v2"

// NodeIndex deterministically maps a manifest entry's canonical path to a
// node index in [0, numNodes). Re-running the same manifest against the
// same node count reproduces the same assignment (spec §4.5), independent
// of path ordering or character content — plain modulo over path bytes
// would skew badly for near-identical path prefixes (e.g. a manifest that
// is one directory deep), so the path is hashed first.
func NodeIndex(path string, numNodes int) int {
	if numNodes <= 1 {
		return 0
	}
	h := xxhash.Sum64String(path)
	return int(h % uint64(numNodes))
}

// ChunkIndex maps a manifest entry index to a dispatcher chunk id, used when
// an enriched manifest entry carries no path (broadcast mode hands out
// pre-numbered entries).
func ChunkIndex(ordinal int, chunkSize int) int {
	if chunkSize <= 0 {
		return 0
	}
	return ordinal / chunkSize
}
