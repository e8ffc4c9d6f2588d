package dedup

// Document is the minimal view the dedup stages need from a parsed
// document's stage results: its content hash (always present) and its
// perceptual hash (present only when the perceptual-hash stage ran first —
// the pipeline's dependency rule for near-dedup).
type Document struct {
	Key            string
	ContentHash    uint64
	PerceptualHash uint64
	HasPerceptual  bool
}

// Group is one dedup finding: a set of document keys the stage considers
// duplicates (exact-dedup) or near-duplicates (near-dedup) of each other.
type Group struct {
	Members []string
	Size    uint32
}

// ExactDedup clusters documents by exact content-hash equality, grouping
// keys in a map by their full 64-bit hash and keeping every group of two or
// more. This is the grouping CollectClusters yields with maxDepth=64 and
// meanBranchDifference=0, without building a trie.
func ExactDedup(docs []Document) []Group {
	byHash := make(map[uint64][]string, len(docs))
	for _, d := range docs {
		byHash[d.ContentHash] = append(byHash[d.ContentHash], d.Key)
	}

	groups := make([]Group, 0, len(byHash))
	for _, members := range byHash {
		if len(members) < 2 {
			continue
		}
		groups = append(groups, Group{Members: members, Size: uint32(len(members))})
	}
	return groups
}

// NearDedupConfig controls the perceptual-hash clustering pass.
type NearDedupConfig struct {
	MinClusterSize       uint32
	MinDepth             uint8
	MaxDepth             uint8
	MeanBranchDifference float64
}

// DefaultNearDedupConfig mirrors the teacher's own clustering defaults,
// scaled from a 32-bit to a 64-bit hash space (double the prefix bits at
// each named depth).
func DefaultNearDedupConfig() NearDedupConfig {
	return NearDedupConfig{
		MinClusterSize:       2,
		MinDepth:             16,
		MaxDepth:             56,
		MeanBranchDifference: 0.15,
	}
}

// NearDedup clusters documents whose perceptual hashes share a long common
// prefix. Only documents that already carry a perceptual hash (the
// perceptual-hash stage is a pipeline-ordering dependency of near-dedup)
// participate.
func NearDedup(docs []Document, cfg NearDedupConfig) []Group {
	trie := NewTrie()
	byPrefix := make(map[uint64][]string)

	var eligible []Document
	for _, d := range docs {
		if !d.HasPerceptual {
			continue
		}
		eligible = append(eligible, d)
	}
	if len(eligible) == 0 {
		return nil
	}

	for _, d := range eligible {
		trie.Insert(d.PerceptualHash)
	}

	clusters := trie.CollectClusters(cfg.MinClusterSize, cfg.MinDepth, cfg.MaxDepth, cfg.MeanBranchDifference)
	if len(clusters) == 0 {
		return nil
	}

	clusterMask := make([]uint64, len(clusters))
	for i, c := range clusters {
		if c.PrefixLen == 0 {
			clusterMask[i] = 0
			continue
		}
		clusterMask[i] = ^uint64(0) << (64 - c.PrefixLen)
	}

	for _, d := range eligible {
		for i, c := range clusters {
			if d.PerceptualHash&clusterMask[i] == c.Prefix&clusterMask[i] {
				byPrefix[c.Prefix] = append(byPrefix[c.Prefix], d.Key)
				break
			}
		}
	}

	groups := make([]Group, 0, len(byPrefix))
	for _, members := range byPrefix {
		if len(members) < 2 {
			continue
		}
		groups = append(groups, Group{Members: members, Size: uint32(len(members))})
	}
	return groups
}
