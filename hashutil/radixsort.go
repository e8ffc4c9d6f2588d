// Package hashutil provides fast sorting and partitioning primitives for the
// 64-bit content-hash and perceptual-hash prefixes used by the dedup trie and
// the work dispatcher.
package hashutil

// RadixSortUint64 performs an in-place 8-bit radix sort on a slice of uint64
// values. O(n) vs sort.Slice's O(n log n), and avoids interface dispatch
// overhead — useful before a batch-sorted insert into the dedup trie, the
// same "sort then bulk-insert" shape the stage pipeline uses for exact and
// near-dedup clustering.
//
// Uses 8 passes over the data (one per byte), with counting sort at each
// pass. The scratch buffer is allocated once and reused across passes.
func RadixSortUint64(data []uint64) {
	n := len(data)
	if n <= 1 {
		return
	}

	if n <= 64 {
		insertionSortUint64(data)
		return
	}

	scratch := make([]uint64, n)

	src, dst := data, scratch
	for shift := uint(0); shift < 64; shift += 8 {
		radixPass(src, dst, shift)
		src, dst = dst, src
	}
	// After 8 passes (even count) src aliases data again.
	if &src[0] != &data[0] {
		copy(data, src)
	}
}

func radixPass(src, dst []uint64, shift uint) {
	var counts [256]int

	for _, v := range src {
		b := (v >> shift) & 0xFF
		counts[b]++
	}

	total := 0
	for i := range counts {
		count := counts[i]
		counts[i] = total
		total += count
	}

	for _, v := range src {
		b := (v >> shift) & 0xFF
		dst[counts[b]] = v
		counts[b]++
	}
}

func insertionSortUint64(data []uint64) {
	for i := 1; i < len(data); i++ {
		key := data[i]
		j := i - 1
		for j >= 0 && data[j] > key {
			data[j+1] = data[j]
			j--
		}
		data[j+1] = key
	}
}
