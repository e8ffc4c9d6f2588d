package dedup

import "github.com/alphadose/haxmap"

// LiveRegistry is a concurrent, streaming exact-duplicate registry:
// unlike ExactDedup's batch pass, it is meant to live for the lifetime of
// a run and be hit by every worker as documents complete, one lookup and
// at most one insert per document, with no whole-corpus materialization
// and no lock shared across workers.
//
// Grounded on the teacher's sliding.SlidingWindow.IPStats, which backs
// the same "many goroutines observing a stream of keyed events"
// access pattern with a haxmap.Map rather than a mutex-guarded plain map
// — here the keys are content-hash hex strings instead of uint32 IPs, and
// an observation is permanent for the run instead of expiring out of a
// time window.
type LiveRegistry struct {
	seen *haxmap.Map[string, string]
}

// NewLiveRegistry creates an empty registry sized for sizeHint documents.
func NewLiveRegistry(sizeHint int) *LiveRegistry {
	if sizeHint <= 0 {
		sizeHint = 1024
	}
	return &LiveRegistry{seen: haxmap.New[string, string](uintptr(sizeHint))}
}

// Observe records that path produced contentHash. If contentHash was
// already seen under a different path, Observe returns that earlier path
// and true without overwriting the registry entry — the first path to
// reach a given hash is the one later documents are considered a
// duplicate of. An empty contentHash (conduit hashing skipped) never
// matches anything and is never recorded.
func (r *LiveRegistry) Observe(contentHash, path string) (firstPath string, isDuplicate bool) {
	if contentHash == "" {
		return "", false
	}
	if existing, ok := r.seen.Get(contentHash); ok {
		return existing, true
	}
	r.seen.Set(contentHash, path)
	return "", false
}

// Len returns the number of distinct content hashes recorded so far.
func (r *LiveRegistry) Len() int {
	return int(r.seen.Len())
}
