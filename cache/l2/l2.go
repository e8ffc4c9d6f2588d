// Package l2 is the optional cross-node result cache: a remote key-value
// store accessed over RESP2, keyed by 64-hex content hash, used for warm
// restarts and cross-node deduplication (§4.3). Writes are best-effort —
// a transient error here only downgrades a document to L1-only caching,
// it never fails the document.
package l2

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store wraps a go-redis client scoped to the result-cache namespace.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// Options configures an L2 store connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	// TTL is the optional expiry set on every write; zero means entries
	// never expire (L2 is advisory — a stale miss is always safe, §4.3).
	TTL time.Duration
}

// Dial connects to a Redis-compatible server. The connection is lazy —
// go-redis dials on first command — so Dial never itself fails; callers
// discover connectivity problems as best-effort Get/Put errors.
func Dial(opts Options) *Store {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return &Store{client: client, ttl: opts.TTL}
}

// Get fetches the cached blob for contentHash. A miss is reported as
// (nil, false, nil), not an error — probing L2 is never required to
// succeed.
func (s *Store) Get(ctx context.Context, contentHash string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, key(contentHash)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("l2: get: %w", err)
	}
	return val, true, nil
}

// Put writes value under contentHash. Callers should treat a non-nil
// error as a signal to continue with L1-only caching rather than fail
// the document (§4.3: "Writes to L2 are best-effort").
func (s *Store) Put(ctx context.Context, contentHash string, value []byte) error {
	if err := s.client.Set(ctx, key(contentHash), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("l2: put: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

func key(contentHash string) string {
	return "vellum:result:" + contentHash
}
