package l2

import "testing"

func TestKeyNamespacing(t *testing.T) {
	hash := "abcdef0123456789"
	got := key(hash)
	want := "vellum:result:" + hash
	if got != want {
		t.Fatalf("key(%q) = %q, want %q", hash, got, want)
	}
}

func TestDialDoesNotConnectEagerly(t *testing.T) {
	// Dial must not itself fail or block even when nothing is listening
	// on Addr — go-redis dials lazily on the first command, and Get/Put
	// report connectivity failures as ordinary errors so callers can
	// downgrade to L1-only caching (§4.3).
	store := Dial(Options{Addr: "127.0.0.1:1"})
	if store == nil {
		t.Fatal("Dial returned nil")
	}
	defer store.Close()
}
