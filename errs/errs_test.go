package errs

import (
	"errors"
	"testing"
)

func TestRetryableOnlyResource(t *testing.T) {
	cases := []struct {
		class Class
		want  bool
	}{
		{Configuration, false},
		{IO, false},
		{Parse, false},
		{Resource, true},
		{Timeout, false},
		{UnavailableOptional, false},
		{InternalBug, false},
	}
	for _, c := range cases {
		if got := c.class.Retryable(); got != c.want {
			t.Fatalf("%s.Retryable() = %v, want %v", c.class, got, c.want)
		}
	}
}

func TestClassOfUnwrapsWrappedError(t *testing.T) {
	base := New(IO, "conduit: file not found", errors.New("open failed"))
	wrapped := New(InternalBug, "dispatch: decode cached document", base)

	if got := ClassOf(wrapped); got != InternalBug {
		t.Fatalf("ClassOf(wrapped) = %v, want %v (innermost Class is not the one As finds first)", got, InternalBug)
	}
	if got := ClassOf(base); got != IO {
		t.Fatalf("ClassOf(base) = %v, want %v", got, IO)
	}
}

func TestClassOfUnclassifiedDefaultsToInternalBug(t *testing.T) {
	if got := ClassOf(errors.New("opaque failure")); got != InternalBug {
		t.Fatalf("ClassOf(opaque) = %v, want %v", got, InternalBug)
	}
}
