package fault

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/docvellum/vellum/errs"
)

func fastPolicy() Policy {
	return Policy{
		Timeout:     50 * time.Millisecond,
		MaxRetries:  2,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  4 * time.Millisecond,
	}
}

func TestHandlerRunSucceedsFirstTry(t *testing.T) {
	h := New(fastPolicy())
	out := h.Run(context.Background(), func(ctx context.Context) error {
		return nil
	})
	if out.Err != nil {
		t.Fatalf("Run() err = %v, want nil", out.Err)
	}
	if out.Attempt != 1 {
		t.Fatalf("Attempt = %d, want 1", out.Attempt)
	}
}

func TestHandlerRunRetriesRetryableFailures(t *testing.T) {
	h := New(fastPolicy())
	var calls int32
	out := h.Run(context.Background(), func(ctx context.Context) error {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			return errs.New(errs.Resource, "transient", nil)
		}
		return nil
	})
	if out.Err != nil {
		t.Fatalf("Run() err = %v, want nil after retries succeed", out.Err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("calls = %d, want 3 (1 initial + 2 retries)", calls)
	}
}

func TestHandlerRunStopsAtMaxRetries(t *testing.T) {
	h := New(fastPolicy())
	var calls int32
	out := h.Run(context.Background(), func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return errs.New(errs.Resource, "always fails", nil)
	})
	if out.Err == nil {
		t.Fatal("expected a terminal error after exhausting retries")
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("calls = %d, want 3 (1 initial + 2 retries)", calls)
	}
}

func TestHandlerRunDoesNotRetryTerminalFailures(t *testing.T) {
	h := New(fastPolicy())
	var calls int32
	out := h.Run(context.Background(), func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return errs.New(errs.Parse, "bad document", nil)
	})
	if out.Err == nil {
		t.Fatal("expected a terminal error")
	}
	if out.Class != errs.Parse {
		t.Fatalf("Class = %v, want Parse", out.Class)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (parse failures are not retried)", calls)
	}
}

func TestHandlerRunTimesOutSlowOperations(t *testing.T) {
	h := New(fastPolicy())
	out := h.Run(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if out.Class != errs.Timeout {
		t.Fatalf("Class = %v, want Timeout", out.Class)
	}
}

func TestHandlerRunRecoversPanics(t *testing.T) {
	h := New(Policy{Timeout: 50 * time.Millisecond, MaxRetries: 0, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond})
	out := h.Run(context.Background(), func(ctx context.Context) error {
		panic("boom")
	})
	if out.Class != errs.InternalBug {
		t.Fatalf("Class = %v, want InternalBug", out.Class)
	}
}
