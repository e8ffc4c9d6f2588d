// Package fault wraps each document invocation with a timeout, failure
// classification, and a bounded exponential-backoff retry policy (§4.6),
// so one bad document never aborts a run.
//
// Grounded on jail's escalating-cell shape: jail.MovePrisonerToNextCell
// advances a banned CIDR through cells of increasing ban duration on
// repeated offense. Handler.Run generalizes the same "track an attempt
// count per key, escalate a duration on each failure, stop escalating
// past a bound" shape to per-document retry backoff instead of ban
// duration.
package fault

import (
	"context"
	"time"

	"github.com/docvellum/vellum/errs"
)

// Policy configures the fault handler's timeout and retry behavior.
type Policy struct {
	// Timeout is the per-document wall-clock budget (default 10 min).
	Timeout time.Duration
	// MaxRetries bounds how many times a retryable failure is retried
	// (default 2).
	MaxRetries int
	// BaseBackoff is the first retry's delay; each subsequent retry
	// doubles it (default 1s, so defaults produce 1s, 2s, capped below
	// MaxBackoff).
	BaseBackoff time.Duration
	// MaxBackoff caps the exponential backoff (default 4s, per §4.6's
	// "1s -> 4s").
	MaxBackoff time.Duration
}

// DefaultPolicy returns §4.6's stated defaults.
func DefaultPolicy() Policy {
	return Policy{
		Timeout:     10 * time.Minute,
		MaxRetries:  2,
		BaseBackoff: 1 * time.Second,
		MaxBackoff:  4 * time.Second,
	}
}

// Outcome is the terminal result of Handler.Run for one document.
type Outcome struct {
	Err     error
	Class   errs.Class
	Attempt int // 1-based: how many attempts were made, including the successful one if any
}

// Handler runs a per-document operation under Policy, retrying retryable
// failures with exponential backoff and enforcing a per-attempt timeout.
type Handler struct {
	policy Policy
}

// New builds a Handler.
func New(policy Policy) *Handler {
	return &Handler{policy: policy}
}

// Run invokes fn with a context bounded by the per-document timeout. If fn
// fails with a retryable errs.Class, Run retries up to MaxRetries times
// with exponential backoff, unless ctx is cancelled first. Run never
// panics out of fn: a panic is recovered and classified InternalBug so a
// single document can never abort the rest of the run.
func (h *Handler) Run(ctx context.Context, fn func(ctx context.Context) error) Outcome {
	backoff := h.policy.BaseBackoff

	var lastErr error
	var lastClass errs.Class

	for attempt := 1; ; attempt++ {
		err := h.runOnce(ctx, fn)
		if err == nil {
			return Outcome{Attempt: attempt}
		}

		class := errs.ClassOf(err)
		lastErr, lastClass = err, class

		if !class.Retryable() || attempt > h.policy.MaxRetries {
			return Outcome{Err: lastErr, Class: lastClass, Attempt: attempt}
		}

		select {
		case <-ctx.Done():
			return Outcome{Err: ctx.Err(), Class: errs.Timeout, Attempt: attempt}
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > h.policy.MaxBackoff {
			backoff = h.policy.MaxBackoff
		}
	}
}

func (h *Handler) runOnce(parent context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, h.policy.Timeout)
	defer cancel()

	result := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				result <- errs.New(errs.InternalBug, "fault: recovered panic in document operation", nil)
			}
		}()
		result <- fn(ctx)
	}()

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		// fn is expected to observe ctx and return promptly; if it
		// doesn't, its eventual send into result (buffered, capacity
		// 1) is simply dropped once nobody is left to receive it.
		return errs.New(errs.Timeout, "fault: document timed out", ctx.Err())
	}
}
