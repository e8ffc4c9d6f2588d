// Package errs defines the failure-class taxonomy used to decide retry
// and exit behavior throughout the engine. The teacher wraps errors with
// fmt.Errorf("...: %w", err) and otherwise leaves failures as opaque
// errors; this package adds just enough structure for the fault handler
// and checkpoint layer to classify a failure without string-sniffing it.
package errs

import "errors"

// Class is one of the seven failure classes a document or a control
// operation can fail with.
type Class int

const (
	// Configuration marks a failure in static setup: bad TOML, a missing
	// required option, an invalid flag combination. Always terminal.
	Configuration Class = iota
	// IO marks a filesystem, network, or cache-backend failure.
	IO
	// Parse marks a native-parser adapter failure for one document.
	Parse
	// Resource marks an allocation or memory-pressure failure.
	Resource
	// Timeout marks a fault-handler deadline exceeded.
	Timeout
	// UnavailableOptional marks a missing optional backend (GPU-OCR, ML
	// inference) — the stage that needed it is skipped, not failed.
	UnavailableOptional
	// InternalBug marks an invariant violation that should never happen
	// in correct code (e.g. an ABI size assertion failing).
	InternalBug
)

func (c Class) String() string {
	switch c {
	case Configuration:
		return "configuration"
	case IO:
		return "io"
	case Parse:
		return "parse"
	case Resource:
		return "resource"
	case Timeout:
		return "timeout"
	case UnavailableOptional:
		return "unavailable_optional"
	case InternalBug:
		return "internal_bug"
	default:
		return "unknown"
	}
}

// Error is a classified error. Wrap an underlying cause with New so the
// fault handler and checkpoint layer can pattern-match on Class without
// parsing the message.
type Error struct {
	Class Class
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified Error wrapping err (err may be nil).
func New(class Class, msg string, err error) *Error {
	return &Error{Class: class, Msg: msg, Err: err}
}

// ClassOf extracts the Class from err if it (or something it wraps) is an
// *Error; otherwise it returns InternalBug, since an unclassified failure
// reaching the fault handler is itself a bug in the caller that produced
// it without going through this package.
func ClassOf(err error) Class {
	var e *Error
	if errors.As(err, &e) {
		return e.Class
	}
	return InternalBug
}

// Retryable reports whether a failure of this class should be retried by
// the fault handler. §7/§8 make IO and Timeout terminal: a missing file or
// a blown deadline will fail identically on retry, so only Resource
// (allocation/memory pressure, which can clear on its own) is worth
// retrying.
func (c Class) Retryable() bool {
	return c == Resource
}

// ExitCode returns the process exit code a Configuration-class failure at
// startup should produce (§6: configuration errors exit 1). §6 also
// assigns distinct codes to a couple of specific startup failures
// (manifest unreadable, L1 initialization failure) that share this
// package's IO class with many non-fatal per-document failures, so those
// are not derivable from Class alone — see cli.ExitError, which the entry
// point uses to carry the exact code for a startup failure.
func ExitCode(class Class) int {
	if class == Configuration {
		return 1
	}
	return 3
}
