// Package fusionerrs defines the three error kinds spec.md §7 requires
// every subsystem to classify its failures into, wrapped with
// github.com/go-errors/errors so operator-facing diagnostics carry a stack
// trace the same way the teacher's htlcswitch package does.
package fusionerrs

import (
	"errors"

	goerrors "github.com/go-errors/errors"
)

// Kind classifies a failure for retry/terminal-state purposes. It is never
// a Go error type itself -- callers use Of(err) to recover it from a
// wrapped error.
type Kind uint8

const (
	// KindUnknown is the zero value; Of returns it for errors that were
	// never classified through this package.
	KindUnknown Kind = iota

	// KindTransient covers network blips, nonce collisions, and
	// reorg-within-finality-window conditions. Retried with bounded
	// exponential backoff under a per-operation budget.
	KindTransient

	// KindPermanent covers precondition violations and timeout windows
	// that have elapsed past recovery. Transitions the affected swap to
	// Aborted or Refunding.
	KindPermanent

	// KindInvariant covers internal contract breaches -- e.g. a secret
	// that doesn't hash to its registered commitment. The process
	// aborts with a structured diagnostic; this is never retried or
	// silently handled.
	KindInvariant
)

// String renders the kind for structured log fields.
func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	case KindInvariant:
		return "invariant"
	default:
		return "unknown"
	}
}

// classifiedError pairs a Kind with a stack-carrying error.
type classifiedError struct {
	kind Kind
	err  *goerrors.Error
}

func (c *classifiedError) Error() string {
	return c.err.Error()
}

func (c *classifiedError) Unwrap() error {
	return c.err.Err
}

// ErrorStack returns the formatted stack trace captured when the error was
// classified, for inclusion in operator alerts.
func (c *classifiedError) ErrorStack() string {
	return c.err.ErrorStack()
}

// Transient wraps err as a retryable failure.
func Transient(err error) error {
	return classify(KindTransient, err)
}

// Permanent wraps err as a non-retryable, swap-terminal failure.
func Permanent(err error) error {
	return classify(KindPermanent, err)
}

// Invariant wraps err as an internal contract breach. Callers at the
// daemon's top level treat this as fatal.
func Invariant(err error) error {
	return classify(KindInvariant, err)
}

func classify(kind Kind, err error) error {
	if err == nil {
		return nil
	}

	return &classifiedError{
		kind: kind,
		err:  goerrors.Wrap(err, 1),
	}
}

// Of recovers the Kind a fusionerrs-classified error was constructed with.
// Errors never passed through Transient/Permanent/Invariant report
// KindUnknown.
func Of(err error) Kind {
	var ce *classifiedError
	if errors.As(err, &ce) {
		return ce.kind
	}

	return KindUnknown
}

// IsTransient reports whether err was classified as retryable.
func IsTransient(err error) bool {
	return Of(err) == KindTransient
}

// IsPermanent reports whether err was classified as swap-terminal.
func IsPermanent(err error) bool {
	return Of(err) == KindPermanent
}

// IsInvariant reports whether err represents an internal contract breach.
func IsInvariant(err error) bool {
	return Of(err) == KindInvariant
}
