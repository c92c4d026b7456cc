package executor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"peermesh/internal/resilience/circuitbreaker"
)

// Sentinel errors surfaced by Execute. Callers classify with errors.Is.
var (
	// ErrCircuitOpen signals that the endpoint's breaker refused the call.
	// The operation was not invoked and no retry attempt was consumed.
	ErrCircuitOpen = errors.New("circuit open")

	// ErrUnknownOutcome signals that an attempt timed out. The operation may
	// have succeeded on the remote side; this is never conflated with a
	// confirmed failure. Callers relying on non-idempotent side effects must
	// treat it as "may have succeeded".
	ErrUnknownOutcome = errors.New("timeout, outcome unknown")
)

// PermanentError marks an error as fatal: the executor never retries it.
// Use it for protocol violations and malformed input, where repeating the
// call cannot change the outcome.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err as a PermanentError. A nil err returns nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Kind tags a failure so callers can pattern-match behavior per variant
// instead of string-matching error text.
type Kind int

const (
	// KindTransient covers network-style failures worth retrying.
	KindTransient Kind = iota
	// KindCircuitOpen covers calls refused by an open breaker.
	KindCircuitOpen
	// KindTimeout covers attempts whose outcome is unknown.
	KindTimeout
	// KindFatal covers permanent failures and cancellation.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindCircuitOpen:
		return "circuit_open"
	case KindTimeout:
		return "timeout_unknown"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classify maps an error to its failure kind.
func Classify(err error) Kind {
	switch {
	case errors.Is(err, ErrCircuitOpen) || circuitbreaker.IsOpenError(err):
		return KindCircuitOpen
	case errors.Is(err, ErrUnknownOutcome):
		return KindTimeout
	case isFatal(err):
		return KindFatal
	default:
		return KindTransient
	}
}

// isFatal reports whether err must never be retried.
func isFatal(err error) bool {
	var perm *PermanentError
	if errors.As(err, &perm) {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// isRetryable reports whether err is worth another attempt. Timeouts count:
// the previous attempt may have succeeded, but retrying an idempotent
// operation is safe and the only way to obtain a confirmed result.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch Classify(err) {
	case KindCircuitOpen, KindFatal:
		return false
	}

	// Classic transient conditions, kept explicit for clarity in logs and
	// to match net error semantics.
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	// Anything else propagated by a peer operation is assumed transient:
	// the transport surfaces fatal conditions as PermanentError.
	return true
}
