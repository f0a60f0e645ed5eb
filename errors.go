package workqueue

import (
	"errors"

	"github.com/domonda/go-errs"
)

// The closed error taxonomy of the package.
//
// Everything a backing store can do wrong at runtime surfaces as
// ErrUnavailable from the Processor so that callers apply one retry/backoff
// policy regardless of the underlying cause. ErrInvalidConfig is only
// returned synchronously from configuration validation and Processor
// construction. ErrOwnershipConflict is returned by Queue implementations
// when completing or failing a task that is no longer owned by the caller;
// the Processor downgrades it to a warning because ownership races are
// expected under crash recovery.
const (
	ErrClosed            errs.Sentinel = "workqueue is closed"
	ErrUnavailable       errs.Sentinel = "workqueue backing store unavailable"
	ErrInvalidConfig     errs.Sentinel = "invalid workqueue configuration"
	ErrOwnershipConflict errs.Sentinel = "task not owned by instance"
)

// IsUnavailable reports whether err is or wraps ErrUnavailable.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsOwnershipConflict reports whether err is or wraps ErrOwnershipConflict.
func IsOwnershipConflict(err error) bool {
	return errors.Is(err, ErrOwnershipConflict)
}

// unavailable wraps err as ErrUnavailable, keeping the cause in the chain.
// nil and already-wrapped errors pass through unchanged.
func unavailable(err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) {
		return err
	}
	return errs.Errorf("%w: %w", ErrUnavailable, err)
}
