package ruleerrors

import (
	"github.com/pkg/errors"
)

// ErrMalformedInput indicates that submitted bytes failed to decode
// into a header or block. Malformed input is rejected without being
// recorded anywhere.
var ErrMalformedInput = errors.New("malformed input")

// ErrOrphanHeader indicates the parent of a submitted header is unknown.
// Buffering orphans is the caller's responsibility.
var ErrOrphanHeader = errors.New("orphan header")

// ErrDuplicateHeader indicates that a header with the same hash is
// already present in the block index.
var ErrDuplicateHeader = errors.New("duplicate header")

// ErrUnknownBlock indicates that the referenced block hash is not present
// in the block index.
var ErrUnknownBlock = errors.New("unknown block")

// InvariantError identifies a violation of an internal consistency
// assumption. It indicates a bug rather than bad input, and the
// mutation that triggered it is aborted without being committed.
type InvariantError struct {
	message string
}

func (e InvariantError) Error() string {
	return e.message
}

func newInvariantError(message string) InvariantError {
	return InvariantError{message: message}
}

var (
	// ErrUndoMismatch indicates that an undo record does not match the
	// ledger it is applied to, e.g. a created outpoint is already gone.
	ErrUndoMismatch = newInvariantError("ErrUndoMismatch")

	// ErrInvalidTransition indicates a block status was asked to skip a
	// validity level, regress, or leave the failed state.
	ErrInvalidTransition = newInvariantError("ErrInvalidTransition")

	// ErrTipMismatch indicates the ledger tip does not match the block
	// being connected or disconnected.
	ErrTipMismatch = newInvariantError("ErrTipMismatch")
)

// IsInvariantError returns whether err is, or wraps, an InvariantError.
func IsInvariantError(err error) bool {
	return errors.As(err, &InvariantError{})
}

// StoreIOError wraps a failure of the durable backing store.
type StoreIOError struct {
	inner error
}

func (e StoreIOError) Error() string {
	return "store I/O error: " + e.inner.Error()
}

// Unwrap satisfies the errors.Unwrap interface
func (e StoreIOError) Unwrap() error {
	return e.inner
}

// NewStoreIOError wraps err in a StoreIOError. It returns nil if err is nil,
// and returns err unchanged if it is already a StoreIOError.
func NewStoreIOError(err error) error {
	if err == nil {
		return nil
	}
	if IsStoreIOError(err) {
		return err
	}
	return errors.WithStack(StoreIOError{inner: err})
}

// IsStoreIOError returns whether err is, or wraps, a StoreIOError.
func IsStoreIOError(err error) bool {
	return errors.As(err, &StoreIOError{})
}
