package uartbridge

import (
	"errors"
	"fmt"
)

var (
	// ErrEncoding is returned when a transaction does not fit the wire buffer.
	// Nothing is sent in that case.
	ErrEncoding = errors.New("transaction too large for wire buffer")
	// ErrOutOfSync indicates a malformed reply frame or a stray terminator.
	ErrOutOfSync = errors.New("link out of sync")
	// ErrTimeout indicates no reply, or no result, within the time bound.
	ErrTimeout = errors.New("transfer timed out")
	// ErrDevice wraps failures of the underlying serial device.
	ErrDevice = errors.New("serial device error")
	// ErrSlotProtocol indicates a result that does not match the loaded transaction.
	ErrSlotProtocol = errors.New("mailbox slot protocol error")
	// ErrTransfer is recorded when the agent reports a failed exchange.
	ErrTransfer = errors.New("bridge transfer failed")
	ErrNoMessages = errors.New("empty transaction")
	ErrWouldBlock = errors.New("operation would block")
)

// ErrStale is returned for results delivered for a transaction that is no
// longer in flight, e.g. after its submitter timed out.
var ErrStale = fmt.Errorf("stale result: %w", ErrSlotProtocol)

var retryable = []error{ErrOutOfSync, ErrTimeout, ErrTransfer}

// IsRetryable reports whether the caller may simply submit the transaction again.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	for _, r := range retryable {
		if errors.Is(err, r) {
			return true
		}
	}
	return false
}
