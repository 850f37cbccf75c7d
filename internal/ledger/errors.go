package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// FailureReason categorizes transaction failures.
type FailureReason string

const (
	// ReasonRejected means the ledger refused the transaction before inclusion.
	ReasonRejected FailureReason = "rejected"

	// ReasonReverted means the transaction was included but reverted.
	ReasonReverted FailureReason = "reverted"

	// ReasonTimeout means confirmation did not arrive within the deadline.
	// The transaction may still be included later.
	ReasonTimeout FailureReason = "timeout"

	// ReasonCancelled means the operator stopped the run while the
	// transaction was pending. The transaction may still be included later.
	ReasonCancelled FailureReason = "cancelled"
)

// TransactionFailure reports a submitted transaction that was rejected,
// reverted, or not confirmed in time. It is never retried automatically.
type TransactionFailure struct {
	Op     string // "deploy <artifact>" or "call <method>"
	Reason FailureReason
	TxHash common.Hash // zero if never submitted
	Err    error
}

// Error implements the error interface.
func (e *TransactionFailure) Error() string {
	msg := fmt.Sprintf("transaction %s: %s", e.Reason, e.Op)
	if e.TxHash != (common.Hash{}) {
		msg += fmt.Sprintf(" (tx=%s)", e.TxHash.Hex())
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *TransactionFailure) Unwrap() error {
	return e.Err
}

// IsTransactionFailure returns true if err is or wraps a TransactionFailure.
func IsTransactionFailure(err error) bool {
	var tf *TransactionFailure
	return errors.As(err, &tf)
}

// Classify wraps err as a TransactionFailure. An expired deadline becomes
// ReasonTimeout and a cancelled context ReasonCancelled; anything else
// takes fallback.
// Existing TransactionFailures are returned unchanged.
func Classify(op string, txHash common.Hash, err error, fallback FailureReason) error {
	if err == nil {
		return nil
	}
	var tf *TransactionFailure
	if errors.As(err, &tf) {
		return err
	}
	reason := fallback
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		reason = ReasonTimeout
	case errors.Is(err, context.Canceled):
		reason = ReasonCancelled
	}
	return &TransactionFailure{Op: op, Reason: reason, TxHash: txHash, Err: err}
}
