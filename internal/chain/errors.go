package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a ledger operation failure. Timeout and Unreachable are
// transient and eligible for retry; Reverted and InsufficientFunds are
// terminal business rejections and must never be retried.
type Kind string

const (
	KindInsufficientFunds Kind = "insufficient_funds"
	KindReverted          Kind = "reverted"
	KindTimeout           Kind = "timeout"
	KindUnreachable       Kind = "unreachable"
)

// Error is a classified ledger failure.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("chain %s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("chain %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure class permits a retry.
func (e *Error) Retryable() bool {
	return e.Kind == KindTimeout || e.Kind == KindUnreachable
}

// AsError returns the classified *Error in err's chain, or nil.
func AsError(err error) *Error {
	var chainErr *Error
	if errors.As(err, &chainErr) {
		return chainErr
	}
	return nil
}

// Classify maps an error from a ledger call onto a failure kind. Unknown
// RPC-level errors are treated as terminal: retrying an operation the
// ledger already judged is never safe, while transport failures are.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	if chainErr := AsError(err); chainErr != nil {
		return chainErr
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{Kind: KindTimeout, Err: err}
	}

	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		msg := strings.ToLower(rpcErr.Message)
		switch {
		case strings.Contains(msg, "insufficient funds"):
			return &Error{Kind: KindInsufficientFunds, Reason: rpcErr.Message, Err: err}
		case rpcErr.Code == 3 || strings.Contains(msg, "revert"):
			return &Error{Kind: KindReverted, Reason: revertReason(rpcErr), Err: err}
		default:
			return &Error{Kind: KindReverted, Reason: rpcErr.Message, Err: err}
		}
	}

	// Transport-level failure: connection refused, DNS, client timeout.
	return &Error{Kind: KindUnreachable, Err: err}
}

// Reverted builds a terminal rejection from a failed receipt.
func Reverted(reason string) *Error {
	return &Error{Kind: KindReverted, Reason: reason}
}

// IsNonceConflict reports whether err indicates the signer nonce is out of
// sync with the ledger; the orchestrator resynchronizes on it.
func IsNonceConflict(err error) bool {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	msg := strings.ToLower(rpcErr.Message)
	return strings.Contains(msg, "nonce too low") || strings.Contains(msg, "nonce too high") ||
		strings.Contains(msg, "replacement transaction")
}

// IsAlreadyKnown reports whether err indicates the node already holds the
// exact transaction being sent.
func IsAlreadyKnown(err error) bool {
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		return false
	}
	msg := strings.ToLower(rpcErr.Message)
	return strings.Contains(msg, "already known") || strings.Contains(msg, "known transaction")
}

func revertReason(rpcErr *RPCError) string {
	if len(rpcErr.Data) > 0 {
		return fmt.Sprintf("%s (%s)", rpcErr.Message, strings.Trim(string(rpcErr.Data), `"`))
	}
	return rpcErr.Message
}
