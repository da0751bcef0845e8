package ledger

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned for unknown accounts, operations or transactions.
	ErrNotFound = errors.New("ledger: not found")
	// ErrBadSequence means the transaction sequence no longer matches the source account.
	ErrBadSequence = errors.New("ledger: bad sequence")
	// ErrExpired means the transaction validity window has passed.
	ErrExpired = errors.New("ledger: transaction expired")
	// ErrTransport covers timeouts, connection failures and server errors; the outcome is unknown.
	ErrTransport = errors.New("ledger: transport failure")
)

// RejectedError is a business rejection by the ledger: resubmitting the same operations fails again.
type RejectedError struct {
	TransactionCode string
	OperationCodes  []string
}

func (e *RejectedError) Error() string {
	if len(e.OperationCodes) == 0 {
		return fmt.Sprintf("ledger: transaction rejected (%s)", e.TransactionCode)
	}
	return fmt.Sprintf("ledger: transaction rejected (%s: %s)", e.TransactionCode, strings.Join(e.OperationCodes, ","))
}

// HasOperationCode reports whether any operation failed with code.
func (e *RejectedError) HasOperationCode(code string) bool {
	for _, c := range e.OperationCodes {
		if c == code {
			return true
		}
	}
	return false
}

// classifyResult maps ledger result codes onto the error classes above.
func classifyResult(txCode string, opCodes []string) error {
	switch txCode {
	case "tx_bad_seq":
		return ErrBadSequence
	case "tx_too_late", "tx_too_early":
		return fmt.Errorf("%w (%s)", ErrExpired, txCode)
	case "tx_internal_error":
		return fmt.Errorf("%w (%s)", ErrTransport, txCode)
	}
	return &RejectedError{TransactionCode: txCode, OperationCodes: opCodes}
}

// IsStale reports whether the transaction must be rebuilt with a fresh sequence.
func IsStale(err error) bool {
	return errors.Is(err, ErrBadSequence) || errors.Is(err, ErrExpired)
}

// IsTransient reports whether the same transaction may be retried.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransport)
}

// IsRejected reports whether err is a business rejection.
func IsRejected(err error) bool {
	var r *RejectedError
	return errors.As(err, &r)
}
