package accounting

import "errors"

var (
	// ErrValidation covers malformed requests and transfers that do not belong to the request.
	ErrValidation = errors.New("invalid request")
	// ErrNotFound means the memo account or a referenced transfer does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientInput means a leg is missing or the deposit mints nothing.
	ErrInsufficientInput = errors.New("insufficient input")
	// ErrTrustlineMissing means the depositor cannot receive an asset the settlement pays out.
	ErrTrustlineMissing = errors.New("trustline missing")
	// ErrDuplicateSettlement means a transfer was already consumed by another charge.
	ErrDuplicateSettlement = errors.New("already processed")
	// ErrOverWithdrawal means more shares are burned than the market has outstanding.
	ErrOverWithdrawal = errors.New("withdrawal exceeds outstanding shares")
	// ErrPoolUnavailable means the pool account cannot price shares.
	ErrPoolUnavailable = errors.New("pool unavailable")
	// ErrSequenceConflict means a concurrent settlement reserved the same channel sequence; retry.
	ErrSequenceConflict = errors.New("sequence conflict")
	// ErrSubmissionFailed wraps a post-persist submission failure. The charge stays recorded.
	ErrSubmissionFailed = errors.New("submission failed")
)
