package accounting

import "time"

type SubmissionState string

const (
	SubmissionSubmitted SubmissionState = "submitted"
	SubmissionFailed    SubmissionState = "failed"
)

// Submission records the outcome of submitting a Charge's operations. Rows are only appended:
// a Charge may collect several failed rows before a submitted one.
type Submission struct {
	ID        int64           `json:"id"`
	ChargeID  int64           `json:"chargeId"`
	State     SubmissionState `json:"state"`
	TxHash    string          `json:"txHash,omitempty"`
	Sequence  int64           `json:"sequence,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}
