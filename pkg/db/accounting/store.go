package accounting

import (
	"context"
	"errors"
	"time"

	models "github.com/canopy-network/liquidityx/pkg/db/models/accounting"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned by keyed lookups that match nothing.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateTx means an IncomingTx with the same external id was already consumed.
	ErrDuplicateTx = errors.New("incoming transfer already consumed")
	// ErrSequenceTaken means another Charge already reserved the same (channel, sequence) pair.
	ErrSequenceTaken = errors.New("channel sequence already reserved")
)

// Store is the append-only settlement store. Charges and their IncomingTx rows are written together
// exactly once; uniqueness of txIn and of (channel, sequence) is enforced here and nowhere else.
type Store interface {
	FindOrCreateAccount(ctx context.Context, address string) (*models.Account, bool, error)
	AccountByID(ctx context.Context, id int64) (*models.Account, error)
	AccountByAddress(ctx context.Context, address string) (*models.Account, error)

	// InsertAtomic persists charge and txs in one transaction, assigning ids and marking txs processed.
	// It returns ErrDuplicateTx or ErrSequenceTaken when a uniqueness constraint is hit. A consumed
	// txIn is reported as ErrDuplicateTx even when the (channel, sequence) pair also collides.
	InsertAtomic(ctx context.Context, charge *models.Charge, txs []models.IncomingTx) error
	ChargeByID(ctx context.Context, id int64) (*models.Charge, error)
	SumTokens(ctx context.Context, market string) (decimal.Decimal, error)
	AccountTotals(ctx context.Context, accountID int64) ([]models.Totals, error)
	// MaxSequence returns the highest sequence reserved on channel, if any.
	MaxSequence(ctx context.Context, channel string) (int64, bool, error)

	RecordSubmission(ctx context.Context, s *models.Submission) error
	Submissions(ctx context.Context, chargeID int64) ([]models.Submission, error)
	// PendingCharges returns charges created before olderThan without any submission row.
	PendingCharges(ctx context.Context, olderThan time.Time, limit int) ([]models.Charge, error)
	// FailedCharges returns charges with a failed submission and no successful one.
	FailedCharges(ctx context.Context, limit int) ([]models.Charge, error)

	Close() error
}
