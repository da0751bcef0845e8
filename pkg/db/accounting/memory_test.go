package accounting_test

import (
	"context"
	"testing"
	"time"

	"github.com/canopy-network/liquidityx/pkg/amount"
	"github.com/canopy-network/liquidityx/pkg/db/accounting"
	models "github.com/canopy-network/liquidityx/pkg/db/models/accounting"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCharge(accountID int64, channel string, seq int64, tokens string) *models.Charge {
	return &models.Charge{
		AccountID:   accountID,
		Asset:       "USD",
		Market:      "XLM/USD",
		Tokens:      amount.MustParse(tokens),
		BaseAmount:  amount.MustParse(tokens),
		AssetAmount: amount.MustParse(tokens),
		Manager:     "GMANAGER",
		Channel:     channel,
		Sequence:    seq,
	}
}

func incoming(id string) models.IncomingTx {
	return models.IncomingTx{TxIn: id, Manager: "GMANAGER", CurrencyIn: "native", AmountIn: amount.One}
}

func TestMemory_FindOrCreateAccountIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := accounting.NewMemory()

	a, created, err := store.FindOrCreateAccount(ctx, "GUSER")
	require.NoError(t, err)
	assert.True(t, created)

	b, created, err := store.FindOrCreateAccount(ctx, "GUSER")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, a.UUID, b.UUID)

	byID, err := store.AccountByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "GUSER", byID.Address)

	_, err = store.AccountByAddress(ctx, "GOTHER")
	assert.ErrorIs(t, err, accounting.ErrNotFound)
}

func TestMemory_InsertAtomicEnforcesUniqueness(t *testing.T) {
	ctx := context.Background()
	store := accounting.NewMemory()

	first := newCharge(1, "GCH", 10, "5")
	require.NoError(t, store.InsertAtomic(ctx, first, []models.IncomingTx{incoming("a"), incoming("b")}))
	assert.NotZero(t, first.ID)
	require.Len(t, first.Txs, 2)
	assert.True(t, first.Txs[0].Processed)
	assert.Equal(t, first.ID, first.Txs[1].ChargeID)

	err := store.InsertAtomic(ctx, newCharge(1, "GCH", 11, "5"), []models.IncomingTx{incoming("b")})
	assert.ErrorIs(t, err, accounting.ErrDuplicateTx)

	err = store.InsertAtomic(ctx, newCharge(1, "GCH", 10, "5"), []models.IncomingTx{incoming("c")})
	assert.ErrorIs(t, err, accounting.ErrSequenceTaken)

	// A failed insert leaves nothing behind: "c" is still available.
	require.NoError(t, store.InsertAtomic(ctx, newCharge(1, "GCH", 11, "5"), []models.IncomingTx{incoming("c")}))

	sum, err := store.SumTokens(ctx, "XLM/USD")
	require.NoError(t, err)
	assert.True(t, sum.Equal(amount.MustParse("10")))

	highest, ok, err := store.MaxSequence(ctx, "GCH")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(11), highest)

	_, ok, err = store.MaxSequence(ctx, "GOTHER")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_AccountTotalsNetsWithdrawals(t *testing.T) {
	ctx := context.Background()
	store := accounting.NewMemory()

	require.NoError(t, store.InsertAtomic(ctx, newCharge(7, "GCH", 1, "10"), []models.IncomingTx{incoming("d")}))
	require.NoError(t, store.InsertAtomic(ctx, newCharge(7, "GCH", 2, "-4"), []models.IncomingTx{incoming("w")}))
	require.NoError(t, store.InsertAtomic(ctx, newCharge(8, "GCH", 3, "1"), []models.IncomingTx{incoming("o")}))

	totals, err := store.AccountTotals(ctx, 7)
	require.NoError(t, err)
	require.Len(t, totals, 1)
	assert.Equal(t, "XLM/USD", totals[0].Market)
	assert.True(t, totals[0].Tokens.Equal(amount.MustParse("6")))
}

func TestMemory_PendingAndFailedCharges(t *testing.T) {
	ctx := context.Background()
	store := accounting.NewMemory()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return start })

	a := newCharge(1, "GCH", 1, "1")
	b := newCharge(1, "GCH", 2, "1")
	c := newCharge(1, "GCH", 3, "1")
	require.NoError(t, store.InsertAtomic(ctx, a, []models.IncomingTx{incoming("1")}))
	require.NoError(t, store.InsertAtomic(ctx, b, []models.IncomingTx{incoming("2")}))
	require.NoError(t, store.InsertAtomic(ctx, c, []models.IncomingTx{incoming("3")}))

	require.NoError(t, store.RecordSubmission(ctx, &models.Submission{ChargeID: b.ID, State: models.SubmissionFailed, Error: "op_no_trust"}))
	require.NoError(t, store.RecordSubmission(ctx, &models.Submission{ChargeID: c.ID, State: models.SubmissionFailed}))
	require.NoError(t, store.RecordSubmission(ctx, &models.Submission{ChargeID: c.ID, State: models.SubmissionSubmitted, TxHash: "h"}))

	pending, err := store.PendingCharges(ctx, start.Add(time.Minute), 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, a.ID, pending[0].ID)

	pending, err = store.PendingCharges(ctx, start, 0)
	require.NoError(t, err)
	assert.Empty(t, pending, "grace period not elapsed")

	failed, err := store.FailedCharges(ctx, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, b.ID, failed[0].ID)

	subs, err := store.Submissions(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, subs, 2)

	err = store.RecordSubmission(ctx, &models.Submission{ChargeID: 99, State: models.SubmissionSubmitted})
	assert.ErrorIs(t, err, accounting.ErrNotFound)
}

func TestMemory_DuplicateTransferOutranksSequenceConflict(t *testing.T) {
	ctx := context.Background()
	store := accounting.NewMemory()

	require.NoError(t, store.InsertAtomic(ctx, newCharge(1, "GCH", 5, "1"), []models.IncomingTx{incoming("op-1")}))
	err := store.InsertAtomic(ctx, newCharge(1, "GCH", 5, "1"), []models.IncomingTx{incoming("op-1")})
	assert.ErrorIs(t, err, accounting.ErrDuplicateTx)
	assert.NotErrorIs(t, err, accounting.ErrSequenceTaken)
}
