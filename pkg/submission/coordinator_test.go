package submission_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/canopy-network/liquidityx/pkg/amount"
	"github.com/canopy-network/liquidityx/pkg/asset"
	"github.com/canopy-network/liquidityx/pkg/ledger"
	"github.com/canopy-network/liquidityx/pkg/ledger/ledgertest"
	"github.com/canopy-network/liquidityx/pkg/market"
	"github.com/canopy-network/liquidityx/pkg/retry"
	"github.com/canopy-network/liquidityx/pkg/submission"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type mockSequences struct {
	mock.Mock
}

func (m *mockSequences) MaxSequence(ctx context.Context, channel string) (int64, bool, error) {
	args := m.Called(ctx, channel)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func newCoordinator(t *testing.T, client ledger.Client, seqs submission.SequenceStore) *submission.Coordinator {
	return submission.New(client, seqs, zaptest.NewLogger(t),
		submission.WithRetry(retry.Fixed(3, time.Millisecond)),
		submission.WithMaxRebuilds(2),
	)
}

func payment() []ledger.Operation {
	return []ledger.Operation{ledger.Payment("GUSER", asset.Native(), amount.One).WithSource("GPOOL")}
}

func TestReserve_RoundRobinAndHeldSequences(t *testing.T) {
	fake := ledgertest.New()
	fake.SetAccount("GCH1", 100)
	fake.SetAccount("GCH2", 200)

	seqs := &mockSequences{}
	seqs.On("MaxSequence", mock.Anything, "GCH1").Return(int64(100), true, nil)
	seqs.On("MaxSequence", mock.Anything, "GCH2").Return(int64(0), false, nil)

	m := market.Market{ID: "XLM/USD", Manager: "GM", Channels: []string{"GCH1", "GCH2"}}
	c := newCoordinator(t, fake, seqs)

	first, err := c.Reserve(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, submission.Reservation{Channel: "GCH1", Sequence: 101}, first, "held sequence is skipped")

	second, err := c.Reserve(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, submission.Reservation{Channel: "GCH2", Sequence: 200}, second)

	third, err := c.Reserve(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, "GCH1", third.Channel)

	seqs.AssertExpectations(t)
}

func TestReserve_UnknownChannel(t *testing.T) {
	c := newCoordinator(t, ledgertest.New(), nil)
	_, err := c.Reserve(context.Background(), market.Market{ID: "m", Manager: "GMISSING"})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestSubmit_Success(t *testing.T) {
	fake := ledgertest.New()
	fake.SetAccount("GCH", 10)

	res, err := newCoordinator(t, fake, nil).Submit(context.Background(), submission.Intent{
		Source:   "GCH",
		Sequence: 10,
		Ops:      payment(),
		Signers:  []string{"GPOOL", "GCH", "GPOOL", ""},
		Memo:     "charge:1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(11), res.Sequence)

	subs := fake.Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, []string{"GPOOL"}, subs[0].Opts.Signers)
	assert.Equal(t, submission.DefaultTimeout, subs[0].Opts.Timeout)
	assert.Equal(t, "charge:1", subs[0].Opts.Memo)
}

func TestSubmit_ZeroSequenceQueriesLive(t *testing.T) {
	fake := ledgertest.New()
	fake.SetAccount("GPOOL", 42)

	_, err := newCoordinator(t, fake, nil).Submit(context.Background(), submission.Intent{Source: "GPOOL", Ops: payment()})
	require.NoError(t, err)
	assert.Equal(t, int64(42), fake.Submissions()[0].Opts.Sequence)
}

func TestSubmit_StaleSequenceRebuildsWithFreshOne(t *testing.T) {
	fake := ledgertest.New()
	fake.SetAccount("GCH", 12)

	res, err := newCoordinator(t, fake, nil).Submit(context.Background(), submission.Intent{
		Source:   "GCH",
		Sequence: 10,
		Ops:      payment(),
		Memo:     "charge:2",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(13), res.Sequence)

	subs := fake.Submissions()
	require.Len(t, subs, 2)
	assert.ErrorIs(t, subs[0].Err, ledger.ErrBadSequence)
	assert.Equal(t, int64(10), subs[0].Opts.Sequence)
	assert.Equal(t, int64(12), subs[1].Opts.Sequence, "never resubmits the stale sequence")
}

func TestSubmit_LandedAfterTimeoutIsNotResubmitted(t *testing.T) {
	fake := ledgertest.New()
	fake.SetAccount("GCH", 10)
	fake.OnSubmit(func(call int, _ ledger.SubmitOptions, _ []ledger.Operation) (bool, error) {
		if call == 1 {
			// Applied on the ledger, but the caller only sees a timeout.
			return true, ledger.ErrTransport
		}
		return true, nil
	})

	res, err := newCoordinator(t, fake, nil).Submit(context.Background(), submission.Intent{
		Source:   "GCH",
		Sequence: 10,
		Ops:      payment(),
		Memo:     "charge:3",
	})
	require.NoError(t, err)
	assert.Equal(t, "tx0001", res.Hash)
	assert.Equal(t, int64(11), fake.Sequence("GCH"), "exactly one transaction applied")
	assert.True(t, fake.Balance("GUSER", asset.Native()).Equal(amount.One))
}

func TestSubmit_RejectionIsFatal(t *testing.T) {
	fake := ledgertest.New()
	fake.SetAccount("GCH", 10)
	fake.OnSubmit(func(int, ledger.SubmitOptions, []ledger.Operation) (bool, error) {
		return false, &ledger.RejectedError{TransactionCode: "tx_failed", OperationCodes: []string{"op_no_trust"}}
	})

	_, err := newCoordinator(t, fake, nil).Submit(context.Background(), submission.Intent{
		Source: "GCH", Sequence: 10, Ops: payment(), Memo: "charge:4",
	})
	require.Error(t, err)

	se, ok := submission.AsError(err)
	require.True(t, ok)
	assert.True(t, se.Fatal())
	assert.Equal(t, 1, se.Attempts)
	assert.True(t, ledger.IsRejected(err))
	assert.Len(t, fake.Submissions(), 1, "rejections are not retried")
}

func TestSubmit_TransportExhaustionIsTransient(t *testing.T) {
	fake := ledgertest.New()
	fake.SetAccount("GCH", 10)
	fake.OnSubmit(func(int, ledger.SubmitOptions, []ledger.Operation) (bool, error) {
		return false, ledger.ErrTransport
	})

	_, err := newCoordinator(t, fake, nil).Submit(context.Background(), submission.Intent{
		Source: "GCH", Sequence: 10, Ops: payment(), Memo: "charge:5",
	})
	se, ok := submission.AsError(err)
	require.True(t, ok)
	assert.False(t, se.Fatal())
	assert.Equal(t, 3, se.Attempts)
	assert.ErrorIs(t, err, ledger.ErrTransport)

	for _, s := range fake.Submissions() {
		assert.Equal(t, int64(10), s.Opts.Sequence, "transport retries reuse the same build")
	}
}

func TestSubmit_RebuildLimit(t *testing.T) {
	fake := ledgertest.New()
	fake.SetAccount("GCH", 10)
	fake.OnSubmit(func(int, ledger.SubmitOptions, []ledger.Operation) (bool, error) {
		return false, ledger.ErrExpired
	})

	_, err := newCoordinator(t, fake, nil).Submit(context.Background(), submission.Intent{
		Source: "GCH", Sequence: 10, Ops: payment(), Memo: "charge:6",
	})
	se, ok := submission.AsError(err)
	require.True(t, ok)
	assert.Equal(t, submission.ClassTransient, se.Class)
	assert.Len(t, fake.Submissions(), 3, "initial build plus two rebuilds")
}

func TestSubmit_EmptyIntent(t *testing.T) {
	_, err := newCoordinator(t, ledgertest.New(), nil).Submit(context.Background(), submission.Intent{Source: "GCH"})
	assert.Error(t, err)
	_, ok := submission.AsError(err)
	assert.False(t, ok)
}

func TestSubmit_CancelledContext(t *testing.T) {
	fake := ledgertest.New()
	fake.SetAccount("GCH", 10)
	ctx, cancel := context.WithCancel(context.Background())
	fake.OnSubmit(func(int, ledger.SubmitOptions, []ledger.Operation) (bool, error) {
		cancel()
		return false, ledger.ErrTransport
	})

	_, err := newCoordinator(t, fake, nil).Submit(ctx, submission.Intent{Source: "GCH", Sequence: 10, Ops: payment()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
