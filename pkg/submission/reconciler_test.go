package submission_test

import (
	"context"
	"errors"
	"testing"
	"time"

	models "github.com/canopy-network/liquidityx/pkg/db/models/accounting"
	"github.com/canopy-network/liquidityx/pkg/submission"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type mockPending struct {
	mock.Mock
}

func (m *mockPending) PendingCharges(ctx context.Context, olderThan time.Time, limit int) ([]models.Charge, error) {
	args := m.Called(ctx, olderThan, limit)
	if v := args.Get(0); v != nil {
		return v.([]models.Charge), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockResubmitter struct {
	mock.Mock
}

func (m *mockResubmitter) Resubmit(ctx context.Context, charge *models.Charge) (*models.Submission, error) {
	args := m.Called(ctx, charge.ID)
	if v := args.Get(0); v != nil {
		return v.(*models.Submission), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestReconciler_SweepReplaysPendingCharges(t *testing.T) {
	pending := &mockPending{}
	pending.On("PendingCharges", mock.Anything, mock.MatchedBy(func(ts time.Time) bool {
		return time.Since(ts) >= time.Minute
	}), 10).Return([]models.Charge{{ID: 1}, {ID: 2}, {ID: 3}}, nil)

	replayer := &mockResubmitter{}
	replayer.On("Resubmit", mock.Anything, int64(1)).Return(&models.Submission{ChargeID: 1, State: models.SubmissionSubmitted}, nil)
	replayer.On("Resubmit", mock.Anything, int64(2)).Return(nil, errors.New("ledger down"))
	replayer.On("Resubmit", mock.Anything, int64(3)).Return(&models.Submission{ChargeID: 3, State: models.SubmissionFailed}, nil)

	r := submission.NewReconciler(pending, replayer, zaptest.NewLogger(t), submission.ReconcilerOpts{
		Grace: time.Minute,
		Batch: 10,
	})

	settled, err := r.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, settled)

	pending.AssertExpectations(t)
	replayer.AssertExpectations(t)
}

func TestReconciler_GraceOutlastsSubmitTimeout(t *testing.T) {
	pending := &mockPending{}
	pending.On("PendingCharges", mock.Anything, mock.MatchedBy(func(ts time.Time) bool {
		return time.Since(ts) >= 20*time.Minute
	}), mock.Anything).Return(nil, nil)

	r := submission.NewReconciler(pending, &mockResubmitter{}, zaptest.NewLogger(t), submission.ReconcilerOpts{
		Grace:         time.Minute,
		SubmitTimeout: 10 * time.Minute,
	})

	_, err := r.Sweep(context.Background())
	require.NoError(t, err)
	pending.AssertExpectations(t)
}

func TestReconciler_SweepPropagatesStoreError(t *testing.T) {
	pending := &mockPending{}
	pending.On("PendingCharges", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("db gone"))

	r := submission.NewReconciler(pending, &mockResubmitter{}, zaptest.NewLogger(t), submission.ReconcilerOpts{})
	_, err := r.Sweep(context.Background())
	assert.EqualError(t, err, "db gone")
}

func TestReconciler_StartRejectsBadSpec(t *testing.T) {
	r := submission.NewReconciler(&mockPending{}, &mockResubmitter{}, zaptest.NewLogger(t), submission.ReconcilerOpts{})
	assert.Error(t, r.Start(context.Background(), "not a cron spec"))
}

func TestReconciler_StartRunsOnSchedule(t *testing.T) {
	swept := make(chan struct{}, 1)
	pending := &mockPending{}
	pending.On("PendingCharges", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			select {
			case swept <- struct{}{}:
			default:
			}
		}).
		Return([]models.Charge{}, nil)

	r := submission.NewReconciler(pending, &mockResubmitter{}, zaptest.NewLogger(t), submission.ReconcilerOpts{})
	require.NoError(t, r.Start(context.Background(), "@every 1s"))
	defer r.Stop()

	select {
	case <-swept:
	case <-time.After(3 * time.Second):
		t.Fatal("sweep never ran")
	}
}
