package submission

import (
	"context"
	"sync/atomic"
	"time"

	models "github.com/canopy-network/liquidityx/pkg/db/models/accounting"
	"github.com/canopy-network/liquidityx/pkg/metrics"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultReconcileSpec runs the sweep at the top of every minute (seconds field first).
const DefaultReconcileSpec = "0 * * * * *"

// PendingSource lists persisted charges that were never submitted.
type PendingSource interface {
	PendingCharges(ctx context.Context, olderThan time.Time, limit int) ([]models.Charge, error)
}

// Resubmitter replays the operations of a persisted charge and records the outcome.
type Resubmitter interface {
	Resubmit(ctx context.Context, charge *models.Charge) (*models.Submission, error)
}

type ReconcilerOpts struct {
	// Grace skips charges younger than this; their original request may still be submitting.
	Grace         time.Duration
	// SubmitTimeout is the deadline settlement requests put on Submit. Grace is raised to
	// twice this value when it would not outlast it.
	SubmitTimeout time.Duration
	Batch         int
	// RunTimeout bounds one sweep.
	RunTimeout    time.Duration
}

// Reconciler periodically replays charges left pending by a crash between persist and submit.
type Reconciler struct {
	pending  PendingSource
	replayer Resubmitter
	logger   *zap.Logger
	opts     ReconcilerOpts
	now      func() time.Time

	cron    *cron.Cron
	running atomic.Bool
}

func NewReconciler(pending PendingSource, replayer Resubmitter, logger *zap.Logger, opts ReconcilerOpts) *Reconciler {
	if opts.Grace <= 0 {
		opts.Grace = 2 * time.Minute
	}
	if opts.SubmitTimeout > 0 && opts.Grace <= opts.SubmitTimeout {
		logger.Warn("reconcile grace does not outlast the submit deadline, raising it",
			zap.Duration("grace", opts.Grace),
			zap.Duration("submit_timeout", opts.SubmitTimeout))
		opts.Grace = 2 * opts.SubmitTimeout
	}
	if opts.Batch <= 0 {
		opts.Batch = 50
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 50 * time.Second
	}
	return &Reconciler{pending: pending, replayer: replayer, logger: logger, opts: opts, now: time.Now}
}

// Start schedules the sweep on spec. Runs never overlap.
func (r *Reconciler) Start(ctx context.Context, spec string) error {
	cronLogger := cron.PrintfLogger(zap.NewStdLog(r.logger))
	r.cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cronLogger)))

	_, err := r.cron.AddFunc(spec, func() {
		if !r.running.CompareAndSwap(false, true) {
			r.logger.Debug("reconcile still running, skipping tick")
			return
		}
		defer r.running.Store(false)

		rctx, cancel := context.WithTimeout(ctx, r.opts.RunTimeout)
		defer cancel()
		if _, err := r.Sweep(rctx); err != nil {
			r.logger.Warn("reconcile sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	r.cron.Start()
	r.logger.Info("Reconciler started", zap.String("cronSpec", spec), zap.Duration("grace", r.opts.Grace))
	return nil
}

// Stop waits for a running sweep to finish.
func (r *Reconciler) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

// Sweep replays every pending charge past the grace period and reports how many landed.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	charges, err := r.pending.PendingCharges(ctx, r.now().Add(-r.opts.Grace), r.opts.Batch)
	if err != nil {
		return 0, err
	}

	settled := 0
	for i := range charges {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}
		charge := &charges[i]
		sub, err := r.replayer.Resubmit(ctx, charge)
		if err != nil {
			metrics.ReconciledCharges.WithLabelValues("failed").Inc()
			r.logger.Error("replay of pending charge failed",
				zap.Int64("charge_id", charge.ID),
				zap.String("channel", charge.Channel),
				zap.Int64("sequence", charge.Sequence),
				zap.Error(err))
			continue
		}
		metrics.ReconciledCharges.WithLabelValues(string(sub.State)).Inc()
		if sub.State == models.SubmissionSubmitted {
			settled++
		}
	}
	if len(charges) > 0 {
		r.logger.Info("reconcile sweep done", zap.Int("pending", len(charges)), zap.Int("settled", settled))
	}
	return settled, nil
}
