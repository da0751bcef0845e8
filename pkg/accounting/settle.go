package accounting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	store "github.com/canopy-network/liquidityx/pkg/db/accounting"
	models "github.com/canopy-network/liquidityx/pkg/db/models/accounting"
	"github.com/canopy-network/liquidityx/pkg/ledger"
	"github.com/canopy-network/liquidityx/pkg/market"
	"github.com/canopy-network/liquidityx/pkg/metrics"
	"github.com/canopy-network/liquidityx/pkg/submission"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SettlementChannel is the pub/sub channel settlement events are published on.
const SettlementChannel = "amm:settlements"

// SettlementEvent is published after every settlement attempt.
type SettlementEvent struct {
	Kind     string                 `json:"kind"`
	Market   string                 `json:"market"`
	ChargeID int64                  `json:"chargeId"`
	Tokens   decimal.Decimal        `json:"tokens"`
	State    models.SubmissionState `json:"state,omitempty"`
	TxHash   string                 `json:"txHash,omitempty"`
}

// settle submits a persisted charge and records the outcome. A failure here leaves the
// charge in place: fatal rejections are flagged for an operator, transient ones are
// picked up again by the reconciler.
func (l *Ledger) settle(ctx context.Context, kind string, m market.Market, charge *models.Charge, in submission.Intent) (*Result, error) {
	submitCtx, cancel := context.WithTimeout(ctx, l.submitTimeout)
	res, err := l.submitter.Submit(submitCtx, in)
	cancel()
	sub := l.recordOutcome(ctx, charge, res, err)
	l.publish(ctx, kind, charge, sub)

	if issued, sErr := l.store.SumTokens(ctx, m.ID); sErr == nil {
		metrics.SharesOutstanding.WithLabelValues(m.ID).Set(issued.InexactFloat64())
	}

	if err != nil {
		class := string(submission.ClassTransient)
		if se, ok := submission.AsError(err); ok {
			class = string(se.Class)
		}
		metrics.SubmissionFailures.WithLabelValues(class).Inc()
		metrics.SettlementsTotal.WithLabelValues(kind, "submission_failed").Inc()
		l.logger.Error("settlement submission failed",
			zap.String("kind", kind),
			zap.Int64("charge_id", charge.ID),
			zap.String("channel", charge.Channel),
			zap.Int64("sequence", charge.Sequence),
			zap.String("class", class),
			zap.Error(err))
		return &Result{Charge: charge, Submission: sub}, fmt.Errorf("%w: charge %d: %w", ErrSubmissionFailed, charge.ID, err)
	}

	metrics.SettlementsTotal.WithLabelValues(kind, "settled").Inc()
	l.invalidate(m)
	return &Result{Charge: charge, Submission: sub}, nil
}

// recordOutcome appends a submission row: submitted on success, failed on a fatal rejection.
// Transient failures record nothing so the charge stays pending for the reconciler.
func (l *Ledger) recordOutcome(ctx context.Context, charge *models.Charge, res ledger.SubmitResult, err error) *models.Submission {
	sub := &models.Submission{ChargeID: charge.ID}
	switch se, ok := submission.AsError(err); {
	case err == nil:
		sub.State = models.SubmissionSubmitted
		sub.TxHash = res.Hash
		sub.Sequence = res.Sequence
	case ok && se.Fatal():
		sub.State = models.SubmissionFailed
		sub.Error = se.Err.Error()
	default:
		return nil
	}

	// The ledger outcome stands even if it cannot be recorded; the reconciler's landed check
	// resolves a lost submitted row.
	if rErr := l.store.RecordSubmission(ctx, sub); rErr != nil {
		l.logger.Error("record submission failed",
			zap.Int64("charge_id", charge.ID),
			zap.String("state", string(sub.State)),
			zap.Error(rErr))
	}
	return sub
}

func (l *Ledger) publish(ctx context.Context, kind string, charge *models.Charge, sub *models.Submission) {
	if l.events == nil {
		return
	}
	ev := SettlementEvent{Kind: kind, Market: charge.Market, ChargeID: charge.ID, Tokens: charge.Tokens}
	if sub != nil {
		ev.State, ev.TxHash = sub.State, sub.TxHash
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	l.events.Publish(ctx, SettlementChannel, payload)
}

func (l *Ledger) invalidate(m market.Market) { l.balances.Delete(m.Account) }

// Replay rebuilds the settlement intent of a persisted charge with its original reservation and memo.
func (l *Ledger) Replay(ctx context.Context, charge *models.Charge) (submission.Intent, error) {
	m, ok := l.markets.ByID(charge.Market)
	if !ok {
		return submission.Intent{}, fmt.Errorf("%w: market %s of charge %d", ErrNotFound, charge.Market, charge.ID)
	}
	account, err := l.store.AccountByID(ctx, charge.AccountID)
	if err != nil {
		return submission.Intent{}, fmt.Errorf("account of charge %d: %w", charge.ID, err)
	}

	if charge.IsWithdrawal() {
		return withdrawIntent(m, account, charge), nil
	}

	baseSum, quoteSum := decimal.Zero, decimal.Zero
	for _, tx := range charge.Txs {
		switch tx.CurrencyIn {
		case m.Base.String():
			baseSum = baseSum.Add(tx.AmountIn)
		case m.Asset.String():
			quoteSum = quoteSum.Add(tx.AmountIn)
		}
	}
	if baseSum.LessThan(charge.BaseAmount) || quoteSum.LessThan(charge.AssetAmount) {
		return submission.Intent{}, fmt.Errorf("charge %d consumes more than its transfers supplied", charge.ID)
	}
	return depositIntent(m, account, charge, baseSum, quoteSum), nil
}

// Resubmit replays a persisted charge and records the outcome. It refuses charges that already
// have a submitted row.
func (l *Ledger) Resubmit(ctx context.Context, charge *models.Charge) (*models.Submission, error) {
	subs, err := l.store.Submissions(ctx, charge.ID)
	if err != nil {
		return nil, err
	}
	for i := range subs {
		if subs[i].State == models.SubmissionSubmitted {
			return &subs[i], fmt.Errorf("%w: charge %d was submitted in %s", ErrDuplicateSettlement, charge.ID, subs[i].TxHash)
		}
	}

	in, err := l.Replay(ctx, charge)
	if err != nil {
		return nil, err
	}
	res, err := l.submitter.Submit(ctx, in)
	sub := l.recordOutcome(ctx, charge, res, err)
	kind := "deposit"
	if charge.IsWithdrawal() {
		kind = "withdraw"
	}
	l.publish(ctx, kind, charge, sub)
	if err != nil {
		return sub, fmt.Errorf("%w: charge %d: %w", ErrSubmissionFailed, charge.ID, err)
	}

	l.logger.Info("charge resubmitted", zap.Int64("charge_id", charge.ID), zap.String("tx_hash", sub.TxHash))
	return sub, nil
}

// ResubmitByID loads a charge and resubmits it.
func (l *Ledger) ResubmitByID(ctx context.Context, id int64) (*Result, error) {
	charge, err := l.chargeByID(ctx, id)
	if err != nil {
		return nil, err
	}
	sub, err := l.Resubmit(ctx, charge)
	return &Result{Charge: charge, Submission: sub}, err
}

// Pending lists charges awaiting submission: never submitted, or failed fatally.
func (l *Ledger) Pending(ctx context.Context, limit int) (pending, failed []models.Charge, err error) {
	if pending, err = l.store.PendingCharges(ctx, l.now(), limit); err != nil {
		return nil, nil, err
	}
	if failed, err = l.store.FailedCharges(ctx, limit); err != nil {
		return nil, nil, err
	}
	return pending, failed, nil
}

func (l *Ledger) chargeByID(ctx context.Context, id int64) (*models.Charge, error) {
	charge, err := l.store.ChargeByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: charge %d", ErrNotFound, id)
		}
		return nil, err
	}
	return charge, nil
}
