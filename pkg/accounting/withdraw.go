package accounting

import (
	"context"
	"fmt"

	models "github.com/canopy-network/liquidityx/pkg/db/models/accounting"
	"github.com/canopy-network/liquidityx/pkg/ledger"
	"github.com/canopy-network/liquidityx/pkg/market"
	"github.com/canopy-network/liquidityx/pkg/submission"
	"go.uber.org/zap"
)

// Withdraw burns the shares sent back to a market manager and pays the underlying legs out of the pool.
func (l *Ledger) Withdraw(ctx context.Context, req WithdrawRequest) (*Result, error) {
	if req.TxID == "" {
		return nil, fmt.Errorf("%w: no transfer", ErrValidation)
	}
	tr, err := l.transfer(ctx, req.TxID)
	if err != nil {
		return nil, err
	}

	m, ok := l.markets.ByManager(tr.To)
	if !ok {
		return nil, fmt.Errorf("%w: transfer %s is not addressed to a market manager", ErrValidation, tr.ID)
	}
	if tr.Asset != m.ShareAsset() {
		return nil, fmt.Errorf("%w: transfer %s pays %s, expected %s", ErrValidation, tr.ID, tr.Asset, m.ShareAsset())
	}

	account, err := l.accountByMemo(ctx, tr.Memo)
	if err != nil {
		return nil, err
	}
	if err := l.requireTrustlines(ctx, account.Address, m.Base, m.Asset); err != nil {
		return nil, err
	}

	prices, err := l.Prices(ctx, m, true)
	if err != nil {
		return nil, err
	}
	owedBase, owedQuote, err := WithdrawQuote(prices, tr.Amount)
	if err != nil {
		return nil, err
	}

	charge := &models.Charge{
		AccountID:   account.ID,
		Asset:       m.Asset.Code(),
		Market:      m.ID,
		Tokens:      tr.Amount.Neg(),
		BaseAmount:  owedBase.Neg(),
		AssetAmount: owedQuote.Neg(),
		Manager:     m.Manager,
	}
	txs := []models.IncomingTx{{
		TxIn:       tr.ID,
		Manager:    m.Manager,
		CurrencyIn: tr.Asset.String(),
		AmountIn:   tr.Amount,
	}}
	if err := l.persist(ctx, m, charge, txs); err != nil {
		return nil, err
	}

	l.logger.Info("withdrawal persisted",
		zap.Int64("charge_id", charge.ID),
		zap.String("market", m.ID),
		zap.Int64("account_id", account.ID),
		zap.String("burned", tr.Amount.String()),
		zap.String("base", owedBase.String()),
		zap.String("quote", owedQuote.String()))

	return l.settle(ctx, "withdraw", m, charge, withdrawIntent(m, account, charge))
}

// withdrawIntent pays both legs from the pool to the depositor; the pool co-signs.
func withdrawIntent(m market.Market, account *models.Account, charge *models.Charge) submission.Intent {
	ops := make([]ledger.Operation, 0, 2)
	if owed := charge.BaseAmount.Neg(); owed.IsPositive() {
		ops = append(ops, ledger.Payment(account.Address, m.Base, owed).WithSource(m.Account))
	}
	if owed := charge.AssetAmount.Neg(); owed.IsPositive() {
		ops = append(ops, ledger.Payment(account.Address, m.Asset, owed).WithSource(m.Account))
	}
	return submission.Intent{
		Source:   charge.Channel,
		Sequence: charge.Sequence,
		Ops:      ops,
		Signers:  []string{m.Account},
		Memo:     chargeMemo(charge.ID),
	}
}
