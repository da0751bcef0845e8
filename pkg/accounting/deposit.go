package accounting

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/canopy-network/liquidityx/pkg/asset"
	store "github.com/canopy-network/liquidityx/pkg/db/accounting"
	models "github.com/canopy-network/liquidityx/pkg/db/models/accounting"
	"github.com/canopy-network/liquidityx/pkg/ledger"
	"github.com/canopy-network/liquidityx/pkg/market"
	"github.com/canopy-network/liquidityx/pkg/submission"
	"github.com/canopy-network/liquidityx/pkg/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DepositRequest settles a batch of transfers sent to one market manager under one memo.
type DepositRequest struct {
	TxIDs []string `json:"txs" validate:"required,min=1,max=20,dive,required"`
	Memo  string   `json:"memo" validate:"required,numeric"`
}

// WithdrawRequest settles one share transfer back to the market manager.
type WithdrawRequest struct {
	TxID string `json:"txId" validate:"required"`
}

// Result is a persisted charge and, when one was recorded, its submission outcome.
type Result struct {
	Charge     *models.Charge     `json:"charge"`
	Submission *models.Submission `json:"submission,omitempty"`
}

// Deposit mints shares for the transfers in req and pays the consumed legs into the pool.
func (l *Ledger) Deposit(ctx context.Context, req DepositRequest) (*Result, error) {
	if len(req.TxIDs) == 0 {
		return nil, fmt.Errorf("%w: no transfers", ErrValidation)
	}
	if utils.HasDuplicates(req.TxIDs) {
		return nil, fmt.Errorf("%w: duplicate transfer ids", ErrValidation)
	}

	account, err := l.accountByMemo(ctx, req.Memo)
	if err != nil {
		return nil, err
	}

	var (
		m        market.Market
		found    bool
		baseSum  = decimal.Zero
		quoteSum = decimal.Zero
		txs      = make([]models.IncomingTx, 0, len(req.TxIDs))
	)
	for _, id := range req.TxIDs {
		tr, err := l.transfer(ctx, id)
		if err != nil {
			return nil, err
		}
		if !found {
			if m, found = l.markets.ByManager(tr.To); !found {
				return nil, fmt.Errorf("%w: transfer %s is not addressed to a market manager", ErrValidation, id)
			}
		} else if tr.To != m.Manager {
			return nil, fmt.Errorf("%w: transfer %s targets a different manager", ErrValidation, id)
		}
		if tr.Memo != req.Memo {
			return nil, fmt.Errorf("%w: transfer %s carries memo %q", ErrValidation, id, tr.Memo)
		}

		switch tr.Asset {
		case m.Base:
			baseSum = baseSum.Add(tr.Amount)
		case m.Asset:
			quoteSum = quoteSum.Add(tr.Amount)
		default:
			return nil, fmt.Errorf("%w: transfer %s pays %s, not a leg of %s", ErrValidation, id, tr.Asset, m.ID)
		}
		txs = append(txs, models.IncomingTx{
			TxIn:       tr.ID,
			Manager:    m.Manager,
			CurrencyIn: tr.Asset.String(),
			AmountIn:   tr.Amount,
		})
	}

	if baseSum.IsZero() || quoteSum.IsZero() {
		return nil, fmt.Errorf("%w: deposit needs both %s and %s", ErrInsufficientInput, m.Base, m.Asset)
	}
	if err := l.requireTrustlines(ctx, account.Address, m.Asset, m.ShareAsset()); err != nil {
		return nil, err
	}

	prices, err := l.Prices(ctx, m, true)
	if err != nil {
		return nil, err
	}
	q, err := QuoteDeposit(prices, baseSum, quoteSum)
	if err != nil {
		return nil, err
	}

	charge := &models.Charge{
		AccountID:   account.ID,
		Asset:       m.Asset.Code(),
		Market:      m.ID,
		Tokens:      q.Minted,
		BaseAmount:  q.ConsumedBase,
		AssetAmount: q.ConsumedQuote,
		Manager:     m.Manager,
	}
	if err := l.persist(ctx, m, charge, txs); err != nil {
		return nil, err
	}

	l.logger.Info("deposit persisted",
		zap.Int64("charge_id", charge.ID),
		zap.String("market", m.ID),
		zap.Int64("account_id", account.ID),
		zap.String("minted", q.Minted.String()),
		zap.String("base", q.ConsumedBase.String()),
		zap.String("quote", q.ConsumedQuote.String()))

	return l.settle(ctx, "deposit", m, charge, depositIntent(m, account, charge, baseSum, quoteSum))
}

// depositIntent pays the consumed legs from the manager into the pool, refunds leftovers and
// issues the minted shares. Refunds are recomputed from the transfer sums so replays match.
func depositIntent(m market.Market, account *models.Account, charge *models.Charge, baseSum, quoteSum decimal.Decimal) submission.Intent {
	ops := make([]ledger.Operation, 0, 5)
	add := func(dest string, a asset.Asset, amt decimal.Decimal) {
		if amt.IsPositive() {
			ops = append(ops, ledger.Payment(dest, a, amt).WithSource(m.Manager))
		}
	}
	add(m.Account, m.Base, charge.BaseAmount)
	add(m.Account, m.Asset, charge.AssetAmount)
	add(account.Address, m.Base, baseSum.Sub(charge.BaseAmount))
	add(account.Address, m.Asset, quoteSum.Sub(charge.AssetAmount))
	add(account.Address, m.ShareAsset(), charge.Tokens)

	return submission.Intent{
		Source:   charge.Channel,
		Sequence: charge.Sequence,
		Ops:      ops,
		Signers:  []string{m.Manager},
		Memo:     chargeMemo(charge.ID),
	}
}

// persist reserves a channel sequence for charge and writes it with its transfers.
func (l *Ledger) persist(ctx context.Context, m market.Market, charge *models.Charge, txs []models.IncomingTx) error {
	res, err := l.submitter.Reserve(ctx, m)
	if err != nil {
		return fmt.Errorf("reserve channel for %s: %w", m.ID, err)
	}
	charge.Channel = res.Channel
	charge.Sequence = res.Sequence

	err = l.store.InsertAtomic(ctx, charge, txs)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrDuplicateTx):
		return fmt.Errorf("%w: %w", ErrDuplicateSettlement, err)
	case errors.Is(err, store.ErrSequenceTaken):
		return fmt.Errorf("%w: %w", ErrSequenceConflict, err)
	}
	return fmt.Errorf("persist charge: %w", err)
}

// accountByMemo resolves a deposit memo (the numeric account id).
func (l *Ledger) accountByMemo(ctx context.Context, memo string) (*models.Account, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(memo), 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("%w: memo %q is not an account", ErrNotFound, memo)
	}
	account, err := l.store.AccountByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: account %d", ErrNotFound, id)
	}
	return account, err
}

func (l *Ledger) transfer(ctx context.Context, id string) (ledger.Transfer, error) {
	tr, err := l.client.GetTransfer(ctx, id)
	if errors.Is(err, ledger.ErrNotFound) {
		return ledger.Transfer{}, fmt.Errorf("%w: transfer %s", ErrNotFound, id)
	}
	if err != nil {
		return ledger.Transfer{}, fmt.Errorf("fetch transfer %s: %w", id, err)
	}
	if !tr.Successful {
		return ledger.Transfer{}, fmt.Errorf("%w: transfer %s did not succeed", ErrValidation, id)
	}
	return tr, nil
}

// requireTrustlines checks that address can receive every asset in want.
func (l *Ledger) requireTrustlines(ctx context.Context, address string, want ...asset.Asset) error {
	info, err := l.client.LoadAccount(ctx, address)
	if errors.Is(err, ledger.ErrNotFound) {
		return fmt.Errorf("%w: account %s does not exist on the ledger", ErrTrustlineMissing, address)
	}
	if err != nil {
		return fmt.Errorf("load depositor %s: %w", address, err)
	}
	for _, a := range want {
		if !info.CanHold(a) {
			return fmt.Errorf("%w: %s cannot hold %s", ErrTrustlineMissing, address, a)
		}
	}
	return nil
}

func chargeMemo(id int64) string { return "charge:" + strconv.FormatInt(id, 10) }
