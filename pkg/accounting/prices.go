package accounting

import (
	"context"
	"fmt"

	"github.com/canopy-network/liquidityx/pkg/amount"
	"github.com/canopy-network/liquidityx/pkg/market"
	"github.com/shopspring/decimal"
)

// Prices is the pool state used to value one share.
type Prices struct {
	Market         string          `json:"market"`
	Issued         decimal.Decimal `json:"issued"`
	BaseBalance    decimal.Decimal `json:"baseBalance"`
	QuoteBalance   decimal.Decimal `json:"quoteBalance"`
	UnitPriceBase  decimal.Decimal `json:"unitPriceBase"`
	UnitPriceAsset decimal.Decimal `json:"unitPriceAsset"`
}

// UnitPrice is the pool balance backing one share. With nothing issued yet the divisor is 1,
// so the first depositor is priced against the seeded balance.
func UnitPrice(poolBalance, totalIssued decimal.Decimal) decimal.Decimal {
	if totalIssued.IsZero() {
		return poolBalance
	}
	return amount.Div(poolBalance, totalIssued)
}

// Prices values the shares of m. Settlement math always passes fresh; reporting may use the cached
// pool snapshot.
func (l *Ledger) Prices(ctx context.Context, m market.Market, fresh bool) (Prices, error) {
	pool, err := l.poolAccount(ctx, m, fresh)
	if err != nil {
		return Prices{}, err
	}
	base, ok := pool.BalanceOf(m.Base)
	if !ok {
		return Prices{}, fmt.Errorf("%w: pool %s holds no %s", ErrPoolUnavailable, m.Account, m.Base)
	}
	quote, ok := pool.BalanceOf(m.Asset)
	if !ok {
		return Prices{}, fmt.Errorf("%w: pool %s holds no %s", ErrPoolUnavailable, m.Account, m.Asset)
	}
	if !base.IsPositive() || !quote.IsPositive() {
		return Prices{}, fmt.Errorf("%w: pool %s is empty", ErrPoolUnavailable, m.Account)
	}

	issued, err := l.store.SumTokens(ctx, m.ID)
	if err != nil {
		return Prices{}, fmt.Errorf("sum issued shares of %s: %w", m.ID, err)
	}
	if issued.IsNegative() {
		return Prices{}, fmt.Errorf("%w: market %s has negative share supply %s", ErrPoolUnavailable, m.ID, issued)
	}

	return Prices{
		Market:         m.ID,
		Issued:         issued,
		BaseBalance:    base,
		QuoteBalance:   quote,
		UnitPriceBase:  UnitPrice(base, issued),
		UnitPriceAsset: UnitPrice(quote, issued),
	}, nil
}

// DepositQuote is the outcome of pricing a deposit.
type DepositQuote struct {
	Minted        decimal.Decimal
	ConsumedBase  decimal.Decimal
	ConsumedQuote decimal.Decimal
	RefundBase    decimal.Decimal
	RefundQuote   decimal.Decimal
}

// QuoteDeposit mints the smaller of the two legs' share counts, truncated to 7 decimals. The
// limiting leg is consumed whole; the other is consumed at price times minted, never more than supplied.
func QuoteDeposit(p Prices, baseSum, quoteSum decimal.Decimal) (DepositQuote, error) {
	if !baseSum.IsPositive() || !quoteSum.IsPositive() {
		return DepositQuote{}, fmt.Errorf("%w: both legs are required", ErrInsufficientInput)
	}
	if !p.UnitPriceBase.IsPositive() || !p.UnitPriceAsset.IsPositive() {
		return DepositQuote{}, fmt.Errorf("%w: pool %s cannot price shares", ErrPoolUnavailable, p.Market)
	}

	unitsBase := amount.Truncate(amount.Div(baseSum, p.UnitPriceBase))
	unitsQuote := amount.Truncate(amount.Div(quoteSum, p.UnitPriceAsset))

	q := DepositQuote{Minted: amount.Min(unitsBase, unitsQuote)}
	if !q.Minted.IsPositive() {
		return DepositQuote{}, fmt.Errorf("%w: deposit mints no shares", ErrInsufficientInput)
	}

	if unitsBase.LessThanOrEqual(unitsQuote) {
		q.ConsumedBase = baseSum
		q.ConsumedQuote = amount.Min(amount.Round(p.UnitPriceAsset.Mul(q.Minted)), quoteSum)
	} else {
		q.ConsumedQuote = quoteSum
		q.ConsumedBase = amount.Min(amount.Round(p.UnitPriceBase.Mul(q.Minted)), baseSum)
	}
	q.RefundBase = baseSum.Sub(q.ConsumedBase)
	q.RefundQuote = quoteSum.Sub(q.ConsumedQuote)
	return q, nil
}

// WithdrawQuote values burning shares: each leg is unit price times shares, rounded to 7 decimals.
// Depositing the owed legs back mints within one unit of shares while both unit prices are at
// least 1 and 3*shares stay outstanding. Closer to a drain the rounding error grows with
// shares/(issued-shares) and with the inverse unit price.
func WithdrawQuote(p Prices, shares decimal.Decimal) (owedBase, owedQuote decimal.Decimal, err error) {
	if !shares.IsPositive() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: withdrawal of %s shares", ErrValidation, shares)
	}
	if shares.GreaterThan(p.Issued) {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: %s requested, %s outstanding in %s",
			ErrOverWithdrawal, amount.Format(shares), amount.Format(p.Issued), p.Market)
	}
	owedBase = amount.Round(p.UnitPriceBase.Mul(shares))
	owedQuote = amount.Round(p.UnitPriceAsset.Mul(shares))
	if !owedBase.IsPositive() && !owedQuote.IsPositive() {
		return decimal.Zero, decimal.Zero, fmt.Errorf("%w: %s shares are worth nothing", ErrInsufficientInput, shares)
	}
	return owedBase, owedQuote, nil
}
