// Package offers derives the resting offer ladder of a pool and reconciles it with the ledger.
package offers

import (
	"github.com/canopy-network/liquidityx/pkg/amount"
	"github.com/canopy-network/liquidityx/pkg/asset"
	"github.com/shopspring/decimal"
)

// PriceTolerance is the relative distance |live-target|/target under which a live offer
// is considered to sit at a target price.
var PriceTolerance = decimal.New(1, -3)

// DefaultLadder holds the price multipliers applied around the pool's median price.
var DefaultLadder = []decimal.Decimal{
	decimal.RequireFromString("1.002"),
	decimal.RequireFromString("1.004"),
	decimal.RequireFromString("1.006"),
	decimal.RequireFromString("1.008"),
	decimal.RequireFromString("1.01"),
	decimal.RequireFromString("1.015"),
	decimal.RequireFromString("1.02"),
	decimal.RequireFromString("1.2"),
}

var three = decimal.NewFromInt(3)

// Target is one offer the pool should have resting.
type Target struct {
	Selling asset.Asset     `json:"selling"`
	Buying  asset.Asset     `json:"buying"`
	Amount  decimal.Decimal `json:"amount"`
	Price   decimal.Decimal `json:"price"`
}

// Targets builds two offers per ladder level: quote sold for base at median*L and base sold for
// quote at L/median, each sized balance*(L-1)/L/3. Amounts and prices are rounded to 7 decimals;
// levels that round to nothing are skipped.
func Targets(base, quote asset.Asset, baseBalance, quoteBalance decimal.Decimal, ladder []decimal.Decimal) []Target {
	if !baseBalance.IsPositive() || !quoteBalance.IsPositive() {
		return nil
	}
	median := amount.Div(baseBalance, quoteBalance)
	inverse := amount.Div(amount.One, median)

	out := make([]Target, 0, 2*len(ladder))
	for _, level := range ladder {
		share := amount.Div(amount.Div(level.Sub(amount.One), level), three)
		out = appendTarget(out, Target{
			Selling: quote,
			Buying:  base,
			Amount:  amount.Round(quoteBalance.Mul(share)),
			Price:   amount.Round(median.Mul(level)),
		})
		out = appendTarget(out, Target{
			Selling: base,
			Buying:  quote,
			Amount:  amount.Round(baseBalance.Mul(share)),
			Price:   amount.Round(inverse.Mul(level)),
		})
	}
	return out
}

func appendTarget(out []Target, t Target) []Target {
	if !t.Amount.IsPositive() || !t.Price.IsPositive() {
		return out
	}
	return append(out, t)
}
