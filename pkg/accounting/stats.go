package accounting

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/canopy-network/liquidityx/pkg/amount"
	store "github.com/canopy-network/liquidityx/pkg/db/accounting"
	models "github.com/canopy-network/liquidityx/pkg/db/models/accounting"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// MarketStats reports one market and, when an account was given, that account's position in it.
type MarketStats struct {
	Market         string          `json:"market"`
	Issued         decimal.Decimal `json:"issued"`
	UnitPriceBase  decimal.Decimal `json:"unitPriceBase"`
	UnitPriceAsset decimal.Decimal `json:"unitPriceAsset"`
	BaseBalance    decimal.Decimal `json:"baseBalance"`
	QuoteBalance   decimal.Decimal `json:"quoteBalance"`
	Position       *Position       `json:"position,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// Position is an account's net settlement totals and the current pool value of its shares.
type Position struct {
	Tokens      decimal.Decimal `json:"tokens"`
	BaseAmount  decimal.Decimal `json:"baseAmount"`
	AssetAmount decimal.Decimal `json:"assetAmount"`
	ValueBase   decimal.Decimal `json:"valueBase"`
	ValueAsset  decimal.Decimal `json:"valueAsset"`
}

// Account finds or creates the depositor account for a ledger address.
func (l *Ledger) Account(ctx context.Context, address string) (*models.Account, bool, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, false, fmt.Errorf("%w: empty account address", ErrValidation)
	}
	account, created, err := l.store.FindOrCreateAccount(ctx, address)
	if err != nil {
		return nil, false, fmt.Errorf("find or create account %s: %w", address, err)
	}
	if created {
		l.logger.Info("account created", zap.Int64("account_id", account.ID), zap.String("address", address))
	}
	return account, created, nil
}

// Stats reports every market from the cached pool snapshot. A market whose pool cannot be priced is
// reported with its error instead of failing the whole call.
func (l *Ledger) Stats(ctx context.Context, address string) ([]MarketStats, error) {
	var totals map[string]models.Totals
	if address != "" {
		account, err := l.store.AccountByAddress(ctx, address)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: account %s", ErrNotFound, address)
		}
		if err != nil {
			return nil, err
		}
		rows, err := l.store.AccountTotals(ctx, account.ID)
		if err != nil {
			return nil, err
		}
		totals = make(map[string]models.Totals, len(rows))
		for _, t := range rows {
			totals[t.Market] = t
		}
	}

	markets := l.markets.All()
	out := make([]MarketStats, 0, len(markets))
	for _, m := range markets {
		st := MarketStats{Market: m.ID}
		p, err := l.Prices(ctx, m, false)
		if err != nil {
			if !errors.Is(err, ErrPoolUnavailable) {
				return nil, err
			}
			st.Error = err.Error()
		} else {
			st.Issued = p.Issued
			st.UnitPriceBase = p.UnitPriceBase
			st.UnitPriceAsset = p.UnitPriceAsset
			st.BaseBalance = p.BaseBalance
			st.QuoteBalance = p.QuoteBalance
		}

		if totals != nil {
			t := totals[m.ID]
			pos := &Position{Tokens: t.Tokens, BaseAmount: t.BaseAmount, AssetAmount: t.AssetAmount}
			if err == nil {
				pos.ValueBase = amount.Round(p.UnitPriceBase.Mul(t.Tokens))
				pos.ValueAsset = amount.Round(p.UnitPriceAsset.Mul(t.Tokens))
			}
			st.Position = pos
		}
		out = append(out, st)
	}
	return out, nil
}
