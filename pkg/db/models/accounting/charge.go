package accounting

import (
	"time"

	"github.com/shopspring/decimal"
)

// IncomingTx is an inbound ledger transfer consumed by exactly one Charge.
type IncomingTx struct {
	ID         int64           `json:"id"`
	TxIn       string          `json:"txIn"`
	Manager    string          `json:"manager"`
	CurrencyIn string          `json:"currencyIn"`
	AmountIn   decimal.Decimal `json:"amountIn"`
	Processed  bool            `json:"processed"`
	ChargeID   int64           `json:"chargeId"`
}

// Charge is one append-only settlement event. Tokens, BaseAmount and AssetAmount are
// positive for deposits (mint) and negative for withdrawals (burn).
type Charge struct {
	ID          int64           `json:"id"`
	AccountID   int64           `json:"accountId"`
	Asset       string          `json:"asset"`
	Market      string          `json:"market"`
	Tokens      decimal.Decimal `json:"tokens"`
	BaseAmount  decimal.Decimal `json:"baseAmount"`
	AssetAmount decimal.Decimal `json:"assetAmount"`
	Manager     string          `json:"manager"`
	Channel     string          `json:"channel"`
	Sequence    int64           `json:"sequence"`
	CreatedAt   time.Time       `json:"createdAt"`
	Txs         []IncomingTx    `json:"txs"`
}

func (c Charge) IsWithdrawal() bool { return c.Tokens.IsNegative() }

// Totals is the net position of an account in one market.
type Totals struct {
	Market      string          `json:"market"`
	Tokens      decimal.Decimal `json:"tokens"`
	BaseAmount  decimal.Decimal `json:"baseAmount"`
	AssetAmount decimal.Decimal `json:"assetAmount"`
}
