package ledger

import (
	"time"

	"github.com/canopy-network/liquidityx/pkg/asset"
	"github.com/shopspring/decimal"
)

// Balance is one balance line (trustline) of an account.
type Balance struct {
	Asset   asset.Asset
	Balance decimal.Decimal
	Limit   decimal.Decimal
}

// AccountInfo is the subset of account state the service needs.
type AccountInfo struct {
	ID       string
	Sequence int64
	Balances []Balance
}

// BalanceOf returns the balance line for a, if the account holds one.
func (a AccountInfo) BalanceOf(target asset.Asset) (decimal.Decimal, bool) {
	for _, b := range a.Balances {
		if b.Asset == target {
			return b.Balance, true
		}
	}
	return decimal.Zero, false
}

// CanHold reports whether the account can receive target. Native needs no trustline.
func (a AccountInfo) CanHold(target asset.Asset) bool {
	if target.IsNative() {
		return true
	}
	_, ok := a.BalanceOf(target)
	return ok
}

// Transfer is a payment operation already applied on the ledger.
type Transfer struct {
	ID              string
	From            string
	To              string
	Asset           asset.Asset
	Amount          decimal.Decimal
	Memo            string
	TransactionHash string
	Successful      bool
}

// Offer is a resting sell offer: Amount of Selling offered at Price units of Buying each.
type Offer struct {
	ID      int64
	Seller  string
	Selling asset.Asset
	Buying  asset.Asset
	Amount  decimal.Decimal
	Price   decimal.Decimal
}

// Transaction is a summary of a submitted transaction, used for landed checks.
type Transaction struct {
	Hash       string
	Source     string
	Sequence   int64
	Memo       string
	Successful bool
	CreatedAt  time.Time
}

// Event is a push notification about an account (an effect on the ledger).
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Account   string    `json:"account"`
	CreatedAt time.Time `json:"created_at"`
}

// SubmitOptions controls how BuildAndSubmit assembles the transaction.
type SubmitOptions struct {
	// Source is the transaction source account (the channel). Its key signs the transaction.
	Source string
	// Sequence is the source's current sequence; the transaction uses Sequence+1.
	Sequence int64
	// Signers are additional accounts co-signing, e.g. the pool when it is an operation source.
	Signers []string
	Memo    string
	// Timeout bounds the validity window of the transaction.
	Timeout time.Duration
}

// SubmitResult is returned for an applied transaction.
type SubmitResult struct {
	Hash     string `json:"hash"`
	Ledger   int64  `json:"ledger"`
	Sequence int64  `json:"sequence"`
}
