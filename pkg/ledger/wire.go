package ledger

import (
	"fmt"
	"strconv"
	"time"

	"github.com/canopy-network/liquidityx/pkg/asset"
	"github.com/shopspring/decimal"
)

// Wire shapes follow Horizon's JSON resources.

type wirePage[T any] struct {
	Embedded struct {
		Records []T `json:"records"`
	} `json:"_embedded"`
}

type wireBalance struct {
	Balance     string `json:"balance"`
	Limit       string `json:"limit"`
	AssetType   string `json:"asset_type"`
	AssetCode   string `json:"asset_code"`
	AssetIssuer string `json:"asset_issuer"`
}

type wireAccount struct {
	ID       string        `json:"id"`
	Sequence string        `json:"sequence"`
	Balances []wireBalance `json:"balances"`
}

func (w wireAccount) toAccountInfo() (AccountInfo, error) {
	seq, err := strconv.ParseInt(w.Sequence, 10, 64)
	if err != nil {
		return AccountInfo{}, fmt.Errorf("account %s sequence %q: %w", w.ID, w.Sequence, err)
	}
	info := AccountInfo{ID: w.ID, Sequence: seq, Balances: make([]Balance, 0, len(w.Balances))}
	for _, b := range w.Balances {
		if b.AssetType == "liquidity_pool_shares" {
			continue
		}
		a, err := asset.FromWire(b.AssetType, b.AssetCode, b.AssetIssuer)
		if err != nil {
			return AccountInfo{}, err
		}
		bal, err := decimal.NewFromString(b.Balance)
		if err != nil {
			return AccountInfo{}, fmt.Errorf("balance %q: %w", b.Balance, err)
		}
		limit := decimal.Zero
		if b.Limit != "" {
			if limit, err = decimal.NewFromString(b.Limit); err != nil {
				return AccountInfo{}, fmt.Errorf("limit %q: %w", b.Limit, err)
			}
		}
		info.Balances = append(info.Balances, Balance{Asset: a, Balance: bal, Limit: limit})
	}
	return info, nil
}

type wireTransaction struct {
	Hash                  string    `json:"hash"`
	SourceAccount         string    `json:"source_account"`
	SourceAccountSequence string    `json:"source_account_sequence"`
	Memo                  string    `json:"memo"`
	MemoType              string    `json:"memo_type"`
	Successful            bool      `json:"successful"`
	CreatedAt             time.Time `json:"created_at"`
}

func (w wireTransaction) toTransaction() (Transaction, error) {
	var seq int64
	if w.SourceAccountSequence != "" {
		var err error
		if seq, err = strconv.ParseInt(w.SourceAccountSequence, 10, 64); err != nil {
			return Transaction{}, fmt.Errorf("transaction %s sequence: %w", w.Hash, err)
		}
	}
	return Transaction{
		Hash:       w.Hash,
		Source:     w.SourceAccount,
		Sequence:   seq,
		Memo:       w.Memo,
		Successful: w.Successful,
		CreatedAt:  w.CreatedAt,
	}, nil
}

type wirePayment struct {
	ID                    string           `json:"id"`
	Type                  string           `json:"type"`
	From                  string           `json:"from"`
	To                    string           `json:"to"`
	AssetType             string           `json:"asset_type"`
	AssetCode             string           `json:"asset_code"`
	AssetIssuer           string           `json:"asset_issuer"`
	Amount                string           `json:"amount"`
	TransactionHash       string           `json:"transaction_hash"`
	TransactionSuccessful bool             `json:"transaction_successful"`
	Transaction           *wireTransaction `json:"transaction"`
}

func (w wirePayment) toTransfer() (Transfer, error) {
	if w.Type != "payment" {
		return Transfer{}, fmt.Errorf("%w: operation %s is %q, not a payment", ErrNotFound, w.ID, w.Type)
	}
	a, err := asset.FromWire(w.AssetType, w.AssetCode, w.AssetIssuer)
	if err != nil {
		return Transfer{}, err
	}
	amt, err := decimal.NewFromString(w.Amount)
	if err != nil {
		return Transfer{}, fmt.Errorf("operation %s amount %q: %w", w.ID, w.Amount, err)
	}
	t := Transfer{
		ID:              w.ID,
		From:            w.From,
		To:              w.To,
		Asset:           a,
		Amount:          amt,
		TransactionHash: w.TransactionHash,
		Successful:      w.TransactionSuccessful,
	}
	if w.Transaction != nil {
		t.Memo = w.Transaction.Memo
		t.Successful = w.Transaction.Successful
	}
	return t, nil
}

type wireOffer struct {
	ID      string      `json:"id"`
	Seller  string      `json:"seller"`
	Selling asset.Asset `json:"selling"`
	Buying  asset.Asset `json:"buying"`
	Amount  string      `json:"amount"`
	Price   string      `json:"price"`
}

func (w wireOffer) toOffer() (Offer, error) {
	id, err := strconv.ParseInt(w.ID, 10, 64)
	if err != nil {
		return Offer{}, fmt.Errorf("offer id %q: %w", w.ID, err)
	}
	amt, err := decimal.NewFromString(w.Amount)
	if err != nil {
		return Offer{}, fmt.Errorf("offer %d amount: %w", id, err)
	}
	price, err := decimal.NewFromString(w.Price)
	if err != nil {
		return Offer{}, fmt.Errorf("offer %d price: %w", id, err)
	}
	return Offer{ID: id, Seller: w.Seller, Selling: w.Selling, Buying: w.Buying, Amount: amt, Price: price}, nil
}

type submitRequest struct {
	Source         string      `json:"source_account"`
	Sequence       string      `json:"sequence"`
	Signers        []string    `json:"signers,omitempty"`
	Memo           string      `json:"memo,omitempty"`
	TimeoutSeconds int64       `json:"timeout_seconds,omitempty"`
	Operations     []Operation `json:"operations"`
}

type wireProblem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Extras struct {
		ResultCodes struct {
			Transaction string   `json:"transaction"`
			Operations  []string `json:"operations"`
		} `json:"result_codes"`
	} `json:"extras"`
}
