package ledger

import (
	"github.com/canopy-network/liquidityx/pkg/amount"
	"github.com/canopy-network/liquidityx/pkg/asset"
	"github.com/shopspring/decimal"
)

type OperationType string

const (
	OpPayment         OperationType = "payment"
	OpManageSellOffer OperationType = "manage_sell_offer"
)

// Operation is one ledger operation in its gateway wire form. Amounts and prices are
// rendered with the ledger's 7 decimals.
type Operation struct {
	Type   OperationType `json:"type"`
	Source string        `json:"source_account,omitempty"`

	// payment
	Destination string       `json:"destination,omitempty"`
	Asset       *asset.Asset `json:"asset,omitempty"`

	// manage_sell_offer; OfferID 0 creates, Amount "0" deletes
	Selling *asset.Asset `json:"selling,omitempty"`
	Buying  *asset.Asset `json:"buying,omitempty"`
	Price   string       `json:"price,omitempty"`
	OfferID int64        `json:"offer_id,omitempty"`

	Amount string `json:"amount"`
}

// Payment sends amt of a to destination.
func Payment(destination string, a asset.Asset, amt decimal.Decimal) Operation {
	return Operation{
		Type:        OpPayment,
		Destination: destination,
		Asset:       &a,
		Amount:      amount.Format(amt),
	}
}

// ManageSellOffer creates (offerID 0) or updates an offer selling amt of selling for buying.
func ManageSellOffer(selling, buying asset.Asset, amt, price decimal.Decimal, offerID int64) Operation {
	return Operation{
		Type:    OpManageSellOffer,
		Selling: &selling,
		Buying:  &buying,
		Amount:  amount.Format(amt),
		Price:   amount.Format(price),
		OfferID: offerID,
	}
}

// CancelOffer removes a live offer by setting its amount to zero.
func CancelOffer(o Offer) Operation {
	return ManageSellOffer(o.Selling, o.Buying, decimal.Zero, o.Price, o.ID)
}

// WithSource sets the operation source account.
func (o Operation) WithSource(source string) Operation {
	o.Source = source
	return o
}
