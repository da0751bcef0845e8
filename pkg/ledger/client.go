package ledger

import (
	"context"
)

// Client captures the ledger gateway calls used by settlement, offer management and submission.
// The gateway holds the signing keys of the accounts the service controls.
type Client interface {
	LoadAccount(ctx context.Context, address string) (AccountInfo, error)
	GetTransfer(ctx context.Context, id string) (Transfer, error)
	ListOffers(ctx context.Context, seller string) ([]Offer, error)
	RecentTransactions(ctx context.Context, address string, limit int) ([]Transaction, error)
	BuildAndSubmit(ctx context.Context, opts SubmitOptions, ops []Operation) (SubmitResult, error)
	StreamEvents(ctx context.Context, address string, fn func(Event)) error
}

const (
	accountPath      = "/accounts/%s"
	offersPath       = "/accounts/%s/offers?limit=200"
	transactionsPath = "/accounts/%s/transactions?order=desc&limit=%d"
	operationPath    = "/operations/%s?join=transactions"
	submitPath       = "/transactions"
	eventsStreamPath = "/accounts/%s/effects/stream"
)
