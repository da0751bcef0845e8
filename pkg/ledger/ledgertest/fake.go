// Package ledgertest provides an in-memory ledger.Client for tests.
package ledgertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/canopy-network/liquidityx/pkg/asset"
	"github.com/canopy-network/liquidityx/pkg/ledger"
	"github.com/shopspring/decimal"
)

// Submission is one recorded BuildAndSubmit call.
type Submission struct {
	Opts   ledger.SubmitOptions
	Ops    []ledger.Operation
	Result ledger.SubmitResult
	Err    error
}

// SubmitHook runs before a submission is applied. call is 1-based across the fake's lifetime.
// apply reports whether the transaction lands; err is what the caller sees.
type SubmitHook func(call int, opts ledger.SubmitOptions, ops []ledger.Operation) (apply bool, err error)

// Fake is a ledger.Client backed by maps. Landed transactions move balances, update offers
// and bump the source sequence.
type Fake struct {
	mu sync.Mutex

	accounts     map[string]*ledger.AccountInfo
	transfers    map[string]ledger.Transfer
	offers       map[string][]ledger.Offer
	transactions map[string][]ledger.Transaction
	listeners    map[string][]func(ledger.Event)
	submissions  []Submission
	nextOfferID  int64
	ledgerSeq    int64

	hook SubmitHook

	// LoadErr, when set, fails LoadAccount for every address.
	LoadErr error
}

var _ ledger.Client = (*Fake)(nil)

func New() *Fake {
	return &Fake{
		accounts:     map[string]*ledger.AccountInfo{},
		transfers:    map[string]ledger.Transfer{},
		offers:       map[string][]ledger.Offer{},
		transactions: map[string][]ledger.Transaction{},
		listeners:    map[string][]func(ledger.Event){},
		nextOfferID:  1000,
		ledgerSeq:    1,
	}
}

// SetAccount creates or replaces address with the given sequence. Trustlines are added with SetBalance.
func (f *Fake) SetAccount(address string, sequence int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[address] = &ledger.AccountInfo{ID: address, Sequence: sequence}
}

// SetBalance sets (or opens) the balance line of a on address.
func (f *Fake) SetBalance(address string, a asset.Asset, amt decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setBalance(address, a, amt)
}

func (f *Fake) setBalance(address string, a asset.Asset, amt decimal.Decimal) {
	acct, ok := f.accounts[address]
	if !ok {
		acct = &ledger.AccountInfo{ID: address}
		f.accounts[address] = acct
	}
	for i := range acct.Balances {
		if acct.Balances[i].Asset == a {
			acct.Balances[i].Balance = amt
			return
		}
	}
	acct.Balances = append(acct.Balances, ledger.Balance{Asset: a, Balance: amt})
}

// Balance returns the current balance of a on address.
func (f *Fake) Balance(address string, a asset.Asset) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	if acct, ok := f.accounts[address]; ok {
		bal, _ := acct.BalanceOf(a)
		return bal
	}
	return decimal.Zero
}

// Sequence returns the current sequence of address.
func (f *Fake) Sequence(address string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if acct, ok := f.accounts[address]; ok {
		return acct.Sequence
	}
	return 0
}

func (f *Fake) AddTransfer(t ledger.Transfer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers[t.ID] = t
}

func (f *Fake) SetOffers(seller string, offers ...ledger.Offer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offers[seller] = append([]ledger.Offer(nil), offers...)
}

func (f *Fake) OnSubmit(h SubmitHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hook = h
}

func (f *Fake) Submissions() []Submission {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Submission(nil), f.submissions...)
}

// Emit delivers ev to every stream subscribed to ev.Account.
func (f *Fake) Emit(ev ledger.Event) {
	f.mu.Lock()
	fns := append([]func(ledger.Event){}, f.listeners[ev.Account]...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (f *Fake) LoadAccount(_ context.Context, address string) (ledger.AccountInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.LoadErr != nil {
		return ledger.AccountInfo{}, f.LoadErr
	}
	acct, ok := f.accounts[address]
	if !ok {
		return ledger.AccountInfo{}, fmt.Errorf("%w: account %s", ledger.ErrNotFound, address)
	}
	cp := *acct
	cp.Balances = append([]ledger.Balance(nil), acct.Balances...)
	return cp, nil
}

func (f *Fake) GetTransfer(_ context.Context, id string) (ledger.Transfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.transfers[id]
	if !ok {
		return ledger.Transfer{}, fmt.Errorf("%w: operation %s", ledger.ErrNotFound, id)
	}
	return t, nil
}

func (f *Fake) ListOffers(_ context.Context, seller string) ([]ledger.Offer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ledger.Offer(nil), f.offers[seller]...), nil
}

func (f *Fake) RecentTransactions(_ context.Context, address string, limit int) ([]ledger.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	txs := f.transactions[address]
	if limit > 0 && len(txs) > limit {
		txs = txs[:limit]
	}
	return append([]ledger.Transaction(nil), txs...), nil
}

func (f *Fake) StreamEvents(_ context.Context, address string, fn func(ledger.Event)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners[address] = append(f.listeners[address], fn)
	return nil
}

func (f *Fake) BuildAndSubmit(_ context.Context, opts ledger.SubmitOptions, ops []ledger.Operation) (ledger.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	call := len(f.submissions) + 1
	rec := Submission{Opts: opts, Ops: ops}
	res, err := f.submit(call, opts, ops)
	rec.Result, rec.Err = res, err
	f.submissions = append(f.submissions, rec)
	return res, err
}

func (f *Fake) submit(call int, opts ledger.SubmitOptions, ops []ledger.Operation) (ledger.SubmitResult, error) {
	src, ok := f.accounts[opts.Source]
	if !ok {
		return ledger.SubmitResult{}, &ledger.RejectedError{TransactionCode: "tx_no_source_account"}
	}
	if opts.Sequence != src.Sequence {
		return ledger.SubmitResult{}, ledger.ErrBadSequence
	}

	apply, err := true, error(nil)
	if f.hook != nil {
		apply, err = f.hook(call, opts, ops)
	}
	if !apply {
		return ledger.SubmitResult{}, err
	}

	for _, op := range ops {
		f.apply(opts.Source, op)
	}
	src.Sequence++
	f.ledgerSeq++
	hash := fmt.Sprintf("tx%04d", call)
	tx := ledger.Transaction{
		Hash:       hash,
		Source:     opts.Source,
		Sequence:   src.Sequence,
		Memo:       opts.Memo,
		Successful: true,
		CreatedAt:  time.Now(),
	}
	f.transactions[opts.Source] = append([]ledger.Transaction{tx}, f.transactions[opts.Source]...)
	if err != nil {
		return ledger.SubmitResult{}, err
	}
	return ledger.SubmitResult{Hash: hash, Ledger: f.ledgerSeq, Sequence: src.Sequence}, nil
}

func (f *Fake) apply(txSource string, op ledger.Operation) {
	source := op.Source
	if source == "" {
		source = txSource
	}
	switch op.Type {
	case ledger.OpPayment:
		amt := decimal.RequireFromString(op.Amount)
		from := f.balanceOf(source, *op.Asset)
		f.setBalance(source, *op.Asset, from.Sub(amt))
		to := f.balanceOf(op.Destination, *op.Asset)
		f.setBalance(op.Destination, *op.Asset, to.Add(amt))
	case ledger.OpManageSellOffer:
		amt := decimal.RequireFromString(op.Amount)
		price := decimal.RequireFromString(op.Price)
		book := f.offers[source]
		if op.OfferID != 0 {
			for i := range book {
				if book[i].ID != op.OfferID {
					continue
				}
				if amt.IsZero() {
					book = append(book[:i], book[i+1:]...)
				} else {
					book[i].Amount, book[i].Price = amt, price
					book[i].Selling, book[i].Buying = *op.Selling, *op.Buying
				}
				break
			}
		} else if !amt.IsZero() {
			f.nextOfferID++
			book = append(book, ledger.Offer{
				ID:      f.nextOfferID,
				Seller:  source,
				Selling: *op.Selling,
				Buying:  *op.Buying,
				Amount:  amt,
				Price:   price,
			})
		}
		f.offers[source] = book
	}
}

func (f *Fake) balanceOf(address string, a asset.Asset) decimal.Decimal {
	if acct, ok := f.accounts[address]; ok {
		bal, _ := acct.BalanceOf(a)
		return bal
	}
	return decimal.Zero
}
