package accounting_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/canopy-network/liquidityx/pkg/accounting"
	"github.com/canopy-network/liquidityx/pkg/amount"
	"github.com/canopy-network/liquidityx/pkg/asset"
	store "github.com/canopy-network/liquidityx/pkg/db/accounting"
	models "github.com/canopy-network/liquidityx/pkg/db/models/accounting"
	"github.com/canopy-network/liquidityx/pkg/ledger"
	"github.com/canopy-network/liquidityx/pkg/ledger/ledgertest"
	"github.com/canopy-network/liquidityx/pkg/market"
	"github.com/canopy-network/liquidityx/pkg/retry"
	"github.com/canopy-network/liquidityx/pkg/submission"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	manager = "GMANAGER"
	pool    = "GPOOL"
	user    = "GUSER"
)

var usd = asset.Credit("USD", "GISSUER")

type recordingSink struct {
	mu     sync.Mutex
	events []accounting.SettlementEvent
}

func (s *recordingSink) Publish(_ context.Context, _ string, message interface{}) {
	var ev accounting.SettlementEvent
	if b, ok := message.([]byte); ok && json.Unmarshal(b, &ev) == nil {
		s.mu.Lock()
		s.events = append(s.events, ev)
		s.mu.Unlock()
	}
}

func (s *recordingSink) all() []accounting.SettlementEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]accounting.SettlementEvent(nil), s.events...)
}

type env struct {
	ledger  *accounting.Ledger
	fake    *ledgertest.Fake
	store   *store.Memory
	sink    *recordingSink
	market  market.Market
	account *models.Account
}

func (e *env) share() asset.Asset { return e.market.ShareAsset() }

// newEnv seeds a pool holding baseBal XLM and quoteBal USD and a depositor able to hold every leg.
func newEnv(t *testing.T, baseBal, quoteBal string) *env {
	t.Helper()
	m := market.Market{ID: "XLM/USD", Manager: manager, Account: pool, Base: asset.Native(), Asset: usd}
	reg, err := market.NewRegistry([]market.Market{m})
	require.NoError(t, err)
	m, _ = reg.ByID("XLM/USD")

	fake := ledgertest.New()
	fake.SetAccount(manager, 100)
	fake.SetAccount(pool, 500)
	fake.SetBalance(pool, m.Base, amount.MustParse(baseBal))
	fake.SetBalance(pool, m.Asset, amount.MustParse(quoteBal))
	fake.SetAccount(user, 7)
	fake.SetBalance(user, m.Asset, decimal.Zero)
	fake.SetBalance(user, m.ShareAsset(), decimal.Zero)

	mem := store.NewMemory()
	logger := zaptest.NewLogger(t)
	coord := submission.New(fake, mem, logger, submission.WithRetry(retry.Fixed(3, time.Millisecond)))
	sink := &recordingSink{}

	l := accounting.New(accounting.Config{
		Store:     mem,
		Client:    fake,
		Markets:   reg,
		Submitter: coord,
		Events:    sink,
		Logger:    logger,
	})
	account, _, err := l.Account(context.Background(), user)
	require.NoError(t, err)

	return &env{ledger: l, fake: fake, store: mem, sink: sink, market: m, account: account}
}

// seedShares records an earlier depositor holding tokens shares.
func (e *env) seedShares(t *testing.T, tokens, base, quote string) {
	t.Helper()
	seeder, _, err := e.store.FindOrCreateAccount(context.Background(), "GSEEDER")
	require.NoError(t, err)
	err = e.store.InsertAtomic(context.Background(), &models.Charge{
		AccountID:   seeder.ID,
		Asset:       "USD",
		Market:      e.market.ID,
		Tokens:      amount.MustParse(tokens),
		BaseAmount:  amount.MustParse(base),
		AssetAmount: amount.MustParse(quote),
		Manager:     manager,
		Channel:     "GSEED",
		Sequence:    1,
	}, []models.IncomingTx{{TxIn: "seed", Manager: manager, CurrencyIn: "native", AmountIn: amount.MustParse(base)}})
	require.NoError(t, err)
}

func (e *env) transfer(id string, a asset.Asset, amt, memo string) string {
	return e.transferTo(id, manager, a, amt, memo)
}

func (e *env) transferTo(id, to string, a asset.Asset, amt, memo string) string {
	e.fake.AddTransfer(ledger.Transfer{
		ID:         id,
		From:       user,
		To:         to,
		Asset:      a,
		Amount:     amount.MustParse(amt),
		Memo:       memo,
		Successful: true,
	})
	return id
}

func (e *env) memo() string { return decimal.NewFromInt(e.account.ID).String() }

func assertAmount(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.Equal(t, amount.Format(amount.MustParse(want)), amount.Format(got), msgAndArgs...)
}
