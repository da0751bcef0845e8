// Package accounting settles deposits and withdrawals of pool shares.
package accounting

import (
	"context"
	"fmt"
	"time"

	store "github.com/canopy-network/liquidityx/pkg/db/accounting"
	"github.com/canopy-network/liquidityx/pkg/ledger"
	"github.com/canopy-network/liquidityx/pkg/market"
	"github.com/canopy-network/liquidityx/pkg/submission"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

const (
	// DefaultBalanceTTL bounds how stale reporting balances may be.
	DefaultBalanceTTL = 30 * time.Second
	// DefaultSubmitTimeout bounds the submission of one settlement, rebuilds and retries included.
	DefaultSubmitTimeout = time.Minute
)

// Submitter reserves channel sequences and submits settlement transactions.
type Submitter interface {
	Reserve(ctx context.Context, m market.Market) (submission.Reservation, error)
	Submit(ctx context.Context, in submission.Intent) (ledger.SubmitResult, error)
}

// EventSink receives settlement notifications. Delivery is best effort.
type EventSink interface {
	Publish(ctx context.Context, channel string, message interface{})
}

type Config struct {
	Store         store.Store
	Client        ledger.Client
	Markets       *market.Registry
	Submitter     Submitter
	Events        EventSink
	Logger        *zap.Logger
	BalanceTTL    time.Duration
	// SubmitTimeout must stay below the reconciler's grace period.
	SubmitTimeout time.Duration
}

// Ledger is the accounting engine. It holds no locks: concurrent duplicate requests are
// resolved by the store's uniqueness constraints.
type Ledger struct {
	store     store.Store
	client    ledger.Client
	markets   *market.Registry
	submitter Submitter
	events    EventSink
	logger    *zap.Logger

	balances      *xsync.Map[string, cachedAccount]
	balanceTTL    time.Duration
	submitTimeout time.Duration
	now           func() time.Time
}

type cachedAccount struct {
	info     ledger.AccountInfo
	loadedAt time.Time
}

func New(cfg Config) *Ledger {
	if cfg.BalanceTTL <= 0 {
		cfg.BalanceTTL = DefaultBalanceTTL
	}
	if cfg.SubmitTimeout <= 0 {
		cfg.SubmitTimeout = DefaultSubmitTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Ledger{
		store:         cfg.Store,
		client:        cfg.Client,
		markets:       cfg.Markets,
		submitter:     cfg.Submitter,
		events:        cfg.Events,
		logger:        cfg.Logger,
		balances:      xsync.NewMap[string, cachedAccount](),
		balanceTTL:    cfg.BalanceTTL,
		submitTimeout: cfg.SubmitTimeout,
		now:           time.Now,
	}
}

// poolAccount loads the pool account. Unless fresh, a snapshot younger than the TTL is reused.
func (l *Ledger) poolAccount(ctx context.Context, m market.Market, fresh bool) (ledger.AccountInfo, error) {
	if !fresh {
		if c, ok := l.balances.Load(m.Account); ok && l.now().Sub(c.loadedAt) < l.balanceTTL {
			return c.info, nil
		}
	}
	info, err := l.client.LoadAccount(ctx, m.Account)
	if err != nil {
		return ledger.AccountInfo{}, fmt.Errorf("%w: load pool %s: %w", ErrPoolUnavailable, m.Account, err)
	}
	l.balances.Store(m.Account, cachedAccount{info: info, loadedAt: l.now()})
	return info, nil
}
