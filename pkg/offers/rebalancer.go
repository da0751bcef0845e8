package offers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/canopy-network/liquidityx/pkg/ledger"
	"github.com/canopy-network/liquidityx/pkg/market"
	"github.com/canopy-network/liquidityx/pkg/metrics"
	"github.com/canopy-network/liquidityx/pkg/submission"
	"go.uber.org/zap"
)

// ErrPoolEmpty means the pool lacks one of the legs and no ladder can be priced.
var ErrPoolEmpty = errors.New("pool has no balance to quote")

// Submitter applies an intent to the ledger.
type Submitter interface {
	Submit(ctx context.Context, in submission.Intent) (ledger.SubmitResult, error)
}

// RebalanceChannel is the pub/sub channel applied rebalances are announced on.
const RebalanceChannel = "amm:rebalances"

// EventSink receives rebalance notifications. Delivery is best effort.
type EventSink interface {
	Publish(ctx context.Context, channel string, message interface{})
}

// RebalanceEvent is published after a plan lands.
type RebalanceEvent struct {
	Market    string `json:"market"`
	TxHash    string `json:"txHash"`
	Kept      int    `json:"kept"`
	Cancelled int    `json:"cancelled"`
	Replaced  int    `json:"replaced"`
	Created   int    `json:"created"`
}

// Rebalancer republishes the offer ladder of a market's pool account.
type Rebalancer struct {
	client    ledger.Client
	submitter Submitter
	events    EventSink
	logger    *zap.Logger
}

type Option func(*Rebalancer)

// WithEvents announces applied plans on sink.
func WithEvents(sink EventSink) Option { return func(r *Rebalancer) { r.events = sink } }

func NewRebalancer(client ledger.Client, submitter Submitter, logger *zap.Logger, opts ...Option) *Rebalancer {
	r := &Rebalancer{client: client, submitter: submitter, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Plan computes the changes for m from a fresh pool snapshot without submitting anything.
func (r *Rebalancer) Plan(ctx context.Context, m market.Market) (Plan, error) {
	pool, err := r.client.LoadAccount(ctx, m.Account)
	if err != nil {
		return Plan{}, fmt.Errorf("load pool %s: %w", m.Account, err)
	}
	base, _ := pool.BalanceOf(m.Base)
	quote, _ := pool.BalanceOf(m.Asset)
	if !base.IsPositive() || !quote.IsPositive() {
		return Plan{}, fmt.Errorf("%w: %s holds %s %s and %s %s", ErrPoolEmpty, m.Account, base, m.Base.Code(), quote, m.Asset.Code())
	}

	live, err := r.client.ListOffers(ctx, m.Account)
	if err != nil {
		return Plan{}, fmt.Errorf("list offers of %s: %w", m.Account, err)
	}

	ladder := m.Levels
	if len(ladder) == 0 {
		ladder = DefaultLadder
	}
	return Diff(Targets(m.Base, m.Asset, base, quote, ladder), live), nil
}

// Run diffs the live book of m against its targets and submits the changes from the pool account.
// Running it again without a balance change submits nothing.
func (r *Rebalancer) Run(ctx context.Context, m market.Market) (Plan, error) {
	start := time.Now()
	defer metrics.ObserveSince(metrics.RebalanceDuration.WithLabelValues(m.ID), start)

	p, err := r.Plan(ctx, m)
	if err != nil {
		metrics.RebalanceRuns.WithLabelValues(m.ID, "error").Inc()
		return Plan{}, err
	}
	if p.Empty() {
		metrics.RebalanceRuns.WithLabelValues(m.ID, "unchanged").Inc()
		r.logger.Debug("offer ladder unchanged", zap.String("market", m.ID), zap.Int("kept", len(p.Kept)))
		return p, nil
	}

	res, err := r.submitter.Submit(ctx, submission.Intent{Source: m.Account, Ops: p.Operations()})
	if err != nil {
		metrics.RebalanceRuns.WithLabelValues(m.ID, "error").Inc()
		return p, fmt.Errorf("submit rebalance of %s: %w", m.ID, err)
	}

	metrics.RebalanceRuns.WithLabelValues(m.ID, "applied").Inc()
	r.logger.Info("offer ladder rebalanced",
		zap.String("market", m.ID),
		zap.String("tx_hash", res.Hash),
		zap.Int("kept", len(p.Kept)),
		zap.Int("cancelled", len(p.Cancel)),
		zap.Int("replaced", len(p.Replace)),
		zap.Int("created", len(p.Create)))
	r.publish(ctx, RebalanceEvent{
		Market:    m.ID,
		TxHash:    res.Hash,
		Kept:      len(p.Kept),
		Cancelled: len(p.Cancel),
		Replaced:  len(p.Replace),
		Created:   len(p.Create),
	})
	return p, nil
}

func (r *Rebalancer) publish(ctx context.Context, ev RebalanceEvent) {
	if r.events == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	r.events.Publish(ctx, RebalanceChannel, payload)
}
