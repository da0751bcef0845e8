// Package submission builds, sequences and submits ledger transactions. It never writes to
// persistence: callers persist intent first and record outcomes afterwards.
package submission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/canopy-network/liquidityx/pkg/ledger"
	"github.com/canopy-network/liquidityx/pkg/market"
	"github.com/canopy-network/liquidityx/pkg/metrics"
	"github.com/canopy-network/liquidityx/pkg/retry"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRebuilds = 3
	// landedLookback is how many recent channel transactions are searched for an intent's memo.
	landedLookback = 200
)

// Reservation is a (channel, sequence) pair held by a persisted Charge.
type Reservation struct {
	Channel  string `json:"channel"`
	Sequence int64  `json:"sequence"`
}

// Intent is everything needed to build one transaction.
type Intent struct {
	// Source is the transaction source (the channel) and first signer.
	Source string
	// Sequence is the source's sequence at reservation time; zero queries it live.
	Sequence int64
	Ops      []ledger.Operation
	Signers  []string
	// Memo identifies the intent on the ledger and drives the landed check.
	Memo string
}

// SequenceStore reports sequences already reserved by persisted charges.
type SequenceStore interface {
	MaxSequence(ctx context.Context, channel string) (int64, bool, error)
}

// Coordinator submits transactions through a ledger.Client.
type Coordinator struct {
	client ledger.Client
	seqs   SequenceStore
	logger *zap.Logger

	retry       retry.Config
	timeout     time.Duration
	maxRebuilds int

	// round-robin cursor per market
	cursors *xsync.Map[string, *atomic.Uint64]
}

type Option func(*Coordinator)

// WithRetry sets the backoff used for transport failures.
func WithRetry(cfg retry.Config) Option { return func(c *Coordinator) { c.retry = cfg } }

// WithTimeout sets the validity window of built transactions.
func WithTimeout(d time.Duration) Option { return func(c *Coordinator) { c.timeout = d } }

// WithMaxRebuilds bounds how many times a stale transaction is rebuilt.
func WithMaxRebuilds(n int) Option { return func(c *Coordinator) { c.maxRebuilds = n } }

func New(client ledger.Client, seqs SequenceStore, logger *zap.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		client: client,
		seqs:   seqs,
		logger: logger,
		retry: retry.Config{
			MaxRetries:    4,
			InitialDelay:  500 * time.Millisecond,
			MaxDelay:      8 * time.Second,
			Multiplier:    2,
			JitterEnabled: true,
		},
		timeout:     DefaultTimeout,
		maxRebuilds: DefaultMaxRebuilds,
		cursors:     xsync.NewMap[string, *atomic.Uint64](),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Reserve picks the next settlement channel of m and its sequence. The sequence is the live one,
// raised past anything a persisted charge already holds on that channel.
func (c *Coordinator) Reserve(ctx context.Context, m market.Market) (Reservation, error) {
	channels := m.SettlementChannels()
	cursor, _ := c.cursors.LoadOrStore(m.ID, new(atomic.Uint64))
	channel := channels[(cursor.Add(1)-1)%uint64(len(channels))]

	info, err := c.client.LoadAccount(ctx, channel)
	if err != nil {
		return Reservation{}, fmt.Errorf("load channel %s: %w", channel, err)
	}
	seq := info.Sequence

	if c.seqs != nil {
		held, ok, err := c.seqs.MaxSequence(ctx, channel)
		if err != nil {
			return Reservation{}, fmt.Errorf("reserved sequence of %s: %w", channel, err)
		}
		if ok && held >= seq {
			seq = held + 1
		}
	}
	return Reservation{Channel: channel, Sequence: seq}, nil
}

// Submit builds and submits in, returning the applied transaction. Stale sequences and expired
// windows are rebuilt on a freshly queried sequence after checking whether the intent already
// landed; transport failures retry the same build with backoff; rejections return a fatal *Error.
func (c *Coordinator) Submit(ctx context.Context, in Intent) (ledger.SubmitResult, error) {
	if len(in.Ops) == 0 {
		return ledger.SubmitResult{}, errors.New("submit: empty intent")
	}
	logger := c.logger.With(zap.String("source", in.Source), zap.String("memo", in.Memo))

	seq := in.Sequence
	if seq == 0 {
		var err error
		if seq, err = c.liveSequence(ctx, in.Source); err != nil {
			return ledger.SubmitResult{}, &Error{Class: ClassTransient, Err: err}
		}
	}

	attempts := 0
	for rebuild := 0; ; rebuild++ {
		res, err := c.submitOnce(ctx, in, seq, &attempts, logger)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return ledger.SubmitResult{}, &Error{Class: ClassTransient, Attempts: attempts, Err: err}
		}

		switch {
		case ledger.IsRejected(err):
			metrics.LedgerSubmissions.WithLabelValues("rejected").Inc()
			logger.Warn("ledger rejected transaction", zap.Int64("sequence", seq), zap.Error(err))
			return ledger.SubmitResult{}, &Error{Class: ClassFatal, Attempts: attempts, Err: err}
		case ledger.IsStale(err), ledger.IsTransient(err):
			if ledger.IsStale(err) {
				metrics.LedgerSubmissions.WithLabelValues("stale").Inc()
			}
			if tx, ok := c.landed(ctx, in); ok {
				metrics.LedgerSubmissions.WithLabelValues("landed").Inc()
				logger.Info("intent already landed", zap.String("hash", tx.Hash), zap.Int64("sequence", tx.Sequence))
				return ledger.SubmitResult{Hash: tx.Hash, Sequence: tx.Sequence}, nil
			}
			if ledger.IsTransient(err) || rebuild >= c.maxRebuilds {
				return ledger.SubmitResult{}, &Error{Class: ClassTransient, Attempts: attempts, Err: err}
			}
			fresh, qErr := c.liveSequence(ctx, in.Source)
			if qErr != nil {
				return ledger.SubmitResult{}, &Error{Class: ClassTransient, Attempts: attempts, Err: qErr}
			}
			logger.Info("rebuilding stale transaction",
				zap.Int64("stale_sequence", seq),
				zap.Int64("fresh_sequence", fresh),
				zap.Error(err))
			seq = fresh
		default:
			return ledger.SubmitResult{}, &Error{Class: ClassTransient, Attempts: attempts, Err: err}
		}
	}
}

// submitOnce submits one build, retrying the identical build on transport failures.
func (c *Coordinator) submitOnce(ctx context.Context, in Intent, seq int64, attempts *int, logger *zap.Logger) (ledger.SubmitResult, error) {
	opts := ledger.SubmitOptions{
		Source:   in.Source,
		Sequence: seq,
		Signers:  signers(in),
		Memo:     in.Memo,
		Timeout:  c.timeout,
	}

	var res ledger.SubmitResult
	err := retry.WithBackoff(ctx, c.retry, logger, "ledger_submit", func() error {
		*attempts++
		r, err := c.client.BuildAndSubmit(ctx, opts, in.Ops)
		if err == nil {
			res = r
			return nil
		}
		if ledger.IsTransient(err) {
			metrics.LedgerSubmissions.WithLabelValues("transport").Inc()
			return err
		}
		return retry.Permanent(err)
	})
	if err == nil {
		metrics.LedgerSubmissions.WithLabelValues("ok").Inc()
	}
	return res, err
}

// landed searches the source's recent transactions for a successful one carrying the intent's memo.
func (c *Coordinator) landed(ctx context.Context, in Intent) (ledger.Transaction, bool) {
	if in.Memo == "" {
		return ledger.Transaction{}, false
	}
	txs, err := c.client.RecentTransactions(ctx, in.Source, landedLookback)
	if err != nil {
		c.logger.Warn("landed check failed", zap.String("source", in.Source), zap.Error(err))
		return ledger.Transaction{}, false
	}
	for _, tx := range txs {
		if tx.Successful && tx.Memo == in.Memo {
			return tx, true
		}
	}
	return ledger.Transaction{}, false
}

func (c *Coordinator) liveSequence(ctx context.Context, source string) (int64, error) {
	info, err := c.client.LoadAccount(ctx, source)
	if err != nil {
		return 0, fmt.Errorf("load source %s: %w", source, err)
	}
	return info.Sequence, nil
}

// signers drops the source and duplicates from the declared co-signers.
func signers(in Intent) []string {
	out := make([]string, 0, len(in.Signers))
	seen := map[string]struct{}{in.Source: {}}
	for _, s := range in.Signers {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
