// Package scheduler debounces rebalance triggers per market and runs the resulting jobs on a
// shared worker pool.
package scheduler

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/canopy-network/liquidityx/pkg/ledger"
	"github.com/canopy-network/liquidityx/pkg/market"
	"github.com/canopy-network/liquidityx/pkg/metrics"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

type Decision string

const (
	Immediate Decision = "immediate"
	Delayed   Decision = "delayed"
	Dropped   Decision = "dropped"
)

// ErrStopped is returned by Watch once the scheduler has been stopped.
var ErrStopped = errors.New("scheduler stopped")

// RunFunc executes one rebalance of m.
type RunFunc func(ctx context.Context, m market.Market) error

type Options struct {
	// Window is the debounce window between immediate runs of one market.
	Window time.Duration
	// FallbackBase and FallbackJitter bound the periodic trigger: base + rand[0, jitter).
	FallbackBase   time.Duration
	FallbackJitter time.Duration
	Attempts       int
	RetryDelay     time.Duration
	RunTimeout     time.Duration
	Workers        int
}

func DefaultOptions() Options {
	return Options{
		Window:         20 * time.Second,
		FallbackBase:   60 * time.Second,
		FallbackJitter: 540 * time.Second,
		Attempts:       5,
		RetryDelay:     20 * time.Second,
		RunTimeout:     2 * time.Minute,
		Workers:        4,
	}
}

type state struct {
	mu          sync.Mutex
	lastTrigger time.Time
	suppressed  bool
	active      int
	delayed     *time.Timer
	fallback    *time.Timer
}

// Scheduler owns the trigger state of every market it has seen.
type Scheduler struct {
	run    RunFunc
	opts   Options
	logger *zap.Logger
	pool   pond.Pool
	states *xsync.Map[string, *state]

	ctx    context.Context
	cancel context.CancelFunc
	now    func() time.Time
	jitter func(time.Duration) time.Duration
}

func New(run RunFunc, opts Options, logger *zap.Logger) *Scheduler {
	def := DefaultOptions()
	if opts.Window <= 0 {
		opts.Window = def.Window
	}
	if opts.FallbackBase <= 0 {
		opts.FallbackBase = def.FallbackBase
	}
	if opts.FallbackJitter < 0 {
		opts.FallbackJitter = 0
	}
	if opts.Attempts <= 0 {
		opts.Attempts = def.Attempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = def.RetryDelay
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = def.RunTimeout
	}
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		run:    run,
		opts:   opts,
		logger: logger,
		pool:   pond.NewPool(opts.Workers),
		states: xsync.NewMap[string, *state](),
		ctx:    ctx,
		cancel: cancel,
		now:    time.Now,
		jitter: func(n time.Duration) time.Duration {
			if n <= 0 {
				return 0
			}
			return time.Duration(rand.Int64N(int64(n)))
		},
	}
}

// Enqueue records a trigger for m and decides what to do with it. With no job pending or running,
// or once the window since the last immediate run has passed, the job runs now. Otherwise one
// delayed run is scheduled at the end of the window and further triggers are dropped until then.
// Every call re-arms the market's fallback timer.
func (s *Scheduler) Enqueue(m market.Market) Decision {
	if s.ctx.Err() != nil {
		return Dropped
	}
	st, _ := s.states.LoadOrStore(m.ID, &state{})

	st.mu.Lock()
	now := s.now()
	var d Decision
	switch {
	case st.active == 0, now.Sub(st.lastTrigger) >= s.opts.Window:
		d = Immediate
		st.suppressed = false
		st.lastTrigger = now
		st.active++
	case !st.suppressed:
		d = Delayed
		st.suppressed = true
		st.active++
		st.delayed = time.AfterFunc(s.opts.Window, func() { s.submit(m, st, 1) })
	default:
		d = Dropped
	}

	if st.fallback != nil {
		st.fallback.Stop()
	}
	st.fallback = time.AfterFunc(s.opts.FallbackBase+s.jitter(s.opts.FallbackJitter), func() { s.Enqueue(m) })
	st.mu.Unlock()

	// submit may release the job through finish, which takes st.mu.
	if d == Immediate {
		s.submit(m, st, 1)
	}

	metrics.SchedulerDecisions.WithLabelValues(m.ID, string(d)).Inc()
	s.logger.Debug("rebalance trigger", zap.String("market", m.ID), zap.String("decision", string(d)))
	return d
}

// submit queues attempt of m on the pool. The job stays counted as active until it succeeds or
// its last attempt fails. Callers must not hold st.mu.
func (s *Scheduler) submit(m market.Market, st *state, attempt int) {
	if s.ctx.Err() != nil {
		s.finish(st)
		return
	}
	s.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(s.ctx, s.opts.RunTimeout)
		err := s.run(ctx, m)
		cancel()
		if err == nil {
			s.finish(st)
			return
		}

		if attempt >= s.opts.Attempts || s.ctx.Err() != nil {
			s.logger.Warn("rebalance dropped",
				zap.String("market", m.ID),
				zap.Int("attempts", attempt),
				zap.Error(err))
			s.finish(st)
			return
		}
		s.logger.Info("rebalance failed, retrying",
			zap.String("market", m.ID),
			zap.Int("attempt", attempt),
			zap.Duration("delay", s.opts.RetryDelay),
			zap.Error(err))
		time.AfterFunc(s.opts.RetryDelay, func() { s.submit(m, st, attempt+1) })
	})
}

func (s *Scheduler) finish(st *state) {
	st.mu.Lock()
	if st.active > 0 {
		st.active--
	}
	st.mu.Unlock()
}

// Start triggers every market once, which also arms their fallback timers.
func (s *Scheduler) Start(markets []market.Market) {
	for _, m := range markets {
		s.Enqueue(m)
	}
}

// Watch subscribes to the ledger events of m's pool account and enqueues a trigger for each.
func (s *Scheduler) Watch(ctx context.Context, client ledger.Client, m market.Market) error {
	if s.ctx.Err() != nil {
		return ErrStopped
	}
	return client.StreamEvents(ctx, m.Account, func(ev ledger.Event) {
		s.logger.Debug("pool event", zap.String("market", m.ID), zap.String("type", ev.Type), zap.String("id", ev.ID))
		s.Enqueue(m)
	})
}

// Stop cancels every timer and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cancel()
	s.states.Range(func(_ string, st *state) bool {
		st.mu.Lock()
		if st.delayed != nil {
			st.delayed.Stop()
		}
		if st.fallback != nil {
			st.fallback.Stop()
		}
		st.mu.Unlock()
		return true
	})
	s.pool.StopAndWait()
}
