package types

import (
	"context"
	"net/http"
	"time"

	"github.com/canopy-network/liquidityx/pkg/accounting"
	store "github.com/canopy-network/liquidityx/pkg/db/accounting"
	"github.com/canopy-network/liquidityx/pkg/ledger"
	"github.com/canopy-network/liquidityx/pkg/market"
	"github.com/canopy-network/liquidityx/pkg/offers"
	"github.com/canopy-network/liquidityx/pkg/redis"
	"github.com/canopy-network/liquidityx/pkg/scheduler"
	"github.com/canopy-network/liquidityx/pkg/submission"
	"go.uber.org/zap"
)

type App struct {
	// Settlement store (Postgres, or in-memory without POSTGRES_URL)
	Store store.Store

	// Ledger gateway client
	LedgerClient ledger.Client

	Markets     *market.Registry
	Ledger      *accounting.Ledger
	Coordinator *submission.Coordinator
	Rebalancer  *offers.Rebalancer
	Scheduler   *scheduler.Scheduler
	Reconciler  *submission.Reconciler

	// Cron spec of the reconcile sweep (seconds field first)
	ReconcileSpec string

	// Redis Client (optional settlement notifications)
	RedisClient *redis.Client

	// Zap Logger
	Logger *zap.Logger

	// HTTP Server
	Server *http.Server
}

// Start starts the background loops and the HTTP server, and blocks until ctx is done.
func (a *App) Start(ctx context.Context) {
	if a.Reconciler != nil {
		if err := a.Reconciler.Start(ctx, a.ReconcileSpec); err != nil {
			a.Logger.Fatal("Unable to start reconciler", zap.Error(err))
		}
	}

	if a.Scheduler != nil {
		for _, m := range a.Markets.All() {
			if err := a.Scheduler.Watch(ctx, a.LedgerClient, m); err != nil {
				// The fallback timer still rebalances the market.
				a.Logger.Warn("Unable to watch pool events", zap.String("market", m.ID), zap.Error(err))
			}
		}
		a.Scheduler.Start(a.Markets.All())
		a.Logger.Info("Rebalance scheduler started", zap.Int("markets", len(a.Markets.All())))
	}

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.Error("HTTP server stopped", zap.Error(err))
		}
	}()
	<-ctx.Done()

	a.Logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = a.Server.Shutdown(shutdownCtx)

	if a.Reconciler != nil {
		a.Logger.Info("Stopping reconciler")
		a.Reconciler.Stop()
	}
	if a.Scheduler != nil {
		a.Logger.Info("Stopping rebalance scheduler")
		a.Scheduler.Stop()
	}

	if a.RedisClient != nil {
		_ = a.RedisClient.Close()
	}
	if a.Store != nil {
		a.Logger.Info("closing settlement store")
		if err := a.Store.Close(); err != nil {
			a.Logger.Error("Failed to close settlement store", zap.Error(err))
		}
	}

	a.Logger.Info("さようなら!")
}
