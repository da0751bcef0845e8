package amm

import (
	"context"

	"github.com/canopy-network/liquidityx/app/amm/types"
	"github.com/canopy-network/liquidityx/pkg/accounting"
	store "github.com/canopy-network/liquidityx/pkg/db/accounting"
	"github.com/canopy-network/liquidityx/pkg/db/postgres"
	pgaccounting "github.com/canopy-network/liquidityx/pkg/db/postgres/accounting"
	"github.com/canopy-network/liquidityx/pkg/ledger"
	"github.com/canopy-network/liquidityx/pkg/logging"
	"github.com/canopy-network/liquidityx/pkg/market"
	"github.com/canopy-network/liquidityx/pkg/offers"
	"github.com/canopy-network/liquidityx/pkg/redis"
	"github.com/canopy-network/liquidityx/pkg/scheduler"
	"github.com/canopy-network/liquidityx/pkg/submission"
	"github.com/canopy-network/liquidityx/pkg/utils"
	"go.uber.org/zap"
)

func Initialize(ctx context.Context) *types.App {
	logger, err := logging.New("amm")
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}

	markets, err := market.Load(utils.Env("MARKETS_FILE", "./config/markets.json"))
	if err != nil {
		logger.Fatal("Unable to load markets", zap.Error(err))
	}

	var settlements store.Store
	if dbURL := utils.Env("POSTGRES_URL", ""); dbURL != "" {
		settlements, err = pgaccounting.NewWithPoolConfig(ctx, logger, dbURL, *postgres.GetPoolConfigForComponent("amm"))
		if err != nil {
			logger.Fatal("Unable to initialize settlement database", zap.Error(err))
		}
	} else {
		logger.Warn("POSTGRES_URL not set - settlements are kept in memory and lost on restart")
		settlements = store.NewMemory()
	}

	client := ledger.NewHTTPWithOpts(ledger.Opts{
		Endpoints: utils.EnvList("LEDGER_URL", []string{"http://localhost:8000"}),
		StreamURL: utils.Env("LEDGER_STREAM_URL", ""),
		RPS:       utils.EnvInt("LEDGER_RPS", 20),
		Logger:    logger,
	})

	coordinator := submission.New(client, settlements, logger)

	// Initialize Redis client for settlement notifications (optional)
	var redisClient *redis.Client
	var events accounting.EventSink
	if utils.EnvBool("REDIS_ENABLED", false) {
		redisClient, err = redis.NewClient(ctx, logger)
		if err != nil {
			logger.Warn("Failed to initialize Redis client - settlement notifications will be disabled",
				zap.Error(err))
			redisClient = nil
		} else {
			events = redisClient
			logger.Info("Redis client initialized for settlement notifications")
		}
	} else {
		logger.Info("Redis disabled - settlement notifications will not be published")
	}

	submitTimeout := utils.EnvDuration("SETTLE_SUBMIT_TIMEOUT", accounting.DefaultSubmitTimeout)
	engine := accounting.New(accounting.Config{
		Store:         settlements,
		Client:        client,
		Markets:       markets,
		Submitter:     coordinator,
		Events:        events,
		Logger:        logger,
		BalanceTTL:    utils.EnvDuration("BALANCE_TTL", accounting.DefaultBalanceTTL),
		SubmitTimeout: submitTimeout,
	})

	var rebalanceOpts []offers.Option
	if events != nil {
		rebalanceOpts = append(rebalanceOpts, offers.WithEvents(events))
	}
	rebalancer := offers.NewRebalancer(client, coordinator, logger, rebalanceOpts...)

	schedOpts := scheduler.DefaultOptions()
	schedOpts.Workers = utils.EnvInt("REBALANCE_WORKERS", schedOpts.Workers)
	sched := scheduler.New(func(ctx context.Context, m market.Market) error {
		_, err := rebalancer.Run(ctx, m)
		return err
	}, schedOpts, logger)

	reconciler := submission.NewReconciler(settlements, engine, logger, submission.ReconcilerOpts{
		Grace:         utils.EnvDuration("RECONCILE_GRACE", 0),
		SubmitTimeout: submitTimeout,
	})

	logger.Info("AMM initialized", zap.Int("markets", len(markets.All())))

	return &types.App{
		Store:         settlements,
		LedgerClient:  client,
		Markets:       markets,
		Ledger:        engine,
		Coordinator:   coordinator,
		Rebalancer:    rebalancer,
		Scheduler:     sched,
		Reconciler:    reconciler,
		ReconcileSpec: utils.Env("RECONCILE_CRON", submission.DefaultReconcileSpec),
		RedisClient:   redisClient,
		Logger:        logger,
	}
}
