// Package app wires the engine from configuration; both binaries share it.
package app

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-bom-consumption/internal/bom"
	"github.com/ariefcatur/go-bom-consumption/internal/commerce"
	"github.com/ariefcatur/go-bom-consumption/internal/config"
	"github.com/ariefcatur/go-bom-consumption/internal/inventory"
	kafkax "github.com/ariefcatur/go-bom-consumption/internal/kafka"
	"github.com/ariefcatur/go-bom-consumption/internal/lock"
	"github.com/ariefcatur/go-bom-consumption/internal/orders"
	"github.com/ariefcatur/go-bom-consumption/internal/postgres"
	"github.com/ariefcatur/go-bom-consumption/internal/redisx"
	"github.com/ariefcatur/go-bom-consumption/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type App struct {
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Engine   *bom.Engine
	Recovery *bom.Recovery
	Ledger   *store.LedgerRepo

	producers []*kafkax.Producer
}

// New connects Postgres and Redis, runs migrations and builds the engine.
// Event producers are started on ctx.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.OrderWorkers)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("db migrate: %w", err)
	}
	rdb := redisx.New(cfg.RedisAddr)

	boms := &store.BOMRepo{DB: db}
	stock := &store.StockRepo{DB: db}
	ledger := &store.LedgerRepo{DB: db}
	platform := &commerce.Gateway{
		Clients: &commerce.AccountClients{Accounts: &store.AccountRepo{DB: db}, RPS: cfg.PlatformRPS, Timeout: cfg.PlatformTimeout},
		Policy:  commerce.DefaultRetryPolicy(),
	}

	consumedP := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicStockConsumed, 1024, log)
	reversedP := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicStockReversed, 1024, log)
	consumedP.Start(ctx)
	reversedP.Start(ctx)

	engine := &bom.Engine{
		Planner:  &bom.Planner{BOMs: boms, Stock: stock, Log: log},
		Executor: &bom.Executor{Stock: stock, Platform: platform, Log: log},
		Ledger:   ledger,
		Markers:  store.NewMarkers(rdb, cfg.PendingTTL, cfg.ConsumedTTL),
		Locks:    lock.NewProvider(rdb, &postgres.Advisory{DB: db}, log),
		Cascade: &bom.Cascader{
			BOMs:     boms,
			Sync:     &bom.Syncer{BOMs: boms, Stock: stock, Platform: platform, Log: log},
			MaxDepth: cfg.SyncMaxDepth,
			Log:      log,
		},
		Events:  &inventory.Events{Consumed: consumedP, Reversed: reversedP, ServiceName: cfg.ServiceName, Log: log},
		LockTTL: cfg.LockTTL,
		Log:     log,
	}

	return &App{
		DB:        db,
		Redis:     rdb,
		Engine:    engine,
		Recovery:  &bom.Recovery{Engine: engine, StaleAfter: cfg.RecoveryStaleAfter, Log: log},
		Ledger:    ledger,
		producers: []*kafkax.Producer{consumedP, reversedP},
	}, nil
}

// Close flushes the event producers, then closes Redis and Postgres.
func (a *App) Close() {
	for _, p := range a.producers {
		p.Close()
	}
	for _, p := range a.producers {
		p.WaitClosed()
	}
	_ = a.Redis.Close()
	a.DB.Close()
}
