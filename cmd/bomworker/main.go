package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-bom-consumption/internal/app"
	"github.com/ariefcatur/go-bom-consumption/internal/config"
	"github.com/ariefcatur/go-bom-consumption/internal/inventory"
	kafkax "github.com/ariefcatur/go-bom-consumption/internal/kafka"
	"github.com/ariefcatur/go-bom-consumption/internal/logger"
	"github.com/ariefcatur/go-bom-consumption/internal/orders"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logger.New(cfg.Env, cfg.ServiceName+"-worker")
	defer func() { _ = log.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}
	defer a.Close()

	svc := &inventory.Service{
		Engine:      a.Engine,
		Redis:       a.Redis,
		ServiceName: cfg.ServiceName,
		Log:         log,
	}

	go a.Recovery.Run(ctx, cfg.RecoveryInterval)

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.OrderGroup, orders.TopicOrderStatusChanged, cfg.OrderWorkers, log)
	log.Info("order consumer started",
		zap.String("group", cfg.OrderGroup), zap.String("topic", orders.TopicOrderStatusChanged), zap.Int("workers", cfg.OrderWorkers))
	if err := cons.Start(ctx, svc.HandleOrderStatusChanged); err != nil {
		log.Error("consumer exit", zap.Error(err))
	}
	log.Info("shutting down worker")
}
