package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-realtime-inventory/internal/config"
	"github.com/ariefcatur/go-realtime-inventory/internal/inventory"
	kafkax "github.com/ariefcatur/go-realtime-inventory/internal/kafka"
	"github.com/ariefcatur/go-realtime-inventory/internal/logging"
	"github.com/ariefcatur/go-realtime-inventory/internal/postgres"
	"github.com/ariefcatur/go-realtime-inventory/internal/redisx"
	"github.com/ariefcatur/go-realtime-inventory/internal/telemetry"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// sweeper consumes sweep ticks and releases expired holds. It needs the
// shared Postgres store; the in-memory backend lives inside the API process.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	cfg.ServiceName += "-sweeper"

	log, err := logging.New(cfg)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.ServiceName, cfg.Env, cfg.OtelEndpoint)
	if err != nil {
		log.Fatal("tracing setup", zap.Error(err))
	}

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresMax)
	if err != nil {
		log.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Producer for ReservationsExpired
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log.Named("kafka"))
	prod.Start(ctx)

	// The sweep never builds orders, so no assembler is wired.
	mgr := inventory.NewManager(postgres.NewStore(db, cfg.LockTimeout), nil,
		inventory.WithPublisher(prod),
		inventory.WithLogger(log.Named("inventory")),
		inventory.WithServiceName(cfg.ServiceName),
	)
	svc := &inventory.SweepService{
		Sweeper:     mgr,
		Redis:       rdb,
		Log:         log,
		ServiceName: cfg.ServiceName,
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.Sweep.Group, cfg.Sweep.Topic, cfg.Sweep.Workers, log.Named("consumer"))
	go func() {
		log.Info("sweep consumer started",
			zap.String("group", cfg.Sweep.Group), zap.String("topic", cfg.Sweep.Topic), zap.Int("workers", cfg.Sweep.Workers))
		if err := cons.Start(ctx, svc.HandleSweepRequested); err != nil {
			log.Error("consumer exit", zap.Error(err))
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down consumer")
	cancel()
	prod.Close()
	prod.WaitClosed()
	_ = shutdownTracing(context.Background())
}
