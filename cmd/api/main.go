package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-realtime-inventory/internal/config"
	"github.com/ariefcatur/go-realtime-inventory/internal/httpx"
	"github.com/ariefcatur/go-realtime-inventory/internal/inventory"
	kafkax "github.com/ariefcatur/go-realtime-inventory/internal/kafka"
	"github.com/ariefcatur/go-realtime-inventory/internal/logging"
	"github.com/ariefcatur/go-realtime-inventory/internal/orders"
	"github.com/ariefcatur/go-realtime-inventory/internal/postgres"
	"github.com/ariefcatur/go-realtime-inventory/internal/pricing"
	"github.com/ariefcatur/go-realtime-inventory/internal/redisx"
	"github.com/ariefcatur/go-realtime-inventory/internal/telemetry"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// backend is what both store implementations provide.
type backend interface {
	inventory.Store
	inventory.Analytics
	orders.Reader
	httpx.RuleStore
	httpx.PromotionStore
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

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

	// Store
	var store backend
	switch cfg.StoreBackend {
	case "memory":
		mem := inventory.NewMemoryStore(cfg.LockTimeout)
		if err := seedDemo(ctx, mem); err != nil {
			log.Fatal("seed demo catalog", zap.Error(err))
		}
		store = mem
		log.Warn("using in-memory store; state is lost on restart")
	case "postgres":
		db, err := postgres.Connect(ctx, cfg.PostgresDSN, cfg.PostgresMax)
		if err != nil {
			log.Fatal("db connect", zap.Error(err))
		}
		defer db.Close()
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			log.Fatal("db schema", zap.Error(err))
		}
		store = postgres.NewStore(db, cfg.LockTimeout)
	default:
		log.Fatal("unknown STORE_BACKEND", zap.String("backend", cfg.StoreBackend))
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer for domain events
	prod := kafkax.NewProducer(cfg.KafkaBrokers, 1024, log.Named("kafka"))
	prod.Start(ctx)

	// Domain
	engine := pricing.NewEngine(pricing.DefaultRegistry(), log.Named("pricing"))
	mgr := inventory.NewManager(store, orders.NewAssembler(engine, store, store),
		inventory.WithPublisher(prod),
		inventory.WithLogger(log.Named("inventory")),
		inventory.WithDefaultTTL(cfg.ReservationTTL),
		inventory.WithServiceName(cfg.ServiceName),
	)
	orderCache := redisx.NewOrderCache(rdb, store)

	// HTTP
	router := httpx.NewRouter()
	(&httpx.CartHandler{
		Inventory:   mgr,
		Orders:      orderCache,
		Idempotency: redisx.NewCheckoutKeys(rdb),
		Log:         log,
	}).Register(router)
	(&httpx.PricingHandler{Pricer: engine, Rules: store, Promotions: store, Variants: store, Log: log}).Register(router)
	(&httpx.OrdersHandler{Orders: orderCache, Log: log}).Register(router)
	(&httpx.AnalyticsHandler{Analytics: store, Log: log}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("HTTP listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	prod.Close()
	prod.WaitClosed()
	if err := shutdownTracing(ctx2); err != nil {
		log.Warn("tracing shutdown", zap.Error(err))
	}
}
