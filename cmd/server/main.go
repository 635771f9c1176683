package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"veil/internal/fulfillment/engine"
	"veil/internal/fulfillment/events"
	"veil/internal/fulfillment/handler"
	"veil/internal/fulfillment/metrics"
	"veil/internal/fulfillment/njalla"
	"veil/internal/fulfillment/oracle"
	"veil/internal/fulfillment/ports"
	"veil/internal/fulfillment/store/order"
	"veil/internal/fulfillment/wallet"
	"veil/internal/platform/config"
	"veil/internal/platform/httpserver"
	"veil/internal/platform/logger"
	platformredis "veil/internal/platform/redis"
)

// main wires the fulfillment engine and its operator HTTP surface. Business
// logic lives in internal packages; this stays assembly only.
func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := buildOrderStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	oracleClient, err := oracle.New(cfg.OracleURL, oracle.WithLogger(log))
	if err != nil {
		return fmt.Errorf("build price oracle: %w", err)
	}
	priceOracle := oracle.NewCached(oracleClient, redisClient, cfg.RateCacheTTL, log)

	registrar, err := njalla.New(cfg.Njalla.BaseURL, cfg.Njalla.Token, njalla.WithLogger(log))
	if err != nil {
		return fmt.Errorf("build registrar client: %w", err)
	}

	outbound, err := wallet.New(cfg.WalletRPCURL, wallet.WithLogger(log))
	if err != nil {
		return fmt.Errorf("build wallet client: %w", err)
	}

	publisher, closePublisher, err := buildPublisher(cfg, log)
	if err != nil {
		return err
	}
	defer closePublisher()

	eng, err := engine.New(store, priceOracle, outbound, registrar, registrar,
		engine.WithLogger(log),
		engine.WithMetrics(metrics.New()),
		engine.WithEventPublisher(publisher),
		engine.WithInterval(cfg.PollInterval),
		engine.WithStaleAfter(cfg.StaleAfter),
	)
	if err != nil {
		return fmt.Errorf("build fulfillment engine: %w", err)
	}
	eng.Start()
	defer eng.Stop()

	srv := httpserver.New(cfg.OpsAddr, buildRouter(eng, store, redisClient, log))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("ops server listening", "addr", cfg.OpsAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func buildOrderStore(ctx context.Context, cfg config.Config, log *slog.Logger) (ports.OrderStore, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Warn("no database configured, using in-memory order store")
		return order.NewMemory(), func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := order.NewPostgres(db)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, func() { db.Close() }, nil
}

func buildPublisher(cfg config.Config, log *slog.Logger) (ports.EventPublisher, func(), error) {
	if len(cfg.KafkaBrokers) == 0 {
		log.Warn("no kafka brokers configured, order events are dropped")
		return events.NewNop(), func() {}, nil
	}
	kafka, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	if err != nil {
		return nil, nil, fmt.Errorf("build kafka publisher: %w", err)
	}
	return kafka, kafka.Close, nil
}

func buildRouter(eng *engine.Engine, store ports.OrderStore, redisClient *platformredis.Client, log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if redisClient != nil {
			if err := redisClient.Health(req.Context()); err != nil {
				log.Warn("redis unhealthy", "error", err)
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/ops", func(r chi.Router) {
		handler.New(eng, store, log).Register(r)
	})
	return r
}
