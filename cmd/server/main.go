package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"commerce-engine/internal/adapters/web"
	"commerce-engine/internal/app"
	"commerce-engine/internal/config"
	"commerce-engine/internal/core"
	"commerce-engine/internal/db"
	"commerce-engine/internal/store/memory"
	"commerce-engine/internal/store/postgres"
	"commerce-engine/internal/store/rediscache"
	"commerce-engine/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("configuration")
	}
	logger.Init("commerce-engine", cfg.Environment, cfg.LogLevel)

	ctx := context.Background()

	var (
		products   core.ProductStore
		movements  core.MovementStore
		orders     core.OrderStore
		categories core.CategoryStore
	)
	switch cfg.StoreBackend {
	case "postgres":
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("database")
		}
		defer pool.Close()
		pg := postgres.New(pool)
		products, movements, orders, categories = pg, pg, pg, pg
	case "memory":
		mem := memory.New()
		products, movements, orders, categories = mem, mem, mem, mem
		log.Warn().Msg("using in-memory store, data will not survive a restart")
	}

	var categoryLookup core.CategoryLookup
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("redis URL")
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("redis")
		}
		defer client.Close()
		categoryLookup = rediscache.New(client, categories, cfg.RateCacheTTL)
	} else {
		categoryLookup = core.NewCategoryRateCache(categories, cfg.RateCacheTTL)
	}

	overrides := app.NewOverrideRegistry()
	storeCtx := app.StoreContextFunc(app.StorePolicy{
		SellerState: cfg.SellerState,
		BuyerState:  cfg.BuyerState,
		Delivery: core.DeliveryPolicy{
			FlatFee:       cfg.DeliveryFee(),
			FreeThreshold: cfg.DeliveryThreshold(),
		},
	}, overrides)

	resolver := core.NewRateResolver(categoryLookup)
	ledger := core.NewStockLedger(products, movements)
	pricing := core.NewPricingEngine(products, resolver)
	coordinator := core.NewOrderCoordinator(orders, ledger, pricing, storeCtx, cfg.PaymentTimeout)
	catalog := core.NewCatalogService(products, categories, categoryLookup)
	reporting := core.NewReportingService(orders)

	svc := app.NewAppService(coordinator, ledger, catalog, reporting, overrides)

	router := web.NewRouter(svc)
	if cfg.MetricsEnabled {
		router.Handle("/metrics", promhttp.Handler())
	}

	c := cors.New(cors.Options{
		AllowedOrigins: strings.Split(cfg.AllowedOrigins, ","),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
	})

	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.ServerPort),
		Handler:      c.Handler(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Payment-timeout sweep: orders stuck in AWAITING_PAYMENT past the window
	// get their stock released and the order cancelled.
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go func() {
		ticker := time.NewTicker(cfg.PaymentTimeout / 3)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				n, err := svc.ExpireStalePayments(sweepCtx)
				if err != nil {
					log.Error().Err(err).Msg("payment timeout sweep")
				} else if n > 0 {
					log.Info().Int("expired", n).Msg("payment timeout sweep")
				}
			}
		}
	}()

	go func() {
		log.Info().Int("port", cfg.ServerPort).Str("backend", cfg.StoreBackend).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	stopSweep()
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
}
