package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/NaierGG/Nierade/internal/auth"
	"github.com/NaierGG/Nierade/internal/config"
	"github.com/NaierGG/Nierade/internal/db"
	"github.com/NaierGG/Nierade/internal/futures"
	"github.com/NaierGG/Nierade/internal/httpserver"
	"github.com/NaierGG/Nierade/internal/ledger"
	"github.com/NaierGG/Nierade/internal/marketdata"
	"github.com/NaierGG/Nierade/internal/pricing"
	"github.com/NaierGG/Nierade/internal/spot"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	defer pool.Close()
	if err := db.Migrate(ctx, pool); err != nil {
		log.WithError(err).Fatal("schema migration failed")
	}

	var cache marketdata.Cache = marketdata.NewMemoryCache()
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			log.WithError(err).Warn("redis unreachable, using in-memory cache")
		} else {
			cache = marketdata.NewRedisCache(client)
			defer client.Close()
		}
	}

	marketSvc := marketdata.NewService(marketdata.NewClient(), cache, log)
	resolver := pricing.NewResolver(marketSvc, marketSvc, cfg.PriceMaxDriftPct)

	ledgerSvc := ledger.NewService(pool, cfg.StartingCashUSDT)
	spotStore := spot.NewStore(pool)
	spotSvc := spot.NewService(pool, spotStore, ledgerSvc, resolver, log)
	futuresStore := futures.NewStore(pool)
	futuresSvc := futures.NewService(pool, futuresStore, ledgerSvc, resolver, futures.Config{
		LiquidationFeeRate: cfg.FuturesLiquidationFeeRate,
		HarshLiquidation:   cfg.FuturesHarshLiquidation,
		TransferMin:        cfg.TransferMinUSDT,
	}, log)
	authSvc := auth.NewService(pool, cfg.JWTIssuer, []byte(cfg.JWTSecret), cfg.JWTTTL)

	bus := marketdata.NewBus()
	marketdata.StartPublisher(ctx, marketSvc, bus, log)

	router := httpserver.NewRouter(httpserver.RouterDeps{
		AuthHandler:    auth.NewHandler(authSvc),
		SpotHandler:    spot.NewHandler(spotSvc, ledgerSvc),
		FuturesHandler: futures.NewHandler(futuresSvc, ledgerSvc),
		MarketHandler:  marketdata.NewHandler(marketSvc),
		TickerWS:       marketdata.NewTickerWS(bus, cfg.WebSocketOrigin, log),
		AuthService:    authSvc,
		CronSecret:     cfg.CronSecret,
		CORSOrigin:     cfg.WebSocketOrigin,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}
