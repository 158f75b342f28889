package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/dalfonso89/emi-calculator/internal/api"
	"github.com/dalfonso89/emi-calculator/internal/cache"
	"github.com/dalfonso89/emi-calculator/internal/config"
	"github.com/dalfonso89/emi-calculator/internal/logger"
	"github.com/dalfonso89/emi-calculator/internal/platform"
	"github.com/dalfonso89/emi-calculator/internal/ratelimit"
	"github.com/dalfonso89/emi-calculator/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logger.New(cfg.LogLevel, cfg.LogFormat)

	shutdownCtx, stop := platform.NewShutdownContext(context.Background())
	defer stop()

	var store cache.Store = cache.NewMemoryStore()
	if cfg.RedisAddr != "" {
		redisClient, err := cache.NewRedisClient(shutdownCtx, cfg.RedisAddr)
		if err != nil {
			logger.Warnf("Redis unavailable at %s, caching rates in memory: %v", cfg.RedisAddr, err)
		} else {
			defer redisClient.Close()
			store = cache.NewRedisStore(redisClient, cfg.RedisKeyPrefix)
			logger.Infof("Caching rates in Redis at %s", cfg.RedisAddr)
		}
	}

	ratesService := service.NewRatesService(cfg, logger, store)
	calculator := service.NewCalculatorService(ratesService, logger, cfg.DefaultBaseCurrency)

	warmupCtx, cancelWarmup := context.WithTimeout(shutdownCtx, 10*time.Second)
	snapshot, err := ratesService.Refresh(warmupCtx, false)
	cancelWarmup()
	switch {
	case err != nil:
		logger.Warnf("Initial rates load abandoned, will load on first request: %v", err)
	case snapshot.Fallback:
		logger.Warnf("Starting with fallback rates: %v", snapshot.FallbackReason)
	default:
		logger.Infof("Loaded %d rates from %s", len(snapshot.Rates), snapshot.Provider)
	}

	rateLimiter := ratelimit.NewLimiter(cfg, logger)
	defer rateLimiter.Stop()

	router := api.NewHandlers(ratesService, calculator, logger).
		WithRateLimit(rateLimiter).
		WithProduction(cfg.IsProduction()).
		SetupRoutes()

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	listener, err := net.Listen("tcp", server.Addr)
	if err != nil {
		logger.Fatalf("Failed to listen on port %s: %v", cfg.Port, err)
	}

	if err := platform.Serve(shutdownCtx, server, listener, cfg.ShutdownTimeout, logger); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}
}
