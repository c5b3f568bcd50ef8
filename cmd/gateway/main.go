package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"marketgw/internal/broker"
	"marketgw/internal/config"
	cronrunner "marketgw/internal/cron"
	"marketgw/internal/db"
	"marketgw/internal/handler"
	"marketgw/internal/hub"
	"marketgw/internal/logger"
	"marketgw/internal/quotecache"
	gormrepository "marketgw/internal/repository/gorm"
	"marketgw/internal/service"
	"marketgw/internal/ws"
)

func main() {
	cfgPath := os.Getenv("MG_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("MG_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cache *quotecache.Cache
	if cfg.Redis.Enabled {
		cache, err = quotecache.New(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Warn("redis unavailable, caching disabled", zap.Error(err))
			cache = nil
		} else {
			defer cache.Close()
		}
	}

	upstreamHTTP := &http.Client{Timeout: cfg.Upstream.HistoricalTimeout}
	upstream := broker.NewClient(upstreamHTTP, cfg.Upstream.BaseURL)
	store := gormrepository.New(dbConn.Gorm)

	resolver := &service.ContractResolver{Repo: store}
	historySvc := &service.HistoryService{
		Repo:     store,
		Upstream: upstream,
		Resolver: resolver,
		Cache:    cache,
		Logger:   logger,
	}
	quoteSvc := &service.QuoteService{
		Upstream: upstream,
		Cache:    cache,
		Timeout:  cfg.Upstream.QuoteTimeout,
		Logger:   logger,
	}
	retentionSvc := &service.RetentionService{Repo: store, Config: cfg.Retention, Logger: logger}
	statsSvc := &service.StatsService{Repo: store}

	feed := broker.NewFeed(broker.FeedOptions{
		URL:               cfg.Upstream.WSURL,
		HeartbeatInterval: cfg.Upstream.HeartbeatInterval,
		BackoffMin:        cfg.Upstream.BackoffMin,
		BackoffMax:        cfg.Upstream.BackoffMax,
		Logger:            logger,
	})
	mux := hub.NewMultiplexer(feed, logger)
	ingest := &service.FeedIngestService{
		Repo:   store,
		Mux:    mux,
		Audit:  cfg.Upstream.RawEventAudit,
		Logger: logger,
	}

	if cfg.Upstream.WSURL != "" {
		go func() {
			if err := feed.Run(ctx, ingest.HandleTick); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("upstream feed stopped", zap.Error(err))
			}
		}()
	} else {
		logger.Warn("upstream ws url not configured, streaming disabled")
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm, Cache: cache}
	healthHandler.Register(engine)
	historyHandler := &handler.HistoryHandler{History: historySvc}
	historyHandler.Register(engine)
	quoteHandler := &handler.QuoteHandler{Quotes: quoteSvc}
	quoteHandler.Register(engine)
	statsHandler := &handler.StatsHandler{Stats: statsSvc, Cache: cache, Mux: mux}
	statsHandler.Register(engine)
	adminHandler := &handler.AdminHandler{Retention: retentionSvc, Cache: cache}
	adminHandler.Register(engine)

	wsServer := &ws.Server{Mux: mux, Logger: logger, SendBuffer: cfg.Hub.SendBuffer}
	wsServer.Register(engine)

	if cfg.Cron.Enabled {
		runner := cronrunner.New(logger, ctx)
		if cfg.Retention.Enabled {
			if _, err := runner.Add(cfg.Cron.Retention, retentionSvc.Run); err != nil {
				logger.Fatal("schedule retention job failed", zap.Error(err))
			}
		}
		runner.Start()
		defer runner.Stop()
	}

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
