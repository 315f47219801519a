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
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"marketpulse/internal/analytics"
	"marketpulse/internal/client/fred"
	"marketpulse/internal/client/screener"
	"marketpulse/internal/client/yahoo"
	"marketpulse/internal/config"
	cronrunner "marketpulse/internal/cron"
	"marketpulse/internal/db"
	"marketpulse/internal/handler"
	"marketpulse/internal/logger"
	"marketpulse/internal/macro"
	"marketpulse/internal/notify"
	"marketpulse/internal/pipeline"
	"marketpulse/internal/pricesync"
	gormrepository "marketpulse/internal/repository/gorm"
	"marketpulse/internal/universe"

	_ "marketpulse/docs"
)

func main() {
	cfgPath := os.Getenv("MP_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("MP_ENV_ONLY"); envOnlyRaw != "" {
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
	if cfg.DB.AutoMigrate {
		if err := db.AutoMigrate(dbConn); err != nil {
			logger.Fatal("auto-migrate failed", zap.Error(err))
		}
	}

	store := gormrepository.New(dbConn.Gorm)
	settingsSvc := &pipeline.SettingsService{Repo: store}
	if err := settingsSvc.EnsureDefaults(context.Background()); err != nil {
		logger.Warn("init runtime switches failed", zap.Error(err))
	}

	yahooClient := yahoo.NewClient(&http.Client{Timeout: cfg.MarketData.Timeout}, cfg.MarketData.BaseURL)
	fredClient := fred.NewClient(&http.Client{Timeout: cfg.Macro.Timeout}, cfg.Macro.BaseURL, cfg.Macro.APIKey)
	screenerClient := screener.NewClient(&http.Client{Timeout: cfg.Universe.Timeout}, cfg.Universe.ScannerURL)
	notifier := &notify.Client{BaseURL: cfg.Notify.BaseURL, Token: cfg.Notify.Token}

	progress := pricesync.NewHub()
	universeSvc := &universe.Service{
		Repo:      store,
		Screener:  screenerClient,
		Logger:    logger,
		Config:    cfg.Universe,
		Benchmark: cfg.MarketData.BenchmarkTicker,
	}
	macroSvc := &macro.Service{
		Repo:   store,
		Client: fredClient,
		Logger: logger,
		Config: cfg.Macro,
	}
	priceSvc := &pricesync.Service{
		Repo:     store,
		Bars:     yahooClient,
		Logger:   logger,
		Config:   cfg.MarketData,
		Progress: progress,
	}
	tickerAnalytics := &analytics.Engine{
		Repo:      store,
		Logger:    logger,
		Benchmark: cfg.MarketData.BenchmarkTicker,
		Config:    cfg.Analytics,
	}
	breadth := &analytics.Breadth{
		Repo:        store,
		Logger:      logger,
		Benchmark:   cfg.MarketData.BenchmarkTicker,
		Config:      cfg.Analytics,
		MacroSeries: cfg.Macro.Series,
	}
	groups := &analytics.Groups{
		Repo:   store,
		Logger: logger,
		Config: cfg.Analytics,
	}
	runner := &pipeline.Runner{
		Repo:      store,
		Universe:  universeSvc,
		Macro:     macroSvc,
		Prices:    priceSvc,
		Analytics: tickerAnalytics,
		Breadth:   breadth,
		Groups:    groups,
		Settings:  settingsSvc,
		Notifier:  notifier,
		Logger:    logger,
		Config:    cfg.Pipeline,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())
	engine.Use(requestLogMiddleware(logger))
	engine.Use(handler.RequireBearerMiddleware(cfg.Server.AuthToken))
	engine.Use(notify.InjectClientMiddleware(notifier))

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	stocksHandler := &handler.StocksHandler{Repo: store, Logger: logger}
	stocksHandler.Register(engine)
	marketHandler := &handler.MarketHandler{Repo: store, Logger: logger}
	marketHandler.Register(engine)
	groupsHandler := &handler.GroupsHandler{Repo: store, Logger: logger}
	groupsHandler.Register(engine)
	settingsHandler := &handler.SettingsHandler{Repo: store, Settings: settingsSvc, Logger: logger}
	settingsHandler.Register(engine)
	pipelineHandler := &handler.PipelineHandler{
		Runner:   runner,
		Repo:     store,
		Progress: progress,
		Logger:   logger,
	}
	pipelineHandler.Register(engine)

	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	baseCtx := notify.WithClient(ctx, notifier)

	cronRunner := cronrunner.New(logger, baseCtx)
	if cfg.Cron.Enabled {
		_, err := cronRunner.Add("pipeline", cfg.Cron.Pipeline, func(ctx context.Context) {
			runPipeline(ctx, runner, logger)
		})
		if err != nil {
			logger.Warn("cron register pipeline failed", zap.Error(err))
		}
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	if cfg.Cron.RunOnStart {
		go runPipeline(baseCtx, runner, logger)
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

func runPipeline(ctx context.Context, runner *pipeline.Runner, logger *zap.Logger) {
	report, err := runner.Run(ctx, pipeline.RunOptions{Trigger: pipeline.TriggerCron})
	switch {
	case err == nil:
		logger.Info("pipeline run ok", zap.Any("durations", report.Durations))
	case errors.Is(err, pipeline.ErrDisabled):
		logger.Info("pipeline disabled, run skipped")
	case errors.Is(err, pipeline.ErrRunActive):
		logger.Warn("pipeline run overlapped, skipped")
	default:
		logger.Error("pipeline run failed", zap.Error(err))
	}
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

func requestLogMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		// Health probes fire constantly; keep them out of the log.
		if c.Request.URL.Path == "/healthz" || c.Request.URL.Path == "/readyz" {
			return
		}
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}
