package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"strategyvault/internal/auth"
	"strategyvault/internal/config"
	"strategyvault/internal/db"
	"strategyvault/internal/events"
	"strategyvault/internal/health"
	"strategyvault/internal/httpserver"
	"strategyvault/internal/storage/postgres"
	"strategyvault/internal/storage/sqlite"
	"strategyvault/internal/strategies"
	"strategyvault/internal/treasury"
)

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		store treasury.Store
		dir   strategies.Directory
		ping  func(ctx context.Context) error
	)
	switch cfg.StoreDriver {
	case "postgres":
		pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
		if err != nil {
			zap.L().Fatal("connect database", zap.Error(err))
		}
		defer pool.Close()
		pg := postgres.NewStore(pool)
		if err := pg.InitSchema(ctx); err != nil {
			zap.L().Fatal("init schema", zap.Error(err))
		}
		store = pg
		dir = strategies.NewPostgresDirectory(pool)
		ping = pool.Ping
	case "sqlite":
		lite, err := sqlite.NewStore(cfg.SQLitePath)
		if err != nil {
			zap.L().Fatal("open sqlite store", zap.Error(err))
		}
		store = lite
		// The strategy subsystem does not run alongside the sqlite
		// deployment; ownership is enforced upstream.
		dir = strategies.AllowAllDirectory{}
		ping = lite.Ping
	}
	defer store.Close()

	bus := events.NewBus()
	svc := treasury.NewService(store, dir, bus, cfg.MinOperating, cfg.OpTimeout)
	authSvc := auth.NewService(cfg.JWTIssuer, []byte(cfg.JWTSecret))

	router := httpserver.NewRouter(httpserver.Deps{
		Auth:          authSvc,
		Treasury:      treasury.NewHandler(svc),
		Health:        health.NewHandler(ping),
		Events:        httpserver.NewEventStream(bus, cfg.WSOrigin),
		InternalToken: cfg.InternalToken,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zap.L().Info("http server listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zap.L().Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("shutdown", zap.Error(err))
	}
}
