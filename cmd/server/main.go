package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	redisv9 "github.com/redis/go-redis/v9"

	"smartsort_backend/internal/app/di"
	"smartsort_backend/internal/app/router"
	"smartsort_backend/internal/feature/sorting/adapters/filestore"
	infradb "smartsort_backend/internal/platform/db"
	platformhandler "smartsort_backend/internal/platform/http/handler"
	"smartsort_backend/internal/platform/metrics"
	infraredis "smartsort_backend/internal/platform/redis"
)

func main() {
	// .envを読み込む
	if err := godotenv.Load(".env"); err != nil {
		slog.Info(".env not found; using system environment variables")
	}

	cfg, err := loadServerConfig()
	if err != nil {
		slog.Error("設定の読み込みに失敗", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})))

	if err := run(cfg); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg serverConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// db
	db, err := infradb.OpenDB(infradb.LoadConfigFromEnv())
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer func() {
			if err := sqlDB.Close(); err != nil {
				slog.Error("failed to close database", "error", err)
			}
		}()
	}

	// Redis
	var rdb *redisv9.Client
	if tmp, err := infraredis.NewRedisClient(ctx, infraredis.LoadConfig()); err != nil {
		slog.Warn("Redis unavailable. Running with in-process detection cache.", "error", err)
	} else {
		rdb = tmp
		defer func() {
			if err := rdb.Close(); err != nil {
				slog.Error("failed to close Redis client", "error", err)
			}
		}()
	}

	// 推論バックエンド
	infCfg, err := di.LoadInferenceConfig()
	if err != nil {
		return err
	}
	inf, err := di.NewInference(ctx, infCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := inf.Close(); err != nil {
			slog.Error("failed to release inference backends", "error", err)
		}
	}()

	ttl, err := di.LoadCacheTTL()
	if err != nil {
		return err
	}
	detector := di.NewDetectionCache(rdb, ttl, inf.Detector)

	m, err := metrics.New(prometheus.NewRegistry())
	if err != nil {
		return err
	}

	store := filestore.New(filestore.LoadConfig())
	submissions := di.NewSubmissionHandler(di.SubmissionDeps{
		DB:             db,
		Store:          store,
		Detector:       detector,
		Classifier:     inf.Classifier,
		Categories:     infCfg.Categories,
		Metrics:        m,
		MaxUploadBytes: int(cfg.Router.MaxUploadBytes),
	})

	checks := map[string]platformhandler.Check{
		"database": func(ctx context.Context) error { return infradb.Ping(ctx, db) },
	}
	for name, check := range inf.Checks {
		checks[name] = check
	}

	// JWT_SECRETチェック（開発中の注意喚起）
	if cfg.Router.JWTSecret == "" {
		slog.Warn("JWT_SECRET is not set. /submit endpoints accept anonymous requests.")
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           router.NewRouter(cfg.Router, submissions, m, checks),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", srv.Addr, "data_dir", store.Root(),
			"detector", infCfg.DetectorBackend, "classifier", infCfg.ClassifierBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
