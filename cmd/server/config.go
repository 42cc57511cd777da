package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"smartsort_backend/internal/app/router"
)

// serverConfig はHTTPサーバーの設定です。
type serverConfig struct {
	Port            string
	ShutdownTimeout time.Duration
	LogLevel        slog.Level
	Router          router.Config
}

func loadServerConfig() (serverConfig, error) {
	cfg := serverConfig{
		Port:            "8080",
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        slog.LevelInfo,
		Router: router.Config{
			RequestTimeout: 30 * time.Second,
			MaxUploadBytes: 10 << 20,
			JWTSecret:      os.Getenv("JWT_SECRET"),
		},
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return cfg, fmt.Errorf("invalid LOG_LEVEL %q: %w", v, err)
		}
	}
	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return cfg, fmt.Errorf("invalid REQUEST_TIMEOUT %q", v)
		}
		cfg.Router.RequestTimeout = d
	}
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			return cfg, fmt.Errorf("invalid MAX_UPLOAD_BYTES %q", v)
		}
		cfg.Router.MaxUploadBytes = n
	}
	if v := os.Getenv("CORS_ALLOW_ORIGINS"); v != "" {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.Router.AllowOrigins = append(cfg.Router.AllowOrigins, o)
			}
		}
	}
	return cfg, nil
}
