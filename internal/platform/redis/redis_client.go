// Package redis はRedisクライアントの生成を提供します。
package redis

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotConfigured はREDIS_HOSTが未設定であることを示します。
var ErrNotConfigured = errors.New("redis is not configured")

// Config はRedisの接続設定です。
type Config struct {
	Host     string // REDIS_HOST
	Port     string // REDIS_PORT（デフォルト 6379）
	Password string // REDIS_PASSWORD
}

// LoadConfig は環境変数から設定を読み込みます。
func LoadConfig() Config {
	port := os.Getenv("REDIS_PORT")
	if port == "" {
		port = "6379"
	}
	return Config{
		Host:     os.Getenv("REDIS_HOST"),
		Port:     port,
		Password: os.Getenv("REDIS_PASSWORD"),
	}
}

// Addr は host:port 形式のアドレスを返します。
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// NewRedisClient は接続確認済みのクライアントを返します。
// Hostが空の場合は ErrNotConfigured を返します。
func NewRedisClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	if cfg.Host == "" {
		return nil, ErrNotConfigured
	}
	addr := cfg.Addr()

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       0,
	})

	// 接続確認
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("Redis connection failed", "address", addr, "error", err)
		_ = rdb.Close()
		return nil, err
	}

	slog.Info("Redis connection successful", "address", addr)
	return rdb, nil
}
