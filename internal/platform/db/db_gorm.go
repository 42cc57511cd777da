// Package db はデータベース接続の確立とスキーマ準備を提供します。
package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"smartsort_backend/internal/feature/sorting/adapters"
)

// DefaultURL はローカル開発用のデフォルト接続先です。
const DefaultURL = "postgresql://postgres:postgres@db:5432/smartsortdb"

// retryInterval は接続リトライの間隔です。
var retryInterval = 3 * time.Second

// Config はデータベースの接続設定です。
type Config struct {
	URL            string        // DATABASE_URL
	ConnectTimeout time.Duration // DB_CONNECT_TIMEOUT
}

// LoadConfigFromEnv は環境変数から設定を読み込みます。
func LoadConfigFromEnv() Config {
	cfg := Config{URL: os.Getenv("DATABASE_URL"), ConnectTimeout: 60 * time.Second}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if d, err := time.ParseDuration(os.Getenv("DB_CONNECT_TIMEOUT")); err == nil && d > 0 {
		cfg.ConnectTimeout = d
	}
	return cfg
}

// Dialector は接続URLのスキームからドライバーを選択します。
//   - postgres:// / postgresql:// → Postgres
//   - sqlite:<path> / file:<path> / :memory: → SQLite
func Dialector(url string) (gorm.Dialector, error) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return postgres.Open(url), nil
	case strings.HasPrefix(url, "sqlite:"):
		return sqlite.Open(strings.TrimPrefix(url, "sqlite:")), nil
	case strings.HasPrefix(url, "file:"), url == ":memory:":
		return sqlite.Open(url), nil
	default:
		return nil, fmt.Errorf("unsupported DATABASE_URL scheme: %q", redact(url))
	}
}

// ConnectWithRetry はタイムアウトまでopenerを繰り返し呼び出します。
func ConnectWithRetry(dsn string, timeout time.Duration, opener func(dsn string) (*gorm.DB, error)) (*gorm.DB, error) {
	deadline := time.Now().Add(timeout)
	for {
		db, err := opener(dsn)
		if err == nil {
			return db, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("DB connect failed after %s: %w", timeout, err)
		}
		slog.Warn("DB connect failed, retrying", "error", err, "retry_in", min(retryInterval, remaining))
		time.Sleep(min(retryInterval, remaining))
	}
}

// OpenDB は接続を確立し、predictionsテーブルを作成します（存在する場合は何もしません）。
func OpenDB(cfg Config) (*gorm.DB, error) {
	dialector, err := Dialector(cfg.URL)
	if err != nil {
		return nil, err
	}

	db, err := ConnectWithRetry(cfg.URL, cfg.ConnectTimeout, func(string) (*gorm.DB, error) {
		return gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	})
	if err != nil {
		return nil, err
	}

	if err := adapters.EnsureSchema(db); err != nil {
		return nil, err
	}
	slog.Info("database ready", "driver", dialector.Name(), "url", redact(cfg.URL))
	return db, nil
}

// Ping は接続の疎通を確認します。ctxの期限を超えて待つことはありません。
func Ping(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return errors.New("database is not initialized")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// redact はURLに含まれるパスワードを伏せ字にします。
func redact(url string) string {
	scheme, rest, ok := strings.Cut(url, "://")
	if !ok {
		return url
	}
	userinfo, host, ok := strings.Cut(rest, "@")
	if !ok {
		return url
	}
	if user, _, hasPass := strings.Cut(userinfo, ":"); hasPass {
		return scheme + "://" + user + ":***@" + host
	}
	return url
}
