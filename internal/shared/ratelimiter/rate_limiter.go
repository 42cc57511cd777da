// Package ratelimiter は外部API呼び出しの頻度をプロセス内で制限します。
package ratelimiter

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Limiter は呼び出し前に待機が必要かを判断するインターフェースです。
type Limiter interface {
	Wait(ctx context.Context) error
}

// RateLimiter は固定ウィンドウ方式で呼び出し回数を制限します。
// 複数のgoroutineから同時に使用できます。
type RateLimiter struct {
	mu        sync.Mutex
	limit     int           // ウィンドウあたりの上限
	interval  time.Duration // ウィンドウの長さ
	count     int
	lastReset time.Time
	now       func() time.Time
}

// NewRateLimiter は新しいRateLimiterのインスタンスを生成します。
// limitが0以下の場合は制限しません。
func NewRateLimiter(limit int, interval time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:     limit,
		interval:  interval,
		lastReset: time.Now(),
		now:       time.Now,
	}
}

// Wait は上限に達していればウィンドウがリセットされるまで待機します。
// 待機中にctxが終了した場合はctx.Err()を返します。
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if rl.limit <= 0 {
		return ctx.Err()
	}

	for {
		sleep := rl.reserve()
		if sleep <= 0 {
			return nil
		}

		slog.Warn("rate limit reached, waiting", "limit", rl.limit, "wait", sleep)
		t := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// reserve は枠を1つ確保して0を返すか、次のウィンドウまでの待機時間を返します。
func (rl *RateLimiter) reserve() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	// interval を過ぎたらカウントリセット
	if now.Sub(rl.lastReset) >= rl.interval {
		rl.count = 0
		rl.lastReset = now
	}
	if rl.count < rl.limit {
		rl.count++
		return 0
	}
	return rl.interval - now.Sub(rl.lastReset)
}
