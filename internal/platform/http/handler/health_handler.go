// Package handler はプラットフォームレベルのエンドポイント用HTTPハンドラーを提供します。
package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

// Check は依存先（DB、推論サイドカーなど）の疎通を確認します。
type Check func(ctx context.Context) error

// HealthResponse は /healthz のレスポンスです。
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health はサービスヘルスチェック用の /healthz エンドポイントを処理するハンドラーを返します。
// 登録されたチェックが1つでも失敗した場合は503を返します。
// HTTPメソッドに応じて適切にレスポンスし、キャッシュを防止します。
func Health(checks map[string]Check) gin.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(c *gin.Context) {
		// 明示的にキャッシュを防止
		c.Header("Cache-Control", "no-store")

		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		resp := HealthResponse{Status: "ok"}
		code := http.StatusOK
		if len(names) > 0 {
			resp.Checks = make(map[string]string, len(names))
		}
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				code = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}

		if c.Request.Method == http.MethodHead {
			c.Status(code)
			return
		}
		c.JSON(code, resp)
	}
}
