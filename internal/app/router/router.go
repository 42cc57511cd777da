package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	sortinghandler "smartsort_backend/internal/feature/sorting/transport/handler"
	platformhandler "smartsort_backend/internal/platform/http/handler"
	jwtmw "smartsort_backend/internal/platform/jwt"
	"smartsort_backend/internal/platform/metrics"
)

// multipartOverhead はマルチパートの境界やヘッダー分の余裕です。
const multipartOverhead = 1 << 20

// Config はルーター全体に適用するミドルウェアの設定です。
type Config struct {
	AllowOrigins   []string      // CORS_ALLOW_ORIGINS（空または "*" で全許可）
	RequestTimeout time.Duration // REQUEST_TIMEOUT（0で無効）
	MaxUploadBytes int64         // MAX_UPLOAD_BYTES
	JWTSecret      string        // 空の場合 /submit/* は認証不要
}

// NewRouter はエンドポイントとミドルウェアを登録したgin.Engineを返します。
func NewRouter(cfg Config, submissions *sortinghandler.SubmissionHandler, m *metrics.Metrics,
	checks map[string]platformhandler.Check) *gin.Engine {
	r := gin.Default()
	r.MaxMultipartMemory = cfg.MaxUploadBytes + multipartOverhead

	r.Use(corsMiddleware(cfg.AllowOrigins))
	if m != nil {
		r.Use(m.Middleware())
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	// 導通確認用
	health := platformhandler.Health(checks)
	r.GET("/healthz", health)
	r.HEAD("/healthz", health)
	r.OPTIONS("/healthz", health)

	// 推論のみ（保存なし）
	api := r.Group("/")
	api.Use(bodyLimit(cfg.MaxUploadBytes+multipartOverhead), timeout(cfg.RequestTimeout))
	{
		api.POST("/predict", submissions.Predict)
		api.POST("/classify", submissions.Classify)
	}

	// 投稿（JWT_SECRET 設定時は認証必須）
	submit := api.Group("/submit")
	if cfg.JWTSecret != "" {
		submit.Use(jwtmw.AuthRequired(cfg.JWTSecret))
	}
	{
		submit.POST("/agreed", submissions.SubmitAgreed)
		submit.POST("/correction", submissions.SubmitCorrection)
		submit.POST("/manual", submissions.SubmitManual)
	}

	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodHead, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

// timeout はリクエストのコンテキストに期限を設定します。
func timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// bodyLimit はリクエストボディの読み取り量を制限します。
func bodyLimit(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if n > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}
