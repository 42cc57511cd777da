package di

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"smartsort_backend/internal/feature/sorting/adapters/gemini"
	"smartsort_backend/internal/feature/sorting/adapters/onnx"
	"smartsort_backend/internal/feature/sorting/adapters/remote"
	"smartsort_backend/internal/feature/sorting/adapters/vision"
	"smartsort_backend/internal/feature/sorting/domain/entity"
	"smartsort_backend/internal/feature/sorting/usecase"
	platformhandler "smartsort_backend/internal/platform/http/handler"
	"smartsort_backend/internal/shared/ratelimiter"
)

// 推論バックエンド名です。
const (
	BackendONNX   = "onnx"
	BackendRemote = "remote"
	BackendVision = "vision"
	BackendGemini = "gemini"
	BackendNone   = "none"
)

// InferenceConfig は推論バックエンドの選択です。
type InferenceConfig struct {
	DetectorBackend   string // DETECTOR_BACKEND
	ClassifierBackend string // CLASSIFIER_BACKEND
	Categories        entity.Categories
	CloudRateLimit    int // CLOUD_RATE_LIMIT（1分あたり）
}

// LoadInferenceConfig は環境変数から推論設定を読み込みます。
func LoadInferenceConfig() (InferenceConfig, error) {
	categories := entity.DefaultCategories
	if v := os.Getenv("CATEGORIES"); v != "" {
		c, err := entity.NewCategories(strings.Split(v, ","))
		if err != nil {
			return InferenceConfig{}, fmt.Errorf("invalid CATEGORIES: %w", err)
		}
		categories = c
	}

	cfg := InferenceConfig{
		DetectorBackend:   strings.ToLower(envOr("DETECTOR_BACKEND", BackendONNX)),
		ClassifierBackend: strings.ToLower(envOr("CLASSIFIER_BACKEND", BackendNone)),
		Categories:        categories,
		CloudRateLimit:    60,
	}
	if v := os.Getenv("CLOUD_RATE_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return InferenceConfig{}, fmt.Errorf("invalid CLOUD_RATE_LIMIT: %w", err)
		}
		cfg.CloudRateLimit = n
	}

	switch cfg.DetectorBackend {
	case BackendONNX, BackendRemote, BackendVision:
	default:
		return InferenceConfig{}, fmt.Errorf("unsupported DETECTOR_BACKEND %q", cfg.DetectorBackend)
	}
	switch cfg.ClassifierBackend {
	case BackendONNX, BackendRemote, BackendGemini, BackendNone:
	default:
		return InferenceConfig{}, fmt.Errorf("unsupported CLASSIFIER_BACKEND %q", cfg.ClassifierBackend)
	}
	return cfg, nil
}

// Inference は起動時に一度だけ生成され、全リクエストで共有される推論器の集合です。
type Inference struct {
	Detector   usecase.Detector
	Classifier usecase.Classifier // 未設定の場合はnil
	Checks     map[string]platformhandler.Check

	closers []func() error
}

// Close は生成した推論器を逆順に解放します。
func (in *Inference) Close() error {
	var errs []error
	for i := len(in.closers) - 1; i >= 0; i-- {
		errs = append(errs, in.closers[i]())
	}
	return errors.Join(errs...)
}

// NewInference は設定に従って検出器と分類器を生成します。
// ONNXモデルのクラス数がカテゴリ数と一致しない場合はエラーを返します。
func NewInference(ctx context.Context, cfg InferenceConfig) (_ *Inference, err error) {
	inf := &Inference{Checks: map[string]platformhandler.Check{}}
	defer func() {
		if err != nil {
			_ = inf.Close()
		}
	}()

	var (
		rt      *onnx.Runtime
		onnxCfg = onnx.LoadConfig()
		limiter = ratelimiter.NewRateLimiter(cfg.CloudRateLimit, time.Minute)
		sidecar *remote.Client
	)
	runtime := func() (*onnx.Runtime, error) {
		if rt != nil {
			return rt, nil
		}
		r, err := onnx.NewRuntime(onnxCfg.LibraryPath)
		if err != nil {
			return nil, err
		}
		rt = r
		inf.closers = append(inf.closers, r.Close)
		return r, nil
	}
	remoteClient := func() (*remote.Client, error) {
		if sidecar != nil {
			return sidecar, nil
		}
		rc, err := remote.LoadConfig()
		if err != nil {
			return nil, err
		}
		sidecar = remote.NewClient(rc, cfg.Categories, nil)
		inf.Checks["inference"] = sidecar.CheckHealth
		return sidecar, nil
	}

	switch cfg.DetectorBackend {
	case BackendONNX:
		if _, err := runtime(); err != nil {
			return nil, err
		}
		d, err := onnx.NewDetector(onnxCfg, cfg.Categories)
		if err != nil {
			return nil, fmt.Errorf("failed to load detection model: %w", err)
		}
		inf.closers = append(inf.closers, d.Close)
		inf.Detector = d
	case BackendRemote:
		c, err := remoteClient()
		if err != nil {
			return nil, err
		}
		inf.Detector = c
	case BackendVision:
		d, err := vision.NewObjectDetector(ctx, cfg.Categories, limiter)
		if err != nil {
			return nil, err
		}
		inf.closers = append(inf.closers, d.Close)
		inf.Detector = d
	}

	switch cfg.ClassifierBackend {
	case BackendONNX:
		if _, err := runtime(); err != nil {
			return nil, err
		}
		c, err := onnx.NewClassifier(onnxCfg, cfg.Categories)
		if err != nil {
			return nil, fmt.Errorf("failed to load classification model: %w", err)
		}
		inf.closers = append(inf.closers, c.Close)
		inf.Classifier = c
	case BackendRemote:
		c, err := remoteClient()
		if err != nil {
			return nil, err
		}
		inf.Classifier = c
	case BackendGemini:
		c, err := gemini.NewGeminiClassifier(ctx, cfg.Categories, limiter)
		if err != nil {
			return nil, err
		}
		inf.Classifier = c
	}

	slog.Info("inference ready",
		"detector", cfg.DetectorBackend,
		"classifier", cfg.ClassifierBackend,
		"categories", strings.Join(cfg.Categories, ","))
	return inf, nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
