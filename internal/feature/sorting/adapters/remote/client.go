// Package remote はHTTP推論サイドカーを呼び出す検出・分類クライアントを提供します。
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"smartsort_backend/internal/feature/sorting/domain/entity"
	"smartsort_backend/internal/feature/sorting/usecase"
	platformhttp "smartsort_backend/internal/platform/http"
)

// Config はサイドカーの接続設定です。
type Config struct {
	BaseURL string        // INFERENCE_URL
	Timeout time.Duration // INFERENCE_TIMEOUT
}

// LoadConfig は環境変数から設定を読み込みます。
func LoadConfig() (Config, error) {
	cfg := Config{
		BaseURL: strings.TrimRight(os.Getenv("INFERENCE_URL"), "/"),
		Timeout: 20 * time.Second,
	}
	if cfg.BaseURL == "" {
		return Config{}, errors.New("INFERENCE_URL is required for the remote backend")
	}
	if v := os.Getenv("INFERENCE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid INFERENCE_TIMEOUT: %w", err)
		}
		cfg.Timeout = d
	}
	return cfg, nil
}

type boxDTO struct {
	CenterX float64 `json:"x_center"`
	CenterY float64 `json:"y_center"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

type detectionDTO struct {
	ClassID    int     `json:"class_id"`
	Confidence float64 `json:"confidence"`
	Box        boxDTO  `json:"box"`
}

type detectResponse struct {
	Detections []detectionDTO `json:"detections"`
}

type classifyResponse struct {
	ClassID    int     `json:"class_id"`
	Confidence float64 `json:"confidence"`
}

// Client はサイドカーの /detect と /classify を呼び出します。
// サイドカーは正規化済み（0〜1）の矩形を信頼度の降順で返す前提です。
type Client struct {
	baseURL    string
	httpClient *http.Client
	categories entity.Categories
}

// ClientがDetectorとClassifierを実装していることをコンパイル時に検証します。
var (
	_ usecase.Detector   = (*Client)(nil)
	_ usecase.Classifier = (*Client)(nil)
)

// NewClient はClientの新しいインスタンスを生成します。
// httpClientがnilの場合は platform/http のクライアントを使用します。
func NewClient(cfg Config, categories entity.Categories, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = platformhttp.NewHTTPClient(cfg.Timeout)
	}
	return &Client{baseURL: cfg.BaseURL, httpClient: httpClient, categories: categories}
}

// Detect は画像を /detect に送信し検出結果を返します。
// カテゴリ範囲外のclass_idは破棄し、信頼度の降順に並べ替えます。
func (c *Client) Detect(ctx context.Context, imageData []byte) ([]entity.Detection, error) {
	var resp detectResponse
	if err := c.post(ctx, "/detect", imageData, &resp); err != nil {
		return nil, err
	}

	ds := make([]entity.Detection, 0, len(resp.Detections))
	for _, d := range resp.Detections {
		name, ok := c.categories.Name(d.ClassID)
		if !ok {
			continue
		}
		ds = append(ds, entity.Detection{
			ClassID:    d.ClassID,
			ClassName:  name,
			Confidence: d.Confidence,
			Box: entity.Geometry{
				CenterX: d.Box.CenterX,
				CenterY: d.Box.CenterY,
				Width:   d.Box.Width,
				Height:  d.Box.Height,
			},
		})
	}
	sort.SliceStable(ds, func(i, j int) bool { return ds[i].Confidence > ds[j].Confidence })
	return ds, nil
}

// Classify は画像を /classify に送信しtop-1の結果を返します。
func (c *Client) Classify(ctx context.Context, imageData []byte) (entity.Classification, error) {
	var resp classifyResponse
	if err := c.post(ctx, "/classify", imageData, &resp); err != nil {
		return entity.Classification{}, err
	}
	name, ok := c.categories.Name(resp.ClassID)
	if !ok {
		return entity.Classification{}, fmt.Errorf("sidecar returned unknown class id %d", resp.ClassID)
	}
	return entity.Classification{ClassID: resp.ClassID, ClassName: name, Confidence: resp.Confidence}, nil
}

// CheckHealth はサイドカーの /health を確認します。
func (c *Client) CheckHealth(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("inference sidecar unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference sidecar unhealthy: %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, imageData []byte, out any) error {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "image.jpg")
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return fmt.Errorf("write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("inference failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
