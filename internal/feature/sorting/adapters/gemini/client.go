// Package gemini はGoogle Gemini APIの構造化出力を使用した分類クライアントを提供します。
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"google.golang.org/genai"

	"smartsort_backend/internal/feature/sorting/domain/entity"
	"smartsort_backend/internal/feature/sorting/usecase"
	"smartsort_backend/internal/shared/ratelimiter"
)

const (
	// DefaultModel はGemini APIのデフォルトモデルです。
	DefaultModel = "gemini-2.5-flash"
)

// generator はgenai.Modelsのうち本パッケージが使うメソッドです。
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type classification struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// GeminiClassifier は画像をカテゴリのいずれか1つに分類します。
type GeminiClassifier struct {
	models     generator
	model      string
	categories entity.Categories
	limiter    ratelimiter.Limiter
}

// GeminiClassifierがClassifierを実装していることをコンパイル時に検証します。
var _ usecase.Classifier = (*GeminiClassifier)(nil)

// NewGeminiClassifier はADCを使用してGeminiClassifierの新しいインスタンスを生成します。
// 環境変数 GOOGLE_GENAI_USE_VERTEXAI, GOOGLE_CLOUD_PROJECT, GOOGLE_CLOUD_LOCATION が必要です。
// GEMINI_MODEL でモデルを上書きできます。
func NewGeminiClassifier(ctx context.Context, categories entity.Categories, limiter ratelimiter.Limiter) (*GeminiClassifier, error) {
	client, err := genai.NewClient(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	model := os.Getenv("GEMINI_MODEL")
	if model == "" {
		model = DefaultModel
	}
	return newGeminiClassifier(client.Models, model, categories, limiter), nil
}

func newGeminiClassifier(models generator, model string, categories entity.Categories, limiter ratelimiter.Limiter) *GeminiClassifier {
	return &GeminiClassifier{models: models, model: model, categories: categories, limiter: limiter}
}

// Classify は画像とカテゴリ一覧をGeminiに渡し、列挙型に制約されたJSONで結果を受け取ります。
func (g *GeminiClassifier) Classify(ctx context.Context, imageData []byte) (entity.Classification, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return entity.Classification{}, err
		}
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(g.prompt()),
			genai.NewPartFromBytes(imageData, mimetype.Detect(imageData).String()),
		}, genai.RoleUser),
	}

	resp, err := g.models.GenerateContent(ctx, g.model, contents, g.config())
	if err != nil {
		return entity.Classification{}, fmt.Errorf("gemini API request failed: %w", err)
	}

	var out classification
	if err := json.Unmarshal([]byte(resp.Text()), &out); err != nil {
		return entity.Classification{}, fmt.Errorf("failed to parse gemini response: %w", err)
	}

	id := g.categories.ID(out.Category)
	if id == entity.UnrecognizedClassID {
		return entity.Classification{}, fmt.Errorf("gemini returned unknown category %q", out.Category)
	}
	return entity.Classification{
		ClassID:    id,
		ClassName:  g.categories[id],
		Confidence: min(1, max(0, out.Confidence)),
	}, nil
}

func (g *GeminiClassifier) prompt() string {
	return "Classify the waste item in this photo into exactly one of these categories: " +
		strings.Join(g.categories, ", ") +
		". Return the category and your confidence between 0 and 1."
}

func (g *GeminiClassifier) config() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"category":   {Type: genai.TypeString, Enum: []string(g.categories)},
				"confidence": {Type: genai.TypeNumber},
			},
			Required: []string{"category", "confidence"},
		},
	}
}
