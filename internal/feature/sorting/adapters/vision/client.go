// Package vision はGoogle Cloud Vision APIの物体検出を使用した検出クライアントを提供します。
package vision

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	gvision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/googleapis/gax-go/v2"

	"smartsort_backend/internal/feature/sorting/domain/entity"
	"smartsort_backend/internal/feature/sorting/usecase"
	"smartsort_backend/internal/shared/ratelimiter"
)

// DefaultLabelMap はVisionの物体名からカテゴリへの対応表のデフォルトです。
const DefaultLabelMap = "banana=organic,apple=organic,orange=organic,food=organic,fruit=organic,vegetable=organic," +
	"bottle=recyclable,tin can=recyclable,can=recyclable,box=recyclable,packaged goods=recyclable," +
	"plastic bag=general,mask=general,shoe=general"

// annotator はImageAnnotatorClientのうち本パッケージが使うメソッドです。
type annotator interface {
	BatchAnnotateImages(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest, opts ...gax.CallOption) (*visionpb.BatchAnnotateImagesResponse, error)
}

// ObjectDetector はVision APIの物体検出結果をカテゴリ付きの検出に変換します。
type ObjectDetector struct {
	client     annotator
	closer     func() error
	labels     map[string]int
	categories entity.Categories
	limiter    ratelimiter.Limiter
}

// ObjectDetectorがDetectorを実装していることをコンパイル時に検証します。
var _ usecase.Detector = (*ObjectDetector)(nil)

// NewObjectDetector はADCを使用してObjectDetectorの新しいインスタンスを生成します。
// 対応表は環境変数 VISION_LABEL_MAP（未設定時は DefaultLabelMap）から読み込みます。
func NewObjectDetector(ctx context.Context, categories entity.Categories, limiter ratelimiter.Limiter) (*ObjectDetector, error) {
	mapping := os.Getenv("VISION_LABEL_MAP")
	if mapping == "" {
		mapping = DefaultLabelMap
	}
	labels, err := ParseLabelMap(mapping, categories)
	if err != nil {
		return nil, err
	}

	client, err := gvision.NewImageAnnotatorClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision client: %w", err)
	}
	d := newObjectDetector(client, labels, categories, limiter)
	d.closer = client.Close
	return d, nil
}

func newObjectDetector(client annotator, labels map[string]int, categories entity.Categories, limiter ratelimiter.Limiter) *ObjectDetector {
	return &ObjectDetector{
		client:     client,
		closer:     func() error { return nil },
		labels:     labels,
		categories: categories,
		limiter:    limiter,
	}
}

// Close はVision APIクライアントを解放します。
func (v *ObjectDetector) Close() error {
	return v.closer()
}

// Detect は画像から物体を検出し、対応表にある物体のみを信頼度の降順で返します。
func (v *ObjectDetector) Detect(ctx context.Context, imageData []byte) ([]entity.Detection, error) {
	if v.limiter != nil {
		if err := v.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: imageData},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_OBJECT_LOCALIZATION},
				},
			},
		},
	}

	resp, err := v.client.BatchAnnotateImages(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("vision API request failed: %w", err)
	}

	if len(resp.Responses) == 0 {
		return nil, nil
	}

	if resp.Responses[0].Error != nil {
		return nil, fmt.Errorf("vision API error: %s", resp.Responses[0].Error.Message)
	}

	ds := make([]entity.Detection, 0, len(resp.Responses[0].LocalizedObjectAnnotations))
	for _, obj := range resp.Responses[0].LocalizedObjectAnnotations {
		id, ok := v.labels[strings.ToLower(strings.TrimSpace(obj.Name))]
		if !ok {
			continue
		}
		name, _ := v.categories.Name(id)
		ds = append(ds, entity.Detection{
			ClassID:    id,
			ClassName:  name,
			Confidence: float64(obj.Score),
			Box:        geometry(obj.BoundingPoly),
		})
	}
	sort.SliceStable(ds, func(i, j int) bool { return ds[i].Confidence > ds[j].Confidence })
	return ds, nil
}

// geometry は正規化済み頂点の外接矩形を中心形式に変換します。
func geometry(poly *visionpb.BoundingPoly) entity.Geometry {
	if poly == nil || len(poly.NormalizedVertices) == 0 {
		return entity.FallbackGeometry
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range poly.NormalizedVertices {
		x, y := clamp01(float64(p.X)), clamp01(float64(p.Y))
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	return entity.Geometry{
		CenterX: (minX + maxX) / 2,
		CenterY: (minY + maxY) / 2,
		Width:   maxX - minX,
		Height:  maxY - minY,
	}
}

// ParseLabelMap は "物体名=カテゴリ,..." 形式の対応表を解析します。
// 物体名は大文字小文字を区別しません。
func ParseLabelMap(mapping string, categories entity.Categories) (map[string]int, error) {
	labels := make(map[string]int)
	for _, pair := range strings.Split(mapping, ",") {
		if strings.TrimSpace(pair) == "" {
			continue
		}
		object, category, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid label mapping %q", pair)
		}
		object = strings.ToLower(strings.TrimSpace(object))
		id := categories.ID(category)
		if object == "" || id == entity.UnrecognizedClassID {
			return nil, fmt.Errorf("invalid label mapping %q", pair)
		}
		labels[object] = id
	}
	return labels, nil
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
