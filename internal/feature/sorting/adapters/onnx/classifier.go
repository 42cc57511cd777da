package onnx

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"smartsort_backend/internal/feature/sorting/domain/entity"
	"smartsort_backend/internal/feature/sorting/usecase"
)

// Classifier runs a YOLOv8 classification model and reports the top-1 class.
type Classifier struct {
	mu         sync.Mutex
	sess       *session
	inputSize  int
	categories entity.Categories
}

var _ usecase.Classifier = (*Classifier)(nil)

// NewClassifier loads the classification model and checks that its class
// count matches categories.
func NewClassifier(cfg Config, categories entity.Categories) (*Classifier, error) {
	io, err := inspect(cfg.ClassifierModelPath)
	if err != nil {
		return nil, err
	}
	if len(io.outputShape) != 2 {
		return nil, fmt.Errorf("classification model output has rank %d, want 2", len(io.outputShape))
	}
	if err := categories.ValidateCardinality(int(io.outputShape[1])); err != nil {
		return nil, err
	}

	size := int64(cfg.ClassifierInputSize)
	if len(io.inputShape) == 4 {
		size = staticDim(io.inputShape[2], size)
	}

	sess, err := newSession(cfg.ClassifierModelPath, io,
		ort.NewShape(1, 3, size, size),
		ort.NewShape(1, int64(len(categories))))
	if err != nil {
		return nil, err
	}
	return &Classifier{sess: sess, inputSize: int(size), categories: categories}, nil
}

// Classify returns the most probable category.
func (c *Classifier) Classify(ctx context.Context, imageData []byte) (entity.Classification, error) {
	img, err := decode(imageData)
	if err != nil {
		return entity.Classification{}, err
	}
	input := toTensor(img, c.inputSize)

	if err := ctx.Err(); err != nil {
		return entity.Classification{}, err
	}

	c.mu.Lock()
	out, err := c.sess.run(input)
	c.mu.Unlock()
	if err != nil {
		return entity.Classification{}, err
	}
	return top1(out, c.categories)
}

// Close releases the session.
func (c *Classifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sess.destroy()
	return nil
}
