package onnx

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"smartsort_backend/internal/feature/sorting/domain/entity"
	"smartsort_backend/internal/feature/sorting/usecase"
)

// Detector runs a YOLOv8 detection model.
type Detector struct {
	mu         sync.Mutex
	sess       *session
	inputSize  int
	numClasses int
	anchors    int
	conf       float64
	iou        float64
	maxDet     int
	categories entity.Categories
}

var _ usecase.Detector = (*Detector)(nil)

// NewDetector loads the detection model and checks that its class count
// matches categories.
func NewDetector(cfg Config, categories entity.Categories) (*Detector, error) {
	io, err := inspect(cfg.DetectorModelPath)
	if err != nil {
		return nil, err
	}
	if len(io.outputShape) != 3 {
		return nil, fmt.Errorf("detection model output has rank %d, want 3", len(io.outputShape))
	}

	numClasses := int(io.outputShape[1]) - 4
	if err := categories.ValidateCardinality(numClasses); err != nil {
		return nil, err
	}

	size := int64(cfg.DetectorInputSize)
	if len(io.inputShape) == 4 {
		size = staticDim(io.inputShape[2], size)
	}
	// 8400 anchors for a 640 input at strides 8, 16 and 32.
	anchors := staticDim(io.outputShape[2], (size/8)*(size/8)+(size/16)*(size/16)+(size/32)*(size/32))

	sess, err := newSession(cfg.DetectorModelPath, io,
		ort.NewShape(1, 3, size, size),
		ort.NewShape(1, int64(4+numClasses), anchors))
	if err != nil {
		return nil, err
	}

	return &Detector{
		sess:       sess,
		inputSize:  int(size),
		numClasses: numClasses,
		anchors:    int(anchors),
		conf:       cfg.ConfThreshold,
		iou:        cfg.IoUThreshold,
		maxDet:     cfg.MaxDetections,
		categories: categories,
	}, nil
}

// Detect returns detections ordered by descending confidence.
func (d *Detector) Detect(ctx context.Context, imageData []byte) ([]entity.Detection, error) {
	img, err := decode(imageData)
	if err != nil {
		return nil, err
	}
	input := toTensor(img, d.inputSize)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	out, err := d.sess.run(input)
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}

	cands, err := decodeDetections(out, d.numClasses, d.anchors, d.conf)
	if err != nil {
		return nil, err
	}
	return toDetections(nms(cands, d.iou, d.maxDet), d.inputSize, d.categories), nil
}

// Close releases the session.
func (d *Detector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sess.destroy()
	return nil
}
