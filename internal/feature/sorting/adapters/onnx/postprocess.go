package onnx

import (
	"fmt"
	"math"
	"sort"

	"smartsort_backend/internal/feature/sorting/domain/entity"
)

// candidate is a decoded box in input-pixel space.
type candidate struct {
	classID int
	score   float32
	cx      float32
	cy      float32
	w       float32
	h       float32
}

// decodeDetections parses a YOLOv8 detection head of shape
// [1, 4+numClasses, anchors] into candidates above confThreshold.
func decodeDetections(out []float32, numClasses, anchors int, confThreshold float64) ([]candidate, error) {
	if want := (4 + numClasses) * anchors; len(out) != want {
		return nil, fmt.Errorf("unexpected output length %d, want %d", len(out), want)
	}

	var cands []candidate
	for a := 0; a < anchors; a++ {
		best, bestScore := -1, float32(0)
		for c := 0; c < numClasses; c++ {
			if s := out[(4+c)*anchors+a]; s > bestScore {
				best, bestScore = c, s
			}
		}
		if best < 0 || float64(bestScore) < confThreshold {
			continue
		}
		cands = append(cands, candidate{
			classID: best,
			score:   bestScore,
			cx:      out[a],
			cy:      out[anchors+a],
			w:       out[2*anchors+a],
			h:       out[3*anchors+a],
		})
	}
	return cands, nil
}

// nms applies class-wise non-maximum suppression and returns at most
// maxDet candidates ordered by descending score.
func nms(cands []candidate, iouThreshold float64, maxDet int) []candidate {
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].score > cands[j].score })

	kept := make([]candidate, 0, len(cands))
	for _, c := range cands {
		if maxDet > 0 && len(kept) >= maxDet {
			break
		}
		suppressed := false
		for _, k := range kept {
			if k.classID == c.classID && iou(k, c) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, c)
		}
	}
	return kept
}

func iou(a, b candidate) float64 {
	ax1, ay1, ax2, ay2 := a.cx-a.w/2, a.cy-a.h/2, a.cx+a.w/2, a.cy+a.h/2
	bx1, by1, bx2, by2 := b.cx-b.w/2, b.cy-b.h/2, b.cx+b.w/2, b.cy+b.h/2

	iw := math.Max(0, float64(min(ax2, bx2)-max(ax1, bx1)))
	ih := math.Max(0, float64(min(ay2, by2)-max(ay1, by1)))
	inter := iw * ih
	union := float64(a.w*a.h) + float64(b.w*b.h) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// toDetections normalizes candidate boxes by the model input size.
func toDetections(cands []candidate, inputSize int, categories entity.Categories) []entity.Detection {
	s := float64(inputSize)
	out := make([]entity.Detection, 0, len(cands))
	for _, c := range cands {
		name, _ := categories.Name(c.classID)
		out = append(out, entity.Detection{
			ClassID:    c.classID,
			ClassName:  name,
			Confidence: float64(c.score),
			Box: entity.Geometry{
				CenterX: clamp01(float64(c.cx) / s),
				CenterY: clamp01(float64(c.cy) / s),
				Width:   clamp01(float64(c.w) / s),
				Height:  clamp01(float64(c.h) / s),
			},
		})
	}
	return out
}

// top1 returns the most probable class. Raw logits are turned into
// probabilities with a softmax first.
func top1(out []float32, categories entity.Categories) (entity.Classification, error) {
	if len(out) != len(categories) {
		return entity.Classification{}, fmt.Errorf("unexpected output length %d, want %d", len(out), len(categories))
	}
	probs := probabilities(out)

	best := 0
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
	}
	name, _ := categories.Name(best)
	return entity.Classification{ClassID: best, ClassName: name, Confidence: probs[best]}, nil
}

func probabilities(out []float32) []float64 {
	probs := make([]float64, len(out))
	sum := 0.0
	isDist := true
	for i, v := range out {
		probs[i] = float64(v)
		sum += probs[i]
		if v < 0 || v > 1 {
			isDist = false
		}
	}
	if isDist && math.Abs(sum-1) < 1e-3 {
		return probs
	}

	maxV := probs[0]
	for _, p := range probs[1:] {
		maxV = math.Max(maxV, p)
	}
	sum = 0
	for i, p := range probs {
		probs[i] = math.Exp(p - maxV)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
