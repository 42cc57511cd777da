package entity

// Geometry is a bounding box in YOLO center format. All values are
// normalized to [0, 1] relative to the source image.
type Geometry struct {
	CenterX float64
	CenterY float64
	Width   float64
	Height  float64
}

// FallbackGeometry is written for a correction when the model found nothing.
var FallbackGeometry = Geometry{CenterX: 0.5, CenterY: 0.5, Width: 0.2, Height: 0.2}

// Detection is one box produced by the detector for an image.
type Detection struct {
	ClassID    int      // Index into Categories
	ClassName  string   // Category name for ClassID
	Confidence float64  // Score in [0, 1]
	Box        Geometry // Normalized box
}

// Classification is the top-1 result of classification mode.
type Classification struct {
	ClassID    int
	ClassName  string
	Confidence float64
}

// Primary returns the first detection, which detectors order by descending
// confidence. ok is false when there are no detections.
func Primary(ds []Detection) (d Detection, ok bool) {
	if len(ds) == 0 {
		return Detection{}, false
	}
	return ds[0], true
}
