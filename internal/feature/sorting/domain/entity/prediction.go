package entity

import "time"

// Prediction is the persisted record for one submission.
type Prediction struct {
	ID              uint      // Assigned by the store
	PictureFilename string    // Stored picture name
	LabelFilename   *string   // Label file name; nil for manual submissions
	PredictedClass  string    // Model's class, or "unknown"
	Confidence      float64   // Confidence in [0, 1]
	Timestamp       time.Time // Assigned at insert
	Correction      bool      // True when the user overrode the prediction
	CorrectedClass  *string   // Normalized user label for corrections
}
