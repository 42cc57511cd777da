package entity

// Upload is an uploaded image as received by a workflow.
type Upload struct {
	Filename string // Client-supplied name; may be empty
	Data     []byte // Raw image bytes, stored as-is
}

// Submission is the outcome of a submission workflow.
type Submission struct {
	Record     Prediction  // The inserted record
	Detections []Detection // Detections the workflow ran on (nil for manual)
	LabelLines int         // Lines written to the label file
}
