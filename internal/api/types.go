// Package api はHTTPレスポンスのJSON表現を定義します。
package api

// ErrorResponse はエラー時のレスポンスです。
type ErrorResponse struct {
	Error string `json:"error"`
}

// PredictionItem は検出1件分の予測です。
type PredictionItem struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
}

// PredictResponse は POST /predict のレスポンスです。
type PredictResponse struct {
	Predictions []PredictionItem `json:"predictions"`
}

// ClassifyResponse は POST /classify のレスポンスです。
type ClassifyResponse struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
}

// AgreedResponse は POST /submit/agreed のレスポンスです。
type AgreedResponse struct {
	Status     string  `json:"status"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// CorrectionResponse は POST /submit/correction のレスポンスです。
// 訂正ラベルがカテゴリに存在しない場合、LabelWrittenはfalseになりWarningが設定されます。
type CorrectionResponse struct {
	Status       string  `json:"status"`
	Predicted    string  `json:"predicted"`
	Corrected    string  `json:"corrected"`
	Confidence   float64 `json:"confidence"`
	LabelWritten bool    `json:"label_written"`
	Warning      string  `json:"warning,omitempty"`
}

// ManualResponse は POST /submit/manual のレスポンスです。
type ManualResponse struct {
	Status   string `json:"status"`
	Filename string `json:"filename"`
}

// TokenResponse はトークン発行時のレスポンスです。
type TokenResponse struct {
	Token string `json:"token"`
}

const (
	StatusSaved           = "saved"
	StatusCorrectionSaved = "correction_saved"
	StatusManualSaved     = "manual_saved"
)
