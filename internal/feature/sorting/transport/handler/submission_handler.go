// Package handler はsortingフィーチャーのHTTPハンドラーを提供します。
package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"smartsort_backend/internal/api"
	"smartsort_backend/internal/feature/sorting/domain/entity"
	"smartsort_backend/internal/feature/sorting/domain/labelfile"
	"smartsort_backend/internal/feature/sorting/usecase"
	jwtmw "smartsort_backend/internal/platform/jwt"
)

const (
	// FieldFile はアップロード画像のフォームフィールド名です。
	FieldFile = "file"
	// FieldCorrectedClass は訂正ラベルのフォームフィールド名です。
	FieldCorrectedClass = "corrected_class"

	unrecognizedLabelWarning = "corrected class is not a known category; label file was left empty"
)

// SubmissionUsecase は推論と投稿ワークフローのユースケースインターフェースを定義します。
// Goの慣例に従い、インターフェースは利用者（handler）側で定義します。
type SubmissionUsecase interface {
	Predict(ctx context.Context, imageData []byte) ([]entity.Detection, error)
	Classify(ctx context.Context, imageData []byte) (entity.Classification, error)
	SubmitAgreed(ctx context.Context, up entity.Upload) (*entity.Submission, error)
	SubmitCorrection(ctx context.Context, up entity.Upload, correctedClass string) (*entity.Submission, error)
	SubmitManual(ctx context.Context, up entity.Upload) (*entity.Submission, error)
}

// SubmissionObserver は投稿の種類と結果を記録します。
type SubmissionObserver interface {
	ObserveSubmission(kind, outcome string)
}

type nopObserver struct{}

func (nopObserver) ObserveSubmission(string, string) {}

// SubmissionHandler は推論・投稿のHTTPリクエストを処理します。
type SubmissionHandler struct {
	uc       SubmissionUsecase
	observer SubmissionObserver
}

// NewSubmissionHandler はSubmissionHandlerの新しいインスタンスを生成します。
// observerがnilの場合は記録しません。
func NewSubmissionHandler(uc SubmissionUsecase, observer SubmissionObserver) *SubmissionHandler {
	if observer == nil {
		observer = nopObserver{}
	}
	return &SubmissionHandler{uc: uc, observer: observer}
}

// Predict は画像の検出結果を返します。ファイルやDBには書き込みません。
//
// エンドポイント: POST /predict
// Content-Type: multipart/form-data
// フィールド: file（画像ファイル）
func (h *SubmissionHandler) Predict(c *gin.Context) {
	up, ok := readUpload(c)
	if !ok {
		return
	}

	ds, err := h.uc.Predict(c.Request.Context(), up.Data)
	if err != nil {
		writeError(c, "予測に失敗", err)
		return
	}

	out := api.PredictResponse{Predictions: make([]api.PredictionItem, 0, len(ds))}
	for _, d := range ds {
		out.Predictions = append(out.Predictions, api.PredictionItem{
			Class:      d.ClassName,
			Confidence: labelfile.RoundTo(d.Confidence, 3),
		})
	}
	c.JSON(http.StatusOK, out)
}

// Classify は分類モードでtop-1のカテゴリを返します。
//
// エンドポイント: POST /classify
func (h *SubmissionHandler) Classify(c *gin.Context) {
	up, ok := readUpload(c)
	if !ok {
		return
	}

	res, err := h.uc.Classify(c.Request.Context(), up.Data)
	if err != nil {
		writeError(c, "分類に失敗", err)
		return
	}
	c.JSON(http.StatusOK, api.ClassifyResponse{
		Class:      res.ClassName,
		Confidence: labelfile.RoundTo(res.Confidence, 4),
	})
}

// SubmitAgreed は予測に同意した画像と検出ラベルを保存します。
//
// エンドポイント: POST /submit/agreed
func (h *SubmissionHandler) SubmitAgreed(c *gin.Context) {
	up, ok := readUpload(c)
	if !ok {
		return
	}

	sub, err := h.uc.SubmitAgreed(c.Request.Context(), up)
	if err != nil {
		h.observer.ObserveSubmission("agreed", outcome(err))
		writeError(c, "同意投稿の保存に失敗", err)
		return
	}
	h.observer.ObserveSubmission("agreed", api.StatusSaved)
	logSubmission(c, "agreed", sub)

	c.JSON(http.StatusOK, api.AgreedResponse{
		Status:     api.StatusSaved,
		Label:      sub.Record.PredictedClass,
		Confidence: sub.Record.Confidence,
	})
}

// SubmitCorrection は訂正された画像とラベルを保存します。
//
// エンドポイント: POST /submit/correction
// フィールド: file（画像ファイル）, corrected_class（訂正後のカテゴリ名）
func (h *SubmissionHandler) SubmitCorrection(c *gin.Context) {
	up, ok := readUpload(c)
	if !ok {
		return
	}

	sub, err := h.uc.SubmitCorrection(c.Request.Context(), up, c.PostForm(FieldCorrectedClass))
	if err != nil {
		h.observer.ObserveSubmission("correction", outcome(err))
		writeError(c, "訂正投稿の保存に失敗", err)
		return
	}
	h.observer.ObserveSubmission("correction", api.StatusCorrectionSaved)
	logSubmission(c, "correction", sub)

	resp := api.CorrectionResponse{
		Status:       api.StatusCorrectionSaved,
		Predicted:    sub.Record.PredictedClass,
		Confidence:   sub.Record.Confidence,
		LabelWritten: sub.LabelLines > 0,
	}
	if sub.Record.CorrectedClass != nil {
		resp.Corrected = *sub.Record.CorrectedClass
	}
	if !resp.LabelWritten {
		resp.Warning = unrecognizedLabelWarning
	}
	c.JSON(http.StatusOK, resp)
}

// SubmitManual は手動ラベリング用に画像のみを保存します。
//
// エンドポイント: POST /submit/manual
func (h *SubmissionHandler) SubmitManual(c *gin.Context) {
	up, ok := readUpload(c)
	if !ok {
		return
	}

	sub, err := h.uc.SubmitManual(c.Request.Context(), up)
	if err != nil {
		h.observer.ObserveSubmission("manual", outcome(err))
		writeError(c, "手動ラベリング投稿の保存に失敗", err)
		return
	}
	h.observer.ObserveSubmission("manual", api.StatusManualSaved)
	logSubmission(c, "manual", sub)

	c.JSON(http.StatusOK, api.ManualResponse{
		Status:   api.StatusManualSaved,
		Filename: sub.Record.PictureFilename,
	})
}

// readUpload はフォームから画像を読み込みます。失敗時はレスポンスを書き込みfalseを返します。
func readUpload(c *gin.Context) (entity.Upload, bool) {
	file, err := c.FormFile(FieldFile)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			slog.Warn("アップロードがサイズ上限を超過", "limit", tooLarge.Limit, "remote_addr", c.ClientIP())
			c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: usecase.ErrImageTooLarge.Error()})
			return entity.Upload{}, false
		}
		slog.Warn("画像ファイルの取得に失敗", "error", err, "remote_addr", c.ClientIP())
		c.JSON(http.StatusBadRequest, api.ErrorResponse{Error: "image file is required"})
		return entity.Upload{}, false
	}

	f, err := file.Open()
	if err != nil {
		slog.Error("画像ファイルのオープンに失敗", "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to read image"})
		return entity.Upload{}, false
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("画像ファイルのクローズに失敗", "error", err)
		}
	}()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("画像データの読み取りに失敗", "error", err)
		c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: "failed to read image"})
		return entity.Upload{}, false
	}
	return entity.Upload{Filename: file.Filename, Data: data}, true
}

// writeError はエラー種別をHTTPステータスに対応付けてレスポンスします。
func writeError(c *gin.Context, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error(msg, "error", err, "path", c.FullPath())
	} else {
		slog.Warn(msg, "error", err, "path", c.FullPath(), "remote_addr", c.ClientIP())
	}
	c.JSON(status, api.ErrorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case usecase.IsClientError(err):
		return http.StatusBadRequest
	case errors.Is(err, usecase.ErrClassifierUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, usecase.ErrInference):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func outcome(err error) string {
	switch {
	case usecase.IsClientError(err):
		return "rejected"
	case errors.Is(err, usecase.ErrInference):
		return "inference_error"
	case errors.Is(err, usecase.ErrStorage):
		return "storage_error"
	case errors.Is(err, usecase.ErrPersistence):
		return "persistence_error"
	default:
		return "error"
	}
}

func logSubmission(c *gin.Context, kind string, sub *entity.Submission) {
	attrs := []any{
		"kind", kind,
		"id", sub.Record.ID,
		"picture", sub.Record.PictureFilename,
		"predicted", sub.Record.PredictedClass,
		"confidence", sub.Record.Confidence,
		"label_lines", sub.LabelLines,
	}
	if id := jwtmw.LabelerID(c); id != "" {
		attrs = append(attrs, "labeler", id)
	}
	slog.Info("submission saved", attrs...)
}
