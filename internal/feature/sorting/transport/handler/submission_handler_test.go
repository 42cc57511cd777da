package handler_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartsort_backend/internal/feature/sorting/domain/entity"
	"smartsort_backend/internal/feature/sorting/transport/handler"
	"smartsort_backend/internal/feature/sorting/usecase"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// mockSubmissionUsecase はSubmissionUsecaseインターフェースのモック実装です。
type mockSubmissionUsecase struct {
	PredictFunc          func(ctx context.Context, imageData []byte) ([]entity.Detection, error)
	ClassifyFunc         func(ctx context.Context, imageData []byte) (entity.Classification, error)
	SubmitAgreedFunc     func(ctx context.Context, up entity.Upload) (*entity.Submission, error)
	SubmitCorrectionFunc func(ctx context.Context, up entity.Upload, correctedClass string) (*entity.Submission, error)
	SubmitManualFunc     func(ctx context.Context, up entity.Upload) (*entity.Submission, error)
}

func (m *mockSubmissionUsecase) Predict(ctx context.Context, imageData []byte) ([]entity.Detection, error) {
	return m.PredictFunc(ctx, imageData)
}

func (m *mockSubmissionUsecase) Classify(ctx context.Context, imageData []byte) (entity.Classification, error) {
	return m.ClassifyFunc(ctx, imageData)
}

func (m *mockSubmissionUsecase) SubmitAgreed(ctx context.Context, up entity.Upload) (*entity.Submission, error) {
	return m.SubmitAgreedFunc(ctx, up)
}

func (m *mockSubmissionUsecase) SubmitCorrection(ctx context.Context, up entity.Upload, correctedClass string) (*entity.Submission, error) {
	return m.SubmitCorrectionFunc(ctx, up, correctedClass)
}

func (m *mockSubmissionUsecase) SubmitManual(ctx context.Context, up entity.Upload) (*entity.Submission, error) {
	return m.SubmitManualFunc(ctx, up)
}

type recordingObserver struct {
	kinds    []string
	outcomes []string
}

func (r *recordingObserver) ObserveSubmission(kind, outcome string) {
	r.kinds = append(r.kinds, kind)
	r.outcomes = append(r.outcomes, outcome)
}

// createMultipartRequest はテスト用のマルチパートリクエストを生成するヘルパー関数です。
func createMultipartRequest(t *testing.T, path string, content []byte, fields map[string]string) *http.Request {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	if content != nil {
		part, err := writer.CreateFormFile(handler.FieldFile, "bottle.png")
		require.NoError(t, err)
		_, err = io.Copy(part, bytes.NewReader(content))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func newRouter(uc handler.SubmissionUsecase, obs handler.SubmissionObserver) *gin.Engine {
	h := handler.NewSubmissionHandler(uc, obs)
	r := gin.New()
	r.POST("/predict", h.Predict)
	r.POST("/classify", h.Classify)
	r.POST("/submit/agreed", h.SubmitAgreed)
	r.POST("/submit/correction", h.SubmitCorrection)
	r.POST("/submit/manual", h.SubmitManual)
	return r
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func strPtr(s string) *string { return &s }

func TestSubmissionHandler_Predict(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		content        []byte
		mockFunc       func(ctx context.Context, imageData []byte) ([]entity.Detection, error)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:    "success: confidences rounded to 3 decimals",
			content: []byte("img"),
			mockFunc: func(ctx context.Context, imageData []byte) ([]entity.Detection, error) {
				return []entity.Detection{
					{ClassName: "recyclable", Confidence: 0.91234},
					{ClassName: "organic", Confidence: 0.5},
				}, nil
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"predictions":[{"class":"recyclable","confidence":0.912},{"class":"organic","confidence":0.5}]}`,
		},
		{
			name:    "success: nothing detected",
			content: []byte("img"),
			mockFunc: func(ctx context.Context, imageData []byte) ([]entity.Detection, error) {
				return nil, nil
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"predictions":[]}`,
		},
		{
			name:           "error: no file field",
			content:        nil,
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":"image file is required"}`,
		},
		{
			name:    "error: decode failure is a client error",
			content: []byte("not-an-image"),
			mockFunc: func(ctx context.Context, imageData []byte) ([]entity.Detection, error) {
				return nil, fmt.Errorf("%w: %w", usecase.ErrDecode, io.ErrUnexpectedEOF)
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":"image could not be decoded: unexpected EOF"}`,
		},
		{
			name:    "error: inference failure",
			content: []byte("img"),
			mockFunc: func(ctx context.Context, imageData []byte) ([]entity.Detection, error) {
				return nil, fmt.Errorf("%w: %w", usecase.ErrInference, assert.AnError)
			},
			expectedStatus: http.StatusBadGateway,
		},
		{
			name:    "error: inference timed out",
			content: []byte("img"),
			mockFunc: func(ctx context.Context, imageData []byte) ([]entity.Detection, error) {
				return nil, fmt.Errorf("%w: %w", usecase.ErrInference, context.DeadlineExceeded)
			},
			expectedStatus: http.StatusGatewayTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := newRouter(&mockSubmissionUsecase{PredictFunc: tt.mockFunc}, nil)

			w := serve(r, createMultipartRequest(t, "/predict", tt.content, nil))

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedBody != "" {
				assert.JSONEq(t, tt.expectedBody, w.Body.String())
			}
		})
	}
}

func TestSubmissionHandler_Classify(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		r := newRouter(&mockSubmissionUsecase{
			ClassifyFunc: func(ctx context.Context, imageData []byte) (entity.Classification, error) {
				return entity.Classification{ClassID: 0, ClassName: "organic", Confidence: 0.876543}, nil
			},
		}, nil)

		w := serve(r, createMultipartRequest(t, "/classify", []byte("img"), nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"class":"organic","confidence":0.8765}`, w.Body.String())
	})

	t.Run("not configured", func(t *testing.T) {
		t.Parallel()
		r := newRouter(&mockSubmissionUsecase{
			ClassifyFunc: func(ctx context.Context, imageData []byte) (entity.Classification, error) {
				return entity.Classification{}, usecase.ErrClassifierUnavailable
			},
		}, nil)

		w := serve(r, createMultipartRequest(t, "/classify", []byte("img"), nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestSubmissionHandler_SubmitAgreed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		mockFunc        func(ctx context.Context, up entity.Upload) (*entity.Submission, error)
		expectedStatus  int
		expectedBody    string
		expectedOutcome string
	}{
		{
			name: "success",
			mockFunc: func(ctx context.Context, up entity.Upload) (*entity.Submission, error) {
				if up.Filename != "bottle.png" || string(up.Data) != "img" {
					return nil, fmt.Errorf("unexpected upload %q", up.Filename)
				}
				return &entity.Submission{
					Record:     entity.Prediction{ID: 1, PictureFilename: "p.png", LabelFilename: strPtr("p.txt"), PredictedClass: "recyclable", Confidence: 0.9},
					LabelLines: 1,
				}, nil
			},
			expectedStatus:  http.StatusOK,
			expectedBody:    `{"status":"saved","label":"recyclable","confidence":0.9}`,
			expectedOutcome: "saved",
		},
		{
			name: "success: no detections",
			mockFunc: func(ctx context.Context, up entity.Upload) (*entity.Submission, error) {
				return &entity.Submission{Record: entity.Prediction{PredictedClass: entity.UnknownClass}}, nil
			},
			expectedStatus:  http.StatusOK,
			expectedBody:    `{"status":"saved","label":"unknown","confidence":0}`,
			expectedOutcome: "saved",
		},
		{
			name: "error: storage",
			mockFunc: func(ctx context.Context, up entity.Upload) (*entity.Submission, error) {
				return nil, fmt.Errorf("%w: %w", usecase.ErrStorage, os.ErrPermission)
			},
			expectedStatus:  http.StatusInternalServerError,
			expectedOutcome: "storage_error",
		},
		{
			name: "error: persistence",
			mockFunc: func(ctx context.Context, up entity.Upload) (*entity.Submission, error) {
				return nil, fmt.Errorf("%w: %w", usecase.ErrPersistence, assert.AnError)
			},
			expectedStatus:  http.StatusInternalServerError,
			expectedOutcome: "persistence_error",
		},
		{
			name: "error: empty image",
			mockFunc: func(ctx context.Context, up entity.Upload) (*entity.Submission, error) {
				return nil, usecase.ErrEmptyImage
			},
			expectedStatus:  http.StatusBadRequest,
			expectedBody:    `{"error":"image data is empty"}`,
			expectedOutcome: "rejected",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			obs := &recordingObserver{}
			r := newRouter(&mockSubmissionUsecase{SubmitAgreedFunc: tt.mockFunc}, obs)

			w := serve(r, createMultipartRequest(t, "/submit/agreed", []byte("img"), nil))

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedBody != "" {
				assert.JSONEq(t, tt.expectedBody, w.Body.String())
			}
			assert.Equal(t, []string{"agreed"}, obs.kinds)
			assert.Equal(t, []string{tt.expectedOutcome}, obs.outcomes)
		})
	}
}

func TestSubmissionHandler_SubmitCorrection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		fields         map[string]string
		mockFunc       func(ctx context.Context, up entity.Upload, correctedClass string) (*entity.Submission, error)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:   "success",
			fields: map[string]string{handler.FieldCorrectedClass: " Organic "},
			mockFunc: func(ctx context.Context, up entity.Upload, correctedClass string) (*entity.Submission, error) {
				if correctedClass != " Organic " {
					return nil, fmt.Errorf("unexpected class %q", correctedClass)
				}
				return &entity.Submission{
					Record: entity.Prediction{
						PredictedClass: "recyclable",
						Confidence:     0.7,
						Correction:     true,
						CorrectedClass: strPtr("organic"),
					},
					LabelLines: 1,
				}, nil
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":"correction_saved","predicted":"recyclable","corrected":"organic","confidence":0.7,"label_written":true}`,
		},
		{
			name:   "success: unrecognized label surfaces a warning",
			fields: map[string]string{handler.FieldCorrectedClass: "metal"},
			mockFunc: func(ctx context.Context, up entity.Upload, correctedClass string) (*entity.Submission, error) {
				return &entity.Submission{
					Record: entity.Prediction{
						PredictedClass: entity.UnknownClass,
						Confidence:     1.0,
						Correction:     true,
						CorrectedClass: strPtr("metal"),
					},
				}, nil
			},
			expectedStatus: http.StatusOK,
			expectedBody: `{"status":"correction_saved","predicted":"unknown","corrected":"metal","confidence":1,` +
				`"label_written":false,"warning":"corrected class is not a known category; label file was left empty"}`,
		},
		{
			name: "error: missing corrected class",
			mockFunc: func(ctx context.Context, up entity.Upload, correctedClass string) (*entity.Submission, error) {
				return nil, usecase.ErrCorrectedClassRequired
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":"corrected class is required"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := newRouter(&mockSubmissionUsecase{SubmitCorrectionFunc: tt.mockFunc}, nil)

			w := serve(r, createMultipartRequest(t, "/submit/correction", []byte("img"), tt.fields))

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.JSONEq(t, tt.expectedBody, w.Body.String())
		})
	}
}

func TestSubmissionHandler_SubmitManual(t *testing.T) {
	t.Parallel()

	obs := &recordingObserver{}
	r := newRouter(&mockSubmissionUsecase{
		SubmitManualFunc: func(ctx context.Context, up entity.Upload) (*entity.Submission, error) {
			return &entity.Submission{Record: entity.Prediction{
				PictureFilename: "20250101000000_abc_bottle.png",
				PredictedClass:  entity.UnknownClass,
			}}, nil
		},
	}, obs)

	w := serve(r, createMultipartRequest(t, "/submit/manual", []byte("img"), nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"manual_saved","filename":"20250101000000_abc_bottle.png"}`, w.Body.String())
	assert.Equal(t, []string{"manual_saved"}, obs.outcomes)
}

func TestSubmissionHandler_MissingFile(t *testing.T) {
	t.Parallel()

	r := newRouter(&mockSubmissionUsecase{}, nil)
	for _, path := range []string{"/submit/agreed", "/submit/correction", "/submit/manual", "/classify"} {
		w := serve(r, createMultipartRequest(t, path, nil, map[string]string{"other": "x"}))
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		assert.JSONEq(t, `{"error":"image file is required"}`, w.Body.String(), path)
	}
}
