package di

import (
	"gorm.io/gorm"

	"smartsort_backend/internal/feature/sorting/adapters"
	"smartsort_backend/internal/feature/sorting/adapters/filestore"
	"smartsort_backend/internal/feature/sorting/domain/entity"
	"smartsort_backend/internal/feature/sorting/domain/naming"
	"smartsort_backend/internal/feature/sorting/transport/handler"
	"smartsort_backend/internal/feature/sorting/usecase"
	"smartsort_backend/internal/platform/metrics"
)

// SubmissionDeps are the collaborators of the submission workflows.
type SubmissionDeps struct {
	DB             *gorm.DB
	Store          *filestore.Store
	Detector       usecase.Detector
	Classifier     usecase.Classifier // nil disables POST /classify
	Categories     entity.Categories
	Metrics        *metrics.Metrics
	MaxUploadBytes int
}

// NewSubmissionHandler wires repository, usecase and handler for the sorting feature.
func NewSubmissionHandler(d SubmissionDeps) *handler.SubmissionHandler {
	opts := []usecase.Option{usecase.WithMaxImageSize(d.MaxUploadBytes)}
	if d.Classifier != nil {
		opts = append(opts, usecase.WithClassifier(d.Classifier))
	}
	var observer handler.SubmissionObserver
	if d.Metrics != nil {
		opts = append(opts, usecase.WithRecorder(d.Metrics))
		observer = d.Metrics
	}

	uc := usecase.NewSubmissionUsecase(
		d.Detector,
		d.Store,
		adapters.NewPredictionRepository(d.DB),
		naming.NewGenerator(),
		d.Categories,
		opts...,
	)
	return handler.NewSubmissionHandler(uc, observer)
}
