// Package usecase はsortingフィーチャーのビジネスロジック（推論・ファイル保存・記録）を実装します。
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"smartsort_backend/internal/feature/sorting/domain/entity"
	"smartsort_backend/internal/feature/sorting/domain/labelfile"
)

const (
	// ModeDetection は検出モードのメトリクスラベルです。
	ModeDetection = "detection"
	// ModeClassification は分類モードのメトリクスラベルです。
	ModeClassification = "classification"
)

// Detector は画像から検出結果を返す推論インターフェースです。
// 結果は信頼度の降順で返すことを前提とします。
// Goの慣例に従い、インターフェースは利用者（usecase）側で定義します。
type Detector interface {
	Detect(ctx context.Context, imageData []byte) ([]entity.Detection, error)
}

// Classifier は画像からtop-1の分類結果を返す推論インターフェースです。
type Classifier interface {
	Classify(ctx context.Context, imageData []byte) (entity.Classification, error)
}

// PredictionRepository は予測レコードの書き込みレイヤーを抽象化します。
type PredictionRepository interface {
	// Create はレコードを1件追加し、IDとTimestampを設定します。
	Create(ctx context.Context, p *entity.Prediction) error
}

// ArtifactStore は画像・ラベルファイルを保存領域に書き込みます。
type ArtifactStore interface {
	SavePicture(ctx context.Context, area entity.Area, name string, data []byte) (string, error)
	SaveLabel(ctx context.Context, area entity.Area, name string, data []byte) (string, error)
	// Remove は指定パスのファイルを削除します（存在しない場合は無視）。
	Remove(ctx context.Context, paths ...string) error
}

// NameGenerator は画像とラベルのファイル名ペアを生成します。
type NameGenerator interface {
	Generate(originalName string) entity.ArtifactNames
}

// Recorder は推論時間と後始末の結果を記録します。
type Recorder interface {
	ObserveInference(mode string, d time.Duration, err error)
	ObserveCleanup(err error)
}

type nopRecorder struct{}

func (nopRecorder) ObserveInference(string, time.Duration, error) {}
func (nopRecorder) ObserveCleanup(error)                          {}

// Option はsubmissionUsecaseの任意設定です。
type Option func(*submissionUsecase)

// WithClassifier は分類モードの推論器を設定します。
func WithClassifier(c Classifier) Option {
	return func(u *submissionUsecase) { u.classifier = c }
}

// WithRecorder はメトリクス記録先を設定します。
func WithRecorder(r Recorder) Option {
	return func(u *submissionUsecase) {
		if r != nil {
			u.recorder = r
		}
	}
}

// WithMaxImageSize はアップロード上限を設定します。0以下は無視します。
func WithMaxImageSize(n int) Option {
	return func(u *submissionUsecase) {
		if n > 0 {
			u.maxImageSize = n
		}
	}
}

// submissionUsecase は4つの投稿ワークフローと分類処理を提供します。
// 推論器は起動時に一度だけ注入され、読み取り専用として共有されます。
type submissionUsecase struct {
	detector     Detector
	classifier   Classifier
	store        ArtifactStore
	repo         PredictionRepository
	names        NameGenerator
	categories   entity.Categories
	recorder     Recorder
	maxImageSize int
}

// NewSubmissionUsecase はsubmissionUsecaseの新しいインスタンスを生成します。
func NewSubmissionUsecase(
	detector Detector,
	store ArtifactStore,
	repo PredictionRepository,
	names NameGenerator,
	categories entity.Categories,
	opts ...Option,
) *submissionUsecase {
	u := &submissionUsecase{
		detector:     detector,
		store:        store,
		repo:         repo,
		names:        names,
		categories:   categories,
		recorder:     nopRecorder{},
		maxImageSize: MaxImageSize,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Predict は推論のみを行い、ファイルやDBには書き込みません。
func (u *submissionUsecase) Predict(ctx context.Context, imageData []byte) ([]entity.Detection, error) {
	if err := validateImage(imageData, u.maxImageSize); err != nil {
		return nil, err
	}
	return u.detect(ctx, imageData)
}

// Classify は分類モードでtop-1のカテゴリを返します。
func (u *submissionUsecase) Classify(ctx context.Context, imageData []byte) (entity.Classification, error) {
	if u.classifier == nil {
		return entity.Classification{}, ErrClassifierUnavailable
	}
	if err := validateImage(imageData, u.maxImageSize); err != nil {
		return entity.Classification{}, err
	}

	start := time.Now()
	c, err := u.classifier.Classify(ctx, imageData)
	u.recorder.ObserveInference(ModeClassification, time.Since(start), err)
	if err != nil {
		return entity.Classification{}, fmt.Errorf("%w: %w", ErrInference, err)
	}
	return c, nil
}

// SubmitAgreed はユーザーが予測に同意した画像を保存します。
// 検出が0件でも空のラベルファイルを作成し、先頭の検出をDBに記録します。
func (u *submissionUsecase) SubmitAgreed(ctx context.Context, up entity.Upload) (*entity.Submission, error) {
	if err := validateImage(up.Data, u.maxImageSize); err != nil {
		return nil, err
	}
	ds, err := u.detect(ctx, up.Data)
	if err != nil {
		return nil, err
	}

	names := u.names.Generate(up.Filename)
	written, err := u.stage(ctx, entity.AreaAgreed, names, up.Data, labelfile.Encode(ds))
	if err != nil {
		return nil, err
	}

	label, conf := entity.UnknownClass, 0.0
	if d, ok := entity.Primary(ds); ok {
		label, conf = d.ClassName, d.Confidence
	}

	rec := entity.Prediction{
		PictureFilename: names.Picture,
		LabelFilename:   &names.Label,
		PredictedClass:  label,
		Confidence:      conf,
		Correction:      false,
	}
	if err := u.persist(ctx, &rec, written); err != nil {
		return nil, err
	}
	return &entity.Submission{Record: rec, Detections: ds, LabelLines: len(ds)}, nil
}

// SubmitCorrection はユーザーが予測を訂正した画像を保存します。
// 検出があればその矩形を再利用し、なければ中央のフォールバック矩形を使います。
// 認識できないラベルの場合、ラベルファイルは空のまま保存されます。
func (u *submissionUsecase) SubmitCorrection(ctx context.Context, up entity.Upload, correctedClass string) (*entity.Submission, error) {
	corrected := entity.NormalizeClass(correctedClass)
	if corrected == "" {
		return nil, ErrCorrectedClassRequired
	}
	if err := validateImage(up.Data, u.maxImageSize); err != nil {
		return nil, err
	}
	ds, err := u.detect(ctx, up.Data)
	if err != nil {
		return nil, err
	}

	predicted, conf, box := entity.UnknownClass, 1.0, entity.FallbackGeometry
	if d, ok := entity.Primary(ds); ok {
		predicted, conf, box = d.ClassName, d.Confidence, d.Box
	}

	classID := u.categories.ID(corrected)
	content := labelfile.EncodeCorrection(classID, box, conf)
	lines := 0
	if classID != entity.UnrecognizedClassID {
		lines = 1
	} else {
		slog.Warn("unrecognized corrected class; label file left empty",
			"corrected_class", corrected)
	}

	names := u.names.Generate(up.Filename)
	written, err := u.stage(ctx, entity.AreaCorrections, names, up.Data, content)
	if err != nil {
		return nil, err
	}

	rec := entity.Prediction{
		PictureFilename: names.Picture,
		LabelFilename:   &names.Label,
		PredictedClass:  predicted,
		Confidence:      conf,
		Correction:      true,
		CorrectedClass:  &corrected,
	}
	if err := u.persist(ctx, &rec, written); err != nil {
		return nil, err
	}
	return &entity.Submission{Record: rec, Detections: ds, LabelLines: lines}, nil
}

// SubmitManual は予測が使えない画像を手動ラベリング用キューに保存します。
// 推論は行わず、ラベルファイルも作成しません。
func (u *submissionUsecase) SubmitManual(ctx context.Context, up entity.Upload) (*entity.Submission, error) {
	if err := validateImage(up.Data, u.maxImageSize); err != nil {
		return nil, err
	}

	names := u.names.Generate(up.Filename)
	written, err := u.stage(ctx, entity.AreaManual, names, up.Data, nil)
	if err != nil {
		return nil, err
	}

	rec := entity.Prediction{
		PictureFilename: names.Picture,
		PredictedClass:  entity.UnknownClass,
		Confidence:      0.0,
		Correction:      false,
	}
	if err := u.persist(ctx, &rec, written); err != nil {
		return nil, err
	}
	return &entity.Submission{Record: rec}, nil
}

// detect は検出器を呼び出し、推論時間を記録します。
func (u *submissionUsecase) detect(ctx context.Context, imageData []byte) ([]entity.Detection, error) {
	start := time.Now()
	ds, err := u.detector.Detect(ctx, imageData)
	u.recorder.ObserveInference(ModeDetection, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}
	return ds, nil
}

// stage は画像と（ラベル領域がある場合）ラベルファイルを書き込みます。
// ラベルの書き込みに失敗した場合は画像を削除してから返します。
func (u *submissionUsecase) stage(ctx context.Context, area entity.Area, names entity.ArtifactNames, picture, label []byte) ([]string, error) {
	pic, err := u.store.SavePicture(ctx, area, names.Picture, picture)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	written := []string{pic}
	if !area.HasLabels() {
		return written, nil
	}

	lbl, err := u.store.SaveLabel(ctx, area, names.Label, label)
	if err != nil {
		u.cleanup(written)
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return append(written, lbl), nil
}

// persist はレコードを挿入します。失敗した場合、このリクエストで書き込んだ
// ファイルを削除して孤立ファイルを残さないようにします（ベストエフォート）。
func (u *submissionUsecase) persist(ctx context.Context, rec *entity.Prediction, written []string) error {
	if err := u.repo.Create(ctx, rec); err != nil {
		u.cleanup(written)
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

// cleanup はリクエストのコンテキストが切れていても削除できるよう、独立したコンテキストで実行します。
func (u *submissionUsecase) cleanup(paths []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := u.store.Remove(ctx, paths...)
	u.recorder.ObserveCleanup(err)
	if err != nil {
		slog.Warn("failed to remove orphaned artifacts", "paths", paths, "error", err)
		return
	}
	slog.Info("removed artifacts of failed submission", "paths", paths)
}

// IsClientError はエラーがクライアント起因（入力不正）かどうかを返します。
func IsClientError(err error) bool {
	return errors.Is(err, ErrEmptyImage) ||
		errors.Is(err, ErrImageTooLarge) ||
		errors.Is(err, ErrDecode) ||
		errors.Is(err, ErrCorrectedClassRequired)
}
