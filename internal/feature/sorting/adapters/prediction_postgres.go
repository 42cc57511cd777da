// Package adapters はsortingフィーチャーのリポジトリ実装を提供します。
package adapters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"smartsort_backend/internal/feature/sorting/domain/entity"
	"smartsort_backend/internal/feature/sorting/usecase"
)

// PredictionModel is the row layout of the predictions table.
type PredictionModel struct {
	ID              uint      `gorm:"primaryKey;index"`
	PictureFilename string    `gorm:"not null"`
	LabelFilename   *string
	PredictedClass  string    `gorm:"not null"`
	Confidence      float64   `gorm:"not null"`
	Timestamp       time.Time `gorm:"not null;index"`
	CorrectedClass  *string
	Correction      bool      `gorm:"not null;default:false"`
}

func (PredictionModel) TableName() string {
	return "predictions"
}

// predictionPostgres はPredictionRepositoryインターフェースのGORM実装です。
// 本番はPostgres、開発とテストはSQLiteで動作します。
type predictionPostgres struct {
	db  *gorm.DB
	now func() time.Time
}

// predictionPostgresがPredictionRepositoryを実装していることをコンパイル時に検証します。
var _ usecase.PredictionRepository = (*predictionPostgres)(nil)

// NewPredictionRepository は指定されたgorm.DB接続でpredictionPostgresの新しいインスタンスを生成します。
func NewPredictionRepository(db *gorm.DB) *predictionPostgres {
	return &predictionPostgres{db: db, now: time.Now}
}

// EnsureSchema はpredictionsテーブルが無ければ作成します。起動のたびに呼んでも安全です。
func EnsureSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(&PredictionModel{}); err != nil {
		return fmt.Errorf("failed to migrate predictions table: %w", err)
	}
	return nil
}

// Create はレコードを1件挿入し、採番されたIDと挿入時刻をpに反映します。
func (r *predictionPostgres) Create(ctx context.Context, p *entity.Prediction) error {
	if p == nil {
		return errors.New("prediction is nil")
	}
	m := toModel(*p)
	m.Timestamp = r.now().UTC()

	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return fmt.Errorf("insert prediction: postgres %s: %w", pgErr.Code, err)
		}
		return fmt.Errorf("insert prediction: %w", err)
	}

	p.ID = m.ID
	p.Timestamp = m.Timestamp
	return nil
}

func toModel(e entity.Prediction) PredictionModel {
	return PredictionModel{
		PictureFilename: e.PictureFilename,
		LabelFilename:   e.LabelFilename,
		PredictedClass:  e.PredictedClass,
		Confidence:      e.Confidence,
		CorrectedClass:  e.CorrectedClass,
		Correction:      e.Correction,
	}
}
