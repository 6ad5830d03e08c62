package repository

import (
	"context"

	"github.com/dynrelay/dynrelay/internal/domain"
	"gorm.io/gorm"
)

// HistoryRepository is the append-only delivery ledger. Rows are never
// updated or deleted; clear-cache intentionally leaves them in place.
type HistoryRepository interface {
	Append(ctx context.Context, r *domain.DeliveryRecord) error
	ListByProblemID(ctx context.Context, problemID string) ([]domain.DeliveryRecord, error)
}

type GormHistoryRepo struct {
	db *gorm.DB
}

func NewGormHistoryRepo(db *gorm.DB) *GormHistoryRepo {
	return &GormHistoryRepo{db: db}
}

func (r *GormHistoryRepo) Append(ctx context.Context, record *domain.DeliveryRecord) error {
	model := deliveryRecordModelFromDomain(record)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if record != nil {
		*record = *deliveryRecordModelToDomain(model)
	}
	return nil
}

func (r *GormHistoryRepo) ListByProblemID(ctx context.Context, problemID string) ([]domain.DeliveryRecord, error) {
	var models []DeliveryRecordModel
	err := r.db.WithContext(ctx).
		Where("problem_id = ?", problemID).
		Order("attempted_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	records := make([]domain.DeliveryRecord, 0, len(models))
	for i := range models {
		records = append(records, *deliveryRecordModelToDomain(&models[i]))
	}

	return records, nil
}
