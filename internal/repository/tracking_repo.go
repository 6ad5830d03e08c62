package repository

import (
	"context"
	"errors"
	"time"

	"github.com/dynrelay/dynrelay/internal/domain"
	"gorm.io/gorm"
)

// TrackingRepository is the durable dedup table backing classification.
type TrackingRepository interface {
	GetByProblemID(ctx context.Context, problemID string) (*domain.TrackedProblem, error)
	Insert(ctx context.Context, p *domain.TrackedProblem) error
	UpdateStatus(ctx context.Context, problemID string, newStatus string) error
	ClearAll(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (*domain.StoreStats, error)
}

type GormTrackingRepo struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormTrackingRepo(db *gorm.DB) *GormTrackingRepo {
	return &GormTrackingRepo{db: db, now: time.Now}
}

func (r *GormTrackingRepo) GetByProblemID(ctx context.Context, problemID string) (*domain.TrackedProblem, error) {
	var model TrackedProblemModel
	err := r.db.WithContext(ctx).
		Where("problem_id = ?", problemID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return trackedProblemModelToDomain(&model), nil
}

func (r *GormTrackingRepo) Insert(ctx context.Context, p *domain.TrackedProblem) error {
	model := trackedProblemModelFromDomain(p)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrConflict
		}
		return err
	}
	if p != nil {
		*p = *trackedProblemModelToDomain(model)
	}
	return nil
}

// UpdateStatus records an observed status transition: it bumps the forward
// counter and refreshes the forwarded/status-change timestamps in one write.
func (r *GormTrackingRepo) UpdateStatus(ctx context.Context, problemID string, newStatus string) error {
	now := r.now().UTC()
	result := r.db.WithContext(ctx).
		Model(&TrackedProblemModel{}).
		Where("problem_id = ?", problemID).
		Updates(map[string]any{
			"status":                newStatus,
			"last_forwarded_at":     now,
			"last_status_change_at": now,
			"forward_count":         gorm.Expr("forward_count + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ClearAll removes every tracked problem. Delivery history is untouched so
// the audit trail survives an administrative reset.
func (r *GormTrackingRepo) ClearAll(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("1 = 1").
		Delete(&TrackedProblemModel{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *GormTrackingRepo) Stats(ctx context.Context) (*domain.StoreStats, error) {
	db := r.db.WithContext(ctx)
	stats := &domain.StoreStats{}

	if err := db.Model(&TrackedProblemModel{}).Count(&stats.TotalProblems).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&TrackedProblemModel{}).
		Where("status = ?", domain.StatusOpen.String()).
		Count(&stats.OpenProblems).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&TrackedProblemModel{}).
		Where("status != ?", domain.StatusOpen.String()).
		Count(&stats.ClosedProblems).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&DeliveryRecordModel{}).Count(&stats.TotalForwards).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&DeliveryRecordModel{}).
		Where("outcome = ?", domain.OutcomeSuccess.String()).
		Count(&stats.SuccessCount).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&DeliveryRecordModel{}).
		Where("outcome = ?", domain.OutcomeFailed.String()).
		Count(&stats.FailureCount).Error; err != nil {
		return nil, err
	}

	return stats, nil
}
