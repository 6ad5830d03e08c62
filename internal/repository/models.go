package repository

import (
	"time"

	"github.com/dynrelay/dynrelay/internal/domain"
)

// TrackedProblemModel is the persistence model for the tracked_problems table.
type TrackedProblemModel struct {
	ID                 uint   `gorm:"primaryKey;autoIncrement"`
	ProblemID          string `gorm:"type:varchar(255);not null;uniqueIndex"`
	Status             string `gorm:"type:varchar(32);not null"`
	SeverityLevel      string `gorm:"type:varchar(64)"`
	Title              string `gorm:"type:text"`
	FirstSeenAt        time.Time
	LastForwardedAt    time.Time
	LastStatusChangeAt time.Time
	ForwardCount       int `gorm:"not null;default:0"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (TrackedProblemModel) TableName() string {
	return "tracked_problems"
}

// DeliveryRecordModel is the persistence model for the delivery_history table.
type DeliveryRecordModel struct {
	ID            string  `gorm:"type:uuid;primaryKey"`
	ProblemID     string  `gorm:"type:varchar(255);not null;index"`
	ConnectorName string  `gorm:"type:varchar(255);not null"`
	Outcome       string  `gorm:"type:varchar(16);not null"`
	ResponseCode  *int    `gorm:"type:int"`
	ErrorMessage  *string `gorm:"type:text"`
	AttemptedAt   time.Time
}

func (DeliveryRecordModel) TableName() string {
	return "delivery_history"
}

func trackedProblemModelFromDomain(p *domain.TrackedProblem) *TrackedProblemModel {
	if p == nil {
		return nil
	}

	return &TrackedProblemModel{
		ID:                 p.ID,
		ProblemID:          p.ProblemID,
		Status:             p.Status,
		SeverityLevel:      p.SeverityLevel,
		Title:              p.Title,
		FirstSeenAt:        p.FirstSeenAt,
		LastForwardedAt:    p.LastForwardedAt,
		LastStatusChangeAt: p.LastStatusChangeAt,
		ForwardCount:       p.ForwardCount,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

func trackedProblemModelToDomain(m *TrackedProblemModel) *domain.TrackedProblem {
	if m == nil {
		return nil
	}

	return &domain.TrackedProblem{
		ID:                 m.ID,
		ProblemID:          m.ProblemID,
		Status:             m.Status,
		SeverityLevel:      m.SeverityLevel,
		Title:              m.Title,
		FirstSeenAt:        m.FirstSeenAt,
		LastForwardedAt:    m.LastForwardedAt,
		LastStatusChangeAt: m.LastStatusChangeAt,
		ForwardCount:       m.ForwardCount,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

func deliveryRecordModelFromDomain(r *domain.DeliveryRecord) *DeliveryRecordModel {
	if r == nil {
		return nil
	}

	return &DeliveryRecordModel{
		ID:            r.ID,
		ProblemID:     r.ProblemID,
		ConnectorName: r.ConnectorName,
		Outcome:       r.Outcome.String(),
		ResponseCode:  r.ResponseCode,
		ErrorMessage:  r.ErrorMessage,
		AttemptedAt:   r.AttemptedAt,
	}
}

func deliveryRecordModelToDomain(m *DeliveryRecordModel) *domain.DeliveryRecord {
	if m == nil {
		return nil
	}

	return &domain.DeliveryRecord{
		ID:            m.ID,
		ProblemID:     m.ProblemID,
		ConnectorName: m.ConnectorName,
		Outcome:       domain.DeliveryOutcome(m.Outcome),
		ResponseCode:  m.ResponseCode,
		ErrorMessage:  m.ErrorMessage,
		AttemptedAt:   m.AttemptedAt,
	}
}
