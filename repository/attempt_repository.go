package repository

import (
	"context"

	"github.com/AHasenkampfHeista/ShopifyPaymentFix-Plugin/models"

	"gorm.io/gorm"
)

// AttemptRepository persists the audit trail of reconciliation runs.
type AttemptRepository interface {
	Create(ctx context.Context, attempt *models.ReconciliationAttempt) error
	FindByOrderID(ctx context.Context, orderID int64, limit int) ([]models.ReconciliationAttempt, error)
}

type gormAttemptRepo struct {
	db *gorm.DB
}

func NewGormAttemptRepo(db *gorm.DB) AttemptRepository {
	return &gormAttemptRepo{db: db}
}

func (r *gormAttemptRepo) Create(ctx context.Context, attempt *models.ReconciliationAttempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

func (r *gormAttemptRepo) FindByOrderID(ctx context.Context, orderID int64, limit int) ([]models.ReconciliationAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	var attempts []models.ReconciliationAttempt
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Limit(limit).
		Find(&attempts).Error
	if err != nil {
		return nil, err
	}
	return attempts, nil
}
