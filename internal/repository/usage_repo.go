package repository

import (
	"context"
	"errors"

	"qrcollect/internal/model"

	"gorm.io/gorm"
)

var ErrUsageRecordNotFound = errors.New("使用记录不存在")

type UsageRepository struct {
	db *gorm.DB
}

func NewUsageRepository(db *gorm.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

func (r *UsageRepository) Create(ctx context.Context, tx *gorm.DB, record *model.QRUsageRecord) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(record).Error
}

// GetByOrderID 每个工单最多一条使用记录
func (r *UsageRepository) GetByOrderID(ctx context.Context, tx *gorm.DB, orderID int64) (*model.QRUsageRecord, error) {
	if tx == nil {
		tx = r.db
	}
	var record model.QRUsageRecord
	err := tx.WithContext(ctx).Where("order_id = ?", orderID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUsageRecordNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *UsageRepository) CountByQRCode(ctx context.Context, qrCodeID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.QRUsageRecord{}).
		Where("qr_code_id = ?", qrCodeID).
		Count(&count).Error
	return count, err
}
