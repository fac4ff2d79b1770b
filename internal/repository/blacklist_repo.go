package repository

import (
	"context"
	"errors"

	"qrcollect/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrBlacklistNotFound = errors.New("该 IP 不在黑名单中")

type BlacklistRepository struct {
	db *gorm.DB
}

func NewBlacklistRepository(db *gorm.DB) *BlacklistRepository {
	return &BlacklistRepository{db: db}
}

// Create 重复添加同一 IP 不报错
func (r *BlacklistRepository) Create(ctx context.Context, entry *model.BlacklistedIP) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(entry).Error
}

func (r *BlacklistRepository) Exists(ctx context.Context, ip string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.BlacklistedIP{}).
		Where("ip = ?", ip).
		Count(&count).Error
	return count > 0, err
}

func (r *BlacklistRepository) List(ctx context.Context) ([]*model.BlacklistedIP, error) {
	var entries []*model.BlacklistedIP
	err := r.db.WithContext(ctx).Order("id DESC").Find(&entries).Error
	return entries, err
}

func (r *BlacklistRepository) Delete(ctx context.Context, ip string) error {
	result := r.db.WithContext(ctx).Where("ip = ?", ip).Delete(&model.BlacklistedIP{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBlacklistNotFound
	}
	return nil
}
