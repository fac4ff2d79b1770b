package repository

import (
	"context"
	"errors"
	"time"

	"qrcollect/internal/model"

	"gorm.io/gorm"
)

var (
	ErrQRCodeNotFound          = errors.New("收款码不存在")
	ErrQRCodeCapacityExhausted = errors.New("收款码已达当日上限")
	ErrResetScopeInvalid       = errors.New("重置范围不合法")
)

type QRCodeRepository struct {
	db *gorm.DB
}

func NewQRCodeRepository(db *gorm.DB) *QRCodeRepository {
	return &QRCodeRepository{db: db}
}

func (r *QRCodeRepository) Create(ctx context.Context, qr *model.QRCode) error {
	return r.db.WithContext(ctx).Create(qr).Error
}

func (r *QRCodeRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.QRCode, error) {
	if tx == nil {
		tx = r.db
	}
	var qr model.QRCode
	err := tx.WithContext(ctx).Where("id = ?", id).First(&qr).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQRCodeNotFound
		}
		return nil, err
	}
	return &qr, nil
}

// ListByGroup 按分组查询，group 为空时返回全部，最新创建的在前
func (r *QRCodeRepository) ListByGroup(ctx context.Context, group string) ([]*model.QRCode, error) {
	var qrs []*model.QRCode
	query := r.db.WithContext(ctx).Model(&model.QRCode{})
	if group != "" {
		query = query.Where("group_id = ?", group)
	}
	err := query.Order("id DESC").Find(&qrs).Error
	return qrs, err
}

// ListEligibleByGroup 查询分组内状态正常且未达上限的收款码
func (r *QRCodeRepository) ListEligibleByGroup(ctx context.Context, tx *gorm.DB, group string) ([]*model.QRCode, error) {
	if tx == nil {
		tx = r.db
	}
	var qrs []*model.QRCode
	err := tx.WithContext(ctx).
		Where("group_id = ? AND status = ? AND usage_count < daily_limit", group, model.QRCodeStatusActive).
		Find(&qrs).Error
	return qrs, err
}

// ListNames 返回 id -> 名称，已删除的收款码不在结果中
func (r *QRCodeRepository) ListNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	var rows []struct {
		ID   int64
		Name string
	}
	err := r.db.WithContext(ctx).
		Model(&model.QRCode{}).
		Select("id, name").
		Where("id IN ?", ids).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		names[row.ID] = row.Name
	}
	return names, nil
}

func (r *QRCodeRepository) SetStatus(ctx context.Context, tx *gorm.DB, id int64, status string) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.QRCode{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		_, err := r.GetByID(ctx, tx, id)
		return err
	}
	return nil
}

// CommitUsage 记录一次使用：计数加一并刷新 last_selected_at
//
// 容量检查与自增在同一条条件更新中完成，
// 并发提交时不会超过 daily_limit。
func (r *QRCodeRepository) CommitUsage(ctx context.Context, tx *gorm.DB, id int64, now time.Time) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.QRCode{}).
		Where("id = ? AND usage_count < daily_limit", id).
		Updates(map[string]interface{}{
			"usage_count":      gorm.Expr("usage_count + 1"),
			"last_selected_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, tx, id); err != nil {
			return err
		}
		return ErrQRCodeCapacityExhausted
	}
	return nil
}

// ResetUsage 按范围把 usage_count 清零，返回影响行数
func (r *QRCodeRepository) ResetUsage(ctx context.Context, scope model.ResetScope) (int64, error) {
	query := r.db.WithContext(ctx).Model(&model.QRCode{})
	switch scope.Kind {
	case model.ResetActive:
		query = query.Where("status = ?", model.QRCodeStatusActive)
	case model.ResetAll:
		query = query.Where("1 = 1")
	case model.ResetSingle:
		if scope.QRCodeID <= 0 {
			return 0, ErrResetScopeInvalid
		}
		query = query.Where("id = ?", scope.QRCodeID)
	default:
		return 0, ErrResetScopeInvalid
	}

	result := query.Update("usage_count", 0)
	if result.Error != nil {
		return 0, result.Error
	}
	if scope.Kind == model.ResetSingle && result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, nil, scope.QRCodeID); err != nil {
			return 0, err
		}
	}
	return result.RowsAffected, nil
}

// Update 修改名称或上限等字段
func (r *QRCodeRepository) Update(ctx context.Context, id int64, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	result := r.db.WithContext(ctx).
		Model(&model.QRCode{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		_, err := r.GetByID(ctx, nil, id)
		return err
	}
	return nil
}

// Delete 物理删除，引用它的工单保留原 ID
func (r *QRCodeRepository) Delete(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.QRCode{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrQRCodeNotFound
	}
	return nil
}
