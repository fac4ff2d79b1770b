package repository

import (
	"context"
	"errors"

	"qrcollect/internal/model"

	"gorm.io/gorm"
)

var (
	ErrStaffNotFound = errors.New("客服不存在")
	ErrStaffExists   = errors.New("客服名称已存在")
)

type StaffRepository struct {
	db *gorm.DB
}

func NewStaffRepository(db *gorm.DB) *StaffRepository {
	return &StaffRepository{db: db}
}

func (r *StaffRepository) Create(ctx context.Context, staff *model.Staff) error {
	exists, err := r.ExistsByName(ctx, staff.Name)
	if err != nil {
		return err
	}
	if exists {
		return ErrStaffExists
	}
	return r.db.WithContext(ctx).Create(staff).Error
}

func (r *StaffRepository) ExistsByName(ctx context.Context, name string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Staff{}).
		Where("name = ?", name).
		Count(&count).Error
	return count > 0, err
}

func (r *StaffRepository) List(ctx context.Context) ([]*model.Staff, error) {
	var staff []*model.Staff
	err := r.db.WithContext(ctx).Order("id ASC").Find(&staff).Error
	return staff, err
}

func (r *StaffRepository) Delete(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Staff{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStaffNotFound
	}
	return nil
}
