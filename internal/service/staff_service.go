package service

import (
	"context"
	"errors"
	"strings"

	"qrcollect/internal/model"
	"qrcollect/internal/repository"

	"gorm.io/gorm"
)

var ErrStaffNameRequired = errors.New("客服名称不能为空")

type StaffService struct {
	repo *repository.StaffRepository
}

func NewStaffService(db *gorm.DB) *StaffService {
	return &StaffService{
		repo: repository.NewStaffRepository(db),
	}
}

func (s *StaffService) Add(ctx context.Context, name string) (*model.Staff, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrStaffNameRequired
	}
	staff := &model.Staff{Name: name}
	if err := s.repo.Create(ctx, staff); err != nil {
		return nil, err
	}
	return staff, nil
}

func (s *StaffService) List(ctx context.Context) ([]*model.Staff, error) {
	return s.repo.List(ctx)
}

func (s *StaffService) Delete(ctx context.Context, id int64) error {
	return s.repo.Delete(ctx, id)
}
