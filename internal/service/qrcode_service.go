package service

import (
	"context"
	"errors"
	"io"
	"strings"

	"qrcollect/internal/allocator"
	"qrcollect/internal/config"
	"qrcollect/internal/infrastructure/storage"
	"qrcollect/internal/logger"
	"qrcollect/internal/model"
	"qrcollect/internal/repository"

	"gorm.io/gorm"
)

var (
	ErrQRCodeNameRequired = errors.New("收款码名称不能为空")
	ErrDailyLimitInvalid  = errors.New("每日上限必须大于0")
	ErrQRCodeImageMissing = errors.New("请上传收款码图片")
)

type QRCodeService struct {
	cfg       *config.Config
	qrRepo    *repository.QRCodeRepository
	usageRepo *repository.UsageRepository
	allocator *AllocatorService
	storage   storage.ObjectStorage
}

func NewQRCodeService(db *gorm.DB, cfg *config.Config, alloc *AllocatorService, store storage.ObjectStorage) *QRCodeService {
	return &QRCodeService{
		cfg:       cfg,
		qrRepo:    repository.NewQRCodeRepository(db),
		usageRepo: repository.NewUsageRepository(db),
		allocator: alloc,
		storage:   store,
	}
}

type CreateQRCodeRequest struct {
	Name       string
	GroupID    string
	DailyLimit int
	ImageName  string
	Image      io.Reader
}

func (s *QRCodeService) Create(ctx context.Context, req *CreateQRCodeRequest) (*model.QRCode, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrQRCodeNameRequired
	}
	if _, ok := s.cfg.Channel(req.GroupID); !ok {
		return nil, allocator.ErrChannelNotFound
	}
	if req.DailyLimit <= 0 {
		return nil, ErrDailyLimitInvalid
	}
	if req.Image == nil {
		return nil, ErrQRCodeImageMissing
	}

	url, err := s.storage.Save(ctx, "qrcode", req.ImageName, req.Image)
	if err != nil {
		return nil, err
	}

	qr := &model.QRCode{
		Name:       name,
		GroupID:    strings.TrimSpace(req.GroupID),
		ImageURL:   url,
		DailyLimit: req.DailyLimit,
		Status:     model.QRCodeStatusActive,
	}
	if err := s.qrRepo.Create(ctx, qr); err != nil {
		return nil, err
	}
	logger.Infow("收款码已添加", "qr_code_id", qr.ID, "group", qr.GroupID, "daily_limit", qr.DailyLimit)
	return qr, nil
}

func (s *QRCodeService) List(ctx context.Context, group string) ([]*model.QRCode, error) {
	return s.qrRepo.ListByGroup(ctx, strings.TrimSpace(group))
}

// QRCodeDetail 收款码详情，TotalUsage 为累计使用次数，不随周期清零
type QRCodeDetail struct {
	*model.QRCode
	TotalUsage int64 `json:"total_usage"`
}

func (s *QRCodeService) Get(ctx context.Context, id int64) (*QRCodeDetail, error) {
	qr, err := s.qrRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	total, err := s.usageRepo.CountByQRCode(ctx, id)
	if err != nil {
		return nil, err
	}
	return &QRCodeDetail{QRCode: qr, TotalUsage: total}, nil
}

// UpdateQRCodeRequest 为空的字段不修改
type UpdateQRCodeRequest struct {
	Name       *string
	GroupID    *string
	DailyLimit *int
}

func (s *QRCodeService) Update(ctx context.Context, id int64, req *UpdateQRCodeRequest) (*model.QRCode, error) {
	updates := map[string]interface{}{}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, ErrQRCodeNameRequired
		}
		updates["name"] = name
	}
	if req.GroupID != nil {
		if _, ok := s.cfg.Channel(*req.GroupID); !ok {
			return nil, allocator.ErrChannelNotFound
		}
		updates["group_id"] = strings.TrimSpace(*req.GroupID)
	}
	if req.DailyLimit != nil {
		if *req.DailyLimit <= 0 {
			return nil, ErrDailyLimitInvalid
		}
		updates["daily_limit"] = *req.DailyLimit
	}

	if err := s.qrRepo.Update(ctx, id, updates); err != nil {
		return nil, err
	}
	return s.qrRepo.GetByID(ctx, nil, id)
}

// ToggleStatus 在正常与受限之间切换，用于恢复被客户切换备用码时标记受限的主码
func (s *QRCodeService) ToggleStatus(ctx context.Context, id int64) (*model.QRCode, error) {
	qr, err := s.qrRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	next := model.QRCodeStatusRestricted
	if qr.Status == model.QRCodeStatusRestricted {
		next = model.QRCodeStatusActive
	}
	if err := s.qrRepo.SetStatus(ctx, nil, id, next); err != nil {
		return nil, err
	}
	qr.Status = next
	logger.Infow("收款码状态已切换", "qr_code_id", id, "status", next)
	return qr, nil
}

// Reset 清零单个收款码的计数
func (s *QRCodeService) Reset(ctx context.Context, id int64) error {
	_, err := s.allocator.ResetPeriodCounters(ctx, model.ResetScope{Kind: model.ResetSingle, QRCodeID: id}, ResetTriggerManual)
	return err
}

// ResetAll 按范围批量清零
func (s *QRCodeService) ResetAll(ctx context.Context, kind string) (int64, error) {
	scope, err := ParseResetScope(kind, 0)
	if err != nil {
		return 0, err
	}
	return s.allocator.ResetPeriodCounters(ctx, scope, ResetTriggerManual)
}

func (s *QRCodeService) Delete(ctx context.Context, id int64) error {
	if err := s.qrRepo.Delete(ctx, id); err != nil {
		return err
	}
	logger.Infow("收款码已删除", "qr_code_id", id)
	return nil
}
