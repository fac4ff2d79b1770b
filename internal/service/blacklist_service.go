package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"qrcollect/internal/logger"
	"qrcollect/internal/model"
	"qrcollect/internal/repository"

	"gorm.io/gorm"
)

var (
	ErrIPBlacklisted = errors.New("当前网络环境存在风险，无法访问")
	ErrIPInvalid     = errors.New("IP 地址格式错误")
)

type BlacklistService struct {
	repo *repository.BlacklistRepository
}

func NewBlacklistService(db *gorm.DB) *BlacklistService {
	return &BlacklistService{
		repo: repository.NewBlacklistRepository(db),
	}
}

func (s *BlacklistService) Ban(ctx context.Context, ip, reason string) error {
	ip = strings.TrimSpace(ip)
	if net.ParseIP(ip) == nil {
		return ErrIPInvalid
	}
	if err := s.repo.Create(ctx, &model.BlacklistedIP{IP: ip, Reason: strings.TrimSpace(reason)}); err != nil {
		return fmt.Errorf("添加黑名单失败: %w", err)
	}
	logger.Infow("IP 已加入黑名单", "ip", ip, "reason", reason)
	return nil
}

func (s *BlacklistService) Unban(ctx context.Context, ip string) error {
	return s.repo.Delete(ctx, strings.TrimSpace(ip))
}

func (s *BlacklistService) List(ctx context.Context) ([]*model.BlacklistedIP, error) {
	return s.repo.List(ctx)
}

// Check 客户访问工单前调用，命中黑名单返回 ErrIPBlacklisted
func (s *BlacklistService) Check(ctx context.Context, ip string) error {
	banned, err := s.repo.Exists(ctx, strings.TrimSpace(ip))
	if err != nil {
		return fmt.Errorf("查询黑名单失败: %w", err)
	}
	if banned {
		return ErrIPBlacklisted
	}
	return nil
}
