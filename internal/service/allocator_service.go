package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"qrcollect/internal/allocator"
	"qrcollect/internal/config"
	"qrcollect/internal/logger"
	"qrcollect/internal/metrics"
	"qrcollect/internal/model"
	"qrcollect/internal/repository"

	"gorm.io/gorm"
)

// 计数重置的触发来源
const (
	ResetTriggerManual    = "manual"
	ResetTriggerScheduled = "scheduled"
)

// AllocatorService 在存储之上执行收款码分配
//
// 选码是纯读操作；受限标记、使用计数都以单条条件更新落库。
type AllocatorService struct {
	db     *gorm.DB
	cfg    *config.Config
	qrRepo *repository.QRCodeRepository
	now    func() time.Time
}

func NewAllocatorService(db *gorm.DB, cfg *config.Config) *AllocatorService {
	return &AllocatorService{
		db:     db,
		cfg:    cfg,
		qrRepo: repository.NewQRCodeRepository(db),
		now:    time.Now,
	}
}

// SelectCandidates 为通道选取 arity 个候选收款码，不修改任何收款码
func (s *AllocatorService) SelectCandidates(ctx context.Context, channelID string, arity int) (*allocator.Candidates, error) {
	if _, ok := s.cfg.Channel(channelID); !ok {
		return nil, allocator.ErrChannelNotFound
	}

	qrs, err := s.qrRepo.ListEligibleByGroup(ctx, nil, channelID)
	if err != nil {
		metrics.Selections.WithLabelValues(channelID, "error").Inc()
		return nil, fmt.Errorf("查询收款码失败: %w", err)
	}

	candidates, err := allocator.Select(qrs, arity)
	if err != nil {
		if errors.Is(err, allocator.ErrInsufficientCapacity) {
			metrics.Selections.WithLabelValues(channelID, "insufficient").Inc()
			logger.Warnw("通道可用收款码不足", "channel", channelID, "arity", arity, "eligible", len(qrs))
		}
		return nil, err
	}

	metrics.Selections.WithLabelValues(channelID, "ok").Inc()
	return candidates, nil
}

// SelectForChannel 按通道配置的收款码数量选码
func (s *AllocatorService) SelectForChannel(ctx context.Context, channelID string) (config.ChannelConfig, *allocator.Candidates, error) {
	ch, ok := s.cfg.Channel(channelID)
	if !ok {
		return config.ChannelConfig{}, nil, allocator.ErrChannelNotFound
	}
	candidates, err := s.SelectCandidates(ctx, ch.ID, ch.Arity())
	if err != nil {
		return ch, nil, err
	}
	return ch, candidates, nil
}

// RequestFailover 将主码标记为受限并返回备用码
//
// 受限标记立即生效，客户放弃付款也不会回滚，需要管理员手动恢复。
// 主码已被删除时跳过受限标记。
func (s *AllocatorService) RequestFailover(ctx context.Context, tx *gorm.DB, primaryID int64, backupID *int64) (*model.QRCode, error) {
	if backupID == nil {
		return nil, allocator.ErrNoFailoverAvailable
	}

	err := s.qrRepo.SetStatus(ctx, tx, primaryID, model.QRCodeStatusRestricted)
	if err != nil && !errors.Is(err, repository.ErrQRCodeNotFound) {
		return nil, fmt.Errorf("标记主码受限失败: %w", err)
	}

	backup, err := s.qrRepo.GetByID(ctx, tx, *backupID)
	if err != nil {
		return nil, err
	}
	return backup, nil
}

// CommitUsage 记录一次已提交的付款
//
// 必须在把工单 is_paid 从 false 改为 true 的同一事务中调用。
// 收款码已满或已被删除时返回 allocator.ErrCommitConflict，客户需要重新选择通道。
func (s *AllocatorService) CommitUsage(ctx context.Context, tx *gorm.DB, qrID int64) error {
	err := s.qrRepo.CommitUsage(ctx, tx, qrID, s.now())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrQRCodeCapacityExhausted), errors.Is(err, repository.ErrQRCodeNotFound):
		return allocator.ErrCommitConflict
	default:
		return fmt.Errorf("更新收款码使用次数失败: %w", err)
	}
}

// ResetPeriodCounters 将范围内收款码的 usage_count 清零
func (s *AllocatorService) ResetPeriodCounters(ctx context.Context, scope model.ResetScope, trigger string) (int64, error) {
	n, err := s.qrRepo.ResetUsage(ctx, scope)
	if err != nil {
		return 0, err
	}
	metrics.CounterResets.WithLabelValues(trigger).Inc()
	logger.Infow("收款码计数已重置", "scope", scope.Kind, "qr_code_id", scope.QRCodeID, "trigger", trigger, "affected", n)
	return n, nil
}

// ParseResetScope 解析重置范围，空值等同于 active
func ParseResetScope(kind string, qrCodeID int64) (model.ResetScope, error) {
	switch model.ResetKind(strings.ToLower(strings.TrimSpace(kind))) {
	case "", model.ResetActive, "all-active":
		return model.ResetScope{Kind: model.ResetActive}, nil
	case model.ResetAll:
		return model.ResetScope{Kind: model.ResetAll}, nil
	case model.ResetSingle:
		if qrCodeID <= 0 {
			return model.ResetScope{}, repository.ErrResetScopeInvalid
		}
		return model.ResetScope{Kind: model.ResetSingle, QRCodeID: qrCodeID}, nil
	}
	return model.ResetScope{}, repository.ErrResetScopeInvalid
}
