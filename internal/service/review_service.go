package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"qrcollect/internal/config"
	"qrcollect/internal/logger"
	"qrcollect/internal/model"
	"qrcollect/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrOverrideStatusInvalid = errors.New("目标状态不合法")
	ErrOverrideReasonEmpty   = errors.New("请填写修改原因")
)

// ReviewService 管理员审核、回款确认与人工纠错
type ReviewService struct {
	db        *gorm.DB
	orderRepo *repository.OrderRepository
	events    *eventWriter
	now       func() time.Time
}

func NewReviewService(db *gorm.DB, cfg *config.Config) *ReviewService {
	return &ReviewService{
		db:        db,
		orderRepo: repository.NewOrderRepository(db),
		events: &eventWriter{
			enabled:    cfg.Kafka.Enabled,
			topic:      cfg.Kafka.Topic.OrderEvent,
			outboxRepo: repository.NewOutboxRepository(db),
		},
		now: time.Now,
	}
}

// Approve 审核通过：pending_review -> completed
func (s *ReviewService) Approve(ctx context.Context, id int64) (*model.Order, error) {
	now := s.now()
	return s.transition(ctx, id, model.OrderStatusPendingReview, model.OrderStatusCompleted, model.OrderEventApproved,
		map[string]interface{}{"approved_at": now}, now)
}

// Remit 确认回款：completed -> remitted
func (s *ReviewService) Remit(ctx context.Context, id int64, amount decimal.Decimal) (*model.Order, error) {
	if !amount.IsPositive() {
		return nil, ErrAmountInvalid
	}
	now := s.now()
	return s.transition(ctx, id, model.OrderStatusCompleted, model.OrderStatusRemitted, model.OrderEventRemitted,
		map[string]interface{}{
			"remit_amount": decimal.NewNullDecimal(amount.Round(2)),
			"remitted_at":  now,
		}, now)
}

func (s *ReviewService) transition(ctx context.Context, id int64, from, to, event string, extra map[string]interface{}, now time.Time) (*model.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if order.Status != from {
		return nil, repository.ErrOrderStatusInvalid
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.orderRepo.UpdateStatus(ctx, tx, id, from, to, extra); err != nil {
			return err
		}
		return s.events.write(ctx, tx, newOrderEvent(event, order, to, now))
	})
	if err != nil {
		return nil, err
	}

	logger.Infow("工单状态变更", "order_id", id, "order_no", order.OrderNo, "from", from, "to", to)
	return s.orderRepo.GetByID(ctx, nil, id)
}

type OverrideRequest struct {
	Status string
	IsPaid *bool
	Reason string
}

// Override 管理员直接改写工单状态
//
// 不经过状态机校验，也不会触发收款码计数，计数如需调整请使用重置。
func (s *ReviewService) Override(ctx context.Context, id int64, req *OverrideRequest) (*model.Order, error) {
	if !model.IsValidOrderStatus(req.Status) {
		return nil, ErrOverrideStatusInvalid
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, ErrOverrideReasonEmpty
	}

	order, err := s.orderRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{"status": req.Status}
	if req.IsPaid != nil {
		updates["is_paid"] = *req.IsPaid
	}

	now := s.now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.orderRepo.Override(ctx, tx, id, updates); err != nil {
			return err
		}
		event := newOrderEvent(model.OrderEventOverridden, order, req.Status, now)
		event.Reason = reason
		return s.events.write(ctx, tx, event)
	})
	if err != nil {
		return nil, err
	}

	logger.Warnw("工单被人工修改", "order_id", id, "order_no", order.OrderNo,
		"from_status", order.Status, "to_status", req.Status, "is_paid", req.IsPaid, "reason", reason)
	return s.orderRepo.GetByID(ctx, nil, id)
}
