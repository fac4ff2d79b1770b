package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"qrcollect/internal/model"

	"gorm.io/gorm"
)

var (
	ErrOrderNotFound      = errors.New("订单不存在")
	ErrOrderStatusInvalid = errors.New("订单状态不合法")
	ErrOrderAlreadyPaid   = errors.New("订单已提交付款，请勿重复提交")
)

// 订单列表筛选
const (
	OrderFilterAll       = "all"
	OrderFilterPending   = "pending" // 待审核
	OrderFilterCompleted = "completed"
	OrderFilterRemitted  = "remitted"
	OrderFilterUnpaid    = "unpaid"
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(order).Error
}

func (r *OrderRepository) GetByID(ctx context.Context, tx *gorm.DB, id int64) (*model.Order, error) {
	if tx == nil {
		tx = r.db
	}
	var order model.Order
	err := tx.WithContext(ctx).Where("id = ?", id).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *OrderRepository) GetByToken(ctx context.Context, token string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).Where("token = ?", token).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// ChannelAssignment 客户选择通道后分配到的收款码
type ChannelAssignment struct {
	ChannelID   string
	ChannelName string
	PrimaryQRID int64
	BackupQRID  *int64
}

// AssignChannel 记录选码结果，仅限未付款的待支付订单，重新选择会清除备用切换标记
func (r *OrderRepository) AssignChannel(ctx context.Context, id int64, a ChannelAssignment) error {
	result := r.db.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND status = ? AND is_paid = ?", id, model.OrderStatusPending, false).
		Updates(map[string]interface{}{
			"channel_id":    a.ChannelID,
			"channel_name":  a.ChannelName,
			"primary_qr_id": a.PrimaryQRID,
			"backup_qr_id":  a.BackupQRID,
			"failover_used": false,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// MySQL 在值未变化时同样返回 0 行
		order, err := r.GetByID(ctx, nil, id)
		if err != nil {
			return err
		}
		if order.IsPaid || order.Status != model.OrderStatusPending {
			return ErrOrderStatusInvalid
		}
	}
	return nil
}

func (r *OrderRepository) MarkFailover(ctx context.Context, tx *gorm.DB, id int64) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND is_paid = ? AND backup_qr_id IS NOT NULL", id, false).
		Update("failover_used", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		order, err := r.GetByID(ctx, tx, id)
		if err != nil {
			return err
		}
		if order.IsPaid || order.BackupQRID == nil || !order.FailoverUsed {
			return ErrOrderStatusInvalid
		}
	}
	return nil
}

// SubmitFields 客户提交付款时写入的字段
type SubmitFields struct {
	ActualQRID       int64
	ClientAccount    string
	ClientNickname   string
	ClientCredential string
	ScreenshotURL    string
	ClientIP         string
	PaidAt           time.Time
}

// MarkSubmitted 标记已付款并进入待审核
//
// 条件 is_paid = false 是重复提交的防线：同一订单只有第一次提交能更新成功。
func (r *OrderRepository) MarkSubmitted(ctx context.Context, tx *gorm.DB, id int64, f SubmitFields) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND status = ? AND is_paid = ?", id, model.OrderStatusPending, false).
		Updates(map[string]interface{}{
			"is_paid":           true,
			"status":            model.OrderStatusPendingReview,
			"actual_qr_id":      f.ActualQRID,
			"client_account":    f.ClientAccount,
			"client_nickname":   f.ClientNickname,
			"client_credential": f.ClientCredential,
			"screenshot_url":    f.ScreenshotURL,
			"client_ip":         f.ClientIP,
			"paid_at":           f.PaidAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrOrderAlreadyPaid
	}
	return nil
}

// UpdateStatus 按正常流程流转状态，extra 为同时写入的附加字段
func (r *OrderRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, id int64, fromStatus, toStatus string, extra map[string]interface{}) error {
	if !model.CanTransitionTo(fromStatus, toStatus) {
		return ErrOrderStatusInvalid
	}

	if tx == nil {
		tx = r.db
	}

	updates := map[string]interface{}{
		"status": toStatus,
	}
	for k, v := range extra {
		updates[k] = v
	}

	result := tx.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrOrderStatusInvalid
	}

	return nil
}

// Override 管理员直接改写字段，不校验状态流转
func (r *OrderRepository) Override(ctx context.Context, tx *gorm.DB, id int64, updates map[string]interface{}) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		_, err := r.GetByID(ctx, tx, id)
		return err
	}
	return nil
}

// ListFilter 后台订单列表查询条件
type ListFilter struct {
	Filter   string
	Keyword  string
	Page     int
	PageSize int
}

func (r *OrderRepository) List(ctx context.Context, f ListFilter) ([]*model.Order, int64, error) {
	var orders []*model.Order
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Order{})
	switch f.Filter {
	case OrderFilterPending:
		query = query.Where("status = ?", model.OrderStatusPendingReview)
	case OrderFilterCompleted:
		query = query.Where("status = ?", model.OrderStatusCompleted)
	case OrderFilterRemitted:
		query = query.Where("status = ?", model.OrderStatusRemitted)
	case OrderFilterUnpaid:
		query = query.Where("is_paid = ?", false)
	}
	if kw := strings.TrimSpace(f.Keyword); kw != "" {
		like := "%" + kw + "%"
		query = query.Where("order_no LIKE ? OR client_account LIKE ? OR business_ref LIKE ?", like, like, like)
	}

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("id DESC").
		Offset((f.Page - 1) * f.PageSize).
		Limit(f.PageSize).
		Find(&orders).Error

	return orders, total, err
}
