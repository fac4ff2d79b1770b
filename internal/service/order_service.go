package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"qrcollect/internal/config"
	"qrcollect/internal/logger"
	"qrcollect/internal/model"
	"qrcollect/internal/repository"
	"qrcollect/pkg/idgen"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrAmountInvalid         = errors.New("金额必须大于0")
	ErrBusinessRefRequired   = errors.New("业务单号不能为空")
	ErrOrderFilterInvalid    = errors.New("订单筛选条件不合法")
	ErrOrderPageSizeTooLarge = errors.New("每页数量过大")
)

type OrderService struct {
	cfg       *config.Config
	orderRepo *repository.OrderRepository
	staffRepo *repository.StaffRepository
	qrRepo    *repository.QRCodeRepository
	now       func() time.Time
}

func NewOrderService(db *gorm.DB, cfg *config.Config) *OrderService {
	return &OrderService{
		cfg:       cfg,
		orderRepo: repository.NewOrderRepository(db),
		staffRepo: repository.NewStaffRepository(db),
		qrRepo:    repository.NewQRCodeRepository(db),
		now:       time.Now,
	}
}

type CreateOrderRequest struct {
	Amount      decimal.Decimal
	BusinessRef string
	CreatorName string
}

// OrderDetail 后台展示用，附带收款码名称和客户支付链接
type OrderDetail struct {
	*model.Order
	PrimaryQRName string `json:"primary_qr_name,omitempty"`
	BackupQRName  string `json:"backup_qr_name,omitempty"`
	ActualQRName  string `json:"actual_qr_name,omitempty"`
	PaymentLink   string `json:"payment_link"`
}

func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*OrderDetail, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrAmountInvalid
	}
	ref := strings.TrimSpace(req.BusinessRef)
	if ref == "" {
		return nil, ErrBusinessRefRequired
	}
	creator := strings.TrimSpace(req.CreatorName)
	if creator != "" {
		exists, err := s.staffRepo.ExistsByName(ctx, creator)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, repository.ErrStaffNotFound
		}
	}

	order := &model.Order{
		Token:       uuid.NewString(),
		OrderNo:     idgen.GenerateOrderNo(s.now()),
		Amount:      req.Amount.Round(2),
		BusinessRef: ref,
		CreatorName: creator,
		Status:      model.OrderStatusPending,
	}
	if err := s.orderRepo.Create(ctx, nil, order); err != nil {
		return nil, fmt.Errorf("创建工单失败: %w", err)
	}

	logger.Infow("工单已创建", "order_id", order.ID, "order_no", order.OrderNo, "amount", order.Amount.String(), "creator", creator)
	return &OrderDetail{Order: order, PaymentLink: s.PaymentLink(order)}, nil
}

// PaymentLink 客户支付页地址
func (s *OrderService) PaymentLink(order *model.Order) string {
	return strings.TrimRight(s.cfg.Server.PublicBaseURL, "/") + "/pay/" + order.Token
}

func (s *OrderService) GetOrder(ctx context.Context, id int64) (*OrderDetail, error) {
	order, err := s.orderRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	details, err := s.withNames(ctx, []*model.Order{order})
	if err != nil {
		return nil, err
	}
	return details[0], nil
}

func (s *OrderService) ListOrders(ctx context.Context, f repository.ListFilter) ([]*OrderDetail, int64, error) {
	switch f.Filter {
	case "":
		f.Filter = repository.OrderFilterAll
	case repository.OrderFilterAll, repository.OrderFilterPending, repository.OrderFilterCompleted,
		repository.OrderFilterRemitted, repository.OrderFilterUnpaid:
	default:
		return nil, 0, ErrOrderFilterInvalid
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = 20
	}
	if f.PageSize > 200 {
		return nil, 0, ErrOrderPageSizeTooLarge
	}

	orders, total, err := s.orderRepo.List(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	details, err := s.withNames(ctx, orders)
	if err != nil {
		return nil, 0, err
	}
	return details, total, nil
}

func (s *OrderService) withNames(ctx context.Context, orders []*model.Order) ([]*OrderDetail, error) {
	var ids []int64
	for _, o := range orders {
		for _, id := range []*int64{o.PrimaryQRID, o.BackupQRID, o.ActualQRID} {
			if id != nil {
				ids = append(ids, *id)
			}
		}
	}
	names, err := s.qrRepo.ListNames(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("查询收款码名称失败: %w", err)
	}

	name := func(id *int64) string {
		if id == nil {
			return ""
		}
		if n, ok := names[*id]; ok {
			return n
		}
		return fmt.Sprintf("已删除(#%d)", *id)
	}

	details := make([]*OrderDetail, 0, len(orders))
	for _, o := range orders {
		details = append(details, &OrderDetail{
			Order:         o,
			PrimaryQRName: name(o.PrimaryQRID),
			BackupQRName:  name(o.BackupQRID),
			ActualQRName:  name(o.ActualQRID),
			PaymentLink:   s.PaymentLink(o),
		})
	}
	return details, nil
}
