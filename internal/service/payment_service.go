package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"qrcollect/internal/allocator"
	"qrcollect/internal/config"
	"qrcollect/internal/infrastructure/lock"
	"qrcollect/internal/infrastructure/storage"
	"qrcollect/internal/logger"
	"qrcollect/internal/metrics"
	"qrcollect/internal/model"
	"qrcollect/internal/repository"
	"qrcollect/pkg/idgen"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrChannelNotSelected  = errors.New("请先选择支付方式")
	ErrScreenshotRequired  = errors.New("请上传付款截图")
	ErrClientFieldRequired = errors.New("请填写付款账号")
)

// QRView 展示给客户的收款码，不暴露内部 ID
type QRView struct {
	Name     string `json:"name"`
	ImageURL string `json:"image_url"`
}

// AssignmentView 客户当前应付款的收款码
type AssignmentView struct {
	ChannelID    string  `json:"channel_id"`
	ChannelName  string  `json:"channel_name"`
	Hint         string  `json:"hint"`
	QRCode       *QRView `json:"qr_code"`
	CanFailover  bool    `json:"can_failover"`
	FailoverUsed bool    `json:"failover_used"`
}

// PaymentView 客户支付页数据
type PaymentView struct {
	OrderNo     string                 `json:"order_no"`
	BusinessRef string                 `json:"business_ref"`
	Amount      decimal.Decimal        `json:"amount"`
	Status      string                 `json:"status"`
	IsPaid      bool                   `json:"is_paid"`
	CreatedAt   time.Time              `json:"created_at"`
	Channels    []config.ChannelConfig `json:"channels"`
	Assignment  *AssignmentView        `json:"assignment,omitempty"`
}

type SubmitRequest struct {
	Token            string
	ClientIP         string
	RequestID        string
	CaptchaID        string
	CaptchaCode      string
	ClientAccount    string
	ClientNickname   string
	ClientCredential string
	ScreenshotName   string
	Screenshot       io.Reader
}

// PaymentService 客户侧流程：查看工单、选择通道、切换备用码、提交付款
type PaymentService struct {
	db        *gorm.DB
	cfg       *config.Config
	orderRepo *repository.OrderRepository
	qrRepo    *repository.QRCodeRepository
	usageRepo *repository.UsageRepository
	events    *eventWriter
	allocator *AllocatorService
	blacklist *BlacklistService
	captcha   CaptchaVerifier
	storage   storage.ObjectStorage
	locks     lock.Factory
	now       func() time.Time
}

func NewPaymentService(
	db *gorm.DB,
	cfg *config.Config,
	alloc *AllocatorService,
	blacklist *BlacklistService,
	captcha CaptchaVerifier,
	store storage.ObjectStorage,
	locks lock.Factory,
) *PaymentService {
	return &PaymentService{
		db:        db,
		cfg:       cfg,
		orderRepo: repository.NewOrderRepository(db),
		qrRepo:    repository.NewQRCodeRepository(db),
		usageRepo: repository.NewUsageRepository(db),
		events: &eventWriter{
			enabled:    cfg.Kafka.Enabled,
			topic:      cfg.Kafka.Topic.OrderEvent,
			outboxRepo: repository.NewOutboxRepository(db),
		},
		allocator: alloc,
		blacklist: blacklist,
		captcha:   captcha,
		storage:   store,
		locks:     locks,
		now:       time.Now,
	}
}

// ViewOrder 客户打开支付链接
func (s *PaymentService) ViewOrder(ctx context.Context, token, clientIP string) (*PaymentView, error) {
	order, err := s.loadForCustomer(ctx, token, clientIP)
	if err != nil {
		return nil, err
	}

	view := &PaymentView{
		OrderNo:     order.OrderNo,
		BusinessRef: order.BusinessRef,
		Amount:      order.Amount,
		Status:      order.Status,
		IsPaid:      order.IsPaid,
		CreatedAt:   order.CreatedAt,
		Channels:    s.cfg.Channels,
	}
	if !order.IsPaid && order.PaidQRID() != nil {
		assignment, err := s.assignmentView(ctx, order)
		if err != nil && !errors.Is(err, repository.ErrQRCodeNotFound) {
			return nil, err
		}
		// 收款码已被删除时让客户重新选择
		view.Assignment = assignment
	}
	return view, nil
}

// SelectChannel 客户选择支付通道，可重复选择
func (s *PaymentService) SelectChannel(ctx context.Context, token, clientIP, channelID, requestID string) (*AssignmentView, error) {
	order, err := s.loadForCustomer(ctx, token, clientIP)
	if err != nil {
		return nil, err
	}

	unlock, err := s.lockOrder(ctx, order.ID, requestID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	order, err = s.orderRepo.GetByID(ctx, nil, order.ID)
	if err != nil {
		return nil, err
	}
	if err := checkPayable(order); err != nil {
		return nil, err
	}

	ch, candidates, err := s.allocator.SelectForChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}

	primary, backup := candidates.IDs()
	err = s.orderRepo.AssignChannel(ctx, order.ID, repository.ChannelAssignment{
		ChannelID:   ch.ID,
		ChannelName: ch.Name,
		PrimaryQRID: primary,
		BackupQRID:  backup,
	})
	if err != nil {
		return nil, err
	}

	logger.Infow("客户选择通道", "order_id", order.ID, "channel", ch.ID, "primary", primary, "backup", backup)
	return &AssignmentView{
		ChannelID:   ch.ID,
		ChannelName: ch.Name,
		Hint:        ch.Hint,
		QRCode:      toQRView(candidates.Primary),
		CanFailover: backup != nil,
	}, nil
}

// RequestFailover 客户反馈主码无法付款，切换到备用码
//
// 已切换过时直接返回备用码。
func (s *PaymentService) RequestFailover(ctx context.Context, token, clientIP, requestID string) (*AssignmentView, error) {
	order, err := s.loadForCustomer(ctx, token, clientIP)
	if err != nil {
		return nil, err
	}

	unlock, err := s.lockOrder(ctx, order.ID, requestID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// 加锁后重新读取
	order, err = s.orderRepo.GetByID(ctx, nil, order.ID)
	if err != nil {
		return nil, err
	}
	if err := checkPayable(order); err != nil {
		return nil, err
	}
	if order.PrimaryQRID == nil {
		return nil, ErrChannelNotSelected
	}
	if order.BackupQRID == nil {
		return nil, allocator.ErrNoFailoverAvailable
	}

	if !order.FailoverUsed {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if _, err := s.allocator.RequestFailover(ctx, tx, *order.PrimaryQRID, order.BackupQRID); err != nil {
				return err
			}
			return s.orderRepo.MarkFailover(ctx, tx, order.ID)
		})
		if err != nil {
			return nil, err
		}
		order.FailoverUsed = true
		metrics.Failovers.WithLabelValues(order.ChannelID).Inc()
		logger.Warnw("主码已标记受限，切换备用码", "order_id", order.ID, "primary", *order.PrimaryQRID, "backup", *order.BackupQRID)
	}

	return s.assignmentView(ctx, order)
}

// Submit 客户上传付款截图
//
// 工单标记已付款、收款码计数、使用记录、事件写入在同一事务内完成；
// 任一步失败整体回滚，工单保持未付款。
// 工单被管理员改回未付款后重新提交时，沿用已有使用记录的收款码，不再计数。
func (s *PaymentService) Submit(ctx context.Context, req *SubmitRequest) (*model.Order, error) {
	order, err := s.loadForCustomer(ctx, req.Token, req.ClientIP)
	if err != nil {
		return nil, err
	}
	if req.Screenshot == nil {
		return nil, ErrScreenshotRequired
	}
	if strings.TrimSpace(req.ClientAccount) == "" {
		return nil, ErrClientFieldRequired
	}
	if err := s.captcha.Verify(req.CaptchaID, req.CaptchaCode); err != nil {
		return nil, err
	}

	unlock, err := s.lockOrder(ctx, order.ID, req.RequestID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	order, err = s.orderRepo.GetByID(ctx, nil, order.ID)
	if err != nil {
		return nil, err
	}
	if err := checkPayable(order); err != nil {
		if errors.Is(err, repository.ErrOrderAlreadyPaid) {
			metrics.Commits.WithLabelValues("duplicate").Inc()
		}
		return nil, err
	}
	qrID := order.PaidQRID()
	if qrID == nil {
		return nil, ErrChannelNotSelected
	}

	prior, err := s.usageRepo.GetByOrderID(ctx, nil, order.ID)
	switch {
	case err == nil:
		qrID = &prior.QRCodeID
	case errors.Is(err, repository.ErrUsageRecordNotFound):
		prior = nil
	default:
		return nil, err
	}

	screenshotURL, err := s.storage.Save(ctx, "screenshot", req.ScreenshotName, req.Screenshot)
	if err != nil {
		return nil, err
	}

	now := s.now()
	fields := repository.SubmitFields{
		ActualQRID:       *qrID,
		ClientAccount:    strings.TrimSpace(req.ClientAccount),
		ClientNickname:   strings.TrimSpace(req.ClientNickname),
		ClientCredential: strings.TrimSpace(req.ClientCredential),
		ScreenshotURL:    screenshotURL,
		ClientIP:         req.ClientIP,
		PaidAt:           now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.orderRepo.MarkSubmitted(ctx, tx, order.ID, fields); err != nil {
			return err
		}
		if prior == nil {
			if err := s.allocator.CommitUsage(ctx, tx, *qrID); err != nil {
				return err
			}
			record := &model.QRUsageRecord{
				UsageNo:  idgen.GenerateUsageNo(),
				OrderID:  order.ID,
				OrderNo:  order.OrderNo,
				QRCodeID: *qrID,
			}
			if err := s.usageRepo.Create(ctx, tx, record); err != nil {
				return fmt.Errorf("写入使用记录失败: %w", err)
			}
		}
		order.ActualQRID = qrID
		return s.events.write(ctx, tx, newOrderEvent(model.OrderEventSubmitted, order, model.OrderStatusPendingReview, now))
	})
	if err != nil {
		switch {
		case errors.Is(err, allocator.ErrCommitConflict):
			metrics.Commits.WithLabelValues("conflict").Inc()
			logger.Warnw("收款码额度已满，提交被拒绝", "order_id", order.ID, "qr_code_id", *qrID)
		case errors.Is(err, repository.ErrOrderAlreadyPaid):
			metrics.Commits.WithLabelValues("duplicate").Inc()
		default:
			metrics.Commits.WithLabelValues("error").Inc()
			logger.Errorw("提交付款失败", "order_id", order.ID, "error", err)
		}
		return nil, err
	}

	if prior != nil {
		metrics.Commits.WithLabelValues("resubmit").Inc()
		logger.Infow("客户重新提交付款，沿用原收款码", "order_id", order.ID, "usage_no", prior.UsageNo, "qr_code_id", *qrID)
		return s.orderRepo.GetByID(ctx, nil, order.ID)
	}
	metrics.Commits.WithLabelValues("ok").Inc()
	logger.Infow("客户已提交付款", "order_id", order.ID, "order_no", order.OrderNo, "qr_code_id", *qrID, "failover", order.FailoverUsed)
	return s.orderRepo.GetByID(ctx, nil, order.ID)
}

func (s *PaymentService) loadForCustomer(ctx context.Context, token, clientIP string) (*model.Order, error) {
	if err := s.blacklist.Check(ctx, clientIP); err != nil {
		if errors.Is(err, ErrIPBlacklisted) {
			logger.Warnw("黑名单 IP 访问工单", "ip", clientIP, "token", token)
		}
		return nil, err
	}
	return s.orderRepo.GetByToken(ctx, strings.TrimSpace(token))
}

func (s *PaymentService) lockOrder(ctx context.Context, orderID int64, requestID string) (func(), error) {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	l := lock.NewOrderLock(s.locks, orderID, requestID)
	if err := l.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, err
	}
	return func() {
		if err := l.Unlock(context.Background()); err != nil {
			logger.Warnw("释放工单锁失败", "order_id", orderID, "error", err)
		}
	}, nil
}

func (s *PaymentService) assignmentView(ctx context.Context, order *model.Order) (*AssignmentView, error) {
	qr, err := s.qrRepo.GetByID(ctx, nil, *order.PaidQRID())
	if err != nil {
		return nil, err
	}
	view := &AssignmentView{
		ChannelID:    order.ChannelID,
		ChannelName:  order.ChannelName,
		QRCode:       toQRView(qr),
		CanFailover:  order.BackupQRID != nil && !order.FailoverUsed,
		FailoverUsed: order.FailoverUsed,
	}
	if ch, ok := s.cfg.Channel(order.ChannelID); ok {
		view.Hint = ch.Hint
	}
	return view, nil
}

func checkPayable(order *model.Order) error {
	if order.IsPaid {
		return repository.ErrOrderAlreadyPaid
	}
	if order.Status != model.OrderStatusPending {
		return repository.ErrOrderStatusInvalid
	}
	return nil
}

func toQRView(qr *model.QRCode) *QRView {
	return &QRView{Name: qr.Name, ImageURL: qr.ImageURL}
}
