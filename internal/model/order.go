package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	OrderStatusPending       = "pending"
	OrderStatusPendingReview = "pending_review"
	OrderStatusCompleted     = "completed"
	OrderStatusRemitted      = "remitted"
)

// ValidStatusTransitions 正常流程下允许的状态流转，管理员纠错走 Override，不受此限制
var ValidStatusTransitions = map[string][]string{
	OrderStatusPending:       {OrderStatusPendingReview},
	OrderStatusPendingReview: {OrderStatusCompleted},
	OrderStatusCompleted:     {OrderStatusRemitted},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

func IsValidOrderStatus(status string) bool {
	switch status {
	case OrderStatusPending, OrderStatusPendingReview, OrderStatusCompleted, OrderStatusRemitted:
		return true
	}
	return false
}

// Order 收款工单
//
// Token 用于客户支付链接；OrderNo 只是展示用的单号，不保证唯一。
// PrimaryQRID/BackupQRID 在客户选择通道时写入，ActualQRID 在提交付款时写入。
type Order struct {
	ID               int64               `gorm:"primaryKey;autoIncrement" json:"id"`
	Token            string              `gorm:"type:varchar(36);uniqueIndex;not null" json:"token"`
	OrderNo          string              `gorm:"type:varchar(32);index;not null" json:"order_no"`
	Amount           decimal.Decimal     `gorm:"type:decimal(20,2);not null" json:"amount"`
	BusinessRef      string              `gorm:"type:varchar(128);not null" json:"business_ref"`
	CreatorName      string              `gorm:"type:varchar(64)" json:"creator_name"`
	ChannelID        string              `gorm:"type:varchar(32)" json:"channel_id"`
	ChannelName      string              `gorm:"type:varchar(64)" json:"channel_name"`
	PrimaryQRID      *int64              `json:"primary_qr_id"`
	BackupQRID       *int64              `json:"backup_qr_id"`
	FailoverUsed     bool                `gorm:"not null;default:false" json:"failover_used"`
	ActualQRID       *int64              `gorm:"index" json:"actual_qr_id"`
	IsPaid           bool                `gorm:"index;not null;default:false" json:"is_paid"`
	Status           string              `gorm:"type:varchar(20);index;not null" json:"status"`
	ClientAccount    string              `gorm:"type:varchar(128)" json:"client_account"`
	ClientNickname   string              `gorm:"type:varchar(128)" json:"client_nickname"`
	ClientCredential string              `gorm:"type:varchar(256)" json:"client_credential"`
	ScreenshotURL    string              `gorm:"type:varchar(512)" json:"screenshot_url"`
	ClientIP         string              `gorm:"type:varchar(64)" json:"client_ip"`
	RemitAmount      decimal.NullDecimal `gorm:"type:decimal(20,2)" json:"remit_amount"`
	PaidAt           *time.Time          `json:"paid_at"`
	ApprovedAt       *time.Time          `json:"approved_at"`
	RemittedAt       *time.Time          `json:"remitted_at"`
	CreatedAt        time.Time           `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt        time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Order) TableName() string {
	return "collect_order"
}

// PaidQRID 客户实际付款的收款码：触发过备用切换则为备用码，否则为主码
func (o *Order) PaidQRID() *int64 {
	if o.FailoverUsed && o.BackupQRID != nil {
		return o.BackupQRID
	}
	return o.PrimaryQRID
}
