package model

import (
	"time"
)

const (
	QRCodeStatusActive     = "active"
	QRCodeStatusRestricted = "restricted"
)

// QRCode 收款码（收款账户）
//
// 每个收款码属于一个通道分组，在一个统计周期内最多接收 DailyLimit 笔已提交的付款。
// LastSelectedAt 只在付款提交时更新，用于轮询排序，为空表示从未被使用过。
type QRCode struct {
	ID             int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name           string     `gorm:"type:varchar(64);not null" json:"name"`
	GroupID        string     `gorm:"type:varchar(32);index;not null" json:"group_id"`
	ImageURL       string     `gorm:"type:varchar(512);not null" json:"image_url"`
	DailyLimit     int        `gorm:"not null;default:0" json:"daily_limit"`
	UsageCount     int        `gorm:"not null;default:0" json:"usage_count"`
	Status         string     `gorm:"type:varchar(20);index;not null;default:active" json:"status"`
	LastSelectedAt *time.Time `json:"last_selected_at"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (QRCode) TableName() string {
	return "qr_code"
}

// Eligible 可被分配：状态正常且未达到当日上限
func (q *QRCode) Eligible() bool {
	return q != nil && q.Status == QRCodeStatusActive && q.UsageCount < q.DailyLimit
}

// ResetKind 计数重置范围
type ResetKind string

const (
	ResetActive ResetKind = "active" // 所有正常状态的收款码
	ResetAll    ResetKind = "all"
	ResetSingle ResetKind = "single"
)

// ResetScope 计数重置范围，Kind 为 ResetSingle 时 QRCodeID 必填
type ResetScope struct {
	Kind     ResetKind
	QRCodeID int64
}
