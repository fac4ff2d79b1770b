package model

import (
	"time"
)

// QRUsageRecord 收款码使用记录
//
// 每笔已提交的工单只允许一条记录（OrderID 唯一索引），
// 与工单 is_paid 的条件更新在同一事务中写入，保证计数不会重复累加。
type QRUsageRecord struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UsageNo   string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"usage_no"`
	OrderID   int64     `gorm:"uniqueIndex;not null" json:"order_id"`
	OrderNo   string    `gorm:"type:varchar(32);not null" json:"order_no"`
	QRCodeID  int64     `gorm:"index;not null" json:"qr_code_id"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (QRUsageRecord) TableName() string {
	return "qr_usage_record"
}
