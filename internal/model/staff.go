package model

import (
	"time"
)

// Staff 客服人员，创建工单时记录为 CreatorName
type Staff struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Staff) TableName() string {
	return "staff"
}
