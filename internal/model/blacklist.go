package model

import (
	"time"
)

type BlacklistedIP struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	IP        string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"ip"`
	Reason    string    `gorm:"type:varchar(256)" json:"reason"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (BlacklistedIP) TableName() string {
	return "blacklisted_ip"
}
