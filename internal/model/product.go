package model

import (
	"time"
)

// Product 商品表
// 商品目录由外围系统维护，本服务只读消费；
// Available=false 的商品必须排除在一切抽奖/兑换池之外。
type Product struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"type:varchar(128);not null" json:"name"`
	PriceCents  int64     `gorm:"not null" json:"price_cents"` // 单价（分）
	Category    string    `gorm:"type:varchar(64)" json:"category"`
	Available   bool      `gorm:"not null;default:true" json:"available"`
	Probability *float64  `json:"probability,omitempty"` // 显式抽奖权重，空则按 1 处理
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Product) TableName() string {
	return "product"
}
