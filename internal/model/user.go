package model

import (
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User 用户账户表
// 记录积分余额和模拟钱包余额，是整个积分系统的核心数据
//
// 积分以厘积分存储（1 积分 = 100 厘积分），保证小数积分
// （如消费 350 分赚 3.5 积分）不丢精度。
type User struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"user_id"` // 身份服务下发的用户标识
	Email        string    `gorm:"type:varchar(128)" json:"email"`
	Role         string    `gorm:"type:varchar(16);not null;default:user" json:"role"`
	Points       int64     `gorm:"not null;default:0" json:"points"`        // 积分余额（厘积分）
	WalletCents  int64     `gorm:"not null;default:0" json:"wallet_cents"`  // 模拟钱包余额（分）
	BadLuckCount int       `gorm:"not null;default:0" json:"bad_luck_count"` // 连续低价值抽奖计数
	Version      int       `gorm:"not null;default:0" json:"version"`       // 乐观锁版本号
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "user"
}

// MonthlyAccrual 按月累计获得的积分
// 周期键取 UTC 月份，如 "2026-08"；排行榜等外围功能按它聚合
type MonthlyAccrual struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    string    `gorm:"type:varchar(64);uniqueIndex:idx_user_period;not null" json:"user_id"`
	Period    string    `gorm:"type:varchar(8);uniqueIndex:idx_user_period;not null" json:"period"`
	Points    int64     `gorm:"not null;default:0" json:"points"` // 该月累计获得（厘积分）
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (MonthlyAccrual) TableName() string {
	return "monthly_accrual"
}

// PeriodKey 由墙上时钟推导周期键（UTC 月份）
func PeriodKey(t time.Time) string {
	return t.UTC().Format("2006-01")
}
