package model

import (
	"time"
)

const (
	TransactionTypeEarn     = "EARN"     // 消费返积分
	TransactionTypeRoulette = "ROULETTE" // 转盘花费
	TransactionTypeShop     = "SHOP"     // 积分商店兑换
	TransactionTypePay      = "PAY"      // 用积分直接支付订单
	TransactionTypeAdjust   = "ADJUST"   // 管理员手工调整
)

// PointTransaction 积分流水表
//
// 流水表设计原则：
// 1. 只追加，不修改，不删除 —— 保证审计可追溯
// 2. 记录交易前后余额 —— 便于校验余额一致性
// 3. 能关联订单的流水必须带订单号 —— 便于对账
type PointTransaction struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`
	UserID        string    `gorm:"type:varchar(64);index;not null" json:"user_id"`
	OrderNo       string    `gorm:"type:varchar(64);index" json:"order_no"`
	Amount        int64     `gorm:"not null" json:"amount"` // 厘积分，正数入账，负数出账
	Type          string    `gorm:"type:varchar(20);not null" json:"type"`
	Reason        string    `gorm:"type:varchar(256)" json:"reason"`
	BalanceBefore int64     `gorm:"not null" json:"balance_before"`
	BalanceAfter  int64     `gorm:"not null" json:"balance_after"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (PointTransaction) TableName() string {
	return "point_transaction"
}
