package model

import (
	"time"
)

const (
	OrderStatusCreated       = "CREATED"        // 购物车结算生成，等待柜台扫码
	OrderStatusScanned       = "SCANNED"        // 管理员已扫码核对
	OrderStatusCash          = "CASH"           // 用户要求现金结算，等待管理员确认收款
	OrderStatusPaid          = "PAID"           // 已支付
	OrderStatusServed        = "SERVED"         // 已出餐，终态
	OrderStatusExpired       = "EXPIRED"        // 超时关闭，终态
	OrderStatusRewardPending = "REWARD_PENDING" // 转盘/积分商店兑换单，永不过期
)

// ValidStatusTransitions 订单状态机
//
// 零价兑换单无需支付：SCANNED 可直达 SERVED（服务层保证仅零价单走这条边）。
// REWARD_PENDING 不在任何过期边上——兑换单已经扣过积分，不允许被扫过期。
var ValidStatusTransitions = map[string][]string{
	OrderStatusCreated:       {OrderStatusScanned, OrderStatusExpired},
	OrderStatusRewardPending: {OrderStatusScanned},
	OrderStatusScanned:       {OrderStatusCash, OrderStatusPaid, OrderStatusServed, OrderStatusExpired},
	OrderStatusCash:          {OrderStatusPaid, OrderStatusExpired},
	OrderStatusPaid:          {OrderStatusServed},
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

// ExpirableStatuses 过期扫描覆盖的状态集合
var ExpirableStatuses = []string{OrderStatusCreated, OrderStatusScanned, OrderStatusCash}

// IsTerminalStatus 终态订单不再接受任何变更
func IsTerminalStatus(status string) bool {
	return status == OrderStatusServed || status == OrderStatusExpired
}

const (
	PaymentMethodPoints = "points"         // 积分余额，真实扣减
	PaymentMethodPaypal = "paypal_balance" // 模拟 PayPal 钱包，扣 wallet_cents
	PaymentMethodCard   = "card"           // 模拟刷卡，信任客户端上报成功
	PaymentMethodCash   = "cash"           // 现金，管理员确认收款
)

const (
	ItemSourcePurchase = "PURCHASE" // 普通购物车下单
	ItemSourceRoulette = "ROULETTE" // 转盘中奖
	ItemSourceShop     = "SHOP"     // 积分商店兑换
)

// Order 订单表
// TotalCents 是下单时刻的快照，创建后不再重算
type Order struct {
	ID            int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNo       string      `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_no"`
	UserID        string      `gorm:"type:varchar(64);index;not null" json:"user_id"`
	QRToken       string      `gorm:"type:varchar(32);uniqueIndex;not null" json:"qr_token"` // 柜台出示的取餐码
	TotalCents    int64       `gorm:"not null" json:"total_cents"`
	Status        string      `gorm:"type:varchar(20);index;not null" json:"status"`
	PaymentMethod string      `gorm:"type:varchar(20)" json:"payment_method"` // 选定支付方式前为空
	PaidAt        *time.Time  `json:"paid_at"`
	ServedAt      *time.Time  `json:"served_at"`
	Items         []OrderItem `gorm:"foreignKey:OrderID;references:ID" json:"items"`
	CreatedAt     time.Time   `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt     time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Order) TableName() string {
	return "pass_order"
}

// OrderItem 订单明细
// UnitPriceCents 为下单时刻快照；兑换类条目价格为 0，靠 Source 区分来源
type OrderItem struct {
	ID             int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID        int64  `gorm:"index;not null" json:"order_id"`
	ProductID      int64  `gorm:"not null" json:"product_id"`
	Name           string `gorm:"type:varchar(128);not null" json:"name"` // 名称快照
	UnitPriceCents int64  `gorm:"not null" json:"unit_price_cents"`
	Quantity       int    `gorm:"not null" json:"quantity"`
	Source         string `gorm:"type:varchar(16);not null;default:PURCHASE" json:"source"`
}

func (OrderItem) TableName() string {
	return "pass_order_item"
}
