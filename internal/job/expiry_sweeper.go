package job

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"snackbar/internal/config"
	"snackbar/internal/model"
	"snackbar/internal/repository"

	"gorm.io/gorm"
)

// ExpirySweeper 过期订单扫描任务
//
// 周期扫出超过 TTL 的 CREATED/SCANNED/CASH 订单置为 EXPIRED，
// REWARD_PENDING 兑换单不在扫描范围内，永不过期。
//
// 置过期走条件更新（WHERE status=读取时的状态）：
// 读取和写入之间订单被扫码/支付推进了状态时 RowsAffected=0，
// 扫描绝不覆盖并发方的进展。单个订单失败只记日志，不中断整轮。
type ExpirySweeper struct {
	db         *gorm.DB
	orderRepo  *repository.OrderRepository
	outboxRepo *repository.OutboxRepository
	cfg        *config.Config
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
}

func NewExpirySweeper(db *gorm.DB, cfg *config.Config) *ExpirySweeper {
	return &ExpirySweeper{
		db:         db,
		orderRepo:  repository.NewOrderRepository(db),
		outboxRepo: repository.NewOutboxRepository(db),
		cfg:        cfg,
		stopCh:     make(chan struct{}),
		interval:   time.Duration(cfg.Business.SweepIntervalSeconds) * time.Second,
		batchSize:  100,
	}
}

func (j *ExpirySweeper) Start(ctx context.Context) {
	log.Println("[ExpirySweeper] 过期扫描任务启动")

	// 启动时先扫一轮，服务重启期间积压的过期单尽快关闭
	j.sweepOnce(ctx)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[ExpirySweeper] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[ExpirySweeper] 任务停止")
			return
		case <-ticker.C:
			j.sweepOnce(ctx)
		}
	}
}

func (j *ExpirySweeper) Stop() {
	close(j.stopCh)
}

func (j *ExpirySweeper) sweepOnce(ctx context.Context) {
	count, err := j.Sweep(ctx, time.Now())
	if err != nil {
		log.Printf("[ExpirySweeper] 扫描失败: %v", err)
		return
	}
	if count > 0 {
		log.Printf("[ExpirySweeper] 本轮关闭 %d 个过期订单", count)
	}
}

// Sweep 扫一轮，返回本轮置为过期的订单数；幂等，可手工触发
func (j *ExpirySweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	ttl := time.Duration(j.cfg.Business.OrderTTLMinutes) * time.Minute

	orders, err := j.orderRepo.GetExpiredOrders(ctx, now, ttl, j.batchSize)
	if err != nil {
		return 0, err
	}

	expiredCount := 0
	for _, order := range orders {
		// 逐单独立事务，一单失败不影响其他单
		err := j.db.Transaction(func(tx *gorm.DB) error {
			if err := j.orderRepo.UpdateStatus(ctx, tx, order.OrderNo, order.Status, model.OrderStatusExpired); err != nil {
				return err
			}
			// 和其他订单事件同一载荷结构，消费方不用区分来源
			payload, _ := json.Marshal(map[string]interface{}{
				"order_no":    order.OrderNo,
				"user_id":     order.UserID,
				"status":      model.OrderStatusExpired,
				"total_cents": order.TotalCents,
				"at":          time.Now().Format(time.RFC3339),
			})
			msg := &model.OutboxMessage{
				MessageKey: order.OrderNo,
				Topic:      j.cfg.Kafka.Topic.OrderEvents,
				Payload:    string(payload),
				Status:     model.OutboxStatusPending,
			}
			return j.outboxRepo.Create(ctx, tx, msg)
		})
		if err != nil {
			// 多半是被并发的扫码/支付抢先推进了状态，属正常竞争
			log.Printf("[ExpirySweeper] 置过期失败: orderNo=%s, err=%v", order.OrderNo, err)
			continue
		}
		expiredCount++
		log.Printf("[ExpirySweeper] 订单已过期关闭: orderNo=%s, userID=%s", order.OrderNo, order.UserID)
	}

	return expiredCount, nil
}
