package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"snackbar/internal/config"
	"snackbar/internal/model"
	"snackbar/internal/repository"

	"gorm.io/gorm"
)

// writeOrderEvent 订单状态变更事件，和状态推进同一事务落入发件箱。
// 外围（客户端推送、打票机）订阅 Kafka 即可跟踪订单，无需轮询。
func writeOrderEvent(ctx context.Context, tx *gorm.DB, outboxRepo *repository.OutboxRepository, cfg *config.Config, order *model.Order, status string) error {
	payload, _ := json.Marshal(map[string]interface{}{
		"order_no":    order.OrderNo,
		"user_id":     order.UserID,
		"status":      status,
		"total_cents": order.TotalCents,
		"at":          time.Now().Format(time.RFC3339),
	})

	topic := ""
	if cfg != nil {
		topic = cfg.Kafka.Topic.OrderEvents
	}

	msg := &model.OutboxMessage{
		MessageKey: order.OrderNo,
		Topic:      topic,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	}
	if err := outboxRepo.Create(ctx, tx, msg); err != nil {
		return fmt.Errorf("写入消息失败: %w", err)
	}
	return nil
}

// withConflictRetry 乐观锁冲突的有限次透明重试
func withConflictRetry(maxRetries int, fn func() error) error {
	if maxRetries < 1 {
		maxRetries = 1
	}
	var err error
	for i := 0; i < maxRetries; i++ {
		err = fn()
		if err == nil || !errors.Is(err, repository.ErrOptimisticLock) {
			return err
		}
	}
	return err
}
