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
	"snackbar/pkg/idgen"

	"gorm.io/gorm"
)

// LedgerService 积分账本
//
// Credit/Debit 都在调用方给的 gorm 事务里执行：
// 余额变更、流水追加、月度累计、发件箱消息要么全部落库要么全部回滚。
// 余额守卫在 UPDATE 的 WHERE 里判定，不依赖事务外读到的旧值。
type LedgerService struct {
	db              *gorm.DB
	cfg             *config.Config
	userRepo        *repository.UserRepository
	transactionRepo *repository.TransactionRepository
	outboxRepo      *repository.OutboxRepository
}

func NewLedgerService(db *gorm.DB, cfg *config.Config) *LedgerService {
	return &LedgerService{
		db:              db,
		cfg:             cfg,
		userRepo:        repository.NewUserRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		outboxRepo:      repository.NewOutboxRepository(db),
	}
}

// Credit 入账（厘积分）
// 同时累计当前周期（UTC 月份）的获得总量
func (s *LedgerService) Credit(ctx context.Context, tx *gorm.DB, userID string, amount int64, transType, reason, orderNo string) error {
	if amount <= 0 {
		return errors.New("入账金额必须大于0")
	}
	if tx == nil {
		tx = s.db
	}

	user, err := s.userRepo.GetByUserID(ctx, tx, userID)
	if err != nil {
		return err
	}

	if err := s.userRepo.CreditPoints(ctx, tx, userID, amount); err != nil {
		return fmt.Errorf("积分入账失败: %w", err)
	}

	period := model.PeriodKey(time.Now())
	if err := s.transactionRepo.AddAccrual(ctx, tx, userID, period, amount); err != nil {
		return fmt.Errorf("累计月度积分失败: %w", err)
	}

	trans := &model.PointTransaction{
		TransactionNo: idgen.GenerateTransactionNo(),
		UserID:        userID,
		OrderNo:       orderNo,
		Amount:        amount,
		Type:          transType,
		Reason:        reason,
		BalanceBefore: user.Points,
		BalanceAfter:  user.Points + amount,
	}
	if err := s.transactionRepo.Create(ctx, tx, trans); err != nil {
		return fmt.Errorf("记录流水失败: %w", err)
	}

	return s.writePointsEvent(ctx, tx, trans)
}

// Debit 出账（厘积分）
// 余额不足返回 repository.ErrInsufficientPoints，
// 版本冲突返回 repository.ErrOptimisticLock，由调用方有限次重试
func (s *LedgerService) Debit(ctx context.Context, tx *gorm.DB, userID string, amount int64, transType, reason, orderNo string) error {
	if amount <= 0 {
		return errors.New("出账金额必须大于0")
	}
	if tx == nil {
		tx = s.db
	}

	user, err := s.userRepo.GetByUserID(ctx, tx, userID)
	if err != nil {
		return err
	}

	if err := s.userRepo.DebitPoints(ctx, tx, userID, amount, user.Version); err != nil {
		return err
	}

	trans := &model.PointTransaction{
		TransactionNo: idgen.GenerateTransactionNo(),
		UserID:        userID,
		OrderNo:       orderNo,
		Amount:        -amount,
		Type:          transType,
		Reason:        reason,
		BalanceBefore: user.Points,
		BalanceAfter:  user.Points - amount,
	}
	if err := s.transactionRepo.Create(ctx, tx, trans); err != nil {
		return fmt.Errorf("记录流水失败: %w", err)
	}

	return s.writePointsEvent(ctx, tx, trans)
}

// Adjust 管理员手工调整，自带事务
func (s *LedgerService) Adjust(ctx context.Context, userID string, delta int64, reason string) error {
	if delta == 0 {
		return errors.New("调整金额不能为0")
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if delta > 0 {
			return s.Credit(ctx, tx, userID, delta, model.TransactionTypeAdjust, reason, "")
		}
		return s.Debit(ctx, tx, userID, -delta, model.TransactionTypeAdjust, reason, "")
	})
}

func (s *LedgerService) GetBalance(ctx context.Context, userID string) (int64, error) {
	user, err := s.userRepo.GetByUserID(ctx, nil, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return user.Points, nil
}

func (s *LedgerService) ListTransactions(ctx context.Context, userID string, page, pageSize int) ([]*model.PointTransaction, int64, error) {
	return s.transactionRepo.ListByUserID(ctx, userID, page, pageSize)
}

func (s *LedgerService) writePointsEvent(ctx context.Context, tx *gorm.DB, trans *model.PointTransaction) error {
	payload, _ := json.Marshal(map[string]interface{}{
		"transaction_no": trans.TransactionNo,
		"user_id":        trans.UserID,
		"order_no":       trans.OrderNo,
		"amount":         trans.Amount,
		"type":           trans.Type,
		"balance_after":  trans.BalanceAfter,
	})

	topic := ""
	if s.cfg != nil {
		topic = s.cfg.Kafka.Topic.PointsEvents
	}

	msg := &model.OutboxMessage{
		MessageKey: trans.UserID,
		Topic:      topic,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	}
	if err := s.outboxRepo.Create(ctx, tx, msg); err != nil {
		return fmt.Errorf("写入消息失败: %w", err)
	}
	return nil
}
