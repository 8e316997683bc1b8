package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"snackbar/internal/config"
	"snackbar/internal/infrastructure/lock"
	"snackbar/internal/model"
	"snackbar/internal/repository"
	"snackbar/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

var (
	ErrOrderExpired      = errors.New("订单已过期")
	ErrInvalidTransition = errors.New("当前状态不允许该操作")
	ErrUnsupportedMethod = errors.New("不支持的支付方式")
	ErrNotOrderOwner     = errors.New("不是本人的订单")
)

// CounterService 柜台流程：扫码、支付、现金结算、出餐
type CounterService struct {
	db          *gorm.DB
	redisClient *redis.Client
	cfg         *config.Config
	orderRepo   *repository.OrderRepository
	userRepo    *repository.UserRepository
	outboxRepo  *repository.OutboxRepository
	ledger      *LedgerService
}

func NewCounterService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *CounterService {
	return &CounterService{
		db:          db,
		redisClient: redisClient,
		cfg:         cfg,
		orderRepo:   repository.NewOrderRepository(db),
		userRepo:    repository.NewUserRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
		ledger:      NewLedgerService(db, cfg),
	}
}

func (s *CounterService) orderTTL() time.Duration {
	return time.Duration(s.cfg.Business.OrderTTLMinutes) * time.Minute
}

// ScanToken 管理员扫取餐码
//
// 幂等：已扫过、已支付、已出餐的单重复扫都算成功，
// 返回当前订单信息，柜台连点两下不会打坏状态。
// 过期单必须报错，不能让顾客用十分钟前的码取餐。
func (s *CounterService) ScanToken(ctx context.Context, token string) (*model.Order, error) {
	order, err := s.orderRepo.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	switch order.Status {
	case model.OrderStatusExpired:
		return nil, ErrOrderExpired

	case model.OrderStatusScanned, model.OrderStatusCash, model.OrderStatusPaid, model.OrderStatusServed:
		// 重复扫码，幂等成功
		return order, nil

	case model.OrderStatusCreated, model.OrderStatusRewardPending:
		// 到期但扫描任务还没跑到的单，就地置为过期
		if order.Status == model.OrderStatusCreated && time.Since(order.CreatedAt) > s.orderTTL() {
			_ = s.expireOrder(ctx, order, model.OrderStatusCreated)
			return nil, ErrOrderExpired
		}

		err = s.db.Transaction(func(tx *gorm.DB) error {
			if err := s.orderRepo.UpdateStatus(ctx, tx, order.OrderNo, order.Status, model.OrderStatusScanned); err != nil {
				return err
			}
			return writeOrderEvent(ctx, tx, s.outboxRepo, s.cfg, order, model.OrderStatusScanned)
		})

		if err != nil {
			if errors.Is(err, repository.ErrOrderStatusInvalid) {
				// 和过期扫描或另一次扫码撞了，以落库状态为准
				fresh, ferr := s.orderRepo.GetByOrderNo(ctx, order.OrderNo)
				if ferr != nil {
					return nil, ferr
				}
				if fresh.Status == model.OrderStatusExpired {
					return nil, ErrOrderExpired
				}
				return fresh, nil
			}
			return nil, err
		}

		return s.orderRepo.GetByOrderNo(ctx, order.OrderNo)

	default:
		return nil, ErrInvalidTransition
	}
}

// RequestCash 用户在柜台要求现金结算
func (s *CounterService) RequestCash(ctx context.Context, userID, orderNo string) error {
	order, err := s.orderRepo.GetByOrderNo(ctx, orderNo)
	if err != nil {
		return err
	}
	if order.UserID != userID {
		return ErrNotOrderOwner
	}
	if order.Status != model.OrderStatusScanned {
		return ErrInvalidTransition
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.orderRepo.UpdateStatus(ctx, tx, orderNo, model.OrderStatusScanned, model.OrderStatusCash); err != nil {
			if errors.Is(err, repository.ErrOrderStatusInvalid) {
				return ErrInvalidTransition
			}
			return err
		}
		if err := s.orderRepo.SetPaymentMethod(ctx, tx, orderNo, model.PaymentMethodCash); err != nil {
			return err
		}
		return writeOrderEvent(ctx, tx, s.outboxRepo, s.cfg, order, model.OrderStatusCash)
	})
}

// ConfirmPayment 客户端确认支付（积分 / 模拟钱包 / 模拟刷卡）
//
// 状态 CAS（SCANNED -> PAID）和扣款、返积分在同一事务内：
// CAS 只会成功一次，重复支付既改不了状态也不会重复入账。
// 返积分 = 消费金额 / 100 积分，厘积分表示下正好等于 total_cents。
func (s *CounterService) ConfirmPayment(ctx context.Context, userID, orderNo, method string) error {
	order, err := s.orderRepo.GetByOrderNo(ctx, orderNo)
	if err != nil {
		return err
	}
	if order.UserID != userID {
		return ErrNotOrderOwner
	}
	if order.Status != model.OrderStatusScanned {
		return ErrInvalidTransition
	}
	if order.TotalCents == 0 {
		// 零价兑换单不需要支付，扫码后直接出餐
		return ErrInvalidTransition
	}

	switch method {
	case model.PaymentMethodPoints, model.PaymentMethodPaypal, model.PaymentMethodCard:
	default:
		return ErrUnsupportedMethod
	}

	// 余额类支付按用户加锁，和转盘/兑换共用同一把
	if s.redisClient != nil {
		userLock := lock.NewUserLock(s.redisClient, userID, idgen.GenerateTransactionNo())
		if err := userLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
			return fmt.Errorf("系统繁忙，请稍后重试: %w", err)
		}
		defer userLock.Unlock(ctx)
	}

	return withConflictRetry(s.cfg.Business.MaxRetryCount, func() error {
		return s.db.Transaction(func(tx *gorm.DB) error {
			if err := s.orderRepo.UpdateStatus(ctx, tx, orderNo, model.OrderStatusScanned, model.OrderStatusPaid); err != nil {
				if errors.Is(err, repository.ErrOrderStatusInvalid) {
					return ErrInvalidTransition
				}
				return err
			}
			if err := s.orderRepo.SetPaymentMethod(ctx, tx, orderNo, method); err != nil {
				return err
			}

			switch method {
			case model.PaymentMethodPoints:
				// 1 积分抵 1 分钱：订单总价（分）换算成厘积分扣减
				cost := order.TotalCents * 100
				if err := s.ledger.Debit(ctx, tx, userID, cost, model.TransactionTypePay, "积分支付", orderNo); err != nil {
					return err
				}
			case model.PaymentMethodPaypal:
				if err := s.userRepo.DebitWallet(ctx, tx, userID, order.TotalCents); err != nil {
					return err
				}
			case model.PaymentMethodCard:
				// 模拟刷卡：信任客户端上报的支付成功
			}

			if err := s.creditEarnedPoints(ctx, tx, order); err != nil {
				return err
			}

			return writeOrderEvent(ctx, tx, s.outboxRepo, s.cfg, order, model.OrderStatusPaid)
		})
	})
}

// ConfirmCash 管理员确认收到现金
func (s *CounterService) ConfirmCash(ctx context.Context, orderNo string) error {
	order, err := s.orderRepo.GetByOrderNo(ctx, orderNo)
	if err != nil {
		return err
	}
	if order.Status != model.OrderStatusCash {
		return ErrInvalidTransition
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.orderRepo.UpdateStatus(ctx, tx, orderNo, model.OrderStatusCash, model.OrderStatusPaid); err != nil {
			if errors.Is(err, repository.ErrOrderStatusInvalid) {
				return ErrInvalidTransition
			}
			return err
		}
		if err := s.creditEarnedPoints(ctx, tx, order); err != nil {
			return err
		}
		return writeOrderEvent(ctx, tx, s.outboxRepo, s.cfg, order, model.OrderStatusPaid)
	})
}

// ServeOrder 管理员出餐
// 普通订单要求已支付；零价兑换单扫码后即可出餐
func (s *CounterService) ServeOrder(ctx context.Context, orderNo string) error {
	order, err := s.orderRepo.GetByOrderNo(ctx, orderNo)
	if err != nil {
		return err
	}

	var fromStatus string
	switch {
	case order.Status == model.OrderStatusPaid:
		fromStatus = model.OrderStatusPaid
	case order.Status == model.OrderStatusScanned && order.TotalCents == 0:
		fromStatus = model.OrderStatusScanned
	default:
		return ErrInvalidTransition
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.orderRepo.UpdateStatus(ctx, tx, orderNo, fromStatus, model.OrderStatusServed); err != nil {
			if errors.Is(err, repository.ErrOrderStatusInvalid) {
				return ErrInvalidTransition
			}
			return err
		}
		return writeOrderEvent(ctx, tx, s.outboxRepo, s.cfg, order, model.OrderStatusServed)
	})
}

// creditEarnedPoints 消费返积分
// 返点 = 总价 / 100 积分；厘积分存储下数值上正好是 total_cents
func (s *CounterService) creditEarnedPoints(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	earned := order.TotalCents
	if earned <= 0 {
		return nil
	}
	return s.ledger.Credit(ctx, tx, order.UserID, earned, model.TransactionTypeEarn, "消费返积分", order.OrderNo)
}

// expireOrder 扫码时发现的到期单就地过期（条件更新，输了竞争就算了）
func (s *CounterService) expireOrder(ctx context.Context, order *model.Order, fromStatus string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.orderRepo.UpdateStatus(ctx, tx, order.OrderNo, fromStatus, model.OrderStatusExpired); err != nil {
			return err
		}
		return writeOrderEvent(ctx, tx, s.outboxRepo, s.cfg, order, model.OrderStatusExpired)
	})
}
