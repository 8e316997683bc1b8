package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"snackbar/internal/config"
	"snackbar/internal/infrastructure/lock"
	"snackbar/internal/model"
	"snackbar/internal/repository"
	"snackbar/internal/reward"
	"snackbar/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// RedemptionService 积分兑换：转盘抽奖和积分商店
//
// 两个入口都是"读余额 -> 判定 -> 扣积分 -> 记流水 -> 建兑换单"
// 的单事务读改写，中间状态对其他事务不可见；
// 叠加按用户的分布式锁，同一用户的两次快速操作串行执行，
// 第二次读到的一定是第一次提交后的余额。
type RedemptionService struct {
	db          *gorm.DB
	redisClient *redis.Client
	cfg         *config.Config
	selector    *reward.Selector
	userRepo    *repository.UserRepository
	productRepo *repository.ProductRepository
	orderRepo   *repository.OrderRepository
	outboxRepo  *repository.OutboxRepository
	ledger      *LedgerService
}

func NewRedemptionService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) *RedemptionService {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return NewRedemptionServiceWithRand(db, redisClient, cfg, rng)
}

// NewRedemptionServiceWithRand 注入随机源，固定种子下抽奖结果可复现
func NewRedemptionServiceWithRand(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, rng *rand.Rand) *RedemptionService {
	return &RedemptionService{
		db:          db,
		redisClient: redisClient,
		cfg:         cfg,
		selector: reward.NewSelector(rng, reward.Config{
			BadLuckThreshold: cfg.Business.BadLuckThreshold,
			BadLuckBoost:     cfg.Business.BadLuckBoost,
			LowWeight:        cfg.Business.LowWeight,
		}),
		userRepo:    repository.NewUserRepository(db),
		productRepo: repository.NewProductRepository(db),
		orderRepo:   repository.NewOrderRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
		ledger:      NewLedgerService(db, cfg),
	}
}

// PlayResult 转盘结果
type PlayResult struct {
	Winner          *model.Product `json:"winner"`
	Order           *model.Order   `json:"order"`
	RemainingPoints int64          `json:"remaining_points"` // 厘积分
}

// PlayRoulette 转一次转盘
//
// 顺序上奖池判定在扣积分之前：出不了奖绝不扣积分。
// 成功一次正好产生一条扣费流水和一张 REWARD_PENDING 兑换单。
func (s *RedemptionService) PlayRoulette(ctx context.Context, userID string) (*PlayResult, error) {
	userLock, err := s.lockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer s.unlockUser(ctx, userLock)

	cost := s.cfg.Business.RouletteCost

	var result *PlayResult
	err = withConflictRetry(s.cfg.Business.MaxRetryCount, func() error {
		result = nil
		return s.db.Transaction(func(tx *gorm.DB) error {
			user, err := s.userRepo.GetByUserID(ctx, tx, userID)
			if err != nil {
				return err
			}

			// 奖池和可售状态都在本事务内读取
			products, err := s.productRepo.ListAvailable(ctx, tx)
			if err != nil {
				return err
			}
			pool := make([]*model.Product, len(products))
			for i := range products {
				pool[i] = &products[i]
			}

			winner, err := s.selector.Select(pool, user.BadLuckCount)
			if err != nil {
				return err // 奖池为空，尚未扣分
			}

			order := &model.Order{
				OrderNo: idgen.GenerateOrderNo(),
				UserID:  userID,
				QRToken: idgen.GenerateQRToken(),
				Status:  model.OrderStatusRewardPending,
				Items: []model.OrderItem{{
					ProductID:      winner.ID,
					Name:           winner.Name,
					UnitPriceCents: 0, // 中奖商品免费
					Quantity:       1,
					Source:         model.ItemSourceRoulette,
				}},
			}

			if err := s.ledger.Debit(ctx, tx, userID, cost, model.TransactionTypeRoulette, "转盘抽奖", order.OrderNo); err != nil {
				return err
			}

			if err := s.orderRepo.Create(ctx, tx, order); err != nil {
				return fmt.Errorf("创建兑换单失败: %w", err)
			}

			if err := s.updateBadLuck(ctx, tx, user, winner); err != nil {
				return err
			}

			if err := writeOrderEvent(ctx, tx, s.outboxRepo, s.cfg, order, model.OrderStatusRewardPending); err != nil {
				return err
			}

			result = &PlayResult{
				Winner:          winner,
				Order:           order,
				RemainingPoints: user.Points - cost,
			}
			return nil
		})
	})

	if err != nil {
		return nil, err
	}
	return result, nil
}

// BuyShopItem 积分商店兑换指定商品
//
// 兑换价：1 积分抵 1 分钱，即商品价格（分）x100 厘积分。
// 可售校验必须在扣积分的同一事务内做，商品在校验和提交
// 之间被下架时整个事务回滚。
func (s *RedemptionService) BuyShopItem(ctx context.Context, userID string, productID int64) (*model.Order, error) {
	userLock, err := s.lockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer s.unlockUser(ctx, userLock)

	var order *model.Order
	err = withConflictRetry(s.cfg.Business.MaxRetryCount, func() error {
		order = nil
		return s.db.Transaction(func(tx *gorm.DB) error {
			product, err := s.productRepo.GetByID(ctx, tx, productID)
			if err != nil {
				return err
			}
			if !product.Available {
				return fmt.Errorf("%w: %s", ErrProductUnavailable, product.Name)
			}

			cost := product.PriceCents * 100

			order = &model.Order{
				OrderNo: idgen.GenerateOrderNo(),
				UserID:  userID,
				QRToken: idgen.GenerateQRToken(),
				Status:  model.OrderStatusRewardPending,
				Items: []model.OrderItem{{
					ProductID:      product.ID,
					Name:           product.Name,
					UnitPriceCents: 0, // 已用积分兑换
					Quantity:       1,
					Source:         model.ItemSourceShop,
				}},
			}

			if err := s.ledger.Debit(ctx, tx, userID, cost, model.TransactionTypeShop, "积分商店兑换", order.OrderNo); err != nil {
				return err
			}

			if err := s.orderRepo.Create(ctx, tx, order); err != nil {
				return fmt.Errorf("创建兑换单失败: %w", err)
			}

			return writeOrderEvent(ctx, tx, s.outboxRepo, s.cfg, order, model.OrderStatusRewardPending)
		})
	})

	if err != nil {
		return nil, err
	}
	return order, nil
}

// updateBadLuck 霉运计数记账
// 大奖（价格达到阈值）清零；低权重奖累加；其余不动
func (s *RedemptionService) updateBadLuck(ctx context.Context, tx *gorm.DB, user *model.User, winner *model.Product) error {
	switch {
	case winner.PriceCents >= s.cfg.Business.BigWinPriceCents:
		if user.BadLuckCount == 0 {
			return nil
		}
		return s.userRepo.SetBadLuckCount(ctx, tx, user.UserID, 0)
	case s.selector.IsLowWeight(winner):
		return s.userRepo.SetBadLuckCount(ctx, tx, user.UserID, user.BadLuckCount+1)
	default:
		return nil
	}
}

// lockUser 拿按用户维度的花费锁
// 单机部署可不配置 Redis，此时返回 nil 锁，靠数据库条件更新兜底
func (s *RedemptionService) lockUser(ctx context.Context, userID string) (*lock.DistributedLock, error) {
	if s.redisClient == nil {
		return nil, nil
	}
	userLock := lock.NewUserLock(s.redisClient, userID, idgen.GenerateTransactionNo())
	if err := userLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	return userLock, nil
}

func (s *RedemptionService) unlockUser(ctx context.Context, userLock *lock.DistributedLock) {
	if userLock != nil {
		_ = userLock.Unlock(ctx)
	}
}
