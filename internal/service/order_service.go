package service

import (
	"context"
	"errors"
	"fmt"

	"snackbar/internal/config"
	"snackbar/internal/model"
	"snackbar/internal/repository"
	"snackbar/pkg/idgen"

	"gorm.io/gorm"
)

var (
	ErrEmptyCart          = errors.New("购物车为空")
	ErrProductUnavailable = errors.New("商品暂不可售")
	ErrInvalidQuantity    = errors.New("商品数量必须大于0")
)

type OrderService struct {
	db          *gorm.DB
	cfg         *config.Config
	orderRepo   *repository.OrderRepository
	productRepo *repository.ProductRepository
	outboxRepo  *repository.OutboxRepository
}

func NewOrderService(db *gorm.DB, cfg *config.Config) *OrderService {
	return &OrderService{
		db:          db,
		cfg:         cfg,
		orderRepo:   repository.NewOrderRepository(db),
		productRepo: repository.NewProductRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
	}
}

// CartLine 结算请求里的一行
type CartLine struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required,gt=0"`
}

// CreateOrderFromCart 购物车结算成订单
//
// 单价在这里快照进明细，总价是快照之和，创建后不再重算。
// 可售校验和下单在同一事务内，避免校验后库存被翻转。
func (s *OrderService) CreateOrderFromCart(ctx context.Context, userID string, lines []CartLine) (*model.Order, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	order := &model.Order{
		OrderNo: idgen.GenerateOrderNo(),
		UserID:  userID,
		QRToken: idgen.GenerateQRToken(),
		Status:  model.OrderStatusCreated,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var total int64
		items := make([]model.OrderItem, 0, len(lines))

		for _, line := range lines {
			if line.Quantity < 1 {
				return ErrInvalidQuantity
			}

			product, err := s.productRepo.GetByID(ctx, tx, line.ProductID)
			if err != nil {
				return err
			}
			if !product.Available {
				return fmt.Errorf("%w: %s", ErrProductUnavailable, product.Name)
			}

			items = append(items, model.OrderItem{
				ProductID:      product.ID,
				Name:           product.Name,
				UnitPriceCents: product.PriceCents,
				Quantity:       line.Quantity,
				Source:         model.ItemSourcePurchase,
			})
			total += product.PriceCents * int64(line.Quantity)
		}

		order.TotalCents = total
		order.Items = items

		if err := s.orderRepo.Create(ctx, tx, order); err != nil {
			return fmt.Errorf("创建订单失败: %w", err)
		}

		return writeOrderEvent(ctx, tx, s.outboxRepo, s.cfg, order, model.OrderStatusCreated)
	})

	if err != nil {
		return nil, err
	}

	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderNo string) (*model.Order, error) {
	return s.orderRepo.GetByOrderNo(ctx, orderNo)
}

func (s *OrderService) ListUserOrders(ctx context.Context, userID string, page, pageSize int) ([]*model.Order, int64, error) {
	return s.orderRepo.ListByUserID(ctx, userID, page, pageSize)
}

// ListCatalog 只读商品目录（可售部分）
func (s *OrderService) ListCatalog(ctx context.Context) ([]model.Product, error) {
	return s.productRepo.ListAvailable(ctx, nil)
}
