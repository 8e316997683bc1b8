package service

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"snackbar/internal/config"
	"snackbar/internal/model"
	"snackbar/internal/repository"
	"snackbar/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// newScannedOrder 下单并扫码，返回处于 SCANNED 的订单
func newScannedOrder(t *testing.T, db *gorm.DB, cfg *config.Config, counter *CounterService, userID string, priceCents int64) *model.Order {
	t.Helper()

	product := testutil.CreateProduct(t, db, "Snack", priceCents, true, nil)
	order, err := NewOrderService(db, cfg).CreateOrderFromCart(context.Background(), userID,
		[]CartLine{{ProductID: product.ID, Quantity: 1}})
	require.NoError(t, err)

	scanned, err := counter.ScanToken(context.Background(), order.QRToken)
	require.NoError(t, err)
	require.Equal(t, model.OrderStatusScanned, scanned.Status)
	return scanned
}

func TestScanTokenIdempotent(t *testing.T) {
	db := testutil.NewDB(t)
	cfg := testutil.NewConfig()
	counter := NewCounterService(db, nil, cfg)
	ctx := context.Background()

	testutil.CreateUser(t, db, "alice", 0, 0)
	order := newScannedOrder(t, db, cfg, counter, "alice", 150)

	// 重复扫不改状态也不报错
	again, err := counter.ScanToken(ctx, order.QRToken)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusScanned, again.Status)
	assert.Equal(t, order.OrderNo, again.OrderNo)
}

func TestScanTokenNotFound(t *testing.T) {
	db := testutil.NewDB(t)
	counter := NewCounterService(db, nil, testutil.NewConfig())

	_, err := counter.ScanToken(context.Background(), "NOSUCHTOKEN")
	assert.ErrorIs(t, err, repository.ErrTokenNotFound)
}

func TestScanTokenStaleOrderExpiresInPlace(t *testing.T) {
	db := testutil.NewDB(t)
	cfg := testutil.NewConfig()
	counter := NewCounterService(db, nil, cfg)
	ctx := context.Background()

	testutil.CreateUser(t, db, "alice", 0, 0)
	product := testutil.CreateProduct(t, db, "Snack", 150, true, nil)
	order, err := NewOrderService(db, cfg).CreateOrderFromCart(ctx, "alice",
		[]CartLine{{ProductID: product.ID, Quantity: 1}})
	require.NoError(t, err)

	// 回拨创建时间到 TTL 之外，模拟扫描任务还没跑到的过期单
	past := time.Now().Add(-time.Duration(cfg.Business.OrderTTLMinutes+1) * time.Minute)
	require.NoError(t, db.Model(&model.Order{}).Where("order_no = ?", order.OrderNo).
		Update("created_at", past).Error)

	_, err = counter.ScanToken(ctx, order.QRToken)
	assert.ErrorIs(t, err, ErrOrderExpired)

	var fresh model.Order
	require.NoError(t, db.Where("order_no = ?", order.OrderNo).First(&fresh).Error)
	assert.Equal(t, model.OrderStatusExpired, fresh.Status)

	// 过期后再扫仍然报过期
	_, err = counter.ScanToken(ctx, order.QRToken)
	assert.ErrorIs(t, err, ErrOrderExpired)
}

func TestConfirmPaymentPaypal(t *testing.T) {
	db := testutil.NewDB(t)
	cfg := testutil.NewConfig()
	counter := NewCounterService(db, nil, cfg)
	ctx := context.Background()

	testutil.CreateUser(t, db, "alice", 0, 500)
	order := newScannedOrder(t, db, cfg, counter, "alice", 350)

	require.NoError(t, counter.ConfirmPayment(ctx, "alice", order.OrderNo, model.PaymentMethodPaypal))

	var user model.User
	require.NoError(t, db.Where("user_id = ?", "alice").First(&user).Error)
	assert.Equal(t, int64(150), user.WalletCents)
	// 返积分：3.5 积分即 350 厘积分
	assert.Equal(t, int64(350), user.Points)

	var fresh model.Order
	require.NoError(t, db.Where("order_no = ?", order.OrderNo).First(&fresh).Error)
	assert.Equal(t, model.OrderStatusPaid, fresh.Status)
	assert.Equal(t, model.PaymentMethodPaypal, fresh.PaymentMethod)
	assert.NotNil(t, fresh.PaidAt)

	// 月度累计同步入账
	accrued, err := repository.NewTransactionRepository(db).GetAccrual(ctx, "alice", model.PeriodKey(time.Now()))
	require.NoError(t, err)
	assert.Equal(t, int64(350), accrued)
}

func TestConfirmPaymentPoints(t *testing.T) {
	db := testutil.NewDB(t)
	cfg := testutil.NewConfig()
	counter := NewCounterService(db, nil, cfg)
	ctx := context.Background()

	testutil.CreateUser(t, db, "alice", 1000, 0)
	order := newScannedOrder(t, db, cfg, counter, "alice", 5)

	require.NoError(t, counter.ConfirmPayment(ctx, "alice", order.OrderNo, model.PaymentMethodPoints))

	// 扣 500 厘积分（5 分钱），返 5 厘积分
	var user model.User
	require.NoError(t, db.Where("user_id = ?", "alice").First(&user).Error)
	assert.Equal(t, int64(505), user.Points)

	// 一条支付流水 + 一条返点流水
	transRepo := repository.NewTransactionRepository(db)
	pay, err := transRepo.GetByOrderNo(ctx, order.OrderNo, model.TransactionTypePay)
	require.NoError(t, err)
	require.NotNil(t, pay)
	assert.Equal(t, int64(-500), pay.Amount)
	earn, err := transRepo.GetByOrderNo(ctx, order.OrderNo, model.TransactionTypeEarn)
	require.NoError(t, err)
	require.NotNil(t, earn)
	assert.Equal(t, int64(5), earn.Amount)
}

func TestConfirmPaymentCard(t *testing.T) {
	db := testutil.NewDB(t)
	cfg := testutil.NewConfig()
	counter := NewCounterService(db, nil, cfg)
	ctx := context.Background()

	testutil.CreateUser(t, db, "alice", 0, 0)
	order := newScannedOrder(t, db, cfg, counter, "alice", 200)

	require.NoError(t, counter.ConfirmPayment(ctx, "alice", order.OrderNo, model.PaymentMethodCard))

	// 刷卡不动钱包，只入返点
	var user model.User
	require.NoError(t, db.Where("user_id = ?", "alice").First(&user).Error)
	assert.Equal(t, int64(0), user.WalletCents)
	assert.Equal(t, int64(200), user.Points)
}

func TestConfirmPaymentTwiceRejected(t *testing.T) {
	db := testutil.NewDB(t)
	cfg := testutil.NewConfig()
	counter := NewCounterService(db, nil, cfg)
	ctx := context.Background()

	testutil.CreateUser(t, db, "alice", 0, 1000)
	order := newScannedOrder(t, db, cfg, counter, "alice", 350)

	require.NoError(t, counter.ConfirmPayment(ctx, "alice", order.OrderNo, model.PaymentMethodPaypal))
	err := counter.ConfirmPayment(ctx, "alice", order.OrderNo, model.PaymentMethodPaypal)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// 不重复扣款也不重复返点
	var user model.User
	require.NoError(t, db.Where("user_id = ?", "alice").First(&user).Error)
	assert.Equal(t, int64(650), user.WalletCents)
	assert.Equal(t, int64(350), user.Points)
}

func TestConfirmPaymentInsufficientWalletRollsBack(t *testing.T) {
	db := testutil.NewDB(t)
	cfg := testutil.NewConfig()
	counter := NewCounterService(db, nil, cfg)
	ctx := context.Background()

	testutil.CreateUser(t, db, "alice", 0, 100)
	order := newScannedOrder(t, db, cfg, counter, "alice", 350)

	err := counter.ConfirmPayment(ctx, "alice", order.OrderNo, model.PaymentMethodPaypal)
	assert.ErrorIs(t, err, repository.ErrInsufficientWallet)

	// 扣款失败整个事务回滚，订单留在 SCANNED 可换别的方式再付
	var fresh model.Order
	require.NoError(t, db.Where("order_no = ?", order.OrderNo).First(&fresh).Error)
	assert.Equal(t, model.OrderStatusScanned, fresh.Status)

	var user model.User
	require.NoError(t, db.Where("user_id = ?", "alice").First(&user).Error)
	assert.Equal(t, int64(100), user.WalletCents)
	assert.Equal(t, int64(0), user.Points)
}

func TestConfirmPaymentGuards(t *testing.T) {
	db := testutil.NewDB(t)
	cfg := testutil.NewConfig()
	counter := NewCounterService(db, nil, cfg)
	ctx := context.Background()

	testutil.CreateUser(t, db, "alice", 0, 1000)
	testutil.CreateUser(t, db, "bob", 0, 1000)
	order := newScannedOrder(t, db, cfg, counter, "alice", 350)

	// 只能付自己的单
	assert.ErrorIs(t, counter.ConfirmPayment(ctx, "bob", order.OrderNo, model.PaymentMethodPaypal), ErrNotOrderOwner)
	// 未知支付方式
	assert.ErrorIs(t, counter.ConfirmPayment(ctx, "alice", order.OrderNo, "bitcoin"), ErrUnsupportedMethod)
	// 未扫码的单不能付
	product := testutil.CreateProduct(t, db, "Other", 100, true, nil)
	created, err := NewOrderService(db, cfg).CreateOrderFromCart(ctx, "alice",
		[]CartLine{{ProductID: product.ID, Quantity: 1}})
	require.NoError(t, err)
	assert.ErrorIs(t, counter.ConfirmPayment(ctx, "alice", created.OrderNo, model.PaymentMethodPaypal), ErrInvalidTransition)
}

func TestCashFlow(t *testing.T) {
	db := testutil.NewDB(t)
	cfg := testutil.NewConfig()
	counter := NewCounterService(db, nil, cfg)
	ctx := context.Background()

	testutil.CreateUser(t, db, "alice", 0, 0)
	order := newScannedOrder(t, db, cfg, counter, "alice", 250)

	require.NoError(t, counter.RequestCash(ctx, "alice", order.OrderNo))

	var fresh model.Order
	require.NoError(t, db.Where("order_no = ?", order.OrderNo).First(&fresh).Error)
	assert.Equal(t, model.OrderStatusCash, fresh.Status)
	assert.Equal(t, model.PaymentMethodCash, fresh.PaymentMethod)

	// 等待收现金期间不能出餐
	assert.ErrorIs(t, counter.ServeOrder(ctx, order.OrderNo), ErrInvalidTransition)

	require.NoError(t, counter.ConfirmCash(ctx, order.OrderNo))
	require.NoError(t, db.Where("order_no = ?", order.OrderNo).First(&fresh).Error)
	assert.Equal(t, model.OrderStatusPaid, fresh.Status)

	// 现金结算同样返积分
	var user model.User
	require.NoError(t, db.Where("user_id = ?", "alice").First(&user).Error)
	assert.Equal(t, int64(250), user.Points)

	require.NoError(t, counter.ServeOrder(ctx, order.OrderNo))
	require.NoError(t, db.Where("order_no = ?", order.OrderNo).First(&fresh).Error)
	assert.Equal(t, model.OrderStatusServed, fresh.Status)
	assert.NotNil(t, fresh.ServedAt)
}

func TestRequestCashGuards(t *testing.T) {
	db := testutil.NewDB(t)
	cfg := testutil.NewConfig()
	counter := NewCounterService(db, nil, cfg)
	ctx := context.Background()

	testutil.CreateUser(t, db, "alice", 0, 0)
	order := newScannedOrder(t, db, cfg, counter, "alice", 250)

	assert.ErrorIs(t, counter.RequestCash(ctx, "bob", order.OrderNo), ErrNotOrderOwner)

	require.NoError(t, counter.RequestCash(ctx, "alice", order.OrderNo))
	// 已在 CASH 再要一次不行
	assert.ErrorIs(t, counter.RequestCash(ctx, "alice", order.OrderNo), ErrInvalidTransition)
	// 现金未确认前不能再确认别的支付
	assert.ErrorIs(t, counter.ConfirmPayment(ctx, "alice", order.OrderNo, model.PaymentMethodCard), ErrInvalidTransition)
}

func TestConfirmCashRequiresCashStatus(t *testing.T) {
	db := testutil.NewDB(t)
	cfg := testutil.NewConfig()
	counter := NewCounterService(db, nil, cfg)
	ctx := context.Background()

	testutil.CreateUser(t, db, "alice", 0, 0)
	order := newScannedOrder(t, db, cfg, counter, "alice", 250)

	assert.ErrorIs(t, counter.ConfirmCash(ctx, order.OrderNo), ErrInvalidTransition)
}

func TestServeUnpaidRejected(t *testing.T) {
	db := testutil.NewDB(t)
	cfg := testutil.NewConfig()
	counter := NewCounterService(db, nil, cfg)
	ctx := context.Background()

	testutil.CreateUser(t, db, "alice", 0, 0)
	order := newScannedOrder(t, db, cfg, counter, "alice", 250)

	// 有价订单必须先支付
	assert.ErrorIs(t, counter.ServeOrder(ctx, order.OrderNo), ErrInvalidTransition)
}

func TestRewardOrderScanAndServe(t *testing.T) {
	db := testutil.NewDB(t)
	cfg := testutil.NewConfig()
	counter := NewCounterService(db, nil, cfg)
	redemption := NewRedemptionServiceWithRand(db, nil, cfg, rand.New(rand.NewSource(42)))
	ctx := context.Background()

	testutil.CreateUser(t, db, "alice", 2000, 0)
	testutil.CreateProduct(t, db, "Prize", 150, true, nil)

	result, err := redemption.PlayRoulette(ctx, "alice")
	require.NoError(t, err)

	// 兑换单扫码后无需支付
	scanned, err := counter.ScanToken(ctx, result.Order.QRToken)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusScanned, scanned.Status)

	err = counter.ConfirmPayment(ctx, "alice", scanned.OrderNo, model.PaymentMethodCard)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, counter.ServeOrder(ctx, scanned.OrderNo))

	var fresh model.Order
	require.NoError(t, db.Where("order_no = ?", scanned.OrderNo).First(&fresh).Error)
	assert.Equal(t, model.OrderStatusServed, fresh.Status)

	// 零价出餐不返积分
	var user model.User
	require.NoError(t, db.Where("user_id = ?", "alice").First(&user).Error)
	assert.Equal(t, int64(1000), user.Points)
}
