package handler

import (
	"errors"
	"strconv"
	"time"

	"snackbar/internal/config"
	"snackbar/internal/job"
	"snackbar/internal/model"
	"snackbar/internal/repository"
	"snackbar/internal/reward"
	"snackbar/internal/service"
	"snackbar/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	ledgerService     *service.LedgerService
	orderService      *service.OrderService
	counterService    *service.CounterService
	redemptionService *service.RedemptionService
	sweeper           *job.ExpirySweeper
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config, sweeper *job.ExpirySweeper) *Handler {
	return &Handler{
		ledgerService:     service.NewLedgerService(db, cfg),
		orderService:      service.NewOrderService(db, cfg),
		counterService:    service.NewCounterService(db, rdb, cfg),
		redemptionService: service.NewRedemptionService(db, rdb, cfg),
		sweeper:           sweeper,
	}
}

// bizError 业务错误统一映射到响应码
func bizError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrInsufficientPoints),
		errors.Is(err, repository.ErrInsufficientWallet):
		response.BusinessError(c, response.CodeInsufficientFunds, "余额不足")
	case errors.Is(err, repository.ErrTokenNotFound):
		response.BusinessError(c, response.CodeTokenNotFound, "取餐码无效")
	case errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrUserNotFound),
		errors.Is(err, repository.ErrProductNotFound):
		response.BusinessError(c, response.CodeNotFound, err.Error())
	case errors.Is(err, service.ErrOrderExpired):
		response.BusinessError(c, response.CodeOrderExpired, "订单已过期")
	case errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, repository.ErrOrderStatusInvalid):
		response.BusinessError(c, response.CodeInvalidTransition, "当前状态不允许该操作")
	case errors.Is(err, service.ErrProductUnavailable):
		response.BusinessError(c, response.CodeProductUnavailable, "商品暂不可售")
	case errors.Is(err, reward.ErrEmptyPool):
		response.BusinessError(c, response.CodeEmptyPool, "奖池为空")
	case errors.Is(err, service.ErrEmptyCart):
		response.BusinessError(c, response.CodeEmptyCart, "购物车为空")
	case errors.Is(err, repository.ErrOptimisticLock):
		response.BusinessError(c, response.CodeConflict, "操作冲突，请重试")
	case errors.Is(err, service.ErrNotOrderOwner):
		response.BusinessError(c, response.CodeUnauthenticated, "不是本人的订单")
	default:
		response.ServerError(c, err.Error())
	}
}

// ============================================================
// 账户相关接口
// ============================================================

// GetBalance 查询积分余额
// GET /api/v1/account/balance
func (h *Handler) GetBalance(c *gin.Context) {
	userID := c.GetString(ctxKeyUserID)

	balance, err := h.ledgerService.GetBalance(c.Request.Context(), userID)
	if err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, gin.H{
		"user_id": userID,
		"points":  balance,                 // 厘积分
		"display": float64(balance) / 100,  // 展示用积分数
	})
}

// ListTransactions 查询积分流水
// GET /api/v1/account/transactions?page=1&page_size=10
func (h *Handler) ListTransactions(c *gin.Context) {
	userID := c.GetString(ctxKeyUserID)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	transactions, total, err := h.ledgerService.ListTransactions(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      transactions,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// 商品与订单
// ============================================================

// ListCatalog 可售商品目录
// GET /api/v1/catalog
func (h *Handler) ListCatalog(c *gin.Context) {
	products, err := h.orderService.ListCatalog(c.Request.Context())
	if err != nil {
		bizError(c, err)
		return
	}
	response.Success(c, products)
}

// CreateOrderRequest 购物车结算请求
type CreateOrderRequest struct {
	Lines []service.CartLine `json:"lines" binding:"required"`
}

// CreateOrder 购物车结算下单
// POST /api/v1/order/create
func (h *Handler) CreateOrder(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	userID := c.GetString(ctxKeyUserID)
	order, err := h.orderService.CreateOrderFromCart(c.Request.Context(), userID, req.Lines)
	if err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, gin.H{
		"order_no":    order.OrderNo,
		"qr_token":    order.QRToken,
		"status":      order.Status,
		"total_cents": order.TotalCents,
	})
}

// GetOrder 查询订单详情
// GET /api/v1/order/detail?order_no=xxx
func (h *Handler) GetOrder(c *gin.Context) {
	orderNo := c.Query("order_no")
	if orderNo == "" {
		response.ParamError(c, "order_no 参数不能为空")
		return
	}

	order, err := h.orderService.GetOrder(c.Request.Context(), orderNo)
	if err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, order)
}

// ListOrders 查询本人订单列表
// GET /api/v1/order/list?page=1&page_size=10
func (h *Handler) ListOrders(c *gin.Context) {
	userID := c.GetString(ctxKeyUserID)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))

	orders, total, err := h.orderService.ListUserOrders(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      orders,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// PayOrderRequest 支付请求
type PayOrderRequest struct {
	OrderNo string `json:"order_no" binding:"required"`
	Method  string `json:"method" binding:"required"` // points / paypal_balance / card
}

// PayOrder 客户端确认支付
// POST /api/v1/order/pay
func (h *Handler) PayOrder(c *gin.Context) {
	var req PayOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}
	if req.Method == model.PaymentMethodCash {
		response.ParamError(c, "现金结算请走 /order/cash")
		return
	}

	userID := c.GetString(ctxKeyUserID)
	if err := h.counterService.ConfirmPayment(c.Request.Context(), userID, req.OrderNo, req.Method); err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "支付成功"})
}

// RequestCash 用户请求现金结算
// POST /api/v1/order/cash
func (h *Handler) RequestCash(c *gin.Context) {
	var req struct {
		OrderNo string `json:"order_no" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	userID := c.GetString(ctxKeyUserID)
	if err := h.counterService.RequestCash(c.Request.Context(), userID, req.OrderNo); err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "请到柜台现金结算"})
}

// ============================================================
// 转盘与积分商店
// ============================================================

// PlayRoulette 转一次转盘
// POST /api/v1/roulette/play
func (h *Handler) PlayRoulette(c *gin.Context) {
	userID := c.GetString(ctxKeyUserID)

	result, err := h.redemptionService.PlayRoulette(c.Request.Context(), userID)
	if err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, gin.H{
		"winner":           result.Winner,
		"order_no":         result.Order.OrderNo,
		"qr_token":         result.Order.QRToken,
		"remaining_points": result.RemainingPoints,
	})
}

// BuyShopItem 积分商店兑换
// POST /api/v1/shop/buy
func (h *Handler) BuyShopItem(c *gin.Context) {
	var req struct {
		ProductID int64 `json:"product_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	userID := c.GetString(ctxKeyUserID)
	order, err := h.redemptionService.BuyShopItem(c.Request.Context(), userID, req.ProductID)
	if err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, gin.H{
		"order_no": order.OrderNo,
		"qr_token": order.QRToken,
		"status":   order.Status,
	})
}

// ============================================================
// 柜台（管理员）接口
// ============================================================

// ScanToken 扫取餐码
// POST /api/v1/admin/scan
func (h *Handler) ScanToken(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	order, err := h.counterService.ScanToken(c.Request.Context(), req.Token)
	if err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, order)
}

// ConfirmCash 确认收到现金
// POST /api/v1/admin/confirm-cash
func (h *Handler) ConfirmCash(c *gin.Context) {
	var req struct {
		OrderNo string `json:"order_no" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.counterService.ConfirmCash(c.Request.Context(), req.OrderNo); err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "收款已确认"})
}

// ServeOrder 出餐
// POST /api/v1/admin/serve
func (h *Handler) ServeOrder(c *gin.Context) {
	var req struct {
		OrderNo string `json:"order_no" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.counterService.ServeOrder(c.Request.Context(), req.OrderNo); err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "已出餐"})
}

// AdjustPoints 手工调整积分
// POST /api/v1/admin/adjust
func (h *Handler) AdjustPoints(c *gin.Context) {
	var req struct {
		UserID string `json:"user_id" binding:"required"`
		Amount int64  `json:"amount" binding:"required"` // 厘积分，可负
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.ledgerService.Adjust(c.Request.Context(), req.UserID, req.Amount, req.Reason); err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "调整成功"})
}

// SweepExpired 手工触发一轮过期扫描
// POST /api/v1/admin/sweep
func (h *Handler) SweepExpired(c *gin.Context) {
	count, err := h.sweeper.Sweep(c.Request.Context(), time.Now())
	if err != nil {
		bizError(c, err)
		return
	}

	response.Success(c, gin.H{"expired": count})
}
