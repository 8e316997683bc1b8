package handler

import (
	"snackbar/internal/config"
	"snackbar/internal/job"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter 配置路由
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config, sweeper *job.ExpirySweeper) *gin.Engine {
	// 设置 gin 为发布模式（减少日志输出）
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	// 注册中间件
	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	// 创建处理器
	h := NewHandler(db, rdb, cfg, sweeper)

	// API 路由组，身份由上游网关透传
	api := r.Group("/api/v1")
	api.Use(AuthMiddleware(db))
	{
		api.GET("/catalog", h.ListCatalog)

		// 账户相关
		account := api.Group("/account")
		{
			account.GET("/balance", h.GetBalance)
			account.GET("/transactions", h.ListTransactions)
		}

		// 订单相关
		order := api.Group("/order")
		{
			order.POST("/create", h.CreateOrder)
			order.GET("/detail", h.GetOrder)
			order.GET("/list", h.ListOrders)
			order.POST("/pay", h.PayOrder)
			order.POST("/cash", h.RequestCash)
		}

		// 转盘与积分商店
		api.POST("/roulette/play", h.PlayRoulette)
		api.POST("/shop/buy", h.BuyShopItem)

		// 柜台（管理员）
		admin := api.Group("/admin")
		admin.Use(AdminMiddleware(db))
		{
			admin.POST("/scan", h.ScanToken)
			admin.POST("/confirm-cash", h.ConfirmCash)
			admin.POST("/serve", h.ServeOrder)
			admin.POST("/adjust", h.AdjustPoints)
			admin.POST("/sweep", h.SweepExpired)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
