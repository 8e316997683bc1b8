package handler

import (
	"log"
	"time"

	"snackbar/internal/model"
	"snackbar/internal/repository"
	"snackbar/pkg/response"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const ctxKeyUserID = "auth_user_id"

// LoggerMiddleware 日志中间件
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		// 处理请求
		c.Next()

		// 记录日志
		latency := time.Since(start)
		status := c.Writer.Status()

		if query != "" {
			path = path + "?" + query
		}

		log.Printf("[HTTP] %d | %13v | %15s | %-7s %s",
			status,
			latency,
			c.ClientIP(),
			c.Request.Method,
			path,
		)
	}
}

// RecoveryMiddleware 恢复中间件，防止 panic 导致服务崩溃
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("[PANIC] %v", err)
				c.AbortWithStatusJSON(500, gin.H{
					"code":    500,
					"message": "服务器内部错误",
				})
			}
		}()
		c.Next()
	}
}

// CORSMiddleware 跨域中间件
func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-User-ID, X-User-Email")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// AuthMiddleware 身份中间件
//
// 身份签发在外围网关完成，这里信任它透传的 X-User-ID；
// 首次见到的用户直接建档（余额 0，角色 user）。
func AuthMiddleware(db *gorm.DB) gin.HandlerFunc {
	userRepo := repository.NewUserRepository(db)
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			response.BusinessError(c, response.CodeUnauthenticated, "未登录")
			c.Abort()
			return
		}

		email := c.GetHeader("X-User-Email")
		if _, err := userRepo.GetOrCreate(c.Request.Context(), userID, email); err != nil {
			response.ServerError(c, "账户初始化失败")
			c.Abort()
			return
		}

		c.Set(ctxKeyUserID, userID)
		c.Next()
	}
}

// AdminMiddleware 管理员校验，挂在柜台/后台路由组上
func AdminMiddleware(db *gorm.DB) gin.HandlerFunc {
	userRepo := repository.NewUserRepository(db)
	return func(c *gin.Context) {
		userID := c.GetString(ctxKeyUserID)
		user, err := userRepo.GetByUserID(c.Request.Context(), nil, userID)
		if err != nil || user.Role != model.RoleAdmin {
			response.BusinessError(c, response.CodeUnauthenticated, "需要管理员权限")
			c.Abort()
			return
		}
		c.Next()
	}
}
