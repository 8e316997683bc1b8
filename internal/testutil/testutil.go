// Package testutil 测试公共设施：内存 SQLite 库和常用测试数据。
// 表结构与生产库共用同一份 AutoMigrate 定义。
package testutil

import (
	"testing"

	"snackbar/internal/config"
	"snackbar/internal/infrastructure/database"
	"snackbar/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB 每个测试一个独立的内存库
// 连接数限制为 1：内存库多连接会各开各的库，事务语义也更接近串行
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("打开内存库失败: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("获取底层 DB 失败: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.Migrate(db); err != nil {
		t.Fatalf("迁移表结构失败: %v", err)
	}

	return db
}

// NewConfig 测试用业务配置，Kafka/Redis 不参与
func NewConfig() *config.Config {
	return &config.Config{
		Business: config.DefaultBusiness(),
	}
}

// CreateUser 建一个带初始余额的测试用户
func CreateUser(t *testing.T, db *gorm.DB, userID string, points, walletCents int64) *model.User {
	t.Helper()
	user := &model.User{
		UserID:      userID,
		Role:        model.RoleUser,
		Points:      points,
		WalletCents: walletCents,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("创建测试用户失败: %v", err)
	}
	return user
}

// CreateProduct 建一个测试商品；weight 为 nil 表示用默认权重 1
func CreateProduct(t *testing.T, db *gorm.DB, name string, priceCents int64, available bool, weight *float64) *model.Product {
	t.Helper()
	product := &model.Product{
		Name:        name,
		PriceCents:  priceCents,
		Category:    "snack",
		Available:   available,
		Probability: weight,
	}
	if err := db.Create(product).Error; err != nil {
		t.Fatalf("创建测试商品失败: %v", err)
	}
	// Available 带 default:true 标签，GORM 在 Create 时会用默认值替换零值 false，
	// 需要显式单列更新才能落库 false
	if !available {
		if err := db.Model(product).Update("available", false).Error; err != nil {
			t.Fatalf("更新测试商品可售状态失败: %v", err)
		}
	}
	return product
}

// FloatPtr 权重字面量辅助
func FloatPtr(f float64) *float64 {
	return &f
}
