package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	OrderEvents  string `mapstructure:"order_events"`
	PointsEvents string `mapstructure:"points_events"`
}

// BusinessConfig 业务参数
//
// 积分内部统一以"厘积分"存储（1 积分 = 100 厘积分），
// 避免浮点累加误差。涉及积分数量的配置项都是厘积分单位。
type BusinessConfig struct {
	OrderTTLMinutes      int     `mapstructure:"order_ttl_minutes"`      // 未支付订单存活时间
	SweepIntervalSeconds int     `mapstructure:"sweep_interval_seconds"` // 过期扫描间隔
	RouletteCost         int64   `mapstructure:"roulette_cost"`          // 转盘一次花费（厘积分）
	BadLuckThreshold     int     `mapstructure:"bad_luck_threshold"`     // 连续低价值次数阈值
	BadLuckBoost         float64 `mapstructure:"bad_luck_boost"`         // 低权重商品权重放大倍数
	LowWeight            float64 `mapstructure:"low_weight"`             // 低权重判定线
	BigWinPriceCents     int64   `mapstructure:"big_win_price_cents"`    // 大奖价格阈值（分）
	MaxRetryCount        int     `mapstructure:"max_retry_count"`        // 乐观锁冲突重试次数
}

var GlobalConfig *Config

// LoadConfig 加载配置文件
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("读取配置文件失败: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	GlobalConfig = config
	return config
}

// DefaultBusiness 测试及缺省场景使用的业务参数
func DefaultBusiness() BusinessConfig {
	return BusinessConfig{
		OrderTTLMinutes:      10,
		SweepIntervalSeconds: 30,
		RouletteCost:         1000, // 10 积分
		BadLuckThreshold:     5,
		BadLuckBoost:         3.0,
		LowWeight:            0.1,
		BigWinPriceCents:     500,
		MaxRetryCount:        3,
	}
}
