// Package reward 实现转盘抽奖的加权随机算法。
//
// 权重取商品的 probability 字段，缺省按 1：
// 不配权重的目录表现为均匀抽取，运营只需给稀有商品单独配小权重。
//
// 【防霉运机制】
// 连续抽到低价值奖品的次数记在用户账上（bad_luck_count），
// 超过阈值后把低权重（稀有）商品的权重放大固定倍数，
// 封顶连续低价值次数、改善体感，但不保证必出大奖。
package reward

import (
	"errors"
	"math/rand"
	"sync"

	"snackbar/internal/model"
)

var ErrEmptyPool = errors.New("奖池为空")

// Config 抽奖参数，来自业务配置
type Config struct {
	BadLuckThreshold int     // 霉运计数阈值，超过后触发权重补偿
	BadLuckBoost     float64 // 低权重商品的放大倍数
	LowWeight        float64 // 低权重判定线
}

// Selector 加权随机抽取器
// 随机源由外部注入：固定种子下结果可复现，测试能断言中奖结果
type Selector struct {
	mu  sync.Mutex
	rng *rand.Rand
	cfg Config
}

func NewSelector(rng *rand.Rand, cfg Config) *Selector {
	return &Selector{rng: rng, cfg: cfg}
}

// BaseWeight 商品基础权重：显式 probability，缺省 1
func BaseWeight(p *model.Product) float64 {
	if p.Probability != nil {
		return *p.Probability
	}
	return 1
}

// IsLowWeight 低权重（稀有/低价值）商品判定
func (s *Selector) IsLowWeight(p *model.Product) bool {
	return BaseWeight(p) < s.cfg.LowWeight
}

// effectiveWeight 叠加防霉运补偿后的实际权重
func (s *Selector) effectiveWeight(p *model.Product, badLuckCount int) float64 {
	w := BaseWeight(p)
	if badLuckCount > s.cfg.BadLuckThreshold && w < s.cfg.LowWeight {
		w *= s.cfg.BadLuckBoost
	}
	return w
}

// Select 从奖池抽一个中奖商品
//
// 不可售商品先过滤；过滤后为空返回 ErrEmptyPool，
// 调用方必须在任何积分扣减之前处理这个错误。
//
// 标准加权抽取：权重求和，[0, total) 取随机数，
// 逐项递减到非正即中奖。浮点误差走完全程没选中时
// 兜底取最后一项，绝不抛错。
func (s *Selector) Select(pool []*model.Product, badLuckCount int) (*model.Product, error) {
	candidates := make([]*model.Product, 0, len(pool))
	for _, p := range pool {
		if p.Available {
			candidates = append(candidates, p)
		}
	}

	if len(candidates) == 0 {
		return nil, ErrEmptyPool
	}

	var totalWeight float64
	for _, p := range candidates {
		totalWeight += s.effectiveWeight(p, badLuckCount)
	}

	s.mu.Lock()
	draw := s.rng.Float64() * totalWeight
	s.mu.Unlock()

	for _, p := range candidates {
		draw -= s.effectiveWeight(p, badLuckCount)
		if draw <= 0 {
			return p, nil
		}
	}

	// 浮点误差兜底
	return candidates[len(candidates)-1], nil
}
