package reward

import (
	"math/rand"
	"testing"

	"snackbar/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func floatPtr(f float64) *float64 {
	return &f
}

func testConfig() Config {
	return Config{
		BadLuckThreshold: 5,
		BadLuckBoost:     3.0,
		LowWeight:        0.1,
	}
}

func newProduct(id int64, name string, priceCents int64, available bool, weight *float64) *model.Product {
	return &model.Product{
		ID:          id,
		Name:        name,
		PriceCents:  priceCents,
		Available:   available,
		Probability: weight,
	}
}

func TestSelectEmptyPool(t *testing.T) {
	s := NewSelector(rand.New(rand.NewSource(1)), testConfig())

	_, err := s.Select(nil, 0)
	assert.ErrorIs(t, err, ErrEmptyPool)

	// 全部不可售等同于空池
	pool := []*model.Product{
		newProduct(1, "Twix", 100, false, nil),
		newProduct(2, "Mars", 100, false, nil),
	}
	_, err = s.Select(pool, 0)
	assert.ErrorIs(t, err, ErrEmptyPool)
}

func TestSelectFiltersUnavailable(t *testing.T) {
	s := NewSelector(rand.New(rand.NewSource(7)), testConfig())

	pool := []*model.Product{
		newProduct(1, "Twix", 100, false, nil),
		newProduct(2, "Mars", 100, true, nil),
	}

	for i := 0; i < 50; i++ {
		winner, err := s.Select(pool, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(2), winner.ID)
	}
}

func TestSelectDeterministicUnderSeed(t *testing.T) {
	pool := []*model.Product{
		newProduct(1, "Twix", 50, true, floatPtr(2)),
		newProduct(2, "Mars", 200, true, floatPtr(1)),
		newProduct(3, "Kinder", 120, true, nil),
	}

	s1 := NewSelector(rand.New(rand.NewSource(42)), testConfig())
	s2 := NewSelector(rand.New(rand.NewSource(42)), testConfig())

	for i := 0; i < 100; i++ {
		w1, err1 := s1.Select(pool, 0)
		w2, err2 := s2.Select(pool, 0)
		require.NoError(t, err1)
		require.NoError(t, err2)
		assert.Equal(t, w1.ID, w2.ID, "同种子第 %d 次抽取结果不一致", i)
	}
}

func TestSelectRespectsWeights(t *testing.T) {
	// 权重 9:1，大样本下占比应该接近
	pool := []*model.Product{
		newProduct(1, "Common", 50, true, floatPtr(9)),
		newProduct(2, "Rare", 300, true, floatPtr(1)),
	}

	s := NewSelector(rand.New(rand.NewSource(99)), testConfig())

	counts := map[int64]int{}
	const n = 10000
	for i := 0; i < n; i++ {
		winner, err := s.Select(pool, 0)
		require.NoError(t, err)
		counts[winner.ID]++
	}

	ratio := float64(counts[1]) / float64(n)
	assert.InDelta(t, 0.9, ratio, 0.03)
}

func TestBadLuckBoost(t *testing.T) {
	// 低权重商品（0.05 < 0.1）在霉运计数超阈值后权重 x3
	pool := []*model.Product{
		newProduct(1, "Common", 50, true, floatPtr(1)),
		newProduct(2, "Rare", 300, true, floatPtr(0.05)),
	}

	countRare := func(badLuck int, seed int64) int {
		s := NewSelector(rand.New(rand.NewSource(seed)), testConfig())
		rare := 0
		for i := 0; i < 20000; i++ {
			winner, err := s.Select(pool, badLuck)
			require.NoError(t, err)
			if winner.ID == 2 {
				rare++
			}
		}
		return rare
	}

	normal := countRare(0, 5)
	boosted := countRare(6, 5)

	// 0.05/1.05 ≈ 4.8% 对 0.15/1.15 ≈ 13%
	assert.Greater(t, boosted, normal*2)

	// 阈值正好相等时不触发
	atThreshold := countRare(5, 5)
	assert.InDelta(t, float64(normal), float64(atThreshold), float64(normal)/4)
}

func TestSelectSingleItem(t *testing.T) {
	s := NewSelector(rand.New(rand.NewSource(3)), testConfig())
	pool := []*model.Product{newProduct(1, "Only", 100, true, nil)}

	winner, err := s.Select(pool, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), winner.ID)
}

func TestBaseWeightDefault(t *testing.T) {
	assert.Equal(t, 1.0, BaseWeight(newProduct(1, "NoWeight", 100, true, nil)))
	assert.Equal(t, 2.5, BaseWeight(newProduct(2, "Weighted", 100, true, floatPtr(2.5))))
}

func TestIsLowWeight(t *testing.T) {
	s := NewSelector(rand.New(rand.NewSource(1)), testConfig())
	assert.True(t, s.IsLowWeight(newProduct(1, "Rare", 100, true, floatPtr(0.05))))
	assert.False(t, s.IsLowWeight(newProduct(2, "Common", 100, true, nil)))
	assert.False(t, s.IsLowWeight(newProduct(3, "Edge", 100, true, floatPtr(0.1))))
}
