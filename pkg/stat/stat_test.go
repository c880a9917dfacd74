package stat

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMean(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.Equal(t, 2.0, Mean([]float64{1, 2, 3}))
}

func TestVariance(t *testing.T) {
	// 总体方差，除以N
	assert.Equal(t, 0.0, Variance([]float64{5, 5, 5}))
	assert.InDelta(t, 2.0/3.0, Variance([]float64{1, 2, 3}), 1e-9)
	assert.Equal(t, 0.0, Variance(nil))
}

func TestPearsonPerfectCorrelation(t *testing.T) {
	x := []float64{1, 2, 3, 4}
	y := []float64{2, 4, 6, 8}
	assert.InDelta(t, 1.0, Pearson(x, y), 1e-9)

	inv := []float64{8, 6, 4, 2}
	assert.InDelta(t, -1.0, Pearson(x, inv), 1e-9)
}

func TestPearsonDegenerateInputs(t *testing.T) {
	// 长度不一致、样本过少、零方差一律返回0
	assert.Equal(t, 0.0, Pearson([]float64{1, 2}, []float64{1}))
	assert.Equal(t, 0.0, Pearson([]float64{1}, []float64{1}))
	assert.Equal(t, 0.0, Pearson([]float64{3, 3, 3}, []float64{1, 2, 3}))
}

func TestPointBiserial(t *testing.T) {
	// 答对者总分整体更高，相关为正
	correct := []bool{true, true, true, false, false, false}
	scores := []float64{90, 85, 80, 60, 55, 50}
	r := PointBiserial(correct, scores)
	assert.Greater(t, r, 0.9)

	// 答对者总分反而更低，相关为负
	flipped := []float64{50, 55, 60, 80, 85, 90}
	assert.Less(t, PointBiserial(correct, flipped), -0.9)

	assert.Equal(t, 0.0, PointBiserial([]bool{true}, []float64{1, 2}))
}

func TestSpearmanBrown(t *testing.T) {
	assert.InDelta(t, 0.75, SpearmanBrown(0.60), 1e-9)
	assert.InDelta(t, 0.83, SpearmanBrown(0.71), 0.005)
	assert.Equal(t, 0.0, SpearmanBrown(0))
	assert.Equal(t, 1.0, SpearmanBrown(1))
	assert.Equal(t, -1.0, SpearmanBrown(-1))
}

func TestNormalQuantile(t *testing.T) {
	cases := []struct {
		level float64
		z     float64
	}{
		{0.90, 1.645},
		{0.95, 1.960},
		{0.99, 2.576},
	}
	for _, tc := range cases {
		z, ok := NormalQuantile(tc.level)
		assert.True(t, ok)
		assert.Equal(t, tc.z, z)
	}

	_, ok := NormalQuantile(0.80)
	assert.False(t, ok)
	_, ok = NormalQuantile(math.NaN())
	assert.False(t, ok)
}
