package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMedian(t *testing.T) {
	assert.Equal(t, 2.0, Median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, Median([]float64{4, 1, 3, 2}))
	assert.True(t, math.IsNaN(Median(nil)))
}

func TestQuantileType7(t *testing.T) {
	values := []float64{1200, 950, 1000000}
	assert.InDelta(t, 1075.0, Quantile(values, 0.25), 1e-9)
	assert.InDelta(t, 500600.0, Quantile(values, 0.75), 1e-9)
	assert.Equal(t, 950.0, Quantile(values, 0))
	assert.Equal(t, 1000000.0, Quantile(values, 1))
}

func TestPopStd(t *testing.T) {
	assert.InDelta(t, 2.0, PopStd([]float64{2, 4, 4, 4, 5, 5, 7, 9}), 1e-9)
	assert.Equal(t, 0.0, PopStd([]float64{3, 3, 3}))
}

func TestMinMax(t *testing.T) {
	lo, hi := MinMax([]float64{3, -1, 8})
	assert.Equal(t, -1.0, lo)
	assert.Equal(t, 8.0, hi)
}

func TestIQRBounds(t *testing.T) {
	lower, upper := IQRBounds([]float64{1, 2, 3, 4, 5})
	assert.Equal(t, -1.0, lower)
	assert.Equal(t, 7.0, upper)
}
