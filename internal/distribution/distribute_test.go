package distribution

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDistributeExactExamples(t *testing.T) {
	require.Equal(t, []int64{4, 4, 3}, Distribute(11, 3))
	require.Equal(t, []int64{4, 3, 3}, Distribute(10, 3))
	require.Equal(t, []int64{28, 28, 28, 27}, Distribute(110.5, 4))
	require.Equal(t, []int64{28, 28, 27, 27}, Distribute(110.25, 4))
}

func TestDistributeConservesTotal(t *testing.T) {
	totals := []float64{0, 1, 2.5, 7, 99.49, 99.5, 110.5, 1234, 10000.75}
	for _, total := range totals {
		for count := 1; count <= 13; count++ {
			quantities := Distribute(total, count)
			require.Len(t, quantities, count)
			require.Equal(t, RoundHalfUp(total), Sum(quantities), "total=%v count=%d", total, count)
		}
	}
}

func TestDistributeSpreadAtMostOne(t *testing.T) {
	for count := 1; count <= 9; count++ {
		quantities := Distribute(100.5, count)
		min, max := quantities[0], quantities[0]
		for _, qty := range quantities {
			if qty < min {
				min = qty
			}
			if qty > max {
				max = qty
			}
		}
		require.LessOrEqual(t, max-min, int64(1))
	}
}

func TestDistributeFrontLoadsRemainder(t *testing.T) {
	quantities := Distribute(17, 5)
	require.Equal(t, []int64{4, 4, 3, 3, 3}, quantities)
	for i := 1; i < len(quantities); i++ {
		require.GreaterOrEqual(t, quantities[i-1], quantities[i])
	}
}

func TestDistributeZeroAndInvalidCount(t *testing.T) {
	require.Empty(t, Distribute(10, 0))
	require.Empty(t, Distribute(10, -3))
	require.Equal(t, []int64{0, 0, 0}, Distribute(0, 3))
}

func TestRoundHalfUp(t *testing.T) {
	require.Equal(t, int64(111), RoundHalfUp(110.5))
	require.Equal(t, int64(110), RoundHalfUp(110.25))
	require.Equal(t, int64(110), RoundHalfUp(110.49))
	require.Equal(t, int64(0), RoundHalfUp(0))
	require.Equal(t, int64(2), RoundHalfUp(1.5))
	require.Equal(t, int64(3), RoundHalfUp(2.5))
}
