package ranking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beamerscore/pkg/contract"
)

func TestMaxTies(t *testing.T) {
	cases := []struct {
		name   string
		scores []float64
		size   int
		want   []int
	}{
		{"并列取最好名次", []float64{10, 20, 20, 5}, 4, []int{3, 1, 1, 4}},
		{"全部相同", []float64{7, 7, 7}, 3, []int{1, 1, 1}},
		{"空", nil, 0, []int{}},
		{"size 大于人数", []float64{1, 2}, 5, []int{5, 4}},
		{"缺考记 0 分", []float64{0, 90, 0}, 3, []int{2, 1, 2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := MaxTies(tc.scores, tc.size)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestMaxTiesSizeTooSmall(t *testing.T) {
	_, err := MaxTies([]float64{1, 2, 3}, 2)
	require.ErrorIs(t, err, contract.ErrInvalidInput)
}

// 输入切片不应被排序修改
func TestMaxTiesKeepsInput(t *testing.T) {
	in := []float64{3, 1, 2}
	_, err := MaxTies(in, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 1, 2}, in)
}
