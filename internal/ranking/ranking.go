// Package ranking 计算成绩名次。
package ranking

import (
	"fmt"
	"sort"

	"beamerscore/pkg/contract"
)

// MaxTies 返回倒序名次：rank_i = size + 1 - #{j : scores_j <= scores_i}。
// 并列成绩取并列中的最好名次；size 为参与排名的总人数（通常等于 len(scores)）。
// size < len(scores) 会产生小于 1 的名次，返回 ErrInvalidInput。
func MaxTies(scores []float64, size int) ([]int, error) {
	if size < len(scores) {
		return nil, fmt.Errorf("%w: ranking size %d < %d scores", contract.ErrInvalidInput, size, len(scores))
	}
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)
	out := make([]int, len(scores))
	for i, s := range scores {
		// 第一个 > s 的位置即 <= s 的计数
		le := sort.Search(len(sorted), func(k int) bool { return sorted[k] > s })
		out[i] = size + 1 - le
	}
	return out, nil
}
