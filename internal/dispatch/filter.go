package dispatch

import (
	"strings"

	"beamerscore/pkg/contract"
)

// Filter: 单条记录是否应发送。由只读配置一次构造，运行期不变。
type Filter struct {
	StartingNo int    // no >= StartingNo
	AddrFilter string // 地址需包含该子串；空串总是满足
	DebugMode  bool   // 调试模式下额外要求 no <= Trials
	Trials     int
}

// Eligible 报告 r 是否满足发送条件。
func (f Filter) Eligible(r contract.Record) bool {
	if r.No < f.StartingNo || !strings.Contains(r.Address, f.AddrFilter) {
		return false
	}
	if f.DebugMode && r.No > f.Trials {
		return false
	}
	return true
}
