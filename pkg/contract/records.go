package contract

import "context"

// RecordSource: 成绩表输入源。
// 约束：
//  1. 按输入行序回调（非按名次/分数排序）；
//  2. Rank 已在回调前计算完成；
//  3. yield 返回错误时立即停止并原样上抛；
//  4. 不在内部起并发。
type RecordSource interface {
	Iterate(ctx context.Context, yield func(Record) error) error
}

// MessageBuilder: 纯计算，由 Record 渲染通知载荷；不做 I/O。
type MessageBuilder interface {
	Build(ctx context.Context, r Record) (Message, error)
}
