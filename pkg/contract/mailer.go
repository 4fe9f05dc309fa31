package contract

import "context"

// Mailer: 发送端能力集合 {connect, authenticate, send, close}。
// 实现分两类：真实网络客户端与模拟客户端；由配置选择，派发逻辑不做分支。
// 约束：
//  1. Send 的可恢复协议级失败必须包装为 *TransientError；其余错误视为未分类；
//  2. Close 之后允许再次 Connect（重连）；
//  3. 同步调用，不在内部起并发。
type Mailer interface {
	Connect(ctx context.Context) error
	Login(ctx context.Context, cred Credentials) error
	Send(ctx context.Context, m Message) error
	Close() error
}

// ResumeStore: 续发断点持久化（例如回写配置文件）。
type ResumeStore interface {
	SaveResume(no int) error
}
