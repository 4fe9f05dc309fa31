package contract

import "io"

// Opener: 按名打开文档（文件系统/内存 fs.FS 均可注入）。
// 不存在时应返回可被 errors.Is(err, fs.ErrNotExist) 识别的错误。
type Opener func(name string) (io.ReadCloser, error)

// LineSource: 惰性、有限、不可重启的行序列（显式 has-next/pull-next 协议）。
// 约束：
//  1. Line 保留行尾换行（CRLF 归一为 LF）；
//  2. Next 返回 false 后须检查 Err；nil 表示正常结束；
//  3. Close 释放所有仍打开的句柄，可重复调用。
type LineSource interface {
	Next() bool
	Line() string
	Err() error
	Close() error
}

// SegmentStream: 分段序列，协议与 LineSource 相同。
type SegmentStream interface {
	Next() bool
	Segment() Segment
	Err() error
}

// FrameEmitter: 将分段写为目标文本（例如 beamer frame）。
// 不做缓冲策略假设；错误直接上抛。
type FrameEmitter interface {
	Emit(w io.Writer, seg Segment) error
}
