package beamer

import (
	"fmt"
	"io"

	"beamerscore/pkg/contract"
)

// Options: frame 输出选项。
type Options struct {
	// KeepPlain: 是否原样写出普通行。nil 表示默认 true；显式 false 时仅输出 frame。
	KeepPlain *bool `yaml:"keep_plain"`
}

// Emitter 将捕获块包装为固定模板：
//
//	\begin{frame}
//	\frametitle{<title>}
//	<block>
//	\end{frame}
//	<空行>
type Emitter struct {
	keepPlain bool
	title     func(string) string
}

var _ contract.FrameEmitter = (*Emitter)(nil)

// New 创建 Emitter。
func New(opts *Options) *Emitter {
	keep := true
	if opts != nil && opts.KeepPlain != nil {
		keep = *opts.KeepPlain
	}
	return &Emitter{keepPlain: keep, title: GuessTitle}
}

// Emit 写出一个分段。
func (e *Emitter) Emit(w io.Writer, seg contract.Segment) error {
	if !seg.Captured() {
		if !e.keepPlain {
			return nil
		}
		_, err := io.WriteString(w, seg.Text)
		return err
	}
	if _, err := fmt.Fprintf(w, "\\begin{frame}\n\\frametitle{%s}\n", e.title(seg.Text)); err != nil {
		return err
	}
	if _, err := io.WriteString(w, seg.Text); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\\end{frame}\n\n")
	return err
}
