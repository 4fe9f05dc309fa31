package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"beamerscore/internal/diag"
	"beamerscore/pkg/contract"
)

// - 单线程：行源 → 分段 → 发射全部同步执行，无内部并发。
// - 先渲染后写出：完整结果进入内存缓冲，成功后一次性交给 Writer（原子替换目标文件）；
//   任何阶段失败都不会触碰输出文件。

// Components 聚合转换所需的原子组件。
type Components struct {
	// Open 打开根文档，返回已内联 \input 的行源。
	Open func(name string) (contract.LineSource, error)
	// Segment 将行源切分为分段流。
	Segment func(src contract.LineSource) contract.SegmentStream
	Emitter contract.FrameEmitter
	Writer  contract.Writer
}

// Settings 运行期配置（最小必要）。
type Settings struct {
	Input  string
	Output string
}

// Stats 汇总一次转换。
type Stats struct {
	Lines  int // 展平后的行数
	Frames int // 捕获并发射的环境块
	Plain  int // 普通行分段
	Bytes  int // 输出字节数
}

// Convert 执行 LineSource → BlockSegmenter → FrameEmitter → Writer。
func Convert(ctx context.Context, comp Components, set Settings, logger *zap.Logger) (Stats, error) {
	var st Stats
	if err := sanity(comp, set); err != nil {
		return st, fmt.Errorf("sanity: %w", err)
	}
	if logger == nil {
		logger = diag.Nop()
	}
	logger = logger.With(zap.String("input", set.Input), zap.String("output", set.Output))

	timer := diag.Start(logger, "source", "open")
	src, err := comp.Open(set.Input)
	if err != nil {
		timer.Fail("open failed", err)
		return st, fmt.Errorf("source open: %w", err)
	}
	defer src.Close()
	timer.Finish("open")

	counted := &countingSource{LineSource: src}
	ss := comp.Segment(counted)
	var buf bytes.Buffer
	timer = diag.Start(logger, "emitter", "emit")
	for ss.Next() {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		seg := ss.Segment()
		if seg.Captured() {
			st.Frames++
		} else {
			st.Plain++
		}
		if err := comp.Emitter.Emit(&buf, seg); err != nil {
			timer.Fail("emit failed", err)
			return st, fmt.Errorf("emit: %w", err)
		}
	}
	st.Lines = counted.n
	if err := ss.Err(); err != nil {
		timer.Fail("segment failed", err)
		return st, fmt.Errorf("segment: %w", err)
	}
	timer.Finish("emit", zap.Int("frames", st.Frames), zap.Int("plain", st.Plain), zap.Int("lines", st.Lines))

	st.Bytes = buf.Len()
	timer = diag.Start(logger, "writer", "write")
	if err := comp.Writer.Write(ctx, contract.ArtifactID(set.Output), &buf); err != nil {
		timer.Fail("write failed", err)
		return st, fmt.Errorf("writer: %w", err)
	}
	timer.Finish("write", zap.Int("bytes", st.Bytes))
	return st, nil
}

// countingSource 统计经过的行数。
type countingSource struct {
	contract.LineSource
	n int
}

func (c *countingSource) Next() bool {
	ok := c.LineSource.Next()
	if ok {
		c.n++
	}
	return ok
}

func sanity(c Components, s Settings) error {
	if c.Open == nil || c.Segment == nil || c.Emitter == nil || c.Writer == nil {
		return errors.New("pipeline: missing components")
	}
	if s.Input == "" || s.Output == "" {
		return fmt.Errorf("%w: empty input or output", contract.ErrInvalidInput)
	}
	if contract.NormalizeDocPath(s.Input) == contract.NormalizeDocPath(s.Output) {
		return fmt.Errorf("%w: output %q equals input", contract.ErrInvalidInput, s.Output)
	}
	return nil
}
