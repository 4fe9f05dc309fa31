package envblock

import (
	"fmt"
	"regexp"
	"strings"

	"beamerscore/pkg/contract"
)

// Segmenter 持有一组按优先级排列的捕获环境名及其 begin/end 标记。
// 构造后只读，可被多个 Stream 复用。
type Segmenter struct {
	names []string
	begin []*regexp.Regexp
	end   map[string]*regexp.Regexp
}

// New 创建分段器。names 的顺序即匹配优先级；名字按字面匹配。
func New(names []string) (*Segmenter, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("envblock: %w: capture names empty", contract.ErrInvalidInput)
	}
	s := &Segmenter{
		names: make([]string, 0, len(names)),
		begin: make([]*regexp.Regexp, 0, len(names)),
		end:   make(map[string]*regexp.Regexp, len(names)),
	}
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			return nil, fmt.Errorf("envblock: %w: empty capture name", contract.ErrInvalidInput)
		}
		if _, dup := s.end[n]; dup {
			continue
		}
		q := regexp.QuoteMeta(n)
		s.names = append(s.names, n)
		s.begin = append(s.begin, regexp.MustCompile(`\\begin\{`+q+`\}`))
		s.end[n] = regexp.MustCompile(`\\end\{` + q + `\}`)
	}
	return s, nil
}

// Names 返回去重后的捕获名（按优先级）。
func (s *Segmenter) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Stream 在 src 上启动一次分段；src 的生命周期仍由调用方负责。
func (s *Segmenter) Stream(src contract.LineSource) *Stream {
	return &Stream{seg: s, src: src}
}

// Stream 实现 contract.SegmentStream。两态状态机：
//   - Idle：按优先级测试 begin 标记；命中则转入 Capturing 并缓冲该行，否则输出普通行；
//   - Capturing(name)：缓冲每一行；命中 name 的 end 标记则输出整块并回到 Idle。
//
// 假设：\begin 与 \end 不在同一行；不支持同名嵌套（不检测）。
// 输入结束时若仍处于 Capturing，已缓冲的行被丢弃，不报错。
type Stream struct {
	seg *Segmenter
	src contract.LineSource

	open string // 非空即 Capturing
	buf  strings.Builder
	cur  contract.Segment
	err  error
}

var _ contract.SegmentStream = (*Stream)(nil)

// Next 前进到下一个分段。
func (st *Stream) Next() bool {
	if st.err != nil {
		return false
	}
	for st.src.Next() {
		line := st.src.Line()
		if st.open != "" {
			st.buf.WriteString(line)
			if st.seg.end[st.open].MatchString(line) {
				st.cur = contract.Segment{Text: st.buf.String(), Name: st.open}
				st.buf.Reset()
				st.open = ""
				return true
			}
			continue
		}
		if name, ok := st.matchBegin(line); ok {
			st.open = name
			st.buf.WriteString(line)
			continue
		}
		st.cur = contract.Segment{Text: line}
		return true
	}
	st.err = st.src.Err()
	st.cur = contract.Segment{}
	return false
}

func (st *Stream) matchBegin(line string) (string, bool) {
	for i, re := range st.seg.begin {
		if re.MatchString(line) {
			return st.seg.names[i], true
		}
	}
	return "", false
}

// Segment 返回当前分段。
func (st *Stream) Segment() contract.Segment { return st.cur }

// Err 返回上游行源的错误。
func (st *Stream) Err() error { return st.err }

// Collect 读尽分段流（测试与小文档便捷函数）。
func Collect(ss contract.SegmentStream) ([]contract.Segment, error) {
	var out []contract.Segment
	for ss.Next() {
		out = append(out, ss.Segment())
	}
	return out, ss.Err()
}
