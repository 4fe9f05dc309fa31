package html

import (
	"fmt"
	"strings"

	"beamerscore/pkg/contract"
)

// 模板片段：literal 为原文，key 非空时为占位符。
type piece struct {
	literal string
	key     string
}

// compile 解析 {key} 占位符；{{ 与 }} 转义为字面量花括号。
// 未知占位符与未配对的花括号在解析期失败。
func compile(tpl string, known map[string]bool) ([]piece, error) {
	var out []piece
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			out = append(out, piece{literal: lit.String()})
			lit.Reset()
		}
	}
	for i := 0; i < len(tpl); i++ {
		c := tpl[i]
		switch {
		case c == '{' && i+1 < len(tpl) && tpl[i+1] == '{':
			lit.WriteByte('{')
			i++
		case c == '}' && i+1 < len(tpl) && tpl[i+1] == '}':
			lit.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(tpl[i+1:], '}')
			if end < 0 {
				return nil, fmt.Errorf("%w: unclosed '{' at offset %d", contract.ErrConfig, i)
			}
			key := tpl[i+1 : i+1+end]
			if !known[key] {
				return nil, fmt.Errorf("%w: unknown placeholder {%s}", contract.ErrConfig, key)
			}
			flush()
			out = append(out, piece{key: key})
			i += end + 1
		case c == '}':
			return nil, fmt.Errorf("%w: single '}' at offset %d", contract.ErrConfig, i)
		default:
			lit.WriteByte(c)
		}
	}
	flush()
	return out, nil
}

func render(pieces []piece, vals map[string]string) string {
	var b strings.Builder
	for _, p := range pieces {
		if p.key == "" {
			b.WriteString(p.literal)
			continue
		}
		b.WriteString(vals[p.key])
	}
	return b.String()
}
