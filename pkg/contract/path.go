package contract

import (
	"path"
	"strings"
)

// NormalizeDocPath 规范化文档引用路径，统一为正斜杠形式。
// 规则：
// - 反斜杠视为分隔符（Windows 下的 \input{chap\intro}）；
// - 清理多余分隔符与 .、.. 片段；
// - 保留相对/绝对语义，不做隐式绝对化。
func NormalizeDocPath(p string) string {
	s := strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	return path.Clean(s)
}

// EnsureExt 在 p 不以 ext 结尾时追加 ext（大小写敏感，与 LaTeX 行为一致）。
func EnsureExt(p, ext string) string {
	if ext == "" || strings.HasSuffix(p, ext) {
		return p
	}
	return p + ext
}
