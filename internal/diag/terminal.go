package diag

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Terminal: 终端状态提示（非日志）。
// - TTY: 单行 \r 覆盖；非 TTY: 仅关键节点分行打印。
// - 并发安全；写失败后进入禁用态为 no-op；nil 接收者为 no-op。
type Terminal struct {
	w       io.Writer
	enabled bool
	isTTY   bool

	label    string
	runStart time.Time
	sent     int
	retries  int
	skipped  int

	lastLen   int
	lastFlush time.Time

	mu sync.Mutex
}

// NewTerminal 构造终端提示器。
// enabled=false 时总是 no-op。
func NewTerminal(w io.Writer, enabled bool) *Terminal {
	if w == nil {
		w = os.Stderr
	}
	t := &Terminal{w: w, enabled: enabled}
	// CI 环境视为非 TTY
	if os.Getenv("CI") != "" {
		t.isTTY = false
	} else if f, ok := w.(*os.File); ok {
		// 最小 TTY 判定：字符设备
		if fi, err := f.Stat(); err == nil {
			t.isTTY = fi.Mode()&os.ModeCharDevice != 0
		}
	}
	return t
}

// RunStart 记录运行上下文（例如后端名或输入文件）。
func (t *Terminal) RunStart(label string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.label = shortenBase(safe(label), 48)
	t.runStart = time.Now()
	t.sent, t.retries, t.skipped = 0, 0, 0
	t.println(fmt.Sprintf("[run] %s", t.label))
}

// Sent 记录一封成功发送；TTY 下节流刷新进度行。
func (t *Terminal) Sent(no int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.sent++
	t.progress(no, false)
}

// Skipped 记录一条不满足条件的记录。
func (t *Terminal) Skipped(no int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.skipped++
	t.progress(no, false)
}

// Retry 记录一次瞬时失败后的等待；总是立即输出。
func (t *Terminal) Retry(no int, wait time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.retries++
	if t.isTTY {
		t.progress(no, true)
		return
	}
	t.println(fmt.Sprintf("[retry] no.%d | %s 后重试", no, formatDur(wait)))
}

func (t *Terminal) progress(no int, force bool) {
	if !t.isTTY {
		return
	}
	// 节流：100ms
	now := time.Now()
	if !force && now.Sub(t.lastFlush) < 100*time.Millisecond {
		return
	}
	t.lastFlush = now
	t.printInline(fmt.Sprintf("[send] %s | no.%d | 已发送 %d | 跳过 %d | 重试 %d | 用时 %s",
		t.label, no, t.sent, t.skipped, t.retries, formatSince(t.runStart)))
}

// RunFinish 结束总览；detail 为附加摘要。
func (t *Terminal) RunFinish(ok bool, detail string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	tag := "ok"
	if !ok {
		tag = "fail"
	}
	// 先清掉可能的行尾
	if t.isTTY && t.lastLen > 0 {
		t.printInline("")
		_, _ = io.WriteString(t.w, "\r")
	}
	t.println(fmt.Sprintf("[%s] %s | 总用时 %s", tag, safe(detail), formatSince(t.runStart)))
}

// 内部输出工具
func (t *Terminal) println(s string) {
	if !t.enabled {
		return
	}
	if _, err := io.WriteString(t.w, s+"\n"); err != nil {
		// 写失败即禁用
		t.enabled = false
	}
	t.lastLen = 0
}

func (t *Terminal) printInline(s string) {
	if !t.enabled {
		return
	}
	// 若新行比旧短，填充空格覆盖
	pad := 0
	if l := visLen(s); t.lastLen > l {
		pad = t.lastLen - l
	}
	var b strings.Builder
	b.WriteByte('\r')
	b.WriteString(s)
	if pad > 0 {
		b.WriteString(strings.Repeat(" ", pad))
	}
	if _, err := io.WriteString(t.w, b.String()); err != nil {
		t.enabled = false
		return
	}
	t.lastLen = visLen(s)
}

// shortenBase: 取基名并按可见宽度截断（尾部省略号）。
func shortenBase(s string, max int) string {
	if max <= 0 {
		return ""
	}
	base := filepath.Base(strings.TrimSpace(s))
	if base == "." {
		return ""
	}
	rs := []rune(base)
	if len(rs) <= max {
		return base
	}
	return string(rs[:max-1]) + "…"
}

func visLen(s string) int { return len([]rune(s)) }

func safe(s string) string {
	// 避免换行等控制字符污染终端
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return s
}

func formatSince(t0 time.Time) string { return formatDur(time.Since(t0)) }

func formatDur(d time.Duration) string {
	if d < time.Second {
		ms := d.Milliseconds()
		if ms < 0 {
			ms = 0
		}
		return fmt.Sprintf("%dms", ms)
	}
	// 秒，保留 1 位小数
	return fmt.Sprintf("%.1fs", float64(d.Milliseconds())/1000.0)
}
