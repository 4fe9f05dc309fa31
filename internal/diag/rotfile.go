package diag

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	defaultMaxBytes = 10 << 20
	defaultKeep     = 5
	rotateLayout    = "20060102-150405.000000000"
)

// RotatingFile 是按大小轮转的日志落盘端（zapcore.WriteSyncer）。
// 当前文件为 <name>-current.log；超过阈值时改名为 <name>-<UTC 时间戳>.log，
// 历史文件只保留最新的 keep 个。
type RotatingFile struct {
	dir      string
	name     string
	maxBytes int64
	keep     int

	mu   sync.Mutex
	f    *os.File
	size int64
	now  func() time.Time
}

// NewRotatingFile 构造轮转文件；maxBytes<=0 为 10 MiB，name 为空时取 "beamerscore"。
func NewRotatingFile(dir, name string, maxBytes int64) *RotatingFile {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}
	if name == "" {
		name = "beamerscore"
	}
	return &RotatingFile{dir: dir, name: name, maxBytes: maxBytes, keep: defaultKeep, now: time.Now}
}

// SetKeep 设置保留的历史文件数；<=0 表示不清理。
func (w *RotatingFile) SetKeep(n int) {
	w.mu.Lock()
	w.keep = n
	w.mu.Unlock()
}

// Write 写入一条记录。单条超过阈值时照样写入当前文件，不产生空的历史文件。
func (w *RotatingFile) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		if err := w.open(); err != nil {
			return 0, err
		}
	}
	if w.size > 0 && w.size+int64(len(p)) > w.maxBytes {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := w.f.Write(p)
	w.size += int64(n)
	return n, err
}

func (w *RotatingFile) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	return w.f.Sync()
}

// CurrentPath 返回当前日志文件路径。
func (w *RotatingFile) CurrentPath() string {
	return filepath.Join(w.dir, w.name+"-current.log")
}

// Rotated 返回现存历史文件（旧 → 新）。
func (w *RotatingFile) Rotated() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(w.dir, w.name+"-*.log"))
	if err != nil {
		return nil, err
	}
	cur := w.CurrentPath()
	out := matches[:0]
	for _, m := range matches {
		if m != cur {
			out = append(out, m)
		}
	}
	// 时间戳定宽，字典序即时间序
	sort.Strings(out)
	return out, nil
}

func (w *RotatingFile) open() error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.CurrentPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w.f, w.size = f, 0
	if st, err := f.Stat(); err == nil {
		w.size = st.Size()
	}
	return nil
}

func (w *RotatingFile) rotate() error {
	_ = w.f.Close()
	w.f = nil
	ts := w.now().UTC().Format(rotateLayout)
	dst := filepath.Join(w.dir, fmt.Sprintf("%s-%s.log", w.name, ts))
	if err := os.Rename(w.CurrentPath(), dst); err != nil {
		return fmt.Errorf("rotate %s: %w", w.name, err)
	}
	w.prune()
	return w.open()
}

// prune 删除超出保留数的最旧历史文件；失败忽略。
func (w *RotatingFile) prune() {
	if w.keep <= 0 {
		return
	}
	old, err := w.Rotated()
	if err != nil || len(old) <= w.keep {
		return
	}
	for _, p := range old[:len(old)-w.keep] {
		_ = os.Remove(p)
	}
}

func (w *RotatingFile) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}
