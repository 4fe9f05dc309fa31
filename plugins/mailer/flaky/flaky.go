package flaky

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"beamerscore/pkg/contract"
)

// ErrScripted: 脚本化的不可恢复失败。
var ErrScripted = errors.New("flaky: scripted fatal failure")

// Options 定义可选项。
type Options struct {
	// Failures: 前 N 次 Send 返回瞬时失败。
	Failures int `ini:"failures"`
	// FatalAt: 第 K 次 Send（从 1 计，含失败次数）返回不可恢复错误；0 表示不启用。
	FatalAt int `ini:"fatal_at"`
	// LogPath: 调试用日志文件，记录每次调用结果（可选）。
	LogPath string `ini:"log_path"`
}

// Mailer 是带状态的 Mailer 实现：
// 前 Failures 次 Send 返回瞬时失败；第 FatalAt 次返回 ErrScripted；其余成功并记录。
type Mailer struct {
	opts Options

	mu       sync.Mutex
	attempts int
	connects int
	logins   int
	closes   int
	sent     []contract.Message
}

// New 构造 Mailer。
func New(opts Options) (*Mailer, error) {
	if opts.Failures < 0 || opts.FatalAt < 0 {
		return nil, fmt.Errorf("%w: flaky counters must be >= 0", contract.ErrConfig)
	}
	return &Mailer{opts: opts}, nil
}

func (m *Mailer) log(s string) {
	if m.opts.LogPath == "" {
		return
	}
	// 追加写入，忽略错误。
	_ = appendFile(m.opts.LogPath, s+"\n")
}

// appendFile 以追加方式写入。
func appendFile(path, s string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(s)
	return err
}

func (m *Mailer) Connect(ctx context.Context) error {
	m.mu.Lock()
	m.connects++
	m.mu.Unlock()
	m.log("connect")
	return ctx.Err()
}

func (m *Mailer) Login(ctx context.Context, _ contract.Credentials) error {
	m.mu.Lock()
	m.logins++
	m.mu.Unlock()
	m.log("login")
	return ctx.Err()
}

// Send 实现 contract.Mailer。
func (m *Mailer) Send(ctx context.Context, msg contract.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.attempts++
	n := m.attempts
	m.mu.Unlock()
	switch {
	case m.opts.FatalAt > 0 && n == m.opts.FatalAt:
		m.log("fatal")
		return ErrScripted
	case n <= m.opts.Failures:
		m.log("transient")
		return &contract.TransientError{Op: "flaky send", Err: fmt.Errorf("attempt %d", n)}
	}
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	m.log("ok " + msg.Subject)
	return nil
}

func (m *Mailer) Close() error {
	m.mu.Lock()
	m.closes++
	m.mu.Unlock()
	m.log("close")
	return nil
}

// Stats 返回调用计数（诊断/测试）。
type Stats struct {
	Attempts, Connects, Logins, Closes int
}

func (m *Mailer) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{Attempts: m.attempts, Connects: m.connects, Logins: m.logins, Closes: m.closes}
}

// Sent 返回成功发送的消息副本。
func (m *Mailer) Sent() []contract.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]contract.Message(nil), m.sent...)
}

var _ contract.Mailer = (*Mailer)(nil)
