// Package offline 提供离线模拟邮件服务：按概率制造瞬时失败，其余写入转储文件。
package offline

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	"beamerscore/pkg/contract"
)

const separator = "=============================="

// Options 对应 [Debug] 分区中的离线设置。
type Options struct {
	DumpFile string `ini:"offlinedumpfile"`
	// ErrorPercentile: 失败阈值；每次发送抽取 [0,100] 整数，小于阈值即失败。
	ErrorPercentile float64 `ini:"offlineerrorpercentile"`
	// Seed: 随机种子；0 表示按时间播种。
	Seed int64 `ini:"offlineseed"`
}

// Server 为离线模拟实现；Connect/Login/Close 为空操作，实例原地复用。
type Server struct {
	dump string
	pct  float64

	mu  sync.Mutex
	rnd *rand.Rand
}

// New 截断转储文件并返回 Server。
func New(opts Options) (*Server, error) {
	if strings.TrimSpace(opts.DumpFile) == "" {
		return nil, fmt.Errorf("%w: offlinedumpfile is empty", contract.ErrConfig)
	}
	f, err := os.Create(opts.DumpFile)
	if err != nil {
		return nil, fmt.Errorf("offline: truncate dump: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Server{dump: opts.DumpFile, pct: opts.ErrorPercentile, rnd: rand.New(rand.NewSource(seed))}, nil
}

func (s *Server) Connect(context.Context) error                     { return nil }
func (s *Server) Login(context.Context, contract.Credentials) error { return nil }
func (s *Server) Close() error                                      { return nil }

// Send 按概率失败；成功时将消息追加到转储文件。
func (s *Server) Send(ctx context.Context, m contract.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	draw := s.rnd.Intn(101)
	s.mu.Unlock()
	if float64(draw) < s.pct {
		return &contract.TransientError{Op: "offline send", Err: fmt.Errorf("simulated failure (draw %d < %g)", draw, s.pct)}
	}
	f, err := os.OpenFile(s.dump, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString("\n" + separator + "\n")
	b.WriteString("Subject:" + m.Subject + "\n")
	b.WriteString("From:" + m.From() + "\n")
	b.WriteString("To:" + m.To + "\n")
	b.WriteString(m.HTML)
	b.WriteString("\n\n\n")
	if _, err := f.WriteString(b.String()); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

var _ contract.Mailer = (*Server)(nil)
