package diag

import (
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options: 日志器构造参数。
type Options struct {
	// Level: 控制台级别（debug|info|warn|error），默认 info；文件恒为 debug。
	Level string
	// Dir: 日志目录；为空则不写文件。
	Dir string
	// Name: 文件名前缀。
	Name string
	// MaxBytes: 单文件轮转阈值；<=0 为 10 MiB。
	MaxBytes int64
	// Keep: 保留的历史日志数；0 为 5，<0 不清理。
	Keep int
	// CorrID: 写入文件记录的关联 ID。
	CorrID string
	// Console: 控制台输出；nil 为 stderr。
	Console io.Writer
}

// ConsoleLayout 为控制台时间格式。
const ConsoleLayout = "2006-01-02 15:04:05"

// NewLogger 构造双路日志器：
//   - 控制台：`<时间> - <消息>`，不带结构化字段；
//   - 文件：debug 级 JSON，按大小轮转，附带 corr_id。
//
// 返回的 closer 会刷盘并关闭文件。
func NewLogger(o Options) (*zap.Logger, func() error, error) {
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(o.Level))
	if err != nil || strings.TrimSpace(o.Level) == "" {
		lvl = zapcore.InfoLevel
	}
	console := o.Console
	if console == nil {
		console = os.Stderr
	}
	cores := []zapcore.Core{
		messageOnly{zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEncoderConfig()), zapcore.AddSync(console), lvl)},
	}
	closer := func() error { return nil }
	if o.Dir != "" {
		if err := os.MkdirAll(o.Dir, 0o755); err != nil {
			return nil, nil, err
		}
		rf := NewRotatingFile(o.Dir, o.Name, o.MaxBytes)
		if o.Keep != 0 {
			rf.SetKeep(o.Keep)
		}
		fc := zapcore.NewCore(zapcore.NewJSONEncoder(fileEncoderConfig()), rf, zapcore.DebugLevel)
		if o.CorrID != "" {
			fc = fc.With([]zapcore.Field{zap.String("corr_id", o.CorrID)})
		}
		cores = append(cores, fc)
		closer = func() error {
			_ = rf.Sync()
			return rf.Close()
		}
	}
	return zap.New(zapcore.NewTee(cores...)), closer, nil
}

// Nop 返回丢弃一切的日志器（测试与库默认）。
func Nop() *zap.Logger { return zap.NewNop() }

func consoleEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:          "ts",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeTime:       zapcore.TimeEncoderOfLayout(ConsoleLayout),
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " - ",
	}
}

func fileEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		MessageKey:     "msg",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
	}
}

// messageOnly 丢弃结构化字段，控制台只保留时间与消息。
type messageOnly struct{ zapcore.Core }

func (c messageOnly) With([]zapcore.Field) zapcore.Core { return c }

func (c messageOnly) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(e.Level) {
		return ce.AddCore(e, c)
	}
	return ce
}

func (c messageOnly) Write(e zapcore.Entry, _ []zapcore.Field) error {
	return c.Core.Write(e, nil)
}

// Start 在文件中记录 start 事件；返回计时器用于 Finish。
func Start(l *zap.Logger, comp, msg string) *Timer {
	l = l.With(zap.String("comp", comp))
	l.Debug(msg, zap.String("stage", "start"))
	return &Timer{l: l, t0: time.Now()}
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l  *zap.Logger
	t0 time.Time
}

// Finish 记录 finish 与耗时；fields 附加在事件上。
func (t *Timer) Finish(msg string, fields ...zap.Field) {
	if t == nil || t.l == nil {
		return
	}
	fs := append([]zap.Field{zap.String("stage", "finish"), zap.Int64("dur_ms", time.Since(t.t0).Milliseconds())}, fields...)
	t.l.Debug(msg, fs...)
}

// Fail 记录 error 事件，附带错误分类。
func (t *Timer) Fail(msg string, err error) {
	if t == nil || t.l == nil {
		return
	}
	t.l.Error(msg,
		zap.String("stage", "error"),
		zap.String("code", string(Classify(err))),
		zap.Int64("dur_ms", time.Since(t.t0).Milliseconds()),
		zap.Error(err))
}
