// Package dispatch 实现成绩通知的顺序派发：
// 逐条发送；瞬时失败原地固定间隔无限重试（断开→等待→重连→重新认证）；
// 正常结束或未分类失败时按策略持久化续发断点。
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"beamerscore/internal/diag"
	"beamerscore/internal/rate"
	"beamerscore/pkg/contract"
)

// ErrAborted 标记派发被未分类失败终止；errors.Is 可判定，底层错误保留在链上。
var ErrAborted = errors.New("dispatch aborted")

// Components 聚合派发所需组件。
type Components struct {
	Source  contract.RecordSource
	Builder contract.MessageBuilder
	Mailer  contract.Mailer
	// Store: 续发断点持久化；Resume 关闭时可为 nil。
	Store contract.ResumeStore
	// Gate: 可选发送节流。
	Gate rate.Gate
	// Sleep: 重试间隔的可取消睡眠；nil 使用 rate.Sleep。
	Sleep rate.SleepFunc
	// Term: 可选终端状态提示。
	Term *diag.Terminal
}

// Settings 运行期只读设置。
type Settings struct {
	Filter      Filter
	Credentials contract.Credentials
	// Wait: 瞬时失败后的固定重试间隔。
	Wait time.Duration
	// Resume: 续发策略（continue_unsent && !debugmode）；关闭时从不持久化。
	Resume bool
}

// Summary 为一次运行的结果摘要。
type Summary struct {
	Sent    int
	Skipped int
	Retries int
	// Resume: 已持久化的断点；Persisted=false 时无意义。
	Resume    int
	Persisted bool
}

// Run 执行派发循环。返回的错误：
//   - nil：全部记录处理完毕；
//   - 包装 ErrAborted：未分类失败（含重连/认证失败、构造失败、输入源错误、ctx 取消）。
func Run(ctx context.Context, comp Components, set Settings, logger *zap.Logger) (Summary, error) {
	if err := sanity(comp, set); err != nil {
		return Summary{}, fmt.Errorf("sanity: %w", err)
	}
	if logger == nil {
		logger = diag.Nop()
	}
	l := &loop{comp: comp, set: set, log: logger.With(zap.String("comp", "dispatch"))}
	if l.comp.Sleep == nil {
		l.comp.Sleep = rate.Sleep
	}
	return l.run(ctx)
}

type loop struct {
	comp Components
	set  Settings
	log  *zap.Logger

	sum  Summary
	last int  // 最近一条被迭代记录的序号（无论是否满足条件）
	seen bool // 是否迭代过任何记录
}

func (l *loop) run(ctx context.Context) (Summary, error) {
	timer := diag.Start(l.log, "dispatch", "run")
	err := l.login(ctx)
	if err == nil {
		err = l.comp.Source.Iterate(ctx, func(r contract.Record) error { return l.handle(ctx, r) })
	}
	_ = l.comp.Mailer.Close()

	if err != nil {
		timer.Fail("dispatch aborted", err)
		if l.set.Resume {
			l.log.Info("Unexpected Exception")
		}
		if perr := l.persist(l.last); perr != nil {
			err = errors.Join(err, perr)
		}
		if l.seen {
			return l.sum, fmt.Errorf("%w at no.%d: %w", ErrAborted, l.last, err)
		}
		return l.sum, fmt.Errorf("%w: %w", ErrAborted, err)
	}

	l.log.Info("All mails successfully sent.")
	if perr := l.persist(l.last + 1); perr != nil {
		return l.sum, perr
	}
	timer.Finish("run", zap.Int("sent", l.sum.Sent), zap.Int("skipped", l.sum.Skipped), zap.Int("retries", l.sum.Retries))
	return l.sum, nil
}

// handle 处理一条记录；返回错误即终止迭代。
func (l *loop) handle(ctx context.Context, r contract.Record) error {
	l.last, l.seen = r.No, true
	if !l.set.Filter.Eligible(r) {
		l.sum.Skipped++
		l.comp.Term.Skipped(r.No)
		l.log.Debug("skip", zap.Int("no", r.No))
		return nil
	}
	return l.deliver(ctx, r)
}

func (l *loop) deliver(ctx context.Context, r contract.Record) error {
	msg, err := l.comp.Builder.Build(ctx, r)
	if err != nil {
		return fmt.Errorf("build no.%d: %w", r.No, err)
	}
	for {
		if l.comp.Gate != nil {
			if err := l.comp.Gate.Wait(ctx); err != nil {
				return err
			}
		}
		err := l.comp.Mailer.Send(ctx, msg)
		if err == nil {
			l.sum.Sent++
			l.comp.Term.Sent(r.No)
			l.log.Info("no."+strconv.Itoa(r.No)+" is sent!", zap.Int("no", r.No))
			return nil
		}
		if !contract.IsTransient(err) {
			return fmt.Errorf("send no.%d: %w", r.No, err)
		}
		l.sum.Retries++
		l.log.Info(fmt.Sprintf("Send failure occurred when processing no.%d: %s", r.No, r.StudentID))
		l.log.Debug("transient send failure", zap.Int("no", r.No), zap.String("code", string(diag.Classify(err))), zap.Error(err))
		_ = l.comp.Mailer.Close()
		l.comp.Term.Retry(r.No, l.set.Wait)
		l.log.Info(fmt.Sprintf("Try again in %g seconds...", l.set.Wait.Seconds()))
		if err := l.comp.Sleep(ctx, l.set.Wait); err != nil {
			return err
		}
		if err := l.login(ctx); err != nil {
			return err
		}
	}
}

// login 建立连接并认证。
func (l *loop) login(ctx context.Context) error {
	if err := l.comp.Mailer.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if err := l.comp.Mailer.Login(ctx, l.set.Credentials); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	l.log.Info("login successful.")
	return nil
}

// persist 在策略开启且迭代过记录时写入断点。
func (l *loop) persist(no int) error {
	if !l.set.Resume || !l.seen {
		return nil
	}
	if err := l.comp.Store.SaveResume(no); err != nil {
		l.log.Error("persist resume point failed", zap.Int("no", no), zap.Error(err))
		return fmt.Errorf("save resume %d: %w", no, err)
	}
	l.sum.Resume, l.sum.Persisted = no, true
	l.log.Debug("resume point persisted", zap.Int("starting_no", no))
	return nil
}

func sanity(c Components, s Settings) error {
	if c.Source == nil || c.Builder == nil || c.Mailer == nil {
		return errors.New("dispatch: missing components")
	}
	if s.Resume && c.Store == nil {
		return errors.New("dispatch: resume enabled without store")
	}
	if s.Wait < 0 {
		return fmt.Errorf("%w: negative wait", contract.ErrConfig)
	}
	return nil
}
