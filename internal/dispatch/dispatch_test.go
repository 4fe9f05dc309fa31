package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"beamerscore/internal/rate"
	"beamerscore/pkg/contract"
	"beamerscore/plugins/mailer/flaky"
)

// ---- 测试替身 ----

type sliceSource struct {
	recs []contract.Record
	err  error // 迭代完 recs 后返回
}

func (s sliceSource) Iterate(ctx context.Context, yield func(contract.Record) error) error {
	for _, r := range s.recs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := yield(r); err != nil {
			return err
		}
	}
	return s.err
}

// subjectBuilder: Subject 即序号，便于脚本化失败。
type subjectBuilder struct{ err map[int]error }

func (b subjectBuilder) Build(_ context.Context, r contract.Record) (contract.Message, error) {
	if e := b.err[r.No]; e != nil {
		return contract.Message{}, e
	}
	return contract.Message{Subject: strconv.Itoa(r.No), To: r.Address}, nil
}

// scriptMailer 对指定 Subject 依次返回脚本化错误，耗尽后成功。
type scriptMailer struct {
	script   map[string][]error
	loginErr []error // 依次用于第 2 次起的 Login
	sends    []string
	connects int
	logins   int
	closes   int
}

func (m *scriptMailer) Connect(context.Context) error { m.connects++; return nil }

func (m *scriptMailer) Login(context.Context, contract.Credentials) error {
	m.logins++
	if m.logins > 1 && len(m.loginErr) > 0 {
		e := m.loginErr[0]
		m.loginErr = m.loginErr[1:]
		return e
	}
	return nil
}

func (m *scriptMailer) Send(_ context.Context, msg contract.Message) error {
	m.sends = append(m.sends, msg.Subject)
	if q := m.script[msg.Subject]; len(q) > 0 {
		m.script[msg.Subject] = q[1:]
		return q[0]
	}
	return nil
}

func (m *scriptMailer) Close() error { m.closes++; return nil }

type memStore struct{ saved []int }

func (s *memStore) SaveResume(no int) error { s.saved = append(s.saved, no); return nil }

type recSleep struct{ calls []time.Duration }

func (s *recSleep) Sleep(ctx context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	return ctx.Err()
}

func records(nos ...int) []contract.Record {
	out := make([]contract.Record, len(nos))
	for i, n := range nos {
		out[i] = contract.Record{No: n, StudentID: "s" + strconv.Itoa(n), Address: "stu" + strconv.Itoa(n) + "@pku.edu.cn"}
	}
	return out
}

func transient() error { return &contract.TransientError{Op: "send", Err: errors.New("451 try later")} }

func observed() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

// ---- 测试 ----

func TestFilterEligible(t *testing.T) {
	cases := []struct {
		name string
		f    Filter
		r    contract.Record
		want bool
	}{
		{"满足", Filter{StartingNo: 3, AddrFilter: "pku"}, contract.Record{No: 3, Address: "a@pku.edu.cn"}, true},
		{"低于起点", Filter{StartingNo: 3, AddrFilter: "pku"}, contract.Record{No: 2, Address: "a@pku.edu.cn"}, false},
		{"地址不含子串", Filter{StartingNo: 1, AddrFilter: "pku"}, contract.Record{No: 5, Address: "a@thu.edu.cn"}, false},
		{"空子串总是满足", Filter{StartingNo: 1}, contract.Record{No: 5, Address: "x"}, true},
		{"调试模式上限内", Filter{StartingNo: 1, DebugMode: true, Trials: 5}, contract.Record{No: 5}, true},
		{"调试模式超上限", Filter{StartingNo: 1, DebugMode: true, Trials: 5}, contract.Record{No: 6}, false},
		{"非调试忽略上限", Filter{StartingNo: 1, Trials: 5}, contract.Record{No: 6}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.f.Eligible(tc.r))
		})
	}
}

// #5 首次瞬时失败、第二次成功：恰好一次重试、一条成功日志，断点为 last+1
func TestRunTransientRetryThenComplete(t *testing.T) {
	m := &scriptMailer{script: map[string][]error{"5": {transient()}}}
	store := &memStore{}
	sl := &recSleep{}
	logger, logs := observed()

	sum, err := Run(context.Background(),
		Components{Source: sliceSource{recs: records(1, 2, 3, 4, 5, 6, 7, 8)}, Builder: subjectBuilder{}, Mailer: m, Store: store, Sleep: sl.Sleep},
		Settings{Filter: Filter{StartingNo: 1, AddrFilter: "pku"}, Wait: 3 * time.Second, Resume: true},
		logger)
	require.NoError(t, err)

	assert.Equal(t, Summary{Sent: 8, Retries: 1, Resume: 9, Persisted: true}, sum)
	assert.Equal(t, []int{9}, store.saved)
	assert.Equal(t, []time.Duration{3 * time.Second}, sl.calls)
	assert.Equal(t, []string{"1", "2", "3", "4", "5", "5", "6", "7", "8"}, m.sends)
	assert.Equal(t, 1, logs.FilterMessage("no.5 is sent!").Len())
	assert.Equal(t, 2, logs.FilterMessage("login successful.").Len())
	assert.Equal(t, 1, logs.FilterMessage("Try again in 3 seconds...").Len())
	assert.Equal(t, 1, logs.FilterMessage("All mails successfully sent.").Len())
	// 初次 + 重连各一次；重试前与结束时各 Close 一次
	assert.Equal(t, 2, m.connects)
	assert.Equal(t, 2, m.closes)
}

// #7 未分类失败：断点为 7 而非 8
func TestRunUnclassifiedAbortPersistsInFlight(t *testing.T) {
	boom := errors.New("550 mailbox unavailable")
	m := &scriptMailer{script: map[string][]error{"7": {boom}}}
	store := &memStore{}
	logger, logs := observed()

	sum, err := Run(context.Background(),
		Components{Source: sliceSource{recs: records(1, 2, 3, 4, 5, 6, 7, 8)}, Builder: subjectBuilder{}, Mailer: m, Store: store},
		Settings{Resume: true},
		logger)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAborted)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, contract.Unclassified, contract.Kind(err))
	assert.Equal(t, []int{7}, store.saved)
	assert.Equal(t, 6, sum.Sent)
	assert.Equal(t, 7, sum.Resume)
	assert.Equal(t, 1, logs.FilterMessage("Unexpected Exception").Len())
	assert.Zero(t, logs.FilterMessage("All mails successfully sent.").Len())
	assert.Equal(t, 1, m.closes)
}

// 收件地址非法（构造邮件时即失败）不重试：中止并保存当前序号
func TestRunMalformedRecipientAborts(t *testing.T) {
	bad := fmt.Errorf("%w: to %q: %w", contract.ErrInvalidInput, "stu3@@pku", errors.New("mail: expected single address"))
	m := &scriptMailer{script: map[string][]error{"3": {bad}}}
	store := &memStore{}
	sl := &recSleep{}

	sum, err := Run(context.Background(),
		Components{Source: sliceSource{recs: records(1, 2, 3, 4)}, Builder: subjectBuilder{}, Mailer: m, Store: store, Sleep: sl.Sleep},
		Settings{Wait: time.Second, Resume: true},
		zap.NewNop())
	require.ErrorIs(t, err, ErrAborted)
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
	assert.Equal(t, contract.Unclassified, contract.Kind(err))
	assert.Equal(t, []int{3}, store.saved)
	assert.Equal(t, 2, sum.Sent)
	assert.Zero(t, sum.Retries)
	assert.Empty(t, sl.calls)
	assert.Equal(t, []string{"1", "2", "3"}, m.sends)
}

// 低于起点的记录从不尝试；断点取最后一条被迭代的记录（无论是否满足条件）
func TestRunSkipsAndResumeFromLastIterated(t *testing.T) {
	m := &scriptMailer{}
	store := &memStore{}
	recs := records(1, 2, 3, 4, 5)
	recs[4].Address = "other@thu.edu.cn"

	sum, err := Run(context.Background(),
		Components{Source: sliceSource{recs: recs}, Builder: subjectBuilder{}, Mailer: m, Store: store},
		Settings{Filter: Filter{StartingNo: 3, AddrFilter: "pku"}, Resume: true},
		nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "4"}, m.sends)
	assert.Equal(t, 3, sum.Skipped)
	assert.Equal(t, []int{6}, store.saved)
}

// 策略关闭：任何情况下都不持久化
func TestRunResumePolicyOff(t *testing.T) {
	m := &scriptMailer{script: map[string][]error{"2": {errors.New("fatal")}}}
	store := &memStore{}
	_, err := Run(context.Background(),
		Components{Source: sliceSource{recs: records(1, 2, 3)}, Builder: subjectBuilder{}, Mailer: m, Store: store},
		Settings{Resume: false},
		nil)
	require.ErrorIs(t, err, ErrAborted)
	assert.Empty(t, store.saved)

	_, err = Run(context.Background(),
		Components{Source: sliceSource{recs: records(1)}, Builder: subjectBuilder{}, Mailer: &scriptMailer{}},
		Settings{Resume: false},
		nil)
	require.NoError(t, err)
}

// 没有任何记录：不持久化
func TestRunNoRecords(t *testing.T) {
	m := &scriptMailer{}
	store := &memStore{}
	sum, err := Run(context.Background(),
		Components{Source: sliceSource{}, Builder: subjectBuilder{}, Mailer: m, Store: store},
		Settings{Resume: true}, nil)
	require.NoError(t, err)
	assert.False(t, sum.Persisted)
	assert.Empty(t, store.saved)
	assert.Equal(t, 1, m.closes)

	// 输入源在首条记录前失败
	srcErr := errors.New("corrupt sheet")
	_, err = Run(context.Background(),
		Components{Source: sliceSource{err: srcErr}, Builder: subjectBuilder{}, Mailer: m, Store: store},
		Settings{Resume: true}, nil)
	require.ErrorIs(t, err, srcErr)
	assert.Empty(t, store.saved)
}

// 重连后认证失败属于未分类失败，断点为在途记录
func TestRunReloginFailureAborts(t *testing.T) {
	authErr := errors.New("535 authentication failed")
	m := &scriptMailer{script: map[string][]error{"2": {transient()}}, loginErr: []error{authErr}}
	store := &memStore{}
	sl := &recSleep{}
	_, err := Run(context.Background(),
		Components{Source: sliceSource{recs: records(1, 2, 3)}, Builder: subjectBuilder{}, Mailer: m, Store: store, Sleep: sl.Sleep},
		Settings{Resume: true, Wait: time.Second}, nil)
	require.ErrorIs(t, err, authErr)
	assert.Equal(t, []int{2}, store.saved)
	assert.Len(t, sl.calls, 1)
}

// 等待期间取消：持久化在途记录
func TestRunCanceledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := &scriptMailer{script: map[string][]error{"4": {transient(), transient()}}}
	store := &memStore{}
	sleep := func(ctx context.Context, d time.Duration) error {
		cancel()
		return rate.Sleep(ctx, d)
	}
	_, err := Run(ctx,
		Components{Source: sliceSource{recs: records(3, 4, 5)}, Builder: subjectBuilder{}, Mailer: m, Store: store, Sleep: sleep},
		Settings{Resume: true, Wait: time.Hour}, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []int{4}, store.saved)
}

// 构造失败与输入源中途失败均按在途/最后迭代记录持久化
func TestRunBuilderAndSourceErrors(t *testing.T) {
	bad := errors.New("bad template")
	store := &memStore{}
	_, err := Run(context.Background(),
		Components{Source: sliceSource{recs: records(1, 2, 3)}, Builder: subjectBuilder{err: map[int]error{2: bad}}, Mailer: &scriptMailer{}, Store: store},
		Settings{Resume: true}, nil)
	require.ErrorIs(t, err, bad)
	assert.Equal(t, []int{2}, store.saved)

	srcErr := errors.New("row 4 unreadable")
	store = &memStore{}
	_, err = Run(context.Background(),
		Components{Source: sliceSource{recs: records(1, 2, 3), err: srcErr}, Builder: subjectBuilder{}, Mailer: &scriptMailer{}, Store: store},
		Settings{Resume: true}, nil)
	require.ErrorIs(t, err, srcErr)
	assert.Equal(t, []int{3}, store.saved)
}

// 与 flaky 后端联调：前两次瞬时失败
func TestRunWithFlakyMailer(t *testing.T) {
	m, err := flaky.New(flaky.Options{Failures: 2})
	require.NoError(t, err)
	sl := &recSleep{}
	sum, err := Run(context.Background(),
		Components{Source: sliceSource{recs: records(1, 2)}, Builder: subjectBuilder{}, Mailer: m, Sleep: sl.Sleep},
		Settings{Wait: time.Second}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Sent)
	assert.Equal(t, 2, sum.Retries)
	st := m.Stats()
	assert.Equal(t, 3, st.Connects)
	assert.Equal(t, 3, st.Logins)
	assert.Len(t, m.Sent(), 2)
}

// 节流闸门在每次发送前等待
func TestRunUsesGate(t *testing.T) {
	now := time.Unix(0, 0)
	clk := func() time.Time { return now }
	advance := func(_ context.Context, d time.Duration) error { now = now.Add(d); return nil }
	gate := rate.NewThrottle(2, rate.WithClock(clk), rate.WithSleep(advance))
	sum, err := Run(context.Background(),
		Components{Source: sliceSource{recs: records(1, 2, 3)}, Builder: subjectBuilder{}, Mailer: &scriptMailer{}, Gate: gate},
		Settings{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Sent)
	assert.GreaterOrEqual(t, now.Sub(time.Unix(0, 0)), 30*time.Second)
}

func TestRunSanity(t *testing.T) {
	_, err := Run(context.Background(), Components{}, Settings{}, nil)
	require.Error(t, err)
	_, err = Run(context.Background(),
		Components{Source: sliceSource{}, Builder: subjectBuilder{}, Mailer: &scriptMailer{}},
		Settings{Resume: true}, nil)
	require.Error(t, err, "开启续发但缺少 Store 应失败")
}
