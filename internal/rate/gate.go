package rate

import (
	"context"
	"sync"
	"time"
)

// Gate: 发送节流闸门（并发安全）。
type Gate interface {
	// Wait: 阻塞直到额度可用或 ctx 取消。
	Wait(ctx context.Context) error
	// Try: 非阻塞尝试；不足时返回 false。
	Try() bool
}

// SleepFunc: 可取消的睡眠；测试可替换为推进假时钟。
type SleepFunc func(ctx context.Context, d time.Duration) error

// Option 调整 Throttle 的时钟与睡眠实现。
type Option func(*Throttle)

// WithClock 注入时钟；为空则使用 time.Now。
func WithClock(clk func() time.Time) Option {
	return func(t *Throttle) {
		if clk != nil {
			t.clk = clk
		}
	}
}

// WithSleep 注入睡眠实现；为空则使用 Sleep。
func WithSleep(s SleepFunc) Option {
	return func(t *Throttle) {
		if s != nil {
			t.sleep = s
		}
	}
}

// Throttle: 每分钟 perMinute 次的令牌桶；容量等于 perMinute，允许一分钟内的突发。
type Throttle struct {
	mu    sync.Mutex
	clk   func() time.Time
	sleep SleepFunc
	b     bucket
}

// NewThrottle 构造节流器；perMinute<=0 返回 nil（调用方视为不限速）。
func NewThrottle(perMinute int, opts ...Option) *Throttle {
	if perMinute <= 0 {
		return nil
	}
	t := &Throttle{clk: time.Now, sleep: Sleep}
	for _, o := range opts {
		o(t)
	}
	t.b = newBucket(perMinute, t.clk())
	return t
}

type bucket struct {
	cap   int
	level float64
	rate  float64 // tokens/sec
	last  time.Time
}

func newBucket(capacity int, now time.Time) bucket {
	return bucket{cap: capacity, level: float64(capacity), rate: float64(capacity) / 60.0, last: now}
}

func (b *bucket) refill(now time.Time) {
	if now.Before(b.last) {
		// 单调性保护：若时钟回拨，视为无时间流逝
		return
	}
	dt := now.Sub(b.last).Seconds()
	if dt <= 0 {
		return
	}
	b.level += dt * b.rate
	if b.level > float64(b.cap) {
		b.level = float64(b.cap)
	}
	b.last = now
}

// waitFor 返回攒够一个令牌还需等待的时长（向下近似）。
func (b *bucket) waitFor() time.Duration {
	deficit := 1 - b.level
	if deficit <= 0 {
		return 0
	}
	return time.Duration(deficit / b.rate * float64(time.Second))
}

func (t *Throttle) Try() bool {
	if t == nil {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.b.refill(t.clk())
	if t.b.level >= 1 {
		t.b.level--
		return true
	}
	return false
}

func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil {
		return ctx.Err()
	}
	// 最小睡眠粒度，避免忙等
	const minSleep = 10 * time.Millisecond
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		t.mu.Lock()
		t.b.refill(t.clk())
		if t.b.level >= 1 {
			t.b.level--
			t.mu.Unlock()
			return nil
		}
		d := t.b.waitFor() + minSleep
		t.mu.Unlock()
		if err := t.sleep(ctx, d); err != nil {
			return err
		}
	}
}

// Available 返回当前可用令牌的向下取整值（仅诊断）。
func (t *Throttle) Available() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.b.refill(t.clk())
	return int(t.b.level)
}

// Sleep 睡眠 d 或直到 ctx 取消；长睡眠分片为最多 200ms 的步长，及时响应取消。
func Sleep(ctx context.Context, d time.Duration) error {
	const step = 200 * time.Millisecond
	for d > 0 {
		s := d
		if s > step {
			s = step
		}
		t := time.NewTimer(s)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		d -= s
	}
	return ctx.Err()
}

var _ Gate = (*Throttle)(nil)
