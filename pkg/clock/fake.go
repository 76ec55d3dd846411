package clock

import (
	"context"
	"sync"
	"time"
)

// Fake 测试用时钟：Sleep 立即返回并记录请求的时长，Now 返回可手动推进的时间
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	sleeps  []time.Duration
	tickers []*FakeTicker
}

func NewFake(now time.Time) *Fake {
	return &Fake{now: now}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sleeps = append(f.sleeps, d)
	f.now = f.now.Add(d)
	return nil
}

// Advance 推进当前时间
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// NewTicker 返回手动触发的 ticker，不会自动走时
func (f *Fake) NewTicker(time.Duration) Ticker {
	t := &FakeTicker{ch: make(chan time.Time, 1)}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickers = append(f.tickers, t)
	return t
}

// Tickers 返回已创建的 ticker
func (f *Fake) Tickers() []*FakeTicker {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*FakeTicker, len(f.tickers))
	copy(out, f.tickers)
	return out
}

// FakeTicker 由测试通过 Tick 手动触发
type FakeTicker struct {
	ch chan time.Time
}

func (t *FakeTicker) C() <-chan time.Time {
	return t.ch
}

func (t *FakeTicker) Stop() {}

// Tick 投递一次 tick
func (t *FakeTicker) Tick(at time.Time) {
	t.ch <- at
}

// Sleeps 返回已记录的 Sleep 时长
func (f *Fake) Sleeps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Duration, len(f.sleeps))
	copy(out, f.sleeps)
	return out
}
