package clock

import (
	"context"
	"time"
)

// Clock 可注入的时间源，生产环境使用系统时钟，测试中可快进
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
	NewTicker(d time.Duration) Ticker
}

// Ticker time.Ticker 的最小接口，测试中可手动触发
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type systemClock struct{}

// New 创建系统时钟
func New() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (systemClock) NewTicker(d time.Duration) Ticker {
	return &systemTicker{t: time.NewTicker(d)}
}

type systemTicker struct {
	t *time.Ticker
}

func (t *systemTicker) C() <-chan time.Time {
	return t.t.C
}

func (t *systemTicker) Stop() {
	t.t.Stop()
}
