package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/antidetect/automation/internal/biz/webhook"
	"github.com/antidetect/automation/internal/event"
	"github.com/antidetect/automation/pkg/clock"
	"github.com/antidetect/automation/pkg/config"
	"github.com/google/uuid"
	"github.com/google/wire"
	"github.com/yitter/idgenerator-go/idgen"
	"go.uber.org/zap"
)

var Provider = wire.NewSet(New)

const (
	HeaderEvent     = "X-Anti-Detect-Event"
	HeaderSignature = "X-Anti-Detect-Signature"
)

type outcome int

const (
	outcomeDelivered outcome = iota
	outcomeTransient
	outcomePermanent
)

// Dispatcher webhook 投递引擎。事件扇出到匹配订阅后走有界 worker 池，
// 单个订阅的失败与重试不会阻塞其他订阅的投递。至少一次语义，消费方需幂等。
type Dispatcher struct {
	cfg    config.DispatcherConfig
	repo   webhook.Repo
	client *http.Client
	clock  clock.Clock
	logger *zap.Logger

	jobCh  chan *deliveryJob
	stopCh chan struct{}
	wg     sync.WaitGroup

	// ctx 贯穿所有 worker，Stop 时取消，在途投递立即放弃剩余退避
	ctx    context.Context
	cancel context.CancelFunc
}

type deliveryJob struct {
	sub *webhook.Subscription
	ev  event.Event
}

func New(cfg config.Config, repo webhook.Repo, clk clock.Clock, logger *zap.Logger) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		cfg:  cfg.Dispatcher,
		repo: repo,
		client: &http.Client{
			Timeout: cfg.Dispatcher.AttemptTimeout,
		},
		clock:  clk,
		logger: logger,
		jobCh:  make(chan *deliveryJob, cfg.Dispatcher.MaxWorkers*4),
		stopCh: make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Register 订阅全部事件类型
func (d *Dispatcher) Register(bus *event.Bus) {
	for _, t := range event.Types() {
		bus.Subscribe(t, d.HandleEvent)
	}
}

func (d *Dispatcher) Start() {
	for i := 0; i < d.cfg.MaxWorkers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	d.logger.Info("delivery dispatcher started",
		zap.Int("workers", d.cfg.MaxWorkers))
}

func (d *Dispatcher) Stop() {
	d.cancel()
	close(d.stopCh)
	d.wg.Wait()
	d.logger.Info("delivery dispatcher stopped")
}

// HandleEvent 为每个活跃且订阅了该事件类型的订阅各排一个投递
func (d *Dispatcher) HandleEvent(ctx context.Context, ev event.Event) {
	subs, err := d.repo.FindActiveByEvent(ctx, string(ev.Type))
	if err != nil {
		d.logger.Error("failed to match subscriptions",
			zap.String("event_type", string(ev.Type)),
			zap.Error(err))
		return
	}

	for _, sub := range subs {
		select {
		case d.jobCh <- &deliveryJob{sub: sub, ev: ev}:
		default:
			d.logger.Warn("delivery queue is full, dropping delivery",
				zap.Uint64("subscription_id", sub.ID),
				zap.String("event_type", string(ev.Type)))
		}
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for {
		select {
		case job := <-d.jobCh:
			d.deliver(d.ctx, job)
		case <-d.stopCh:
			return
		}
	}
}

// deliver 一次逻辑投递：签名、发送、按结果分类重试，所有尝试共用同一条
// delivery 记录，attempt 就地递增，最终状态是最后一次尝试的结果。
func (d *Dispatcher) deliver(ctx context.Context, job *deliveryJob) {
	body, err := json.Marshal(job.ev)
	if err != nil {
		d.logger.Error("failed to marshal event body",
			zap.String("event_id", job.ev.ID),
			zap.Error(err))
		return
	}
	signature := Sign(job.sub.Secret, body)

	delivery := &webhook.Delivery{
		ID:             uint64(idgen.NextId()),
		SubscriptionID: job.sub.ID,
		Event:          string(job.ev.Type),
	}

	for attempt := 1; ; attempt++ {
		if attempt > 1 {
			// 重试前重读订阅：被删除或暂停则静默终止；URL 或 secret 已改
			// 则跟随新配置，用新 secret 对同一 body 重新签名
			sub, err := d.repo.GetSubscription(ctx, job.sub.ID)
			if err != nil {
				d.logger.Error("failed to reload subscription before retry",
					zap.Uint64("subscription_id", job.sub.ID),
					zap.Error(err))
				return
			}
			if sub == nil || sub.Status != webhook.SubscriptionStatusActive {
				d.logger.Info("subscription gone or paused, abandoning retries",
					zap.Uint64("subscription_id", job.sub.ID))
				return
			}
			job.sub = sub
			signature = Sign(sub.Secret, body)
		}

		code, duration, sendErr := d.send(ctx, job.sub.URL, string(job.ev.Type), signature, body)
		result := classify(code, sendErr)

		d.recordAttempt(ctx, delivery, attempt, code, duration, sendErr, result)

		switch result {
		case outcomeDelivered:
			d.logger.Info("webhook delivered",
				zap.Uint64("subscription_id", job.sub.ID),
				zap.String("event_type", string(job.ev.Type)),
				zap.Int("attempt", attempt))
			return
		case outcomePermanent:
			d.logger.Warn("webhook delivery failed permanently",
				zap.Uint64("subscription_id", job.sub.ID),
				zap.Int("response_code", code),
				zap.Int("attempt", attempt))
			return
		case outcomeTransient:
			if attempt >= d.cfg.MaxAttempts {
				d.logger.Warn("webhook delivery exhausted retries",
					zap.Uint64("subscription_id", job.sub.ID),
					zap.String("event_type", string(job.ev.Type)),
					zap.Int("attempts", attempt))
				return
			}
			if err := d.clock.Sleep(ctx, d.backoff(attempt)); err != nil {
				return
			}
		}
	}
}

// recordAttempt 首次尝试创建记录，之后就地更新同一行
func (d *Dispatcher) recordAttempt(ctx context.Context, delivery *webhook.Delivery, attempt, code int, duration time.Duration, sendErr error, result outcome) {
	now := d.clock.Now()
	status := webhook.DeliveryStatusFailed
	if result == outcomeDelivered {
		status = webhook.DeliveryStatusDelivered
	}
	errMsg := ""
	if sendErr != nil {
		errMsg = sendErr.Error()
	} else if result != outcomeDelivered {
		errMsg = fmt.Sprintf("endpoint returned status %d", code)
	}

	if attempt == 1 {
		delivery.Status = status
		if code > 0 {
			delivery.ResponseCode = &code
		}
		delivery.Error = errMsg
		delivery.DeliveredAt = &now
		delivery.DurationMs = duration.Milliseconds()
		delivery.Attempt = attempt
		if err := d.repo.CreateDelivery(ctx, delivery); err != nil {
			d.logger.Error("failed to create delivery record",
				zap.Uint64("subscription_id", delivery.SubscriptionID),
				zap.Error(err))
		}
		return
	}

	patch := webhook.NewDeliveryPatch().
		WithStatus(status).
		WithError(errMsg).
		WithDeliveredAt(now).
		WithDurationMs(duration.Milliseconds()).
		WithAttempt(attempt)
	if code > 0 {
		patch.WithResponseCode(code)
	}
	if err := d.repo.UpdateDelivery(ctx, delivery.ID, patch); err != nil {
		d.logger.Error("failed to update delivery record",
			zap.Uint64("delivery_id", delivery.ID),
			zap.Error(err))
	}
}

func (d *Dispatcher) send(ctx context.Context, url, eventType, signature string, body []byte) (int, time.Duration, error) {
	start := d.clock.Now()

	reqCtx, cancel := context.WithTimeout(ctx, d.cfg.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, d.clock.Now().Sub(start), err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, eventType)
	req.Header.Set(HeaderSignature, signature)

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, d.clock.Now().Sub(start), err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, d.clock.Now().Sub(start), nil
}

// classify 结果分类：2xx 成功；网络错误/超时/5xx/429 瞬时可重试；
// 其余 4xx 视为永久性配置错误，立即失败
func classify(code int, err error) outcome {
	switch {
	case err != nil:
		return outcomeTransient
	case code >= 200 && code < 300:
		return outcomeDelivered
	case code == http.StatusTooManyRequests || code >= 500:
		return outcomeTransient
	default:
		return outcomePermanent
	}
}

// backoff 指数退避：base, base*factor, base*factor^2 ...
func (d *Dispatcher) backoff(attempt int) time.Duration {
	delay := d.cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		delay *= time.Duration(d.cfg.BackoffFactor)
	}
	return delay
}

// TestResult 连通性探测结果，同步返回给调用方
type TestResult struct {
	OK     bool   `json:"ok"`
	Status int    `json:"status"`
	Error  string `json:"error,omitempty"`
}

// TestDelivery 构造合成 webhook.test 事件发送一次，不落任何记录，
// 供界面上的「测试 webhook」做连通性探测
func (d *Dispatcher) TestDelivery(ctx context.Context, url, secret, projectID string) TestResult {
	ev := event.Event{
		ID:        uuid.New().String(),
		Type:      event.TypeTest,
		ProjectID: projectID,
		Timestamp: d.clock.Now().UnixMilli(),
		Data:      event.TestData{Message: "test delivery from automation scheduler"},
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return TestResult{OK: false, Error: err.Error()}
	}

	code, _, sendErr := d.send(ctx, url, string(ev.Type), Sign(secret, body), body)
	return toTestResult(code, sendErr)
}

// TestSubscription 同 TestDelivery，但针对已存储的订阅，并落一条投递记录
func (d *Dispatcher) TestSubscription(ctx context.Context, subscriptionID uint64) (TestResult, error) {
	sub, err := d.repo.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return TestResult{}, err
	} else if sub == nil {
		return TestResult{}, webhook.ErrNotFound
	}

	ev := event.Event{
		ID:        uuid.New().String(),
		Type:      event.TypeTest,
		ProjectID: sub.ProjectID,
		Timestamp: d.clock.Now().UnixMilli(),
		Data:      event.TestData{Message: "test delivery from automation scheduler"},
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return TestResult{}, err
	}

	start := d.clock.Now()
	code, duration, sendErr := d.send(ctx, sub.URL, string(ev.Type), Sign(sub.Secret, body), body)
	result := toTestResult(code, sendErr)

	now := start.Add(duration)
	status := webhook.DeliveryStatusFailed
	if result.OK {
		status = webhook.DeliveryStatusDelivered
	}
	delivery := &webhook.Delivery{
		ID:             uint64(idgen.NextId()),
		SubscriptionID: sub.ID,
		Event:          string(event.TypeTest),
		Status:         status,
		Error:          result.Error,
		DeliveredAt:    &now,
		DurationMs:     duration.Milliseconds(),
		Attempt:        1,
	}
	if code > 0 {
		delivery.ResponseCode = &code
	}
	if err := d.repo.CreateDelivery(ctx, delivery); err != nil {
		d.logger.Error("failed to record test delivery",
			zap.Uint64("subscription_id", sub.ID),
			zap.Error(err))
	}

	return result, nil
}

func toTestResult(code int, err error) TestResult {
	if err != nil {
		return TestResult{OK: false, Error: err.Error()}
	}
	ok := code >= 200 && code < 300
	res := TestResult{OK: ok, Status: code}
	if !ok {
		res.Error = fmt.Sprintf("endpoint returned status %d", code)
	}
	return res
}
