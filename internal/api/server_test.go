package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/antidetect/automation/internal/biz/run"
	"github.com/antidetect/automation/internal/biz/task"
	"github.com/antidetect/automation/internal/biz/webhook"
	"github.com/antidetect/automation/internal/dispatch"
	"github.com/antidetect/automation/internal/event"
	"github.com/antidetect/automation/internal/scheduler"
	"github.com/antidetect/automation/pkg/clock"
	"github.com/antidetect/automation/pkg/config"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yitter/idgenerator-go/idgen"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	idgen.SetIdGenerator(idgen.NewIdGeneratorOptions(3))
	os.Exit(m.Run())
}

// TestSetup 全内存栈：真实 usecase/scheduler/dispatcher 配假存储
type TestSetup struct {
	Router      *gin.Engine
	TaskRepo    *memTaskRepo
	RunRepo     *memRunRepo
	WebhookRepo *memWebhookRepo
	Clock       *clock.Fake
}

func SetupTest(t *testing.T) *TestSetup {
	t.Helper()

	cfg := config.Config{
		Scheduler: config.SchedulerConfig{
			TickInterval: 30 * time.Second,
			MaxWorkers:   2,
			RunTimeout:   30 * time.Minute,
		},
		Dispatcher: config.DispatcherConfig{
			MaxWorkers:     2,
			MaxAttempts:    3,
			BackoffBase:    time.Second,
			BackoffFactor:  5,
			AttemptTimeout: 5 * time.Second,
		},
	}

	logger := zap.NewNop()
	clk := clock.NewFake(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))

	taskRepo := newMemTaskRepo()
	runRepo := newMemRunRepo()
	webhookRepo := newMemWebhookRepo()

	bus := event.NewBus(nil, logger)
	dispatcher := dispatch.New(cfg, webhookRepo, clk, logger)
	dispatcher.Register(bus)

	runner := scheduler.NewRunner(cfg, clk, logger, taskRepo, runRepo, bus, nopExecutor{})
	sched := scheduler.New(cfg, clk, logger, runner, taskRepo, runRepo)

	taskAPI := NewTaskAPI(task.NewUsecase(taskRepo, clk), runRepo, sched, logger)
	webhookAPI := NewWebhookAPI(webhook.NewUsecase(webhookRepo), dispatcher, logger)
	server := NewServer(taskAPI, webhookAPI, logger)

	return &TestSetup{
		Router:      server.Router(),
		TaskRepo:    taskRepo,
		RunRepo:     runRepo,
		WebhookRepo: webhookRepo,
		Clock:       clk,
	}
}

func (s *TestSetup) do(t *testing.T, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router.ServeHTTP(w, req)
	return w
}

type nopExecutor struct{}

func (nopExecutor) RunBatch(context.Context, string, int) error { return nil }

func TestTaskLifecycleOverHTTP(t *testing.T) {
	s := SetupTest(t)

	// 创建
	w := s.do(t, http.MethodPost, "/api/v1/tasks", gin.H{
		"name":    "nightly-scan",
		"cadence": "interval",
		"schedule": gin.H{
			"intervalMinutes": 30,
		},
		"timezone": "UTC",
		"targets":  []gin.H{{"label": "fingerprints", "batchSize": 50}},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created TaskResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotZero(t, created.ID)
	assert.Equal(t, "scheduled", created.Status)
	require.NotNil(t, created.NextRunAt)
	assert.Equal(t, s.Clock.Now().Add(30*time.Minute), created.NextRunAt.UTC())

	// 查询
	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/tasks/%d", created.ID), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// 暂停与恢复
	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/tasks/%d/pause", created.ID), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/tasks/%d/resume", created.ID), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// 删除
	w = s.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/tasks/%d", created.ID), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/tasks/%d", created.ID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateTaskInvalidConfig(t *testing.T) {
	s := SetupTest(t)

	w := s.do(t, http.MethodPost, "/api/v1/tasks", gin.H{
		"name":    "nightly-scan",
		"cadence": "interval",
		"schedule": gin.H{
			"intervalMinutes": 5,
		},
		"targets": []gin.H{{"label": "fingerprints", "batchSize": 50}},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "INVALID_CONFIG", resp.Code)
	assert.Contains(t, resp.Message, "intervalMinutes")
}

func TestTriggerConflictsWhileQueued(t *testing.T) {
	s := SetupTest(t)

	w := s.do(t, http.MethodPost, "/api/v1/tasks", gin.H{
		"name":    "manual-scan",
		"cadence": "manual",
		"targets": []gin.H{{"label": "fingerprints", "batchSize": 50}},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var created TaskResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	// runner 未启动，任务停在 queued
	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/tasks/%d/trigger", created.ID), nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	var triggered RunResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &triggered))
	assert.Equal(t, "queued", triggered.Status)

	w = s.do(t, http.MethodPost, fmt.Sprintf("/api/v1/tasks/%d/trigger", created.ID), nil)
	require.Equal(t, http.StatusConflict, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "TASK_BUSY", resp.Code)

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/tasks/%d/runs", created.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var runs []RunResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &runs))
	assert.Len(t, runs, 1)
}

func TestWebhookSubscriptionOverHTTP(t *testing.T) {
	s := SetupTest(t)

	// secret 缺省时自动生成
	w := s.do(t, http.MethodPost, "/api/v1/webhooks", gin.H{
		"name":   "siem-feed",
		"url":    "https://siem.example.com/hook",
		"events": []string{"automation.run.completed"},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created SubscriptionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.GreaterOrEqual(t, len(created.Secret), webhook.MinSecretLength)
	assert.Equal(t, "active", created.Status)

	// 非法 URL 映射为 400 INVALID_SUBSCRIPTION
	w = s.do(t, http.MethodPost, "/api/v1/webhooks", gin.H{
		"name":   "bad-feed",
		"url":    "ftp://siem.example.com/hook",
		"events": []string{"automation.run.completed"},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "INVALID_SUBSCRIPTION", resp.Code)

	// 暂停订阅
	w = s.do(t, http.MethodPut, fmt.Sprintf("/api/v1/webhooks/%d", created.ID), gin.H{
		"status": "paused",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var updated SubscriptionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, "paused", updated.Status)

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/webhooks/%d/deliveries", created.ID), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhookTestEndpoint(t *testing.T) {
	s := SetupTest(t)

	received := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- r.Header.Get(dispatch.HeaderEvent)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := s.do(t, http.MethodPost, "/api/v1/webhooks/test", gin.H{
		"url":    srv.URL,
		"secret": "adhoc-secret",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var result dispatch.TestResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.OK)
	assert.Equal(t, http.StatusOK, result.Status)
	assert.Equal(t, string(event.TypeTest), <-received)
}

// ---- 内存存储 ----

type memTaskRepo struct {
	mu     sync.Mutex
	nextID uint64
	tasks  map[uint64]*task.Task
}

func newMemTaskRepo() *memTaskRepo {
	return &memTaskRepo{tasks: make(map[uint64]*task.Task)}
}

func (r *memTaskRepo) Create(_ context.Context, t *task.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	t.ID = r.nextID
	t.Version = 1
	cp := *t
	r.tasks[t.ID] = &cp
	return nil
}

func (r *memTaskRepo) GetByID(_ context.Context, id uint64) (*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *memTaskRepo) GetByName(_ context.Context, name string) (*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tasks {
		if t.Name == name {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memTaskRepo) Delete(_ context.Context, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, id)
	return nil
}

func (r *memTaskRepo) Update(_ context.Context, id uint64, patch *task.TaskPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return task.ErrNotFound
	}
	applyMemTaskPatch(t, patch)
	return nil
}

func (r *memTaskRepo) List(_ context.Context, filter *task.TaskFilter) ([]*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*task.Task
	for _, t := range r.tasks {
		if status, ok := filter.Status.Get(); ok && t.Status != status {
			continue
		}
		if projectID, ok := filter.ProjectID.Get(); ok && t.ProjectID != projectID {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memTaskRepo) FindDue(_ context.Context, now time.Time) ([]*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*task.Task
	for _, t := range r.tasks {
		if t.Status == task.TaskStatusScheduled && t.NextRunAt != nil && !t.NextRunAt.After(now) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memTaskRepo) TransitionStatus(_ context.Context, id uint64, version uint64, patch *task.TaskPatch) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok || t.Version != version {
		return false, nil
	}
	applyMemTaskPatch(t, patch)
	t.Version++
	return true, nil
}

func applyMemTaskPatch(t *task.Task, patch *task.TaskPatch) {
	if patch.Name != nil {
		t.Name = *patch.Name
	}
	if patch.Cadence != nil {
		t.Cadence = *patch.Cadence
	}
	if patch.Schedule != nil {
		t.Schedule = *patch.Schedule
	}
	if patch.Timezone != nil {
		t.Timezone = *patch.Timezone
	}
	if patch.Targets != nil {
		t.Targets = *patch.Targets
	}
	if patch.Status != nil {
		t.Status = *patch.Status
	}
	if v, ok := patch.NextRunAt.Get(); ok {
		t.NextRunAt = v
	}
	if v, ok := patch.LastRunAt.Get(); ok {
		t.LastRunAt = v
	}
}

type memRunRepo struct {
	mu   sync.Mutex
	runs map[uint64]*run.TaskRun
}

func newMemRunRepo() *memRunRepo {
	return &memRunRepo{runs: make(map[uint64]*run.TaskRun)}
}

func (r *memRunRepo) Create(_ context.Context, taskRun *run.TaskRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *taskRun
	r.runs[taskRun.ID] = &cp
	return nil
}

func (r *memRunRepo) GetByID(_ context.Context, id uint64) (*run.TaskRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	taskRun, ok := r.runs[id]
	if !ok {
		return nil, nil
	}
	cp := *taskRun
	return &cp, nil
}

func (r *memRunRepo) Update(_ context.Context, id uint64, patch *run.RunPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	taskRun, ok := r.runs[id]
	if !ok {
		return nil
	}
	if patch.Status != nil {
		taskRun.Status = *patch.Status
	}
	if v, ok := patch.StartedAt.Get(); ok {
		taskRun.StartedAt = v
	}
	if v, ok := patch.CompletedAt.Get(); ok {
		taskRun.CompletedAt = v
	}
	if patch.DurationMs != nil {
		taskRun.DurationMs = *patch.DurationMs
	}
	if patch.SuccessCount != nil {
		taskRun.SuccessCount = *patch.SuccessCount
	}
	if patch.FailCount != nil {
		taskRun.FailCount = *patch.FailCount
	}
	if patch.Error != nil {
		taskRun.Error = *patch.Error
	}
	return nil
}

func (r *memRunRepo) ListByTask(_ context.Context, taskID uint64, _, _ int) ([]*run.TaskRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*run.TaskRun
	for _, taskRun := range r.runs {
		if taskRun.TaskID == taskID {
			cp := *taskRun
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memRunRepo) FindStuck(_ context.Context, before time.Time) ([]*run.TaskRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*run.TaskRun
	for _, taskRun := range r.runs {
		if taskRun.Status == run.RunStatusRunning && taskRun.StartedAt != nil && taskRun.StartedAt.Before(before) {
			cp := *taskRun
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memWebhookRepo struct {
	mu         sync.Mutex
	nextID     uint64
	subs       map[uint64]*webhook.Subscription
	deliveries map[uint64]*webhook.Delivery
}

func newMemWebhookRepo() *memWebhookRepo {
	return &memWebhookRepo{
		subs:       make(map[uint64]*webhook.Subscription),
		deliveries: make(map[uint64]*webhook.Delivery),
	}
}

func (r *memWebhookRepo) CreateSubscription(_ context.Context, sub *webhook.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	sub.ID = r.nextID
	cp := *sub
	r.subs[sub.ID] = &cp
	return nil
}

func (r *memWebhookRepo) GetSubscription(_ context.Context, id uint64) (*webhook.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return nil, nil
	}
	cp := *sub
	return &cp, nil
}

func (r *memWebhookRepo) UpdateSubscription(_ context.Context, id uint64, patch *webhook.SubscriptionPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return webhook.ErrNotFound
	}
	if patch.Name != nil {
		sub.Name = *patch.Name
	}
	if patch.URL != nil {
		sub.URL = *patch.URL
	}
	if patch.Events != nil {
		sub.Events = *patch.Events
	}
	if patch.Secret != nil {
		sub.Secret = *patch.Secret
	}
	if patch.Status != nil {
		sub.Status = *patch.Status
	}
	return nil
}

func (r *memWebhookRepo) DeleteSubscription(_ context.Context, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, id)
	return nil
}

func (r *memWebhookRepo) ListSubscriptions(_ context.Context, filter *webhook.SubscriptionFilter) ([]*webhook.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*webhook.Subscription
	for _, sub := range r.subs {
		if status, ok := filter.Status.Get(); ok && sub.Status != status {
			continue
		}
		if projectID, ok := filter.ProjectID.Get(); ok && sub.ProjectID != projectID {
			continue
		}
		cp := *sub
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memWebhookRepo) FindActiveByEvent(_ context.Context, eventType string) ([]*webhook.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*webhook.Subscription
	for _, sub := range r.subs {
		if sub.Status == webhook.SubscriptionStatusActive && lo.Contains(sub.Events, eventType) {
			cp := *sub
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memWebhookRepo) CreateDelivery(_ context.Context, delivery *webhook.Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *delivery
	r.deliveries[delivery.ID] = &cp
	return nil
}

func (r *memWebhookRepo) UpdateDelivery(_ context.Context, id uint64, patch *webhook.DeliveryPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deliveries[id]
	if !ok {
		return webhook.ErrNotFound
	}
	if patch.Status != nil {
		d.Status = *patch.Status
	}
	if patch.ResponseCode != nil {
		d.ResponseCode = patch.ResponseCode
	}
	if patch.Error != nil {
		d.Error = *patch.Error
	}
	if patch.DeliveredAt != nil {
		d.DeliveredAt = patch.DeliveredAt
	}
	if patch.DurationMs != nil {
		d.DurationMs = *patch.DurationMs
	}
	if patch.Attempt != nil {
		d.Attempt = *patch.Attempt
	}
	return nil
}

func (r *memWebhookRepo) ListDeliveries(_ context.Context, subscriptionID uint64, _, _ int) ([]*webhook.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*webhook.Delivery
	for _, d := range r.deliveries {
		if d.SubscriptionID == subscriptionID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}
