package scheduler

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/antidetect/automation/internal/biz/run"
	"github.com/antidetect/automation/internal/biz/task"
	"github.com/antidetect/automation/internal/event"
	"github.com/antidetect/automation/pkg/clock"
	"github.com/antidetect/automation/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yitter/idgenerator-go/idgen"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	idgen.SetIdGenerator(idgen.NewIdGeneratorOptions(2))
	os.Exit(m.Run())
}

type fakeTaskRepo struct {
	mu     sync.Mutex
	nextID uint64
	tasks  map[uint64]*task.Task
}

func newFakeTaskRepo() *fakeTaskRepo {
	return &fakeTaskRepo{tasks: make(map[uint64]*task.Task)}
}

func (r *fakeTaskRepo) Create(_ context.Context, t *task.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	t.ID = r.nextID
	t.Version = 1
	cp := *t
	r.tasks[t.ID] = &cp
	return nil
}

func (r *fakeTaskRepo) GetByID(_ context.Context, id uint64) (*task.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *fakeTaskRepo) GetByName(_ context.Context, name string) (*task.Task, error) {
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

func (r *fakeTaskRepo) Delete(_ context.Context, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, id)
	return nil
}

func (r *fakeTaskRepo) Update(_ context.Context, id uint64, patch *task.TaskPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return task.ErrNotFound
	}
	applyTaskPatch(t, patch)
	return nil
}

func (r *fakeTaskRepo) List(_ context.Context, _ *task.TaskFilter) ([]*task.Task, error) {
	return nil, nil
}

func (r *fakeTaskRepo) FindDue(_ context.Context, now time.Time) ([]*task.Task, error) {
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

func (r *fakeTaskRepo) TransitionStatus(_ context.Context, id uint64, version uint64, patch *task.TaskPatch) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok || t.Version != version {
		return false, nil
	}
	applyTaskPatch(t, patch)
	t.Version++
	return true, nil
}

func applyTaskPatch(t *task.Task, patch *task.TaskPatch) {
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

type fakeRunRepo struct {
	mu   sync.Mutex
	runs map[uint64]*run.TaskRun
}

func newFakeRunRepo() *fakeRunRepo {
	return &fakeRunRepo{runs: make(map[uint64]*run.TaskRun)}
}

func (r *fakeRunRepo) Create(_ context.Context, taskRun *run.TaskRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *taskRun
	r.runs[taskRun.ID] = &cp
	return nil
}

func (r *fakeRunRepo) GetByID(_ context.Context, id uint64) (*run.TaskRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	taskRun, ok := r.runs[id]
	if !ok {
		return nil, nil
	}
	cp := *taskRun
	return &cp, nil
}

func (r *fakeRunRepo) Update(_ context.Context, id uint64, patch *run.RunPatch) error {
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

func (r *fakeRunRepo) ListByTask(_ context.Context, taskID uint64, _, _ int) ([]*run.TaskRun, error) {
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

func (r *fakeRunRepo) FindStuck(_ context.Context, before time.Time) ([]*run.TaskRun, error) {
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

// okExecutor 全部目标成功
type okExecutor struct{}

func (okExecutor) RunBatch(context.Context, string, int) error { return nil }

func testSchedulerConfig() config.Config {
	return config.Config{
		Scheduler: config.SchedulerConfig{
			TickInterval: 30 * time.Second,
			MaxWorkers:   2,
			RunTimeout:   30 * time.Minute,
		},
	}
}

// newTestScheduler 组装未启动的调度器，runner 不开 worker，
// 提交的运行停在 jobCh 里供断言
func newTestScheduler(taskRepo task.Repo, runRepo run.Repo) (*Scheduler, *Runner, *clock.Fake) {
	clk := clock.NewFake(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	cfg := testSchedulerConfig()
	bus := event.NewBus(nil, zap.NewNop())
	runner := NewRunner(cfg, clk, zap.NewNop(), taskRepo, runRepo, bus, okExecutor{})
	sched := New(cfg, clk, zap.NewNop(), runner, taskRepo, runRepo)
	return sched, runner, clk
}

func intervalTask(t *testing.T, repo *fakeTaskRepo, nextRunAt time.Time) *task.Task {
	t.Helper()
	tk := &task.Task{
		Name:      "nightly-scan",
		Cadence:   task.CadenceInterval,
		Schedule:  task.Schedule{IntervalMinutes: 30},
		Timezone:  "UTC",
		Targets:   []task.Target{{Label: "fingerprints", BatchSize: 50}},
		Status:    task.TaskStatusScheduled,
		NextRunAt: &nextRunAt,
	}
	require.NoError(t, repo.Create(context.Background(), tk))
	return tk
}

func TestTickEnqueuesDueTask(t *testing.T) {
	taskRepo := newFakeTaskRepo()
	runRepo := newFakeRunRepo()
	sched, runner, clk := newTestScheduler(taskRepo, runRepo)

	now := clk.Now()
	tk := intervalTask(t, taskRepo, now.Add(-time.Minute))

	sched.Tick(now)

	stored, _ := taskRepo.GetByID(context.Background(), tk.ID)
	assert.Equal(t, task.TaskStatusQueued, stored.Status)

	// next_run_at 以本次 tick 为锚推进，慢运行不会被重复选中
	require.NotNil(t, stored.NextRunAt)
	assert.Equal(t, now.Add(30*time.Minute), *stored.NextRunAt)

	runs, _ := runRepo.ListByTask(context.Background(), tk.ID, 10, 0)
	require.Len(t, runs, 1)
	assert.Equal(t, run.RunStatusQueued, runs[0].Status)
	assert.Len(t, runner.jobCh, 1)
}

func TestTickSkipsFutureAndManualTasks(t *testing.T) {
	taskRepo := newFakeTaskRepo()
	runRepo := newFakeRunRepo()
	sched, runner, clk := newTestScheduler(taskRepo, runRepo)

	now := clk.Now()
	future := intervalTask(t, taskRepo, now.Add(time.Hour))

	manual := &task.Task{
		Name:    "manual-scan",
		Cadence: task.CadenceManual,
		Targets: []task.Target{{Label: "fingerprints", BatchSize: 50}},
		Status:  task.TaskStatusScheduled,
	}
	require.NoError(t, taskRepo.Create(context.Background(), manual))

	sched.Tick(now)

	stored, _ := taskRepo.GetByID(context.Background(), future.ID)
	assert.Equal(t, task.TaskStatusScheduled, stored.Status)
	stored, _ = taskRepo.GetByID(context.Background(), manual.ID)
	assert.Equal(t, task.TaskStatusScheduled, stored.Status)
	assert.Empty(t, runner.jobCh)
}

func TestLoopTicksThroughClock(t *testing.T) {
	taskRepo := newFakeTaskRepo()
	runRepo := newFakeRunRepo()
	sched, _, clk := newTestScheduler(taskRepo, runRepo)

	now := clk.Now()
	tk := intervalTask(t, taskRepo, now.Add(-time.Minute))

	sched.Start()
	defer sched.Stop()

	require.Eventually(t, func() bool {
		return len(clk.Tickers()) == 1
	}, time.Second, 5*time.Millisecond)

	clk.Tickers()[0].Tick(now)

	require.Eventually(t, func() bool {
		runs, _ := runRepo.ListByTask(context.Background(), tk.ID, 10, 0)
		return len(runs) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestEnqueueLosesVersionRace(t *testing.T) {
	taskRepo := newFakeTaskRepo()
	runRepo := newFakeRunRepo()
	sched, runner, clk := newTestScheduler(taskRepo, runRepo)

	now := clk.Now()
	tk := intervalTask(t, taskRepo, now.Add(-time.Minute))

	// 拿到旧快照后另一个 tick 已经入队，version 不再匹配
	stale, _ := taskRepo.GetByID(context.Background(), tk.ID)
	sched.Tick(now)
	require.NoError(t, sched.enqueue(context.Background(), stale, now))

	runs, _ := runRepo.ListByTask(context.Background(), tk.ID, 10, 0)
	assert.Len(t, runs, 1)
	assert.Len(t, runner.jobCh, 1)
}

func TestTriggerManualTask(t *testing.T) {
	taskRepo := newFakeTaskRepo()
	runRepo := newFakeRunRepo()
	sched, runner, _ := newTestScheduler(taskRepo, runRepo)

	manual := &task.Task{
		Name:    "manual-scan",
		Cadence: task.CadenceManual,
		Targets: []task.Target{{Label: "fingerprints", BatchSize: 50}},
		Status:  task.TaskStatusScheduled,
	}
	require.NoError(t, taskRepo.Create(context.Background(), manual))

	taskRun, err := sched.Trigger(context.Background(), manual.ID)
	require.NoError(t, err)
	assert.Equal(t, run.RunStatusQueued, taskRun.Status)

	stored, _ := taskRepo.GetByID(context.Background(), manual.ID)
	assert.Equal(t, task.TaskStatusQueued, stored.Status)
	assert.Len(t, runner.jobCh, 1)
}

func TestTriggerRejectedWhileBusy(t *testing.T) {
	taskRepo := newFakeTaskRepo()
	runRepo := newFakeRunRepo()
	sched, _, clk := newTestScheduler(taskRepo, runRepo)

	tk := intervalTask(t, taskRepo, clk.Now().Add(-time.Minute))
	sched.Tick(clk.Now())

	_, err := sched.Trigger(context.Background(), tk.ID)
	assert.ErrorIs(t, err, ErrTaskBusy)
}

func TestTriggerRejectedWhilePaused(t *testing.T) {
	taskRepo := newFakeTaskRepo()
	runRepo := newFakeRunRepo()
	sched, runner, clk := newTestScheduler(taskRepo, runRepo)

	tk := intervalTask(t, taskRepo, clk.Now().Add(time.Hour))
	status := task.TaskStatusPaused
	require.NoError(t, taskRepo.Update(context.Background(), tk.ID, &task.TaskPatch{Status: &status}))

	// 暂停的任务必须先 resume 才能触发，否则运行收尾会把它放回调度
	_, err := sched.Trigger(context.Background(), tk.ID)
	assert.ErrorIs(t, err, ErrTaskBusy)

	stored, _ := taskRepo.GetByID(context.Background(), tk.ID)
	assert.Equal(t, task.TaskStatusPaused, stored.Status)
	runs, _ := runRepo.ListByTask(context.Background(), tk.ID, 10, 0)
	assert.Empty(t, runs)
	assert.Empty(t, runner.jobCh)
}

func TestTriggerNotFound(t *testing.T) {
	sched, _, _ := newTestScheduler(newFakeTaskRepo(), newFakeRunRepo())
	_, err := sched.Trigger(context.Background(), 404)
	assert.ErrorIs(t, err, task.ErrNotFound)
}

func TestReapStuckRuns(t *testing.T) {
	taskRepo := newFakeTaskRepo()
	runRepo := newFakeRunRepo()
	sched, _, clk := newTestScheduler(taskRepo, runRepo)

	now := clk.Now()
	next := now.Add(time.Hour)
	tk := intervalTask(t, taskRepo, next)

	startedAt := now.Add(-time.Hour)
	stuck := &run.TaskRun{
		ID:        1001,
		TaskID:    tk.ID,
		Status:    run.RunStatusRunning,
		QueuedAt:  startedAt,
		StartedAt: &startedAt,
	}
	require.NoError(t, runRepo.Create(context.Background(), stuck))
	status := task.TaskStatusRunning
	require.NoError(t, taskRepo.Update(context.Background(), tk.ID, &task.TaskPatch{Status: &status}))

	sched.Tick(now)

	reaped, _ := runRepo.GetByID(context.Background(), stuck.ID)
	assert.Equal(t, run.RunStatusFailed, reaped.Status)
	assert.Contains(t, reaped.Error, "timeout")

	// next_run_at 还在，任务放回调度
	stored, _ := taskRepo.GetByID(context.Background(), tk.ID)
	assert.Equal(t, task.TaskStatusScheduled, stored.Status)
}

func TestReapStuckRunFailsManualTask(t *testing.T) {
	taskRepo := newFakeTaskRepo()
	runRepo := newFakeRunRepo()
	sched, _, clk := newTestScheduler(taskRepo, runRepo)

	manual := &task.Task{
		Name:    "manual-scan",
		Cadence: task.CadenceManual,
		Targets: []task.Target{{Label: "fingerprints", BatchSize: 50}},
		Status:  task.TaskStatusRunning,
	}
	require.NoError(t, taskRepo.Create(context.Background(), manual))

	now := clk.Now()
	startedAt := now.Add(-time.Hour)
	stuck := &run.TaskRun{
		ID:        1002,
		TaskID:    manual.ID,
		Status:    run.RunStatusRunning,
		QueuedAt:  startedAt,
		StartedAt: &startedAt,
	}
	require.NoError(t, runRepo.Create(context.Background(), stuck))

	sched.Tick(now)

	stored, _ := taskRepo.GetByID(context.Background(), manual.ID)
	assert.Equal(t, task.TaskStatusFailed, stored.Status)
}
