package scheduler

import (
	"context"
	"sync"

	"github.com/antidetect/automation/internal/biz/run"
	"github.com/antidetect/automation/internal/biz/task"
	"github.com/antidetect/automation/internal/event"
	"github.com/antidetect/automation/pkg/clock"
	"github.com/antidetect/automation/pkg/config"
	"go.uber.org/zap"
)

// TargetExecutor 按目标执行一个扫描批次，具体实现是外部扫描引擎的客户端
type TargetExecutor interface {
	RunBatch(ctx context.Context, label string, batchSize int) error
}

// Runner 运行执行器。不同任务的运行在有界 worker 池里完全并行，
// 单个运行内部按目标顺序执行（batch size 决定单目标工作量，不做跨目标并行）。
type Runner struct {
	cfg    config.SchedulerConfig
	clock  clock.Clock
	logger *zap.Logger

	taskRepo task.Repo
	runRepo  run.Repo
	bus      *event.Bus
	executor TargetExecutor

	jobCh  chan *runJob
	stopCh chan struct{}
	wg     sync.WaitGroup
}

type runJob struct {
	task *task.Task
	run  *run.TaskRun
}

func NewRunner(
	cfg config.Config,
	clk clock.Clock,
	logger *zap.Logger,
	taskRepo task.Repo,
	runRepo run.Repo,
	bus *event.Bus,
	executor TargetExecutor,
) *Runner {
	maxWorkers := cfg.Scheduler.MaxWorkers
	return &Runner{
		cfg:      cfg.Scheduler,
		clock:    clk,
		logger:   logger,
		taskRepo: taskRepo,
		runRepo:  runRepo,
		bus:      bus,
		executor: executor,
		jobCh:    make(chan *runJob, maxWorkers*2),
		stopCh:   make(chan struct{}),
	}
}

func (r *Runner) Start() {
	for i := 0; i < r.cfg.MaxWorkers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	r.logger.Info("run executor started",
		zap.Int("workers", r.cfg.MaxWorkers))
}

func (r *Runner) Stop() {
	close(r.stopCh)
	r.wg.Wait()
	r.logger.Info("run executor stopped")
}

// Submit 提交一个已入队的运行；队列满时直接记失败，绝不阻塞调度循环
func (r *Runner) Submit(t *task.Task, taskRun *run.TaskRun) {
	select {
	case r.jobCh <- &runJob{task: t, run: taskRun}:
		r.logger.Debug("run submitted",
			zap.Uint64("task_id", t.ID),
			zap.Uint64("run_id", taskRun.ID))
	default:
		r.logger.Warn("run queue is full, failing run",
			zap.Uint64("task_id", t.ID),
			zap.Uint64("run_id", taskRun.ID))

		ctx := context.Background()
		now := r.clock.Now()
		patch := run.NewRunPatch().
			WithStatus(run.RunStatusFailed).
			WithCompletedAt(&now).
			WithError("run queue is full")
		if err := r.runRepo.Update(ctx, taskRun.ID, patch); err != nil {
			r.logger.Error("failed to fail dropped run",
				zap.Uint64("run_id", taskRun.ID),
				zap.Error(err))
		}
	}
}

func (r *Runner) worker(id int) {
	defer r.wg.Done()

	r.logger.Debug("run worker started", zap.Int("worker_id", id))

	for {
		select {
		case job := <-r.jobCh:
			r.execute(job)
		case <-r.stopCh:
			return
		}
	}
}

// execute 执行一个运行的全部目标并结算。完成策略：至少一个目标成功即 completed，
// 全部失败才 failed，error 记录第一个失败原因。所有存储失败只记日志。
func (r *Runner) execute(job *runJob) {
	ctx := context.Background()
	t, taskRun := job.task, job.run

	startedAt := r.clock.Now()
	startPatch := run.NewRunPatch().
		WithStatus(run.RunStatusRunning).
		WithStartedAt(&startedAt)
	if err := r.runRepo.Update(ctx, taskRun.ID, startPatch); err != nil {
		r.logger.Error("failed to mark run running",
			zap.Uint64("run_id", taskRun.ID),
			zap.Error(err))
	}
	if err := r.taskRepo.Update(ctx, t.ID, task.NewTaskPatch().WithStatus(task.TaskStatusRunning)); err != nil {
		r.logger.Error("failed to mark task running",
			zap.Uint64("task_id", t.ID),
			zap.Error(err))
	}

	var successCount, failCount int
	var firstErr error
	for _, target := range t.Targets {
		if err := r.executor.RunBatch(ctx, target.Label, target.BatchSize); err != nil {
			failCount++
			if firstErr == nil {
				firstErr = err
			}
			r.logger.Warn("target failed",
				zap.Uint64("run_id", taskRun.ID),
				zap.String("label", target.Label),
				zap.Error(err))
		} else {
			successCount++
		}
	}

	completedAt := r.clock.Now()
	durationMs := completedAt.Sub(startedAt).Milliseconds()

	runStatus := run.RunStatusCompleted
	errMsg := ""
	if successCount == 0 {
		runStatus = run.RunStatusFailed
		if firstErr != nil {
			errMsg = firstErr.Error()
		}
	}

	finalPatch := run.NewRunPatch().
		WithStatus(runStatus).
		WithCompletedAt(&completedAt).
		WithDurationMs(durationMs).
		WithSuccessCount(successCount).
		WithFailCount(failCount).
		WithError(errMsg)
	if err := r.runRepo.Update(ctx, taskRun.ID, finalPatch); err != nil {
		r.logger.Error("failed to finalize run",
			zap.Uint64("run_id", taskRun.ID),
			zap.Error(err))
	}

	// next_run_at 已在入队时推进；manual 任务没有后续调度，失败时停在 failed
	taskStatus := task.TaskStatusScheduled
	if runStatus == run.RunStatusFailed && t.NextRunAt == nil {
		taskStatus = task.TaskStatusFailed
	}
	taskPatch := task.NewTaskPatch().
		WithStatus(taskStatus).
		WithLastRunAt(&startedAt)
	if err := r.taskRepo.Update(ctx, t.ID, taskPatch); err != nil {
		r.logger.Error("failed to finalize task after run",
			zap.Uint64("task_id", t.ID),
			zap.Error(err))
	}

	taskRun.Status = runStatus
	taskRun.StartedAt = &startedAt
	taskRun.CompletedAt = &completedAt
	taskRun.DurationMs = durationMs
	taskRun.SuccessCount = successCount
	taskRun.FailCount = failCount
	taskRun.Error = errMsg

	r.publishOutcome(ctx, t, taskRun)

	r.logger.Info("run finished",
		zap.Uint64("task_id", t.ID),
		zap.Uint64("run_id", taskRun.ID),
		zap.String("status", string(runStatus)),
		zap.Int("success_count", successCount),
		zap.Int("fail_count", failCount),
		zap.Int64("duration_ms", durationMs))
}

func (r *Runner) publishOutcome(ctx context.Context, t *task.Task, taskRun *run.TaskRun) {
	evType := event.TypeRunCompleted
	if taskRun.Status == run.RunStatusFailed {
		evType = event.TypeRunFailed
	}

	r.bus.Publish(ctx, event.Event{
		Type:      evType,
		ProjectID: t.ProjectID,
		Timestamp: r.clock.Now().UnixMilli(),
		Data: event.RunData{
			Task: event.TaskSummary{
				ID:        t.ID,
				Name:      t.Name,
				ProjectID: t.ProjectID,
				Cadence:   string(t.Cadence),
				Status:    string(t.Status),
			},
			Run: event.RunSummary{
				ID:           taskRun.ID,
				Status:       string(taskRun.Status),
				DurationMs:   taskRun.DurationMs,
				SuccessCount: taskRun.SuccessCount,
				FailCount:    taskRun.FailCount,
				Error:        taskRun.Error,
			},
		},
	})
}
