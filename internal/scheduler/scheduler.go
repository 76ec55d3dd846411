package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/antidetect/automation/internal/biz/run"
	"github.com/antidetect/automation/internal/biz/task"
	"github.com/antidetect/automation/pkg/clock"
	"github.com/antidetect/automation/pkg/config"
	"github.com/google/wire"
	"github.com/yitter/idgenerator-go/idgen"
	"go.uber.org/zap"
)

var Provider = wire.NewSet(New, NewRunner)

// Scheduler 任务调度器。单一调度主体：tick 循环是 next_run_at 迁移的唯一写入方，
// 与手动触发之间靠任务行上的 version 乐观锁避免重复入队。
type Scheduler struct {
	cfg    config.SchedulerConfig
	clock  clock.Clock
	logger *zap.Logger

	taskRepo task.Repo
	runRepo  run.Repo
	runner   *Runner

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func New(
	cfg config.Config,
	clk clock.Clock,
	logger *zap.Logger,
	runner *Runner,
	taskRepo task.Repo,
	runRepo run.Repo,
) *Scheduler {
	return &Scheduler{
		cfg:      cfg.Scheduler,
		clock:    clk,
		logger:   logger,
		taskRepo: taskRepo,
		runRepo:  runRepo,
		runner:   runner,
		stopCh:   make(chan struct{}),
	}
}

// Start 启动 tick 循环和运行执行器
func (s *Scheduler) Start() {
	s.runner.Start()

	s.wg.Add(1)
	go s.loop()

	s.logger.Info("scheduler started",
		zap.Duration("tick_interval", s.cfg.TickInterval))
}

// Stop 停止 tick 循环并等待在途运行收尾
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	s.runner.Stop()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := s.clock.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C():
			s.Tick(s.clock.Now())
		case <-s.stopCh:
			return
		}
	}
}

// Tick 扫描到期任务并入队。任何单任务的失败只记日志，不会中断整个 tick。
func (s *Scheduler) Tick(now time.Time) {
	ctx := context.Background()

	due, err := s.taskRepo.FindDue(ctx, now)
	if err != nil {
		s.logger.Error("failed to scan due tasks", zap.Error(err))
		return
	}

	for _, t := range due {
		if err := s.enqueue(ctx, t, now); err != nil {
			s.logger.Error("failed to enqueue due task",
				zap.Uint64("task_id", t.ID),
				zap.String("task_name", t.Name),
				zap.Error(err))
		}
	}

	s.reapStuckRuns(ctx, now)
}

// enqueue 乐观锁下 scheduled→queued，并在运行开始前就推进 next_run_at，
// 慢运行不会让任务在下个 tick 被重复选中。next 以 now 为锚：停机期间错过的
// 多次触发只补一次，避免重放风暴。
func (s *Scheduler) enqueue(ctx context.Context, t *task.Task, now time.Time) error {
	next, err := task.NextRun(t, now)
	if err != nil {
		return fmt.Errorf("failed to compute next run: %w", err)
	}

	patch := task.NewTaskPatch().
		WithStatus(task.TaskStatusQueued).
		WithNextRunAt(next)

	ok, err := s.taskRepo.TransitionStatus(ctx, t.ID, t.Version, patch)
	if err != nil {
		return fmt.Errorf("failed to transition task to queued: %w", err)
	}
	if !ok {
		// 并发 tick 或手动触发已经抢先入队
		s.logger.Debug("lost enqueue race, skipping",
			zap.Uint64("task_id", t.ID))
		return nil
	}

	taskRun := &run.TaskRun{
		ID:       uint64(idgen.NextId()),
		TaskID:   t.ID,
		Status:   run.RunStatusQueued,
		QueuedAt: now,
	}
	if err := s.runRepo.Create(ctx, taskRun); err != nil {
		return fmt.Errorf("failed to create run record: %w", err)
	}

	s.runner.Submit(t, taskRun)

	s.logger.Info("task enqueued",
		zap.Uint64("task_id", t.ID),
		zap.String("task_name", t.Name),
		zap.Uint64("run_id", taskRun.ID))
	return nil
}

// Trigger 手动触发，任何 cadence 都允许，包括 manual
func (s *Scheduler) Trigger(ctx context.Context, taskID uint64) (*run.TaskRun, error) {
	t, err := s.taskRepo.GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	} else if t == nil {
		return nil, task.ErrNotFound
	}

	if !t.Status.CanBeTriggered() {
		return nil, ErrTaskBusy
	}

	now := s.clock.Now()
	patch := task.NewTaskPatch().WithStatus(task.TaskStatusQueued)

	ok, err := s.taskRepo.TransitionStatus(ctx, t.ID, t.Version, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to transition task to queued: %w", err)
	}
	if !ok {
		return nil, ErrTaskBusy
	}

	taskRun := &run.TaskRun{
		ID:       uint64(idgen.NextId()),
		TaskID:   t.ID,
		Status:   run.RunStatusQueued,
		QueuedAt: now,
	}
	if err := s.runRepo.Create(ctx, taskRun); err != nil {
		return nil, fmt.Errorf("failed to create run record: %w", err)
	}

	s.runner.Submit(t, taskRun)

	s.logger.Info("task triggered manually",
		zap.Uint64("task_id", t.ID),
		zap.Uint64("run_id", taskRun.ID))
	return taskRun, nil
}

// reapStuckRuns 回收卡死的运行：进程崩溃会留下永远 running 的记录，
// started_at 超过 run_timeout 的一律强制失败，任务放回调度
func (s *Scheduler) reapStuckRuns(ctx context.Context, now time.Time) {
	stuck, err := s.runRepo.FindStuck(ctx, now.Add(-s.cfg.RunTimeout))
	if err != nil {
		s.logger.Error("failed to scan stuck runs", zap.Error(err))
		return
	}

	for _, r := range stuck {
		completedAt := now
		patch := run.NewRunPatch().
			WithStatus(run.RunStatusFailed).
			WithCompletedAt(&completedAt).
			WithError(fmt.Sprintf("run exceeded timeout of %s", s.cfg.RunTimeout))
		if err := s.runRepo.Update(ctx, r.ID, patch); err != nil {
			s.logger.Error("failed to force-fail stuck run",
				zap.Uint64("run_id", r.ID),
				zap.Error(err))
			continue
		}

		t, err := s.taskRepo.GetByID(ctx, r.TaskID)
		if err != nil || t == nil {
			continue
		}
		status := task.TaskStatusScheduled
		if t.NextRunAt == nil {
			status = task.TaskStatusFailed
		}
		if err := s.taskRepo.Update(ctx, t.ID, task.NewTaskPatch().WithStatus(status)); err != nil {
			s.logger.Error("failed to reset task after stuck run",
				zap.Uint64("task_id", t.ID),
				zap.Error(err))
		}

		s.logger.Warn("force-failed stuck run",
			zap.Uint64("run_id", r.ID),
			zap.Uint64("task_id", r.TaskID))
	}
}
