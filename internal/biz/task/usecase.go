package task

import (
	"context"

	"github.com/antidetect/automation/pkg/clock"
	"github.com/google/wire"
	"github.com/samber/mo"
)

var Provider = wire.NewSet(NewUsecase)

type Usecase struct {
	repo  Repo
	clock clock.Clock
}

func NewUsecase(repo Repo, clk clock.Clock) *Usecase {
	return &Usecase{repo: repo, clock: clk}
}

// Create 校验并落库新任务，非 manual 任务同时算好首次 next_run_at
func (u *Usecase) Create(ctx context.Context, t *Task) error {
	if t.Timezone == "" {
		t.Timezone = "UTC"
	}
	if err := t.Validate(); err != nil {
		return err
	}

	t.Status = TaskStatusScheduled
	next, err := NextRun(t, u.clock.Now())
	if err != nil {
		return err
	}
	t.NextRunAt = next

	return u.repo.Create(ctx, t)
}

func (u *Usecase) Get(ctx context.Context, id uint64) (*Task, error) {
	t, err := u.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	} else if t == nil {
		return nil, ErrNotFound
	}
	return t, nil
}

func (u *Usecase) List(ctx context.Context, filter *TaskFilter) ([]*Task, error) {
	return u.repo.List(ctx, filter)
}

type UpdateRequest struct {
	Name     mo.Option[string]
	Cadence  mo.Option[Cadence]
	Schedule mo.Option[Schedule]
	Timezone mo.Option[string]
	Targets  mo.Option[[]Target]
}

// Update 编辑任务并重算 next_run_at；进行中的运行不受影响，只改变下一次调度决策
func (u *Usecase) Update(ctx context.Context, id uint64, req *UpdateRequest) (*Task, error) {
	t, err := u.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	} else if t == nil {
		return nil, ErrNotFound
	}

	if v, ok := req.Name.Get(); ok {
		t.Name = v
	}
	if v, ok := req.Cadence.Get(); ok {
		t.Cadence = v
	}
	if v, ok := req.Schedule.Get(); ok {
		t.Schedule = v
	}
	if v, ok := req.Timezone.Get(); ok {
		t.Timezone = v
	}
	if v, ok := req.Targets.Get(); ok {
		t.Targets = v
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}

	next, err := NextRun(t, u.clock.Now())
	if err != nil {
		return nil, err
	}
	t.NextRunAt = next

	patch := NewTaskPatch().WithNextRunAt(next)
	patch.Name = req.Name.ToPointer()
	patch.Cadence = req.Cadence.ToPointer()
	patch.Schedule = req.Schedule.ToPointer()
	patch.Timezone = req.Timezone.ToPointer()
	patch.Targets = req.Targets.ToPointer()

	return t, u.repo.Update(ctx, id, patch)
}

func (u *Usecase) Delete(ctx context.Context, id uint64) error {
	t, err := u.repo.GetByID(ctx, id)
	if err != nil {
		return err
	} else if t == nil {
		return ErrNotFound
	}
	return u.repo.Delete(ctx, id)
}

func (u *Usecase) Pause(ctx context.Context, id uint64) error {
	t, err := u.repo.GetByID(ctx, id)
	if err != nil {
		return err
	} else if t == nil {
		return ErrNotFound
	}
	patch, err := t.Pause()
	if err != nil {
		return err
	}
	return u.repo.Update(ctx, id, patch)
}

// Resume 恢复任务，next_run_at 以恢复时刻为基准重算，停摆期间错过的触发不补发
func (u *Usecase) Resume(ctx context.Context, id uint64) error {
	t, err := u.repo.GetByID(ctx, id)
	if err != nil {
		return err
	} else if t == nil {
		return ErrNotFound
	}
	patch, err := t.Resume()
	if err != nil {
		return err
	}
	next, err := NextRun(t, u.clock.Now())
	if err != nil {
		return err
	}
	patch.WithNextRunAt(next)
	return u.repo.Update(ctx, id, patch)
}
