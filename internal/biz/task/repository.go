package task

import (
	"context"
	"time"

	"github.com/samber/mo"
)

type Repo interface {
	Create(ctx context.Context, task *Task) error
	GetByID(ctx context.Context, id uint64) (*Task, error)
	GetByName(ctx context.Context, name string) (*Task, error)
	Delete(ctx context.Context, id uint64) error
	Update(ctx context.Context, id uint64, patch *TaskPatch) error
	List(ctx context.Context, filter *TaskFilter) ([]*Task, error)

	// FindDue 查找 status=scheduled 且 next_run_at<=now 的任务
	FindDue(ctx context.Context, now time.Time) ([]*Task, error)

	// TransitionStatus 乐观锁状态迁移：仅当行上 version 仍等于给定值时应用 patch
	// 并递增 version；返回是否命中。并发 tick 与手动触发靠它避免重复入队。
	TransitionStatus(ctx context.Context, id uint64, version uint64, patch *TaskPatch) (bool, error)
}

type TaskFilter struct {
	Status    mo.Option[TaskStatus]
	ProjectID mo.Option[string]
}
