package run

import (
	"context"
	"time"
)

type Repo interface {
	Create(ctx context.Context, run *TaskRun) error
	GetByID(ctx context.Context, id uint64) (*TaskRun, error)
	Update(ctx context.Context, id uint64, patch *RunPatch) error
	ListByTask(ctx context.Context, taskID uint64, limit, offset int) ([]*TaskRun, error)

	// FindStuck 查找 started_at 早于 before 且仍为 running 的运行，供回收扫描强制失败
	FindStuck(ctx context.Context, before time.Time) ([]*TaskRun, error)
}
