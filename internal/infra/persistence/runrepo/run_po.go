package runrepo

import (
	"time"

	domain "github.com/antidetect/automation/internal/biz/run"
	"github.com/antidetect/automation/internal/infra/persistence/commonrepo"
)

type RunPo struct {
	commonrepo.Mode
	TaskID       uint64           `gorm:"column:task_id;not null;index"`
	Status       domain.RunStatus `gorm:"column:status;size:20;not null;index"`
	QueuedAt     time.Time        `gorm:"column:queued_at;not null"`
	StartedAt    *time.Time       `gorm:"column:started_at;index"`
	CompletedAt  *time.Time       `gorm:"column:completed_at"`
	DurationMs   int64            `gorm:"column:duration_ms;default:0"`
	SuccessCount int              `gorm:"column:success_count;default:0"`
	FailCount    int              `gorm:"column:fail_count;default:0"`
	Error        string           `gorm:"column:error;type:text"`
}

func (r *RunPo) TableName() string {
	return "automation_task_runs"
}
