package taskrepo

import (
	"time"

	domain "github.com/antidetect/automation/internal/biz/task"
	"github.com/antidetect/automation/internal/infra/persistence/commonrepo"
	"gorm.io/datatypes"
)

type TaskPo struct {
	commonrepo.Mode
	Version   uint64                              `gorm:"column:version;not null;default:1"` // 乐观锁版本号
	Name      string                              `gorm:"column:name;uniqueIndex;size:255;not null"`
	ProjectID string                              `gorm:"column:project_id;size:64;index"`
	Cadence   domain.Cadence                      `gorm:"column:cadence;size:20;not null"`
	Schedule  datatypes.JSONType[domain.Schedule] `gorm:"column:schedule"`
	Timezone  string                              `gorm:"column:timezone;size:64;not null;default:'UTC'"`
	Targets   datatypes.JSONSlice[domain.Target]  `gorm:"column:targets"`
	Status    domain.TaskStatus                   `gorm:"column:status;size:20;not null;index"`
	NextRunAt *time.Time                          `gorm:"column:next_run_at;index"`
	LastRunAt *time.Time                          `gorm:"column:last_run_at"`
}

func (t *TaskPo) TableName() string {
	return "automation_tasks"
}
