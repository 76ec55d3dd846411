package task

import (
	"errors"
	"time"

	"github.com/samber/mo"
)

type Task struct {
	ID        uint64
	CreatedAt time.Time
	UpdatedAt time.Time
	Version   uint64

	Name      string
	ProjectID string
	Cadence   Cadence
	Schedule  Schedule
	Timezone  string
	Targets   []Target
	Status    TaskStatus

	NextRunAt *time.Time
	LastRunAt *time.Time
}

// Location 解析任务时区，空值回退 UTC
func (t *Task) Location() (*time.Location, error) {
	if t.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(t.Timezone)
}

// Validate 创建/编辑时的完整校验，调度循环依赖这里保证运行期不会遇到非法配置
func (t *Task) Validate() error {
	if len(t.Name) < MinNameLength {
		return &ConfigError{Field: "name", Reason: "must be at least 3 characters"}
	}
	if !t.Cadence.IsValid() {
		return &ConfigError{Field: "cadence", Reason: "unknown cadence"}
	}
	if err := t.Schedule.Validate(t.Cadence); err != nil {
		return err
	}
	if _, err := t.Location(); err != nil {
		return &ConfigError{Field: "timezone", Reason: err.Error()}
	}
	if len(t.Targets) == 0 {
		return &ConfigError{Field: "targets", Reason: "cannot be empty"}
	}
	for _, target := range t.Targets {
		if target.Label == "" {
			return &ConfigError{Field: "targets", Reason: "target label cannot be empty"}
		}
		if target.BatchSize < MinBatchSize {
			return &ConfigError{Field: "targets", Reason: "batch size must be at least 10"}
		}
	}
	return nil
}

func (t *Task) Pause() (*TaskPatch, error) {
	if t.Status == TaskStatusPaused {
		return nil, errors.New("task is already paused")
	} else if t.Status == TaskStatusRunning || t.Status == TaskStatusQueued {
		return nil, errors.New("cannot pause a task with a run in progress")
	}
	t.Status = TaskStatusPaused
	return new(TaskPatch).WithStatus(t.Status), nil
}

func (t *Task) Resume() (*TaskPatch, error) {
	if t.Status != TaskStatusPaused {
		return nil, errors.New("task is not paused")
	}
	t.Status = TaskStatusScheduled
	return new(TaskPatch).WithStatus(t.Status), nil
}

type TaskPatch struct {
	Name      *string
	ProjectID *string
	Cadence   *Cadence
	Schedule  *Schedule
	Timezone  *string
	Targets   *[]Target
	Status    *TaskStatus

	// 可空列：present 表示写入（可能写 NULL）
	NextRunAt mo.Option[*time.Time]
	LastRunAt mo.Option[*time.Time]
}

func NewTaskPatch() *TaskPatch {
	return &TaskPatch{}
}

func (p *TaskPatch) WithName(name string) *TaskPatch {
	p.Name = &name
	return p
}

func (p *TaskPatch) WithProjectID(projectID string) *TaskPatch {
	p.ProjectID = &projectID
	return p
}

func (p *TaskPatch) WithCadence(cadence Cadence) *TaskPatch {
	p.Cadence = &cadence
	return p
}

func (p *TaskPatch) WithSchedule(schedule Schedule) *TaskPatch {
	p.Schedule = &schedule
	return p
}

func (p *TaskPatch) WithTimezone(timezone string) *TaskPatch {
	p.Timezone = &timezone
	return p
}

func (p *TaskPatch) WithTargets(targets []Target) *TaskPatch {
	p.Targets = &targets
	return p
}

func (p *TaskPatch) WithStatus(status TaskStatus) *TaskPatch {
	p.Status = &status
	return p
}

func (p *TaskPatch) WithNextRunAt(t *time.Time) *TaskPatch {
	p.NextRunAt = mo.Some(t)
	return p
}

func (p *TaskPatch) WithLastRunAt(t *time.Time) *TaskPatch {
	p.LastRunAt = mo.Some(t)
	return p
}
