package task

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

type Cadence string

const (
	CadenceInterval Cadence = "interval"
	CadenceHourly   Cadence = "hourly"
	CadenceDaily    Cadence = "daily"
	CadenceCron     Cadence = "cron"
	CadenceManual   Cadence = "manual"
)

func (c Cadence) IsValid() bool {
	switch c {
	case CadenceInterval, CadenceHourly, CadenceDaily, CadenceCron, CadenceManual:
		return true
	default:
		return false
	}
}

type TaskStatus string

const (
	TaskStatusScheduled TaskStatus = "scheduled"
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusPaused    TaskStatus = "paused"
	TaskStatusFailed    TaskStatus = "failed"
)

// CanBeTriggered 手动触发允许的起始状态；queued/running 下触发会重复入队，
// paused 任务必须先 resume，否则运行收尾会把它放回调度，暂停形同虚设
func (s TaskStatus) CanBeTriggered() bool {
	return s == TaskStatusScheduled || s == TaskStatusFailed
}

const (
	MinNameLength      = 3
	MinIntervalMinutes = 15
	MinBatchSize       = 10
)

// Schedule 按 cadence 区分有效字段的调度参数
type Schedule struct {
	IntervalMinutes int    `json:"intervalMinutes,omitempty"`
	Hour            int    `json:"hour"`
	Minute          int    `json:"minute"`
	CronExpression  string `json:"cronExpression,omitempty"`
}

// Validate 按 cadence 校验调度参数，创建时一次性检查，运行期不再检查
func (s Schedule) Validate(cadence Cadence) error {
	switch cadence {
	case CadenceInterval:
		if s.IntervalMinutes < MinIntervalMinutes {
			return &ConfigError{Field: "schedule.intervalMinutes", Reason: fmt.Sprintf("must be at least %d", MinIntervalMinutes)}
		}
	case CadenceDaily:
		if s.Hour < 0 || s.Hour > 23 {
			return &ConfigError{Field: "schedule.hour", Reason: "must be between 0 and 23"}
		}
		if s.Minute < 0 || s.Minute > 59 {
			return &ConfigError{Field: "schedule.minute", Reason: "must be between 0 and 59"}
		}
	case CadenceCron:
		if s.CronExpression == "" {
			return &ConfigError{Field: "schedule.cronExpression", Reason: "cannot be empty"}
		}
		if _, err := cron.ParseStandard(s.CronExpression); err != nil {
			return &ConfigError{Field: "schedule.cronExpression", Reason: err.Error()}
		}
	case CadenceHourly, CadenceManual:
		// 无需调度参数
	default:
		return &ConfigError{Field: "cadence", Reason: fmt.Sprintf("unknown cadence %q", cadence)}
	}
	return nil
}

// Target 一次运行中的扫描批次目标
type Target struct {
	Label     string `json:"label"`
	BatchSize int    `json:"batchSize"`
}
