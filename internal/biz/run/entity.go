package run

import (
	"time"

	"github.com/samber/mo"
)

type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// IsFinal completed/failed 之后记录不可变，只读
func (s RunStatus) IsFinal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

type TaskRun struct {
	ID        uint64
	CreatedAt time.Time
	UpdatedAt time.Time

	TaskID       uint64
	Status       RunStatus
	QueuedAt     time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	DurationMs   int64
	SuccessCount int
	FailCount    int
	Error        string
}

type RunPatch struct {
	Status       *RunStatus
	StartedAt    mo.Option[*time.Time]
	CompletedAt  mo.Option[*time.Time]
	DurationMs   *int64
	SuccessCount *int
	FailCount    *int
	Error        *string
}

func NewRunPatch() *RunPatch {
	return &RunPatch{}
}

func (p *RunPatch) WithStatus(status RunStatus) *RunPatch {
	p.Status = &status
	return p
}

func (p *RunPatch) WithStartedAt(t *time.Time) *RunPatch {
	p.StartedAt = mo.Some(t)
	return p
}

func (p *RunPatch) WithCompletedAt(t *time.Time) *RunPatch {
	p.CompletedAt = mo.Some(t)
	return p
}

func (p *RunPatch) WithDurationMs(d int64) *RunPatch {
	p.DurationMs = &d
	return p
}

func (p *RunPatch) WithSuccessCount(n int) *RunPatch {
	p.SuccessCount = &n
	return p
}

func (p *RunPatch) WithFailCount(n int) *RunPatch {
	p.FailCount = &n
	return p
}

func (p *RunPatch) WithError(msg string) *RunPatch {
	p.Error = &msg
	return p
}
