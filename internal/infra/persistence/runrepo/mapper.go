package runrepo

import (
	domain "github.com/antidetect/automation/internal/biz/run"
	"github.com/antidetect/automation/internal/infra/persistence/commonrepo"
)

func (po *RunPo) FromDomain(in *domain.TaskRun) *RunPo {
	return &RunPo{
		Mode: commonrepo.Mode{
			ID:        in.ID,
			CreatedAt: in.CreatedAt,
			UpdatedAt: in.UpdatedAt,
		},
		TaskID:       in.TaskID,
		Status:       in.Status,
		QueuedAt:     in.QueuedAt,
		StartedAt:    in.StartedAt,
		CompletedAt:  in.CompletedAt,
		DurationMs:   in.DurationMs,
		SuccessCount: in.SuccessCount,
		FailCount:    in.FailCount,
		Error:        in.Error,
	}
}

func (po *RunPo) ToDomain() *domain.TaskRun {
	return &domain.TaskRun{
		ID:           po.ID,
		CreatedAt:    po.CreatedAt,
		UpdatedAt:    po.UpdatedAt,
		TaskID:       po.TaskID,
		Status:       po.Status,
		QueuedAt:     po.QueuedAt,
		StartedAt:    po.StartedAt,
		CompletedAt:  po.CompletedAt,
		DurationMs:   po.DurationMs,
		SuccessCount: po.SuccessCount,
		FailCount:    po.FailCount,
		Error:        po.Error,
	}
}

func patchToMap(input *domain.RunPatch) map[string]any {
	var values = make(map[string]any)

	if input.Status != nil {
		values["status"] = *input.Status
	}

	if v, ok := input.StartedAt.Get(); ok {
		values["started_at"] = v
	}

	if v, ok := input.CompletedAt.Get(); ok {
		values["completed_at"] = v
	}

	if input.DurationMs != nil {
		values["duration_ms"] = *input.DurationMs
	}

	if input.SuccessCount != nil {
		values["success_count"] = *input.SuccessCount
	}

	if input.FailCount != nil {
		values["fail_count"] = *input.FailCount
	}

	if input.Error != nil {
		values["error"] = *input.Error
	}

	return values
}
