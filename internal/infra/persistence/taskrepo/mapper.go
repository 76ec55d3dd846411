package taskrepo

import (
	domain "github.com/antidetect/automation/internal/biz/task"
	"github.com/antidetect/automation/internal/infra/persistence/commonrepo"
	"gorm.io/datatypes"
)

func (po *TaskPo) FromDomain(in *domain.Task) *TaskPo {
	return &TaskPo{
		Mode: commonrepo.Mode{
			ID:        in.ID,
			CreatedAt: in.CreatedAt,
			UpdatedAt: in.UpdatedAt,
		},
		Version:   in.Version,
		Name:      in.Name,
		ProjectID: in.ProjectID,
		Cadence:   in.Cadence,
		Schedule:  datatypes.NewJSONType(in.Schedule),
		Timezone:  in.Timezone,
		Targets:   datatypes.NewJSONSlice(in.Targets),
		Status:    in.Status,
		NextRunAt: in.NextRunAt,
		LastRunAt: in.LastRunAt,
	}
}

func (po *TaskPo) ToDomain() *domain.Task {
	return &domain.Task{
		ID:        po.ID,
		CreatedAt: po.CreatedAt,
		UpdatedAt: po.UpdatedAt,
		Version:   po.Version,
		Name:      po.Name,
		ProjectID: po.ProjectID,
		Cadence:   po.Cadence,
		Schedule:  po.Schedule.Data(),
		Timezone:  po.Timezone,
		Targets:   po.Targets,
		Status:    po.Status,
		NextRunAt: po.NextRunAt,
		LastRunAt: po.LastRunAt,
	}
}

func patchToMap(input *domain.TaskPatch) map[string]any {
	var values = make(map[string]any)

	if input.Name != nil {
		values["name"] = *input.Name
	}

	if input.ProjectID != nil {
		values["project_id"] = *input.ProjectID
	}

	if input.Cadence != nil {
		values["cadence"] = *input.Cadence
	}

	if input.Schedule != nil {
		values["schedule"] = datatypes.NewJSONType(*input.Schedule)
	}

	if input.Timezone != nil {
		values["timezone"] = *input.Timezone
	}

	if input.Targets != nil {
		values["targets"] = datatypes.NewJSONSlice(*input.Targets)
	}

	if input.Status != nil {
		values["status"] = *input.Status
	}

	if v, ok := input.NextRunAt.Get(); ok {
		values["next_run_at"] = v
	}

	if v, ok := input.LastRunAt.Get(); ok {
		values["last_run_at"] = v
	}

	return values
}
