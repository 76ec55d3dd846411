package taskrepo

import (
	"context"
	"errors"
	"time"

	domain "github.com/antidetect/automation/internal/biz/task"
	"github.com/antidetect/automation/internal/infra/persistence/commonrepo"
	"github.com/google/wire"
	"github.com/samber/lo"
	"gorm.io/gorm"
)

var Provider = wire.NewSet(NewMysqlRepositoryImpl)

type MysqlRepositoryImpl struct {
	commonrepo.DefaultRepo
}

func NewMysqlRepositoryImpl(db commonrepo.DB) domain.Repo {
	return &MysqlRepositoryImpl{DefaultRepo: commonrepo.NewDefaultRepo(db)}
}

func (r *MysqlRepositoryImpl) Create(ctx context.Context, task *domain.Task) error {
	po := new(TaskPo).FromDomain(task)
	po.Version = 1
	err := r.Db(ctx).Create(po).Error
	if err != nil {
		return err
	}
	task.ID = po.ID
	task.CreatedAt = po.CreatedAt
	task.UpdatedAt = po.UpdatedAt
	task.Version = po.Version
	return nil
}

func (r *MysqlRepositoryImpl) GetByID(ctx context.Context, id uint64) (*domain.Task, error) {
	var po TaskPo
	if err := r.Db(ctx).Where("id = ?", id).First(&po).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return po.ToDomain(), nil
}

func (r *MysqlRepositoryImpl) GetByName(ctx context.Context, name string) (*domain.Task, error) {
	var po TaskPo
	if err := r.Db(ctx).Where("name = ?", name).First(&po).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return po.ToDomain(), nil
}

func (r *MysqlRepositoryImpl) Delete(ctx context.Context, id uint64) error {
	return r.Db(ctx).Where("id = ?", id).Delete(&TaskPo{}).Error
}

func (r *MysqlRepositoryImpl) Update(ctx context.Context, id uint64, patch *domain.TaskPatch) error {
	values := patchToMap(patch)
	if len(values) == 0 {
		return nil
	}
	return r.Db(ctx).Model(&TaskPo{}).Where("id = ?", id).Updates(values).Error
}

func (r *MysqlRepositoryImpl) List(ctx context.Context, filter *domain.TaskFilter) ([]*domain.Task, error) {
	var pos []TaskPo
	query := r.Db(ctx).Model(&TaskPo{})
	if filter != nil {
		if filter.Status.IsPresent() {
			query = query.Where("status = ?", filter.Status.MustGet())
		}
		if filter.ProjectID.IsPresent() {
			query = query.Where("project_id = ?", filter.ProjectID.MustGet())
		}
	}
	if err := query.Find(&pos).Error; err != nil {
		return nil, err
	}
	return lo.Map(pos, func(po TaskPo, _ int) *domain.Task {
		return po.ToDomain()
	}), nil
}

func (r *MysqlRepositoryImpl) FindDue(ctx context.Context, now time.Time) ([]*domain.Task, error) {
	var pos []TaskPo
	err := r.Db(ctx).
		Where("status = ? AND next_run_at IS NOT NULL AND next_run_at <= ?", domain.TaskStatusScheduled, now).
		Find(&pos).Error
	if err != nil {
		return nil, err
	}
	return lo.Map(pos, func(po TaskPo, _ int) *domain.Task {
		return po.ToDomain()
	}), nil
}

// TransitionStatus 条件更新加版本自增，RowsAffected 判定是否命中版本
func (r *MysqlRepositoryImpl) TransitionStatus(ctx context.Context, id uint64, version uint64, patch *domain.TaskPatch) (bool, error) {
	values := patchToMap(patch)
	values["version"] = version + 1

	res := r.Db(ctx).Model(&TaskPo{}).
		Where("id = ? AND version = ?", id, version).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
