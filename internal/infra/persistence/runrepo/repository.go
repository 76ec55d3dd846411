package runrepo

import (
	"context"
	"errors"
	"time"

	domain "github.com/antidetect/automation/internal/biz/run"
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

func (r *MysqlRepositoryImpl) Create(ctx context.Context, run *domain.TaskRun) error {
	po := new(RunPo).FromDomain(run)
	err := r.Db(ctx).Create(po).Error
	if err != nil {
		return err
	}
	run.ID = po.ID
	run.CreatedAt = po.CreatedAt
	run.UpdatedAt = po.UpdatedAt
	return nil
}

func (r *MysqlRepositoryImpl) GetByID(ctx context.Context, id uint64) (*domain.TaskRun, error) {
	var po RunPo
	if err := r.Db(ctx).Where("id = ?", id).First(&po).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return po.ToDomain(), nil
}

func (r *MysqlRepositoryImpl) Update(ctx context.Context, id uint64, patch *domain.RunPatch) error {
	values := patchToMap(patch)
	if len(values) == 0 {
		return nil
	}
	return r.Db(ctx).Model(&RunPo{}).Where("id = ?", id).Updates(values).Error
}

func (r *MysqlRepositoryImpl) ListByTask(ctx context.Context, taskID uint64, limit, offset int) ([]*domain.TaskRun, error) {
	var pos []RunPo
	err := r.Db(ctx).Model(&RunPo{}).
		Where("task_id = ?", taskID).
		Order("queued_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&pos).Error
	if err != nil {
		return nil, err
	}
	return lo.Map(pos, func(po RunPo, _ int) *domain.TaskRun {
		return po.ToDomain()
	}), nil
}

func (r *MysqlRepositoryImpl) FindStuck(ctx context.Context, before time.Time) ([]*domain.TaskRun, error) {
	var pos []RunPo
	err := r.Db(ctx).
		Where("status = ? AND started_at IS NOT NULL AND started_at < ?", domain.RunStatusRunning, before).
		Find(&pos).Error
	if err != nil {
		return nil, err
	}
	return lo.Map(pos, func(po RunPo, _ int) *domain.TaskRun {
		return po.ToDomain()
	}), nil
}
