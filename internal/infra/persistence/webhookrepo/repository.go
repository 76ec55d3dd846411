package webhookrepo

import (
	"context"
	"errors"

	domain "github.com/antidetect/automation/internal/biz/webhook"
	"github.com/antidetect/automation/internal/infra/persistence/commonrepo"
	"github.com/google/wire"
	"github.com/samber/lo"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var Provider = wire.NewSet(NewMysqlRepositoryImpl)

type MysqlRepositoryImpl struct {
	commonrepo.DefaultRepo
}

func NewMysqlRepositoryImpl(db commonrepo.DB) domain.Repo {
	return &MysqlRepositoryImpl{DefaultRepo: commonrepo.NewDefaultRepo(db)}
}

func (r *MysqlRepositoryImpl) CreateSubscription(ctx context.Context, sub *domain.Subscription) error {
	po := new(SubscriptionPo).FromDomain(sub)
	err := r.Db(ctx).Create(po).Error
	if err != nil {
		return err
	}
	sub.ID = po.ID
	sub.CreatedAt = po.CreatedAt
	sub.UpdatedAt = po.UpdatedAt
	return nil
}

func (r *MysqlRepositoryImpl) GetSubscription(ctx context.Context, id uint64) (*domain.Subscription, error) {
	var po SubscriptionPo
	if err := r.Db(ctx).Where("id = ?", id).First(&po).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return po.ToDomain(), nil
}

func (r *MysqlRepositoryImpl) UpdateSubscription(ctx context.Context, id uint64, patch *domain.SubscriptionPatch) error {
	values := subscriptionPatchToMap(patch)
	if len(values) == 0 {
		return nil
	}
	return r.Db(ctx).Model(&SubscriptionPo{}).Where("id = ?", id).Updates(values).Error
}

func (r *MysqlRepositoryImpl) DeleteSubscription(ctx context.Context, id uint64) error {
	return r.Db(ctx).Where("id = ?", id).Delete(&SubscriptionPo{}).Error
}

func (r *MysqlRepositoryImpl) ListSubscriptions(ctx context.Context, filter *domain.SubscriptionFilter) ([]*domain.Subscription, error) {
	var pos []SubscriptionPo
	query := r.Db(ctx).Model(&SubscriptionPo{})
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
	return lo.Map(pos, func(po SubscriptionPo, _ int) *domain.Subscription {
		return po.ToDomain()
	}), nil
}

func (r *MysqlRepositoryImpl) FindActiveByEvent(ctx context.Context, eventType string) ([]*domain.Subscription, error) {
	var pos []SubscriptionPo
	err := r.Db(ctx).Model(&SubscriptionPo{}).
		Where("status = ?", domain.SubscriptionStatusActive).
		Where(datatypes.JSONArrayQuery("events").Contains(eventType)).
		Find(&pos).Error
	if err != nil {
		return nil, err
	}
	return lo.Map(pos, func(po SubscriptionPo, _ int) *domain.Subscription {
		return po.ToDomain()
	}), nil
}

func (r *MysqlRepositoryImpl) CreateDelivery(ctx context.Context, delivery *domain.Delivery) error {
	po := new(DeliveryPo).FromDomain(delivery)
	err := r.Db(ctx).Create(po).Error
	if err != nil {
		return err
	}
	delivery.ID = po.ID
	delivery.CreatedAt = po.CreatedAt
	delivery.UpdatedAt = po.UpdatedAt
	return nil
}

func (r *MysqlRepositoryImpl) UpdateDelivery(ctx context.Context, id uint64, patch *domain.DeliveryPatch) error {
	values := deliveryPatchToMap(patch)
	if len(values) == 0 {
		return nil
	}
	return r.Db(ctx).Model(&DeliveryPo{}).Where("id = ?", id).Updates(values).Error
}

func (r *MysqlRepositoryImpl) ListDeliveries(ctx context.Context, subscriptionID uint64, limit, offset int) ([]*domain.Delivery, error) {
	var pos []DeliveryPo
	err := r.Db(ctx).Model(&DeliveryPo{}).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&pos).Error
	if err != nil {
		return nil, err
	}
	return lo.Map(pos, func(po DeliveryPo, _ int) *domain.Delivery {
		return po.ToDomain()
	}), nil
}
