package webhook

import (
	"context"

	"github.com/samber/mo"
)

type Repo interface {
	CreateSubscription(ctx context.Context, sub *Subscription) error
	GetSubscription(ctx context.Context, id uint64) (*Subscription, error)
	UpdateSubscription(ctx context.Context, id uint64, patch *SubscriptionPatch) error
	DeleteSubscription(ctx context.Context, id uint64) error
	ListSubscriptions(ctx context.Context, filter *SubscriptionFilter) ([]*Subscription, error)

	// FindActiveByEvent 查找 status=active 且订阅了指定事件类型的订阅
	FindActiveByEvent(ctx context.Context, eventType string) ([]*Subscription, error)

	CreateDelivery(ctx context.Context, delivery *Delivery) error
	UpdateDelivery(ctx context.Context, id uint64, patch *DeliveryPatch) error
	ListDeliveries(ctx context.Context, subscriptionID uint64, limit, offset int) ([]*Delivery, error)
}

type SubscriptionFilter struct {
	Status    mo.Option[SubscriptionStatus]
	ProjectID mo.Option[string]
}
