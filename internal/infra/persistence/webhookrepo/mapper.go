package webhookrepo

import (
	domain "github.com/antidetect/automation/internal/biz/webhook"
	"github.com/antidetect/automation/internal/infra/persistence/commonrepo"
	"gorm.io/datatypes"
)

func (po *SubscriptionPo) FromDomain(in *domain.Subscription) *SubscriptionPo {
	return &SubscriptionPo{
		Mode: commonrepo.Mode{
			ID:        in.ID,
			CreatedAt: in.CreatedAt,
			UpdatedAt: in.UpdatedAt,
		},
		ProjectID: in.ProjectID,
		Name:      in.Name,
		URL:       in.URL,
		Events:    datatypes.NewJSONSlice(in.Events),
		Secret:    in.Secret,
		Status:    in.Status,
	}
}

func (po *SubscriptionPo) ToDomain() *domain.Subscription {
	return &domain.Subscription{
		ID:        po.ID,
		CreatedAt: po.CreatedAt,
		UpdatedAt: po.UpdatedAt,
		ProjectID: po.ProjectID,
		Name:      po.Name,
		URL:       po.URL,
		Events:    po.Events,
		Secret:    po.Secret,
		Status:    po.Status,
	}
}

func (po *DeliveryPo) FromDomain(in *domain.Delivery) *DeliveryPo {
	return &DeliveryPo{
		Mode: commonrepo.Mode{
			ID:        in.ID,
			CreatedAt: in.CreatedAt,
			UpdatedAt: in.UpdatedAt,
		},
		SubscriptionID: in.SubscriptionID,
		Event:          in.Event,
		Status:         in.Status,
		ResponseCode:   in.ResponseCode,
		Error:          in.Error,
		DeliveredAt:    in.DeliveredAt,
		DurationMs:     in.DurationMs,
		Attempt:        in.Attempt,
	}
}

func (po *DeliveryPo) ToDomain() *domain.Delivery {
	return &domain.Delivery{
		ID:             po.ID,
		CreatedAt:      po.CreatedAt,
		UpdatedAt:      po.UpdatedAt,
		SubscriptionID: po.SubscriptionID,
		Event:          po.Event,
		Status:         po.Status,
		ResponseCode:   po.ResponseCode,
		Error:          po.Error,
		DeliveredAt:    po.DeliveredAt,
		DurationMs:     po.DurationMs,
		Attempt:        po.Attempt,
	}
}

func subscriptionPatchToMap(input *domain.SubscriptionPatch) map[string]any {
	var values = make(map[string]any)

	if input.Name != nil {
		values["name"] = *input.Name
	}

	if input.URL != nil {
		values["url"] = *input.URL
	}

	if input.Events != nil {
		values["events"] = datatypes.NewJSONSlice(*input.Events)
	}

	if input.Secret != nil {
		values["secret"] = *input.Secret
	}

	if input.Status != nil {
		values["status"] = *input.Status
	}

	return values
}

func deliveryPatchToMap(input *domain.DeliveryPatch) map[string]any {
	var values = make(map[string]any)

	if input.Status != nil {
		values["status"] = *input.Status
	}

	if input.ResponseCode != nil {
		values["response_code"] = *input.ResponseCode
	}

	if input.Error != nil {
		values["error"] = *input.Error
	}

	if input.DeliveredAt != nil {
		values["delivered_at"] = *input.DeliveredAt
	}

	if input.DurationMs != nil {
		values["duration_ms"] = *input.DurationMs
	}

	if input.Attempt != nil {
		values["attempt"] = *input.Attempt
	}

	return values
}
