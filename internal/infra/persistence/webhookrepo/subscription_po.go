package webhookrepo

import (
	"time"

	domain "github.com/antidetect/automation/internal/biz/webhook"
	"github.com/antidetect/automation/internal/infra/persistence/commonrepo"
	"gorm.io/datatypes"
)

type SubscriptionPo struct {
	commonrepo.Mode
	ProjectID string                      `gorm:"column:project_id;size:64;index"`
	Name      string                      `gorm:"column:name;size:255;not null"`
	URL       string                      `gorm:"column:url;size:2048;not null"`
	Events    datatypes.JSONSlice[string] `gorm:"column:events"`
	Secret    string                      `gorm:"column:secret;size:255;not null"`
	Status    domain.SubscriptionStatus   `gorm:"column:status;size:20;not null;index"`
}

func (s *SubscriptionPo) TableName() string {
	return "webhook_subscriptions"
}

type DeliveryPo struct {
	commonrepo.Mode
	SubscriptionID uint64                `gorm:"column:subscription_id;not null;index"`
	Event          string                `gorm:"column:event;size:64;not null"`
	Status         domain.DeliveryStatus `gorm:"column:status;size:20;not null;index"`
	ResponseCode   *int                  `gorm:"column:response_code"`
	Error          string                `gorm:"column:error;type:text"`
	DeliveredAt    *time.Time            `gorm:"column:delivered_at;index"`
	DurationMs     int64                 `gorm:"column:duration_ms;default:0"`
	Attempt        int                   `gorm:"column:attempt;default:0"`
}

func (d *DeliveryPo) TableName() string {
	return "webhook_deliveries"
}
