package webhook

import (
	"time"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive SubscriptionStatus = "active"
	SubscriptionStatusPaused SubscriptionStatus = "paused"
)

type Subscription struct {
	ID        uint64
	CreatedAt time.Time
	UpdatedAt time.Time

	ProjectID string
	Name      string
	URL       string
	Events    []string
	Secret    string
	Status    SubscriptionStatus
}

type SubscriptionPatch struct {
	Name   *string
	URL    *string
	Events *[]string
	Secret *string
	Status *SubscriptionStatus
}

func NewSubscriptionPatch() *SubscriptionPatch {
	return &SubscriptionPatch{}
}

func (p *SubscriptionPatch) WithName(name string) *SubscriptionPatch {
	p.Name = &name
	return p
}

func (p *SubscriptionPatch) WithURL(url string) *SubscriptionPatch {
	p.URL = &url
	return p
}

func (p *SubscriptionPatch) WithEvents(events []string) *SubscriptionPatch {
	p.Events = &events
	return p
}

func (p *SubscriptionPatch) WithSecret(secret string) *SubscriptionPatch {
	p.Secret = &secret
	return p
}

func (p *SubscriptionPatch) WithStatus(status SubscriptionStatus) *SubscriptionPatch {
	p.Status = &status
	return p
}

type DeliveryStatus string

const (
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

// Delivery 一次逻辑投递的记录，重试期间原行就地更新，attempt 递增
type Delivery struct {
	ID        uint64
	CreatedAt time.Time
	UpdatedAt time.Time

	SubscriptionID uint64
	Event          string
	Status         DeliveryStatus
	ResponseCode   *int
	Error          string
	DeliveredAt    *time.Time
	DurationMs     int64
	Attempt        int
}

type DeliveryPatch struct {
	Status       *DeliveryStatus
	ResponseCode *int
	Error        *string
	DeliveredAt  *time.Time
	DurationMs   *int64
	Attempt      *int
}

func NewDeliveryPatch() *DeliveryPatch {
	return &DeliveryPatch{}
}

func (p *DeliveryPatch) WithStatus(status DeliveryStatus) *DeliveryPatch {
	p.Status = &status
	return p
}

func (p *DeliveryPatch) WithResponseCode(code int) *DeliveryPatch {
	p.ResponseCode = &code
	return p
}

func (p *DeliveryPatch) WithError(msg string) *DeliveryPatch {
	p.Error = &msg
	return p
}

func (p *DeliveryPatch) WithDeliveredAt(t time.Time) *DeliveryPatch {
	p.DeliveredAt = &t
	return p
}

func (p *DeliveryPatch) WithDurationMs(d int64) *DeliveryPatch {
	p.DurationMs = &d
	return p
}

func (p *DeliveryPatch) WithAttempt(n int) *DeliveryPatch {
	p.Attempt = &n
	return p
}
