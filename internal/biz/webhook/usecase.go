package webhook

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"

	"github.com/antidetect/automation/internal/event"
	"github.com/google/wire"
	"github.com/samber/mo"
)

var Provider = wire.NewSet(NewUsecase)

const (
	MinNameLength   = 3
	MinSecretLength = 8
	secretBytes     = 16
)

var urlPattern = regexp.MustCompile(`^https?://[^\s]+$`)

type Usecase struct {
	repo Repo
}

func NewUsecase(repo Repo) *Usecase {
	return &Usecase{repo: repo}
}

// Create 校验并落库订阅；secret 缺省时自动生成随机 hex
func (u *Usecase) Create(ctx context.Context, sub *Subscription) error {
	if sub.Secret == "" {
		secret, err := generateSecret()
		if err != nil {
			return fmt.Errorf("failed to generate secret: %w", err)
		}
		sub.Secret = secret
	}
	if err := validate(sub); err != nil {
		return err
	}
	sub.Status = SubscriptionStatusActive
	return u.repo.CreateSubscription(ctx, sub)
}

func (u *Usecase) Get(ctx context.Context, id uint64) (*Subscription, error) {
	sub, err := u.repo.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	} else if sub == nil {
		return nil, ErrNotFound
	}
	return sub, nil
}

func (u *Usecase) List(ctx context.Context, filter *SubscriptionFilter) ([]*Subscription, error) {
	return u.repo.ListSubscriptions(ctx, filter)
}

type UpdateRequest struct {
	Name   mo.Option[string]
	URL    mo.Option[string]
	Events mo.Option[[]string]
	Secret mo.Option[string]
	Status mo.Option[SubscriptionStatus]
}

func (u *Usecase) Update(ctx context.Context, id uint64, req *UpdateRequest) (*Subscription, error) {
	sub, err := u.repo.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	} else if sub == nil {
		return nil, ErrNotFound
	}

	if v, ok := req.Name.Get(); ok {
		sub.Name = v
	}
	if v, ok := req.URL.Get(); ok {
		sub.URL = v
	}
	if v, ok := req.Events.Get(); ok {
		sub.Events = v
	}
	if v, ok := req.Secret.Get(); ok {
		sub.Secret = v
	}
	if v, ok := req.Status.Get(); ok {
		if v != SubscriptionStatusActive && v != SubscriptionStatusPaused {
			return nil, &ValidationError{Field: "status", Reason: "must be active or paused"}
		}
		sub.Status = v
	}
	if err := validate(sub); err != nil {
		return nil, err
	}

	patch := NewSubscriptionPatch()
	patch.Name = req.Name.ToPointer()
	patch.URL = req.URL.ToPointer()
	patch.Events = req.Events.ToPointer()
	patch.Secret = req.Secret.ToPointer()
	patch.Status = req.Status.ToPointer()

	return sub, u.repo.UpdateSubscription(ctx, id, patch)
}

// Delete 立即删除；进行中的投递允许收尾，后续重试在下一次读订阅时自然终止
func (u *Usecase) Delete(ctx context.Context, id uint64) error {
	sub, err := u.repo.GetSubscription(ctx, id)
	if err != nil {
		return err
	} else if sub == nil {
		return ErrNotFound
	}
	return u.repo.DeleteSubscription(ctx, id)
}

func (u *Usecase) ListDeliveries(ctx context.Context, subscriptionID uint64, limit, offset int) ([]*Delivery, error) {
	sub, err := u.repo.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	} else if sub == nil {
		return nil, ErrNotFound
	}
	return u.repo.ListDeliveries(ctx, subscriptionID, limit, offset)
}

func validate(sub *Subscription) error {
	if len(sub.Name) < MinNameLength {
		return &ValidationError{Field: "name", Reason: "must be at least 3 characters"}
	}
	if !urlPattern.MatchString(sub.URL) {
		return &ValidationError{Field: "url", Reason: "must be an http or https URL"}
	}
	parsed, err := url.Parse(sub.URL)
	if err != nil || parsed.Host == "" {
		return &ValidationError{Field: "url", Reason: "must have a non-empty host"}
	}
	if len(sub.Events) == 0 {
		return &ValidationError{Field: "events", Reason: "cannot be empty"}
	}
	for _, ev := range sub.Events {
		if !event.Type(ev).IsValid() {
			return &ValidationError{Field: "events", Reason: fmt.Sprintf("unknown event type %q", ev)}
		}
	}
	if len(sub.Secret) < MinSecretLength {
		return &ValidationError{Field: "secret", Reason: "must be at least 8 characters"}
	}
	return nil
}

func generateSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
