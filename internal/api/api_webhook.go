package api

import (
	"net/http"
	"time"

	"github.com/antidetect/automation/internal/biz/webhook"
	"github.com/antidetect/automation/internal/dispatch"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/samber/mo"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

type WebhookAPI struct {
	usecase    *webhook.Usecase
	dispatcher *dispatch.Dispatcher
	logger     *zap.Logger
}

func NewWebhookAPI(usecase *webhook.Usecase, dispatcher *dispatch.Dispatcher, logger *zap.Logger) *WebhookAPI {
	return &WebhookAPI{
		usecase:    usecase,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

type CreateSubscriptionReq struct {
	Name      string   `json:"name" binding:"required"`
	ProjectID string   `json:"project_id"`
	URL       string   `json:"url" binding:"required"`
	Events    []string `json:"events" binding:"required"`
	Secret    string   `json:"secret"`
}

type UpdateSubscriptionReq struct {
	Name   *string                     `json:"name"`
	URL    *string                     `json:"url"`
	Events *[]string                   `json:"events"`
	Secret *string                     `json:"secret"`
	Status *webhook.SubscriptionStatus `json:"status"`
}

type TestDeliveryReq struct {
	URL       string `json:"url" binding:"required"`
	Secret    string `json:"secret" binding:"required"`
	ProjectID string `json:"project_id"`
}

type SubscriptionResponse struct {
	ID        uint64    `json:"id"`
	Name      string    `json:"name"`
	ProjectID string    `json:"project_id,omitempty"`
	URL       string    `json:"url"`
	Events    []string  `json:"events"`
	Secret    string    `json:"secret"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toSubscriptionResponse(sub *webhook.Subscription) SubscriptionResponse {
	return SubscriptionResponse{
		ID:        sub.ID,
		Name:      sub.Name,
		ProjectID: sub.ProjectID,
		URL:       sub.URL,
		Events:    sub.Events,
		Secret:    sub.Secret,
		Status:    string(sub.Status),
		CreatedAt: sub.CreatedAt,
		UpdatedAt: sub.UpdatedAt,
	}
}

type DeliveryResponse struct {
	ID             uint64     `json:"id"`
	SubscriptionID uint64     `json:"subscription_id"`
	Event          string     `json:"event"`
	Status         string     `json:"status"`
	ResponseCode   *int       `json:"response_code"`
	Error          string     `json:"error,omitempty"`
	DeliveredAt    *time.Time `json:"delivered_at"`
	DurationMs     int64      `json:"duration_ms"`
	Attempt        int        `json:"attempt"`
	CreatedAt      time.Time  `json:"created_at"`
}

func toDeliveryResponse(d *webhook.Delivery) DeliveryResponse {
	return DeliveryResponse{
		ID:             d.ID,
		SubscriptionID: d.SubscriptionID,
		Event:          d.Event,
		Status:         string(d.Status),
		ResponseCode:   d.ResponseCode,
		Error:          d.Error,
		DeliveredAt:    d.DeliveredAt,
		DurationMs:     d.DurationMs,
		Attempt:        d.Attempt,
		CreatedAt:      d.CreatedAt,
	}
}

func (a *WebhookAPI) List(c *gin.Context) {
	filter := &webhook.SubscriptionFilter{}
	if status := c.Query("status"); status != "" {
		filter.Status = mo.Some(webhook.SubscriptionStatus(status))
	}
	if projectID := c.Query("project_id"); projectID != "" {
		filter.ProjectID = mo.Some(projectID)
	}

	subs, err := a.usecase.List(c.Request.Context(), filter)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, lo.Map(subs, func(s *webhook.Subscription, _ int) SubscriptionResponse {
		return toSubscriptionResponse(s)
	}))
}

func (a *WebhookAPI) Create(c *gin.Context) {
	var req CreateSubscriptionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "BAD_REQUEST", Message: err.Error()})
		return
	}

	sub := &webhook.Subscription{
		Name:      req.Name,
		ProjectID: req.ProjectID,
		URL:       req.URL,
		Events:    req.Events,
		Secret:    req.Secret,
	}
	if err := a.usecase.Create(c.Request.Context(), sub); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, toSubscriptionResponse(sub))
}

func (a *WebhookAPI) Get(c *gin.Context) {
	id, err := cast.ToUint64E(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "BAD_REQUEST", Message: "invalid subscription id"})
		return
	}

	sub, err := a.usecase.Get(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, toSubscriptionResponse(sub))
}

func (a *WebhookAPI) Update(c *gin.Context) {
	id, err := cast.ToUint64E(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "BAD_REQUEST", Message: "invalid subscription id"})
		return
	}

	var req UpdateSubscriptionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "BAD_REQUEST", Message: err.Error()})
		return
	}

	update := &webhook.UpdateRequest{
		Name:   mo.PointerToOption(req.Name),
		URL:    mo.PointerToOption(req.URL),
		Events: mo.PointerToOption(req.Events),
		Secret: mo.PointerToOption(req.Secret),
		Status: mo.PointerToOption(req.Status),
	}
	sub, err := a.usecase.Update(c.Request.Context(), id, update)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, toSubscriptionResponse(sub))
}

func (a *WebhookAPI) Delete(c *gin.Context) {
	id, err := cast.ToUint64E(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "BAD_REQUEST", Message: "invalid subscription id"})
		return
	}

	if err := a.usecase.Delete(c.Request.Context(), id); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "subscription deleted"})
}

// TestAdhoc 对任意 url/secret 发送一次测试事件，不要求已有订阅
func (a *WebhookAPI) TestAdhoc(c *gin.Context) {
	var req TestDeliveryReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "BAD_REQUEST", Message: err.Error()})
		return
	}

	result := a.dispatcher.TestDelivery(c.Request.Context(), req.URL, req.Secret, req.ProjectID)
	c.JSON(http.StatusOK, result)
}

func (a *WebhookAPI) Test(c *gin.Context) {
	id, err := cast.ToUint64E(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "BAD_REQUEST", Message: "invalid subscription id"})
		return
	}

	result, err := a.dispatcher.TestSubscription(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (a *WebhookAPI) ListDeliveries(c *gin.Context) {
	id, err := cast.ToUint64E(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: "BAD_REQUEST", Message: "invalid subscription id"})
		return
	}

	limit := cast.ToInt(c.DefaultQuery("limit", "50"))
	offset := cast.ToInt(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	deliveries, err := a.usecase.ListDeliveries(c.Request.Context(), id, limit, offset)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, lo.Map(deliveries, func(d *webhook.Delivery, _ int) DeliveryResponse {
		return toDeliveryResponse(d)
	}))
}
