package handler

import (
	"errors"
	"strconv"

	"agentforms-webhooks/internal/adapter/http/dto"
	"agentforms-webhooks/internal/core/ports"
	"agentforms-webhooks/internal/service"
	"agentforms-webhooks/pkg/apperror"
	"agentforms-webhooks/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// WebhookHandler serves operator actions on a single subscriber.
type WebhookHandler struct {
	deliverySvc ports.DeliveryService
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(deliverySvc ports.DeliveryService) *WebhookHandler {
	return &WebhookHandler{deliverySvc: deliverySvc}
}

// Test handles POST /api/v1/webhooks/:id/test.
func (h *WebhookHandler) Test(c *gin.Context) {
	id, ok := subscriberID(c)
	if !ok {
		return
	}

	result, err := h.deliverySvc.TestDelivery(c.Request.Context(), id)
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}
	response.OK(c, result)
}

// ListDeliveries handles GET /api/v1/webhooks/:id/deliveries?limit=N.
func (h *WebhookHandler) ListDeliveries(c *gin.Context) {
	id, ok := subscriberID(c)
	if !ok {
		return
	}

	limit := service.DefaultDeliveryListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.Error(c, apperror.Validation("limit must be a positive integer"))
			return
		}
		limit = min(n, service.MaxDeliveryListLimit)
	}

	items, err := h.deliverySvc.ListDeliveries(c.Request.Context(), id, limit)
	if err != nil {
		response.Error(c, mapServiceError(err))
		return
	}
	response.OK(c, dto.DeliveryListResponse{Items: items, Count: len(items), Limit: limit})
}

func subscriberID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid subscriber id"))
		return uuid.Nil, false
	}
	return id, true
}

func mapServiceError(err error) error {
	switch {
	case errors.Is(err, service.ErrSubscriberNotFound):
		return apperror.ErrSubscriberNotFound()
	case errors.Is(err, service.ErrSubscriberInactive):
		return apperror.ErrSubscriberInactive()
	default:
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return appErr
		}
		return apperror.InternalError(err)
	}
}
