package handler

import (
	"errors"

	"agentforms-webhooks/internal/adapter/http/dto"
	"agentforms-webhooks/internal/core/ports"
	"agentforms-webhooks/internal/service"
	"agentforms-webhooks/pkg/apperror"
	"agentforms-webhooks/pkg/response"

	"github.com/gin-gonic/gin"
)

// EventHandler accepts lifecycle events from the conversation runtime.
type EventHandler struct {
	dispatcher ports.Dispatcher
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(dispatcher ports.Dispatcher) *EventHandler {
	return &EventHandler{dispatcher: dispatcher}
}

// Publish handles POST /api/v1/events. Delivery continues after the response.
func (h *EventHandler) Publish(c *gin.Context) {
	var req dto.EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.ErrInvalidEvent(err.Error()))
		return
	}

	if err := h.dispatcher.DispatchAsync(c.Request.Context(), req.ToDomain()); err != nil {
		if errors.Is(err, service.ErrDispatchBusy) {
			response.Error(c, apperror.ErrDispatchBusy())
			return
		}
		response.Error(c, apperror.InternalError(err))
		return
	}

	response.Accepted(c, dto.EventAcceptedResponse{
		Event:    req.Event,
		EventID:  req.ID,
		Accepted: true,
	})
}
