package application

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rodolfodevapp/eventshop-messaging-go/core/primitives"
	"go.uber.org/zap"

	"github.com/RodolfoDevApp/roomstay-booking-go/internal/domain"
)

type EventHandler interface {
	Handle(ctx context.Context, ev primitives.Event) error
}

// ResourceTypeCreatedHandler seeds the local catalog and its capacity
// horizon from catalog.events.
type ResourceTypeCreatedHandler struct {
	horizon *HorizonService
	logger  *zap.Logger
}

func NewResourceTypeCreatedHandler(horizon *HorizonService, logger *zap.Logger) *ResourceTypeCreatedHandler {
	return &ResourceTypeCreatedHandler{horizon: horizon, logger: logger}
}

func (h *ResourceTypeCreatedHandler) Handle(ctx context.Context, ev primitives.Event) error {
	env, ok := ev.(*primitives.IntegrationEventEnvelope)
	if !ok {
		h.logger.Warn("unexpected event type", zap.String("type", typeNameOf(ev)))
		return nil
	}
	if env.Type != "ResourceTypeCreated" {
		return nil
	}

	var payload domain.ResourceTypeCreatedPayload
	if err := json.Unmarshal([]byte(env.PayloadJSON), &payload); err != nil {
		h.logger.Warn("failed to unmarshal ResourceTypeCreated payload", zap.Error(err))
		return nil
	}

	rt := domain.ResourceType{
		ID:         payload.ResourceTypeID,
		Name:       payload.Name,
		TotalUnits: payload.TotalUnits,
		BasePrice:  payload.BasePrice,
	}
	// Malformed catalog entries are dropped, not retried.
	if err := h.horizon.RegisterResourceType(ctx, rt); err != nil {
		if errors.Is(err, domain.ErrValidation) {
			h.logger.Warn("invalid ResourceTypeCreated payload",
				zap.Int64("resource_type_id", rt.ID), zap.Error(err))
			return nil
		}
		return err
	}

	h.logger.Info("resource type registered from catalog",
		zap.Int64("resource_type_id", rt.ID),
		zap.Int("total_units", rt.TotalUnits),
	)

	_, err := h.horizon.GenerateHorizon(ctx, rt.ID, 0)
	return err
}
