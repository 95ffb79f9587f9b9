package messaging

import (
	"context"
	"fmt"

	messaging "github.com/rodolfodevapp/eventshop-messaging-go/rabbitmq"
	"go.uber.org/zap"

	"github.com/RodolfoDevApp/roomstay-booking-go/internal/application"
)

const (
	BookingExchange = "booking.events"
	CatalogExchange = "catalog.events"
)

// NewProducerBus publishes booking lifecycle events.
func NewProducerBus(rabbitURI string) *messaging.RabbitMqEventBus {
	return messaging.NewRabbitMqEventBus(messaging.RabbitMqOptions{
		URI:          rabbitURI,
		ExchangeName: BookingExchange,
		QueuePrefix:  "booking.dispatcher.v1",
		Prefetch:     32,
		RetryDelayMs: 30000,
	}, nil, nil)
}

// NewCatalogEventBus consumes catalog.events.
func NewCatalogEventBus(rabbitURI, queuePrefix string) *messaging.RabbitMqEventBus {
	return messaging.NewRabbitMqEventBus(messaging.RabbitMqOptions{
		URI:          rabbitURI,
		ExchangeName: CatalogExchange,
		QueuePrefix:  queuePrefix,
		Prefetch:     32,
		RetryDelayMs: 30000,
	}, nil, nil)
}

func RegisterCatalogSubscriptions(
	ctx context.Context,
	bus *messaging.RabbitMqEventBus,
	resourceTypeCreated application.EventHandler,
	logger *zap.Logger,
) error {
	bus.Subscribe("ResourceTypeCreated", resourceTypeCreated)

	if err := bus.StartConsumers(ctx); err != nil {
		logger.Error("failed to start catalog consumers", zap.Error(err))
		return fmt.Errorf("start catalog consumers: %w", err)
	}
	return nil
}
