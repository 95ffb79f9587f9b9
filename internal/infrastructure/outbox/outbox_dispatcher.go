package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rodolfodevapp/eventshop-messaging-go/core/primitives"
	"go.uber.org/zap"

	"github.com/RodolfoDevApp/roomstay-booking-go/internal/domain"
)

// Publisher is the producing half of the event bus.
type Publisher interface {
	Publish(ctx context.Context, ev primitives.Event) error
}

// Dispatcher publishes committed outbox messages as integration envelopes.
// A message is marked processed only after a successful publish; failures
// bump its retry count until maxRetry parks it.
type Dispatcher struct {
	repo      domain.OutboxRepository
	publisher Publisher
	maxRetry  int
	batchSize int
	logger    *zap.Logger
}

func NewDispatcher(
	repo domain.OutboxRepository,
	publisher Publisher,
	maxRetry, batchSize int,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		repo:      repo,
		publisher: publisher,
		maxRetry:  maxRetry,
		batchSize: batchSize,
		logger:    logger,
	}
}

func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	msgs, err := d.repo.GetPendingBatch(ctx, d.maxRetry, d.batchSize)
	if err != nil {
		return 0, fmt.Errorf("load outbox batch: %w", err)
	}

	processed := 0
	for i := range msgs {
		msg := &msgs[i]
		log := d.logger.With(zap.String("outbox_id", msg.ID.String()), zap.String("type", msg.Type))

		if !json.Valid([]byte(msg.PayloadJSON)) {
			log.Error("outbox payload is not valid JSON")
			msg.RetryCount = d.maxRetry
			d.save(ctx, log, msg)
			continue
		}

		envelope := primitives.NewIntegrationEventEnvelope(msg.Type, msg.PayloadJSON)
		envelope.SetRoutingKey(msg.Type)

		if err := d.publisher.Publish(ctx, &envelope); err != nil {
			msg.RetryCount++
			log.Warn("outbox publish failed", zap.Int("retry_count", msg.RetryCount), zap.Error(err))
		} else {
			now := time.Now().UTC().Unix()
			msg.ProcessedAtUtc = &now
			processed++
		}
		d.save(ctx, log, msg)
	}

	return processed, nil
}

func (d *Dispatcher) save(ctx context.Context, log *zap.Logger, msg *domain.OutboxMessage) {
	if err := d.repo.Save(ctx, *msg); err != nil {
		log.Error("outbox save failed", zap.Error(err))
	}
}
