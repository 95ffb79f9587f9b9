package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/RodolfoDevApp/roomstay-booking-go/internal/domain"
)

// PgOutboxRepository stores booking events until the dispatcher publishes them.
// Inside a transaction it shares the booking's pgTx; the dispatcher's copy runs
// on the pool.
type PgOutboxRepository struct {
	q querier
}

func NewPgOutboxRepository(db *sql.DB) *PgOutboxRepository {
	return &PgOutboxRepository{q: db}
}

func (r *PgOutboxRepository) Insert(ctx context.Context, msg domain.OutboxMessage) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	occurred := time.Now().UTC()
	if msg.OccurredAtUtc != 0 {
		occurred = time.Unix(msg.OccurredAtUtc, 0).UTC()
	}

	_, err := r.q.ExecContext(ctx, `
		insert into outbox_messages (id, type, payload_json, occurred_at_utc, retry_count)
		values ($1, $2, $3, $4, $5)`,
		msg.ID, msg.Type, msg.PayloadJSON, occurred, msg.RetryCount)
	if err != nil {
		return fmt.Errorf("insert outbox message %s: %w", msg.Type, err)
	}
	return nil
}

// GetPendingBatch returns unpublished messages below the retry ceiling, oldest first.
func (r *PgOutboxRepository) GetPendingBatch(ctx context.Context, maxRetry, batchSize int) ([]domain.OutboxMessage, error) {
	rows, err := r.q.QueryContext(ctx, `
		select id, type, payload_json, occurred_at_utc, retry_count
		from outbox_messages
		where processed_at_utc is null and retry_count < $1
		order by occurred_at_utc, id
		limit $2`, maxRetry, batchSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batch []domain.OutboxMessage
	for rows.Next() {
		var (
			msg      domain.OutboxMessage
			occurred time.Time
		)
		if err := rows.Scan(&msg.ID, &msg.Type, &msg.PayloadJSON, &occurred, &msg.RetryCount); err != nil {
			return nil, err
		}
		msg.OccurredAtUtc = occurred.Unix()
		batch = append(batch, msg)
	}
	return batch, rows.Err()
}

// Save persists the retry count and, once set, the processed timestamp.
// A processed message is never reset to pending.
func (r *PgOutboxRepository) Save(ctx context.Context, msg domain.OutboxMessage) error {
	if msg.ID == uuid.Nil {
		return errors.New("outbox message id is empty")
	}
	var processed sql.NullTime
	if msg.ProcessedAtUtc != nil {
		processed = sql.NullTime{Time: time.Unix(*msg.ProcessedAtUtc, 0).UTC(), Valid: true}
	}

	res, err := r.q.ExecContext(ctx, `
		update outbox_messages
		set retry_count = $2,
		    processed_at_utc = coalesce(processed_at_utc, $3)
		where id = $1`, msg.ID, msg.RetryCount, processed)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("outbox message not found: %s", msg.ID)
	}
	return nil
}
