package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/RodolfoDevApp/roomstay-booking-go/internal/domain"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type PgTxManager struct {
	db *sql.DB
}

func NewPgTxManager(db *sql.DB) *PgTxManager {
	return &PgTxManager{db: db}
}

func (m *PgTxManager) Begin(ctx context.Context) (domain.Tx, error) {
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &pgTx{tx: tx}, nil
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) Capacity() domain.CapacityRepository          { return &PgCapacityRepository{q: t.tx} }
func (t *pgTx) ResourceTypes() domain.ResourceTypeRepository { return &PgResourceTypeRepository{q: t.tx} }
func (t *pgTx) Bookings() domain.BookingRepository           { return &PgBookingRepository{q: t.tx} }
func (t *pgTx) Customers() domain.CustomerRepository         { return &PgCustomerRepository{q: t.tx} }
func (t *pgTx) Audit() domain.AuditRepository                { return &PgAuditRepository{q: t.tx} }
func (t *pgTx) Outbox() domain.OutboxRepository              { return &PgOutboxRepository{q: t.tx} }

func (t *pgTx) Commit() error {
	return t.tx.Commit()
}

func (t *pgTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}
