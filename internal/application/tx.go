package application

import (
	"context"
	"fmt"

	"github.com/RodolfoDevApp/roomstay-booking-go/internal/domain"
)

// withinTx runs fn as one atomic unit: commit only when fn returns nil,
// roll back on any error or panic.
func withinTx(ctx context.Context, tm domain.TxManager, fn func(ctx context.Context, tx domain.Tx) error) error {
	tx, err := tm.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// readTx runs fn against a transaction that is always rolled back.
func readTx(ctx context.Context, tm domain.TxManager, fn func(ctx context.Context, tx domain.Tx) error) error {
	tx, err := tm.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	return fn(ctx, tx)
}
