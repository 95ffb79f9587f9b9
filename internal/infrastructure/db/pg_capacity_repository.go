package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/RodolfoDevApp/roomstay-booking-go/internal/domain"
)

type PgCapacityRepository struct {
	q querier
}

func NewPgCapacityRepository(db *sql.DB) *PgCapacityRepository {
	return &PgCapacityRepository{q: db}
}

func (r *PgCapacityRepository) Get(
	ctx context.Context,
	resourceTypeID int64,
	date time.Time,
) (*domain.CapacityRecord, error) {
	date = domain.DateOf(date)
	q := `
        select resource_type_id, date, available_units, price, updated_at_utc
        from capacity_records
        where resource_type_id = $1 and date = $2
    `
	var rec domain.CapacityRecord
	err := r.q.QueryRowContext(ctx, q, resourceTypeID, date).Scan(
		&rec.ResourceTypeID,
		&rec.Date,
		&rec.AvailableUnits,
		&rec.Price,
		&rec.UpdatedAtUtc,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.CapacityRecordMissingError{ResourceTypeID: resourceTypeID, Dates: []time.Time{date}}
	}
	if err != nil {
		return nil, err
	}
	rec.Date = domain.DateOf(rec.Date)
	return &rec, nil
}

func (r *PgCapacityRepository) ListRange(
	ctx context.Context,
	resourceTypeID int64,
	from, to time.Time,
) ([]domain.CapacityRecord, error) {
	q := `
        select resource_type_id, date, available_units, price, updated_at_utc
        from capacity_records
        where resource_type_id = $1 and date >= $2 and date < $3
        order by date asc
    `
	rows, err := r.q.QueryContext(ctx, q, resourceTypeID, domain.DateOf(from), domain.DateOf(to))
	if err != nil {
		return nil, err
	}
	return scanCapacity(rows)
}

func (r *PgCapacityRepository) ListByResourceType(ctx context.Context, resourceTypeID int64) ([]domain.CapacityRecord, error) {
	rows, err := r.q.QueryContext(ctx, `
        select resource_type_id, date, available_units, price, updated_at_utc
        from capacity_records
        where resource_type_id = $1
        order by date asc`, resourceTypeID)
	if err != nil {
		return nil, err
	}
	return scanCapacity(rows)
}

func scanCapacity(rows *sql.Rows) ([]domain.CapacityRecord, error) {
	defer rows.Close()
	var out []domain.CapacityRecord
	for rows.Next() {
		var rec domain.CapacityRecord
		if err := rows.Scan(
			&rec.ResourceTypeID,
			&rec.Date,
			&rec.AvailableUnits,
			&rec.Price,
			&rec.UpdatedAtUtc,
		); err != nil {
			return nil, err
		}
		rec.Date = domain.DateOf(rec.Date)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *PgCapacityRepository) SetPrice(ctx context.Context, resourceTypeID int64, date time.Time, price decimal.Decimal) error {
	date = domain.DateOf(date)
	res, err := r.q.ExecContext(ctx, `
        update capacity_records
        set price = $3, updated_at_utc = now()
        where resource_type_id = $1 and date = $2`, resourceTypeID, date, price)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &domain.CapacityRecordMissingError{ResourceTypeID: resourceTypeID, Dates: []time.Time{date}}
	}
	return nil
}

// Lock takes row locks with SELECT ... FOR UPDATE, one resource type at a
// time in ascending id, each ordered by date.
func (r *PgCapacityRepository) Lock(ctx context.Context, keys []domain.CapacityKey) error {
	keys = domain.SortCapacityKeys(keys)
	q := `
        select date
        from capacity_records
        where resource_type_id = $1 and date = any($2)
        order by date asc
        for update
    `
	for start := 0; start < len(keys); {
		end := start
		var dates []time.Time
		for end < len(keys) && keys[end].ResourceTypeID == keys[start].ResourceTypeID {
			dates = append(dates, keys[end].Date)
			end++
		}
		rows, err := r.q.QueryContext(ctx, q, keys[start].ResourceTypeID, dates)
		if err != nil {
			return err
		}
		for rows.Next() {
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return err
		}
		start = end
	}
	return nil
}

func (r *PgCapacityRepository) UpsertIfAbsent(ctx context.Context, rec domain.CapacityRecord) (bool, error) {
	if rec.UpdatedAtUtc.IsZero() {
		rec.UpdatedAtUtc = time.Now().UTC()
	}
	q := `
        insert into capacity_records (resource_type_id, date, available_units, price, updated_at_utc)
        values ($1,$2,$3,$4,$5)
        on conflict (resource_type_id, date) do nothing
    `
	res, err := r.q.ExecContext(ctx, q,
		rec.ResourceTypeID,
		domain.DateOf(rec.Date),
		rec.AvailableUnits,
		rec.Price,
		rec.UpdatedAtUtc,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ApplyDelta adjusts one row and refuses to take it below zero.
func (r *PgCapacityRepository) ApplyDelta(
	ctx context.Context,
	resourceTypeID int64,
	date time.Time,
	delta int,
) (int, error) {
	date = domain.DateOf(date)
	q := `
        update capacity_records
        set available_units = available_units + $3,
            updated_at_utc = now()
        where resource_type_id = $1 and date = $2
          and available_units + $3 >= 0
        returning available_units
    `
	var next int
	err := r.q.QueryRowContext(ctx, q, resourceTypeID, date, delta).Scan(&next)
	if err == nil {
		return next, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	current, err := r.Get(ctx, resourceTypeID, date)
	if err != nil {
		return 0, err
	}
	return 0, &domain.CapacityUnavailableError{
		ResourceTypeID: resourceTypeID,
		Date:           date,
		Requested:      -delta,
		Available:      current.AvailableUnits,
	}
}
