package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/RodolfoDevApp/roomstay-booking-go/internal/domain"
)

const uniqueViolation = "23505"

// Resource types

type PgResourceTypeRepository struct {
	q querier
}

const resourceTypeSelect = `select id, name, total_units, base_price, updated_at_utc from resource_types where id = $1`

func (r *PgResourceTypeRepository) get(ctx context.Context, q string, id int64) (*domain.ResourceType, error) {
	var rt domain.ResourceType
	err := r.q.QueryRowContext(ctx, q, id).Scan(
		&rt.ID,
		&rt.Name,
		&rt.TotalUnits,
		&rt.BasePrice,
		&rt.UpdatedAtUtc,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrResourceTypeNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rt, nil
}

func (r *PgResourceTypeRepository) GetByID(ctx context.Context, id int64) (*domain.ResourceType, error) {
	return r.get(ctx, resourceTypeSelect, id)
}

func (r *PgResourceTypeRepository) GetForShare(ctx context.Context, id int64) (*domain.ResourceType, error) {
	return r.get(ctx, resourceTypeSelect+` for share`, id)
}

func (r *PgResourceTypeRepository) GetForUpdate(ctx context.Context, id int64) (*domain.ResourceType, error) {
	return r.get(ctx, resourceTypeSelect+` for update`, id)
}

func (r *PgResourceTypeRepository) Upsert(ctx context.Context, rt *domain.ResourceType) error {
	if rt.UpdatedAtUtc.IsZero() {
		rt.UpdatedAtUtc = time.Now().UTC()
	}
	q := `
        insert into resource_types (id, name, total_units, base_price, updated_at_utc)
        values ($1,$2,$3,$4,$5)
        on conflict (id) do update
        set name = excluded.name,
            total_units = excluded.total_units,
            base_price = excluded.base_price,
            updated_at_utc = excluded.updated_at_utc
    `
	_, err := r.q.ExecContext(ctx, q, rt.ID, rt.Name, rt.TotalUnits, rt.BasePrice, rt.UpdatedAtUtc)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == "ux_resource_types_name" {
		return domain.NewValidationError(fmt.Sprintf("resource type name %q is already in use", rt.Name))
	}
	return err
}

func (r *PgResourceTypeRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, `delete from resource_types where id = $1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrResourceTypeNotFound
	}
	return nil
}

// Bookings

type PgBookingRepository struct {
	q querier
}

const bookingColumns = `id, customer_id, check_in, check_out, total_amount, amount_paid,
               status, notes, created_at_utc, updated_at_utc`

func (r *PgBookingRepository) load(ctx context.Context, q string, id uuid.UUID) (*domain.Booking, error) {
	var b domain.Booking
	var status string
	err := r.q.QueryRowContext(ctx, q, id).Scan(
		&b.ID,
		&b.CustomerID,
		&b.CheckIn,
		&b.CheckOut,
		&b.TotalAmount,
		&b.AmountPaid,
		&status,
		&b.Notes,
		&b.CreatedAtUtc,
		&b.UpdatedAtUtc,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	b.Status = domain.BookingStatus(status)
	b.CheckIn, b.CheckOut = domain.DateOf(b.CheckIn), domain.DateOf(b.CheckOut)

	lq := `
        select id, booking_id, resource_type_id, quantity, unit_price_per_night, amount
        from booking_line_items
        where booking_id = $1
        order by position asc
    `
	rows, err := r.q.QueryContext(ctx, lq, b.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var li domain.BookingLineItem
		// Null once the type is deleted; only finished or cancelled bookings keep such lines.
		var rtID sql.NullInt64
		if err := rows.Scan(
			&li.ID,
			&li.BookingID,
			&rtID,
			&li.Quantity,
			&li.UnitPricePerNight,
			&li.Amount,
		); err != nil {
			return nil, err
		}
		li.ResourceTypeID = rtID.Int64
		b.LineItems = append(b.LineItems, li)
	}
	return &b, rows.Err()
}

func (r *PgBookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	return r.load(ctx, `select `+bookingColumns+` from bookings where id = $1`, id)
}

func (r *PgBookingRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	return r.load(ctx, `select `+bookingColumns+` from bookings where id = $1 for update`, id)
}

func (r *PgBookingRepository) Insert(ctx context.Context, b *domain.Booking) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	q := `
        insert into bookings
        (id, customer_id, check_in, check_out, total_amount, amount_paid, status, notes, created_at_utc, updated_at_utc)
        values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
    `
	if _, err := r.q.ExecContext(ctx, q,
		b.ID,
		b.CustomerID,
		b.CheckIn,
		b.CheckOut,
		b.TotalAmount,
		b.AmountPaid,
		string(b.Status),
		b.Notes,
		b.CreatedAtUtc,
		b.UpdatedAtUtc,
	); err != nil {
		return err
	}
	return r.insertLines(ctx, b)
}

func (r *PgBookingRepository) insertLines(ctx context.Context, b *domain.Booking) error {
	lq := `
        insert into booking_line_items
        (id, booking_id, resource_type_id, quantity, unit_price_per_night, amount, position)
        values ($1,$2,$3,$4,$5,$6,$7)
    `
	for i := range b.LineItems {
		li := &b.LineItems[i]
		if li.ID == uuid.Nil {
			li.ID = uuid.New()
		}
		li.BookingID = b.ID
		if _, err := r.q.ExecContext(ctx, lq,
			li.ID, b.ID, li.ResourceTypeID, li.Quantity, li.UnitPricePerNight, li.Amount, i,
		); err != nil {
			return err
		}
	}
	return nil
}

// Update rewrites the booking row and replaces its line items.
func (r *PgBookingRepository) Update(ctx context.Context, b *domain.Booking) error {
	q := `
        update bookings
        set check_in = $2,
            check_out = $3,
            total_amount = $4,
            amount_paid = $5,
            status = $6,
            notes = $7,
            updated_at_utc = $8
        where id = $1
    `
	res, err := r.q.ExecContext(ctx, q,
		b.ID,
		b.CheckIn,
		b.CheckOut,
		b.TotalAmount,
		b.AmountPaid,
		string(b.Status),
		b.Notes,
		b.UpdatedAtUtc,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrBookingNotFound
	}
	if _, err := r.q.ExecContext(ctx, `delete from booking_line_items where booking_id = $1`, b.ID); err != nil {
		return err
	}
	return r.insertLines(ctx, b)
}

func (r *PgBookingRepository) CountActiveByResourceType(ctx context.Context, resourceTypeID int64) (int, error) {
	q := `
        select count(distinct b.id)
        from bookings b
        join booking_line_items li on li.booking_id = b.id
        where li.resource_type_id = $1 and b.status <> $2
    `
	var n int
	err := r.q.QueryRowContext(ctx, q, resourceTypeID, string(domain.BookingCancelled)).Scan(&n)
	return n, err
}

// List pages booking ids first, then loads each booking with its lines.
func (r *PgBookingRepository) List(ctx context.Context, f domain.BookingFilter) ([]*domain.Booking, error) {
	var where []string
	var args []any
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, strings.ReplaceAll(clause, "$?", fmt.Sprintf("$%d", len(args))))
	}
	if f.Status != nil {
		add("status = $?", string(*f.Status))
	}
	if f.CustomerID != nil {
		add("customer_id = $?", *f.CustomerID)
	}
	if f.StayOn != nil {
		add("check_in <= $? and check_out > $?", domain.DateOf(*f.StayOn))
	}

	q := `select id from bookings`
	if len(where) > 0 {
		q += " where " + strings.Join(where, " and ")
	}
	q += " order by created_at_utc desc, id"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" limit $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		q += fmt.Sprintf(" offset $%d", len(args))
	}

	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}

	out := make([]*domain.Booking, 0, len(ids))
	for _, id := range ids {
		b, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// Customers

type PgCustomerRepository struct {
	q querier
}

const customerColumns = `id, name, email, phone, address, id_proof_type, id_proof_number, created_at_utc, updated_at_utc`

func (r *PgCustomerRepository) scan(row *sql.Row) (*domain.Customer, error) {
	var c domain.Customer
	err := row.Scan(
		&c.ID,
		&c.Name,
		&c.Email,
		&c.Phone,
		&c.Address,
		&c.IDProofType,
		&c.IDProofNumber,
		&c.CreatedAtUtc,
		&c.UpdatedAtUtc,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCustomerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PgCustomerRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	return r.scan(r.q.QueryRowContext(ctx, `select `+customerColumns+` from customers where id = $1`, id))
}

// GetByEmailForUpdate serializes on the email with a transaction-scoped
// advisory lock, which also covers the not-yet-inserted case.
func (r *PgCustomerRepository) GetByEmailForUpdate(ctx context.Context, email string) (*domain.Customer, error) {
	email = domain.NormalizeEmail(email)
	if _, err := r.q.ExecContext(ctx, `select pg_advisory_xact_lock(hashtext($1))`, email); err != nil {
		return nil, fmt.Errorf("lock customer email: %w", err)
	}
	return r.scan(r.q.QueryRowContext(ctx,
		`select `+customerColumns+` from customers where email = $1 for update`, email))
}

func (r *PgCustomerRepository) Insert(ctx context.Context, c *domain.Customer) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.Email = domain.NormalizeEmail(c.Email)
	q := `
        insert into customers (` + customerColumns + `)
        values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
    `
	_, err := r.q.ExecContext(ctx, q,
		c.ID, c.Name, c.Email, c.Phone, c.Address, c.IDProofType, c.IDProofNumber, c.CreatedAtUtc, c.UpdatedAtUtc,
	)
	return err
}

func (r *PgCustomerRepository) Update(ctx context.Context, c *domain.Customer) error {
	q := `
        update customers
        set name = $2, phone = $3, address = $4, id_proof_type = $5, id_proof_number = $6, updated_at_utc = $7
        where id = $1
    `
	_, err := r.q.ExecContext(ctx, q,
		c.ID, c.Name, c.Phone, c.Address, c.IDProofType, c.IDProofNumber, c.UpdatedAtUtc,
	)
	return err
}

// Audit

type PgAuditRepository struct {
	q querier
}

func nullableJSON(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (r *PgAuditRepository) Append(ctx context.Context, e domain.AuditEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	before, err := nullableJSON(e.Before)
	if err != nil {
		return fmt.Errorf("marshal audit before: %w", err)
	}
	after, err := nullableJSON(e.After)
	if err != nil {
		return fmt.Errorf("marshal audit after: %w", err)
	}
	q := `
        insert into audit_entries
        (id, actor_id, action, entity_type, entity_id, before_json, after_json, timestamp_utc)
        values ($1,$2,$3,$4,$5,$6::jsonb,$7::jsonb,$8)
    `
	_, err = r.q.ExecContext(ctx, q,
		e.ID, e.ActorID, string(e.Action), string(e.EntityType), e.EntityID, before, after, e.TimestampUtc,
	)
	return err
}

func (r *PgAuditRepository) List(ctx context.Context, f domain.AuditFilter) ([]domain.AuditEntry, error) {
	var where []string
	var args []any
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.EntityType != nil {
		add("entity_type = $%d", string(*f.EntityType))
	}
	if f.EntityID != nil {
		add("entity_id = $%d", *f.EntityID)
	}
	if f.ActorID != nil {
		add("actor_id = $%d", *f.ActorID)
	}
	if f.Action != nil {
		add("action = $%d", string(*f.Action))
	}

	q := `select id, actor_id, action, entity_type, entity_id, before_json, after_json, timestamp_utc from audit_entries`
	if len(where) > 0 {
		q += " where " + strings.Join(where, " and ")
	}
	q += " order by timestamp_utc desc"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" limit $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		q += fmt.Sprintf(" offset $%d", len(args))
	}

	rows, err := r.q.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var actor sql.NullString
		var action, entityType string
		var before, after []byte
		if err := rows.Scan(&e.ID, &actor, &action, &entityType, &e.EntityID, &before, &after, &e.TimestampUtc); err != nil {
			return nil, err
		}
		if actor.Valid {
			e.ActorID = &actor.String
		}
		e.Action = domain.AuditAction(action)
		e.EntityType = domain.EntityType(entityType)
		if len(before) > 0 {
			if err := json.Unmarshal(before, &e.Before); err != nil {
				return nil, err
			}
		}
		if len(after) > 0 {
			if err := json.Unmarshal(after, &e.After); err != nil {
				return nil, err
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
