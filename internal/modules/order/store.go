// README: Order store backed by PostgreSQL; joins the caller's transaction.
package order

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"flashfood/internal/storage"
	"flashfood/internal/types"
)

type Store struct {
	db *storage.TxManager
}

func NewStore(db *storage.TxManager) *Store {
	return &Store{db: db}
}

const orderColumns = `id, customer_id, restaurant_id, driver_id, status, tracking_info,
	       items, total_amount_cents, currency, payment_method,
	       customer_location, restaurant_location, created_at, updated_at`

func (s *Store) Create(ctx context.Context, o *Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("store.Create marshal items: %w", err)
	}
	_, err = s.db.From(ctx).Exec(ctx, `
		INSERT INTO orders (
			id, customer_id, restaurant_id, driver_id, status, tracking_info,
			items, total_amount_cents, currency, payment_method,
			customer_location, restaurant_location, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13)`,
		string(o.ID), string(o.CustomerID), string(o.RestaurantID), idPtr(o.DriverID),
		string(o.Status), string(o.TrackingInfo),
		items, o.TotalAmount.Amount, o.TotalAmount.Currency, string(o.PaymentMethod),
		string(o.CustomerLocation), string(o.RestaurantLocation), o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store.Create: %w", err)
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, id types.ID) (*Order, error) {
	row := s.db.From(ctx).QueryRow(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1`, string(id),
	)
	return scanOrder(row)
}

// Update patches driver assignment; nil fields are left unchanged.
func (s *Store) Update(ctx context.Context, id types.ID, driverID *types.ID) error {
	tag, err := s.db.From(ctx).Exec(ctx, `
		UPDATE orders
		SET driver_id = COALESCE($1, driver_id),
		    updated_at = NOW()
		WHERE id = $2`,
		idPtr(driverID), string(id),
	)
	if err != nil {
		return fmt.Errorf("store.Update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) UpdateStatus(ctx context.Context, id types.ID, status Status) error {
	tag, err := s.db.From(ctx).Exec(ctx, `
		UPDATE orders
		SET status = $1, updated_at = NOW()
		WHERE id = $2`,
		string(status), string(id),
	)
	if err != nil {
		return fmt.Errorf("store.UpdateStatus: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) UpdateTrackingInfo(ctx context.Context, id types.ID, info TrackingInfo) error {
	tag, err := s.db.From(ctx).Exec(ctx, `
		UPDATE orders
		SET tracking_info = $1, updated_at = NOW()
		WHERE id = $2`,
		string(info), string(id),
	)
	if err != nil {
		return fmt.Errorf("store.UpdateTrackingInfo: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// VerifyDelivered re-reads status and tracking_info after the terminal write.
func (s *Store) VerifyDelivered(ctx context.Context, id types.ID) (bool, error) {
	var status, tracking string
	err := s.db.From(ctx).QueryRow(ctx,
		`SELECT status, tracking_info FROM orders WHERE id = $1`, string(id),
	).Scan(&status, &tracking)
	if err != nil {
		return false, fmt.Errorf("store.VerifyDelivered: %w", err)
	}
	return Status(status) == StatusDelivered && TrackingInfo(tracking) == TrackingDelivered, nil
}

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var driverID sql.NullString
	var items []byte
	err := row.Scan(
		&o.ID, &o.CustomerID, &o.RestaurantID, &driverID, &o.Status, &o.TrackingInfo,
		&items, &o.TotalAmount.Amount, &o.TotalAmount.Currency, &o.PaymentMethod,
		&o.CustomerLocation, &o.RestaurantLocation, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", err)
	}
	if driverID.Valid {
		d := types.ID(driverID.String)
		o.DriverID = &d
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &o.Items); err != nil {
			return nil, fmt.Errorf("unmarshal order items: %w", err)
		}
	}
	return &o, nil
}

func idPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
