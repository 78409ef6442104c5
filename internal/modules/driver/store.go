// README: Driver store and the driver_current_orders association.
package driver

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

func (s *Store) FindByID(ctx context.Context, id types.ID) (*Driver, error) {
	row := s.db.From(ctx).QueryRow(ctx, `
		SELECT id, first_name, last_name, vehicle, current_location, wallet_id,
		       available_for_work, is_on_delivery, created_at, updated_at
		FROM drivers
		WHERE id = $1`, string(id),
	)

	var d Driver
	var vehicle, location []byte
	var walletID sql.NullString
	err := row.Scan(
		&d.ID, &d.FirstName, &d.LastName, &vehicle, &location, &walletID,
		&d.AvailableForWork, &d.IsOnDelivery, &d.CreatedAt, &d.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store.FindByID driver: %w", err)
	}
	if len(vehicle) > 0 {
		if err := json.Unmarshal(vehicle, &d.Vehicle); err != nil {
			return nil, fmt.Errorf("unmarshal vehicle: %w", err)
		}
	}
	if len(location) > 0 {
		var p types.Point
		if err := json.Unmarshal(location, &p); err != nil {
			return nil, fmt.Errorf("unmarshal location: %w", err)
		}
		d.CurrentLocation = &p
	}
	if walletID.Valid {
		w := types.ID(walletID.String)
		d.WalletID = &w
	}
	return &d, nil
}

func (s *Store) Update(ctx context.Context, id types.ID, patch UpdatePatch) error {
	var vehicle, location []byte
	var err error
	if patch.Vehicle != nil {
		if vehicle, err = json.Marshal(patch.Vehicle); err != nil {
			return fmt.Errorf("store.Update marshal vehicle: %w", err)
		}
	}
	if patch.CurrentLocation != nil {
		if location, err = json.Marshal(patch.CurrentLocation); err != nil {
			return fmt.Errorf("store.Update marshal location: %w", err)
		}
	}
	tag, err := s.db.From(ctx).Exec(ctx, `
		UPDATE drivers
		SET first_name = COALESCE($1, first_name),
		    last_name = COALESCE($2, last_name),
		    vehicle = COALESCE($3, vehicle),
		    current_location = COALESCE($4, current_location),
		    available_for_work = COALESCE($5, available_for_work),
		    updated_at = NOW()
		WHERE id = $6`,
		patch.FirstName, patch.LastName, vehicle, location, patch.AvailableForWork, string(id),
	)
	if err != nil {
		return fmt.Errorf("store.Update driver: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) SetOnDelivery(ctx context.Context, id types.ID, onDelivery bool) error {
	tag, err := s.db.From(ctx).Exec(ctx, `
		UPDATE drivers SET is_on_delivery = $1, updated_at = NOW() WHERE id = $2`,
		onDelivery, string(id),
	)
	if err != nil {
		return fmt.Errorf("store.SetOnDelivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddCurrentOrder inserts the (driver, order) association. Idempotent: the
// composite primary key plus DO NOTHING makes a retry leave exactly one row.
func (s *Store) AddCurrentOrder(ctx context.Context, driverID, orderID types.ID) error {
	_, err := s.db.From(ctx).Exec(ctx, `
		INSERT INTO driver_current_orders (driver_id, order_id)
		VALUES ($1, $2)
		ON CONFLICT (driver_id, order_id) DO NOTHING`,
		string(driverID), string(orderID),
	)
	if err != nil {
		return fmt.Errorf("store.AddCurrentOrder: %w", err)
	}
	return nil
}

// RemoveCurrentOrders clears the associations for the given orders once their
// run reaches delivery_complete.
func (s *Store) RemoveCurrentOrders(ctx context.Context, driverID types.ID, orderIDs []types.ID) error {
	ids := make([]string, len(orderIDs))
	for i, id := range orderIDs {
		ids[i] = string(id)
	}
	_, err := s.db.From(ctx).Exec(ctx, `
		DELETE FROM driver_current_orders
		WHERE driver_id = $1 AND order_id = ANY($2)`,
		string(driverID), ids,
	)
	if err != nil {
		return fmt.Errorf("store.RemoveCurrentOrders: %w", err)
	}
	return nil
}

func (s *Store) CurrentOrderIDs(ctx context.Context, driverID types.ID) ([]types.ID, error) {
	rows, err := s.db.From(ctx).Query(ctx, `
		SELECT order_id FROM driver_current_orders WHERE driver_id = $1`,
		string(driverID),
	)
	if err != nil {
		return nil, fmt.Errorf("store.CurrentOrderIDs: %w", err)
	}
	defer rows.Close()

	var out []types.ID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store.CurrentOrderIDs scan: %w", err)
		}
		out = append(out, types.ID(id))
	}
	return out, rows.Err()
}
