// README: Lookup store for validation queries plus the menu purchase counter.
package catalog

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

func (s *Store) FindCustomer(ctx context.Context, id types.ID) (*Customer, error) {
	var c Customer
	var walletID sql.NullString
	err := s.db.From(ctx).QueryRow(ctx,
		`SELECT id, wallet_id FROM customers WHERE id = $1`, string(id),
	).Scan(&c.ID, &walletID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCustomerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store.FindCustomer: %w", err)
	}
	if walletID.Valid {
		w := types.ID(walletID.String)
		c.WalletID = &w
	}
	return &c, nil
}

func (s *Store) FindRestaurant(ctx context.Context, id types.ID) (*Restaurant, error) {
	var r Restaurant
	var walletID sql.NullString
	err := s.db.From(ctx).QueryRow(ctx,
		`SELECT id, owner_id, wallet_id, is_accepting_orders FROM restaurants WHERE id = $1`,
		string(id),
	).Scan(&r.ID, &r.OwnerID, &walletID, &r.IsAcceptingOrders)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRestaurantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store.FindRestaurant: %w", err)
	}
	if walletID.Valid {
		w := types.ID(walletID.String)
		r.WalletID = &w
	}
	return &r, nil
}

func (s *Store) FindAddress(ctx context.Context, id types.ID) (*Address, error) {
	var a Address
	var location []byte
	err := s.db.From(ctx).QueryRow(ctx,
		`SELECT id, street_address, location FROM address_book WHERE id = $1`, string(id),
	).Scan(&a.ID, &a.StreetAddress, &location)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAddressNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store.FindAddress: %w", err)
	}
	if len(location) > 0 {
		if err := json.Unmarshal(location, &a.Location); err != nil {
			return nil, fmt.Errorf("store.FindAddress location: %w", err)
		}
	}
	return &a, nil
}

func (s *Store) FindMenuItem(ctx context.Context, id types.ID) (*MenuItem, error) {
	var m MenuItem
	err := s.db.From(ctx).QueryRow(ctx,
		`SELECT id, restaurant_id, name, price_cents, purchase_count FROM menu_items WHERE id = $1`,
		string(id),
	).Scan(&m.ID, &m.RestaurantID, &m.Name, &m.PriceCents, &m.PurchaseCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMenuItemNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store.FindMenuItem: %w", err)
	}
	return &m, nil
}

// BumpPurchaseCount increments the popularity counter after an order consumes
// the item.
func (s *Store) BumpPurchaseCount(ctx context.Context, id types.ID, by int) error {
	_, err := s.db.From(ctx).Exec(ctx, `
		UPDATE menu_items SET purchase_count = purchase_count + $1 WHERE id = $2`,
		by, string(id),
	)
	if err != nil {
		return fmt.Errorf("store.BumpPurchaseCount: %w", err)
	}
	return nil
}
