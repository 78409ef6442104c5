// README: Cart store; consumed inside the order-creation transaction.
package cart

import (
	"context"
	"encoding/json"
	"fmt"

	"flashfood/internal/storage"
	"flashfood/internal/types"
)

type Store struct {
	db *storage.TxManager
}

func NewStore(db *storage.TxManager) *Store {
	return &Store{db: db}
}

func (s *Store) FindByCustomer(ctx context.Context, customerID types.ID) ([]*Item, error) {
	rows, err := s.db.From(ctx).Query(ctx, `
		SELECT id, customer_id, restaurant_id, item_id, variants, updated_at
		FROM cart_items
		WHERE customer_id = $1`, string(customerID),
	)
	if err != nil {
		return nil, fmt.Errorf("store.FindByCustomer: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		var it Item
		var variants []byte
		if err := rows.Scan(&it.ID, &it.CustomerID, &it.RestaurantID, &it.ItemID, &variants, &it.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store.FindByCustomer scan: %w", err)
		}
		if err := json.Unmarshal(variants, &it.Variants); err != nil {
			return nil, fmt.Errorf("store.FindByCustomer variants: %w", err)
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}

func (s *Store) Delete(ctx context.Context, id types.ID) error {
	tag, err := s.db.From(ctx).Exec(ctx, `DELETE FROM cart_items WHERE id = $1`, string(id))
	if err != nil {
		return fmt.Errorf("store.Delete cart item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) Update(ctx context.Context, it *Item) error {
	variants, err := json.Marshal(it.Variants)
	if err != nil {
		return fmt.Errorf("store.Update marshal variants: %w", err)
	}
	tag, err := s.db.From(ctx).Exec(ctx, `
		UPDATE cart_items
		SET variants = $1, updated_at = NOW()
		WHERE id = $2`,
		variants, string(it.ID),
	)
	if err != nil {
		return fmt.Errorf("store.Update cart item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
