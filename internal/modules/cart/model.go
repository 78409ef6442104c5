// README: Cart reservation entity; variants carry per-variant quantities.
package cart

import (
	"errors"
	"time"

	"flashfood/internal/types"
)

var ErrNotFound = errors.New("cart item not found")

type Variant struct {
	VariantID types.ID `json:"variant_id"`
	Quantity  int      `json:"quantity"`
}

type Item struct {
	ID           types.ID
	CustomerID   types.ID
	RestaurantID types.ID
	ItemID       types.ID
	Variants     []Variant
	UpdatedAt    time.Time
}

// VariantQuantity returns the reserved quantity for a variant, 0 when absent.
func (i *Item) VariantQuantity(variantID types.ID) int {
	for _, v := range i.Variants {
		if v.VariantID == variantID {
			return v.Quantity
		}
	}
	return 0
}

// Decrement reduces a variant's quantity, dropping the variant at zero, and
// reports whether the whole line is now empty.
func (i *Item) Decrement(variantID types.ID, by int) (empty bool) {
	out := i.Variants[:0]
	for _, v := range i.Variants {
		if v.VariantID == variantID {
			v.Quantity -= by
		}
		if v.Quantity > 0 {
			out = append(out, v)
		}
	}
	i.Variants = out
	return len(i.Variants) == 0
}
