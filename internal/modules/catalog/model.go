// README: Validation-facing views of customers, restaurants, addresses and
// menu items. Full CRUD for these entities lives elsewhere; the coordinator
// only ever looks them up.
package catalog

import (
	"errors"

	"flashfood/internal/types"
)

var (
	ErrCustomerNotFound   = errors.New("customer not found")
	ErrRestaurantNotFound = errors.New("restaurant not found")
	ErrAddressNotFound    = errors.New("address not found")
	ErrMenuItemNotFound   = errors.New("menu item not found")
)

type Customer struct {
	ID       types.ID
	WalletID *types.ID
}

type Restaurant struct {
	ID                types.ID
	OwnerID           types.ID
	WalletID          *types.ID
	IsAcceptingOrders bool
}

type Address struct {
	ID            types.ID
	StreetAddress string
	Location      types.Point
}

type MenuItem struct {
	ID            types.ID
	RestaurantID  types.ID
	Name          string
	PriceCents    int64
	PurchaseCount int
}
