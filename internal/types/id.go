// README: Common ID and geo types used across modules.
package types

import (
	"fmt"

	"github.com/google/uuid"
)

type ID string

// Entity id prefixes carried over from the data model (FF_DRI_..., FF_ORD_...).
const (
	PrefixDriver     = "FF_DRI"
	PrefixOrder      = "FF_ORD"
	PrefixCustomer   = "FF_CUS"
	PrefixRestaurant = "FF_RES"
	PrefixWallet     = "FF_WAL"
	PrefixCart       = "FF_CART"
	PrefixRun        = "FF_DPS"
)

func NewID(prefix string) ID {
	return ID(fmt.Sprintf("%s_%s", prefix, uuid.NewString()))
}

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}
