// README: Driver entity and update patch.
package driver

import (
	"errors"
	"time"

	"flashfood/internal/types"
)

var ErrNotFound = errors.New("driver not found")

type Vehicle struct {
	LicensePlate string `json:"license_plate"`
	Model        string `json:"model"`
	Color        string `json:"color"`
}

type Driver struct {
	ID               types.ID
	FirstName        string
	LastName         string
	Vehicle          Vehicle
	CurrentLocation  *types.Point
	WalletID         *types.ID
	AvailableForWork bool
	IsOnDelivery     bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// UpdatePatch carries the fields a driver may change about itself; nil fields
// are left untouched.
type UpdatePatch struct {
	FirstName        *string
	LastName         *string
	Vehicle          *Vehicle
	CurrentLocation  *types.Point
	AvailableForWork *bool
}
