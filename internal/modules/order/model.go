// README: Order entity, status/tracking enums and the status→tracking mapping.
package order

import (
	"errors"
	"time"

	"flashfood/internal/types"
)

type Status string

const (
	StatusPending            Status = "PENDING"
	StatusRestaurantAccepted Status = "RESTAURANT_ACCEPTED"
	StatusPreparing          Status = "PREPARING"
	StatusInProgress         Status = "IN_PROGRESS"
	StatusReadyForPickup     Status = "READY_FOR_PICKUP"
	StatusRestaurantPickup   Status = "RESTAURANT_PICKUP"
	StatusDispatched         Status = "DISPATCHED"
	StatusEnRoute            Status = "EN_ROUTE"
	StatusOutForDelivery     Status = "OUT_FOR_DELIVERY"
	StatusDeliveryFailed     Status = "DELIVERY_FAILED"
	StatusDelivered          Status = "DELIVERED"
)

type TrackingInfo string

const (
	TrackingOrderPlaced      TrackingInfo = "ORDER_PLACED"
	TrackingOrderReceived    TrackingInfo = "ORDER_RECEIVED"
	TrackingPreparing        TrackingInfo = "PREPARING"
	TrackingInProgress       TrackingInfo = "IN_PROGRESS"
	TrackingRestaurantPickup TrackingInfo = "RESTAURANT_PICKUP"
	TrackingDispatched       TrackingInfo = "DISPATCHED"
	TrackingEnRoute          TrackingInfo = "EN_ROUTE"
	TrackingOutForDelivery   TrackingInfo = "OUT_FOR_DELIVERY"
	TrackingDeliveryFailed   TrackingInfo = "DELIVERY_FAILED"
	TrackingDelivered        TrackingInfo = "DELIVERED"
)

// trackingByStatus is the customer-facing projection of order status. A status
// missing here leaves tracking_info untouched.
var trackingByStatus = map[Status]TrackingInfo{
	StatusPending:            TrackingOrderPlaced,
	StatusRestaurantAccepted: TrackingOrderReceived,
	StatusPreparing:          TrackingPreparing,
	StatusInProgress:         TrackingInProgress,
	StatusReadyForPickup:     TrackingPreparing,
	StatusRestaurantPickup:   TrackingRestaurantPickup,
	StatusDispatched:         TrackingDispatched,
	StatusEnRoute:            TrackingEnRoute,
	StatusOutForDelivery:     TrackingOutForDelivery,
	StatusDeliveryFailed:     TrackingDeliveryFailed,
	StatusDelivered:          TrackingDelivered,
}

// TrackingFor returns the tracking info projected from status. ok is false for
// statuses with no mapping; callers log a warning and keep the old value.
func TrackingFor(s Status) (TrackingInfo, bool) {
	t, ok := trackingByStatus[s]
	return t, ok
}

type PaymentMethod string

const (
	PaymentFWallet        PaymentMethod = "FWallet"
	PaymentCashOnDelivery PaymentMethod = "COD"
)

var ErrNotFound = errors.New("order not found")

type Item struct {
	ItemID     types.ID `json:"item_id"`
	VariantID  types.ID `json:"variant_id"`
	Name       string   `json:"name"`
	Quantity   int      `json:"quantity"`
	PriceCents int64    `json:"price_cents"`
}

type Order struct {
	ID                 types.ID
	CustomerID         types.ID
	RestaurantID       types.ID
	DriverID           *types.ID
	Status             Status
	TrackingInfo       TrackingInfo
	Items              []Item
	TotalAmount        types.Money
	PaymentMethod      PaymentMethod
	CustomerLocation   types.ID // address book reference
	RestaurantLocation types.ID // address book reference
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
