// README: REST handlers over the coordinator and read stores. Same error
// kinds as the websocket gateway, mapped to HTTP statuses.
package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"flashfood/internal/modules/delivery"
	"flashfood/internal/modules/driver"
	"flashfood/internal/modules/order"
	"flashfood/internal/modules/progress"
	"flashfood/internal/realtime"
	"flashfood/internal/types"
)

type Coordinator interface {
	AcceptOrder(ctx context.Context, driverID, orderID types.ID) (*progress.Run, error)
	AdvanceProgress(ctx context.Context, runID types.ID) (*progress.Run, error)
	CreateOrder(ctx context.Context, in delivery.CreateOrderInput) (*order.Order, error)
}

type OrderReader interface {
	FindByID(ctx context.Context, id types.ID) (*order.Order, error)
}

type RunReader interface {
	Get(ctx context.Context, id types.ID) (*progress.Run, error)
	ActiveByDriver(ctx context.Context, driverID types.ID) (*progress.Run, error)
}

type DriverStore interface {
	FindByID(ctx context.Context, id types.ID) (*driver.Driver, error)
	Update(ctx context.Context, id types.ID, patch driver.UpdatePatch) error
}

// Notifier pushes an order offer to a driver's room.
type Notifier interface {
	IncomingOrder(driverID types.ID, o *order.Order)
}

type Handlers struct {
	coord   Coordinator
	orders  OrderReader
	runs    RunReader
	drivers DriverStore
	notify  Notifier
}

func NewHandlers(coord Coordinator, orders OrderReader, runs RunReader, drivers DriverStore, notify Notifier) *Handlers {
	return &Handlers{coord: coord, orders: orders, runs: runs, drivers: drivers, notify: notify}
}

func (h *Handlers) CreateOrder(c *gin.Context) {
	var in delivery.CreateOrderInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, delivery.ErrInvalidInput)
		return
	}
	o, err := h.coord.CreateOrder(c.Request.Context(), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, orderView(o))
}

func (h *Handlers) GetOrder(c *gin.Context) {
	o, err := h.orders.FindByID(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, orderView(o))
}

type acceptBody struct {
	DriverID types.ID `json:"driver_id" binding:"required"`
}

func (h *Handlers) AcceptOrder(c *gin.Context) {
	var body acceptBody
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, delivery.ErrInvalidInput)
		return
	}
	run, err := h.coord.AcceptOrder(c.Request.Context(), body.DriverID, types.ID(c.Param("id")))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, runView(run))
}

type offerBody struct {
	DriverID types.ID `json:"driver_id" binding:"required"`
}

// OfferOrder proposes an order to a driver over its realtime room. The driver
// still has to accept; nothing is written here.
func (h *Handlers) OfferOrder(c *gin.Context) {
	var body offerBody
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, delivery.ErrInvalidInput)
		return
	}
	o, err := h.orders.FindByID(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		fail(c, err)
		return
	}
	h.notify.IncomingOrder(body.DriverID, o)
	c.Status(http.StatusAccepted)
}

func (h *Handlers) AdvanceProgress(c *gin.Context) {
	run, err := h.coord.AdvanceProgress(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, runView(run))
}

func (h *Handlers) GetRun(c *gin.Context) {
	run, err := h.runs.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, runView(run))
}

func (h *Handlers) ActiveRun(c *gin.Context) {
	run, err := h.runs.ActiveByDriver(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, runView(run))
}

func (h *Handlers) GetDriver(c *gin.Context) {
	d, err := h.drivers.FindByID(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, driverView(d))
}

type updateDriverBody struct {
	FirstName        *string         `json:"first_name"`
	LastName         *string         `json:"last_name"`
	Vehicle          *driver.Vehicle `json:"vehicle"`
	CurrentLocation  *types.Point    `json:"current_location"`
	AvailableForWork *bool           `json:"available_for_work"`
}

func (h *Handlers) UpdateDriver(c *gin.Context) {
	var body updateDriverBody
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, delivery.ErrInvalidInput)
		return
	}
	err := h.drivers.Update(c.Request.Context(), types.ID(c.Param("id")), driver.UpdatePatch{
		FirstName:        body.FirstName,
		LastName:         body.LastName,
		Vehicle:          body.Vehicle,
		CurrentLocation:  body.CurrentLocation,
		AvailableForWork: body.AvailableForWork,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func fail(c *gin.Context, err error) {
	kind := realtime.ErrorKind(err)
	c.JSON(statusFor(kind), gin.H{"error": gin.H{"kind": kind, "message": err.Error()}})
}

func statusFor(kind string) int {
	switch kind {
	case "INVALID_INPUT":
		return http.StatusBadRequest
	case "NOT_FOUND":
		return http.StatusNotFound
	case "INSUFFICIENT_BALANCE":
		return http.StatusPaymentRequired
	case "DRIVER_BUSY", "ALREADY_PROCESSING", "RUN_COMPLETE", "NO_ACTIVE_STAGE",
		"ORDER_LIMIT", "CART_EXCEEDED", "RESTAURANT_CLOSED":
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func orderView(o *order.Order) gin.H {
	return gin.H{
		"id":                  o.ID,
		"customer_id":         o.CustomerID,
		"restaurant_id":       o.RestaurantID,
		"driver_id":           o.DriverID,
		"status":              o.Status,
		"tracking_info":       o.TrackingInfo,
		"items":               o.Items,
		"total_amount_cents":  o.TotalAmount.Amount,
		"currency":            o.TotalAmount.Currency,
		"payment_method":      o.PaymentMethod,
		"customer_location":   o.CustomerLocation,
		"restaurant_location": o.RestaurantLocation,
		"created_at":          o.CreatedAt,
		"updated_at":          o.UpdatedAt,
	}
}

func runView(r *progress.Run) gin.H {
	return gin.H{
		"id":             r.ID,
		"driver_id":      r.DriverID,
		"current_state":  r.CurrentState,
		"previous_state": r.PreviousState,
		"stages":         r.Stages,
		"order_ids":      r.OrderIDs,
		"events":         r.Events,
		"created_at":     r.CreatedAt,
		"updated_at":     r.UpdatedAt,
	}
}

func driverView(d *driver.Driver) gin.H {
	return gin.H{
		"id":                 d.ID,
		"first_name":         d.FirstName,
		"last_name":          d.LastName,
		"vehicle":            d.Vehicle,
		"current_location":   d.CurrentLocation,
		"available_for_work": d.AvailableForWork,
		"is_on_delivery":     d.IsOnDelivery,
	}
}
