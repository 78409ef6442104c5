// README: Websocket gateway. Decodes client ops, calls the coordinator and
// answers every op with an ack frame carrying success or an error kind.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"flashfood/internal/modules/delivery"
	"flashfood/internal/modules/driver"
	"flashfood/internal/modules/order"
	"flashfood/internal/modules/progress"
	"flashfood/internal/modules/wallet"
	"flashfood/internal/notify"
	"flashfood/internal/types"
)

const (
	opJoinDriver     = "joinRoomDriver"
	opAcceptOrder    = "driverAcceptOrder"
	opUpdateProgress = "updateDriverProgress"
	opUpdateDriver   = "updateDriver"
)

type Coordinator interface {
	AcceptOrder(ctx context.Context, driverID, orderID types.ID) (*progress.Run, error)
	AdvanceProgress(ctx context.Context, runID types.ID) (*progress.Run, error)
}

type DriverUpdater interface {
	Update(ctx context.Context, id types.ID, patch driver.UpdatePatch) error
}

type frame struct {
	Op      string          `json:"op"`
	Payload json.RawMessage `json:"payload"`
}

type ack struct {
	Op        string `json:"op"`
	Success   bool   `json:"success"`
	ErrorKind string `json:"error_kind,omitempty"`
	Message   string `json:"message,omitempty"`
	Data      any    `json:"data,omitempty"`
}

type Gateway struct {
	registry *Registry
	coord    Coordinator
	drivers  DriverUpdater
	validate *validator.Validate
	upgrader websocket.Upgrader
}

func NewGateway(registry *Registry, coord Coordinator, drivers DriverUpdater) *Gateway {
	return &Gateway{
		registry: registry,
		coord:    coord,
		drivers:  drivers,
		validate: validator.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handle upgrades the HTTP request and runs the connection's pumps.
func (g *Gateway) Handle(c *gin.Context) {
	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("realtime: upgrade: %v", err)
		return
	}
	client := newClient(g.registry, conn)
	go client.writePump()
	client.readPump(g.dispatch)
}

func (g *Gateway) dispatch(c *Client, msg []byte) {
	var f frame
	if err := json.Unmarshal(msg, &f); err != nil {
		g.registry.Send(c, "ack", ack{Success: false, ErrorKind: "INVALID_INPUT", Message: "malformed frame"})
		return
	}

	ctx := context.Background()
	switch f.Op {
	case opJoinDriver:
		g.handleJoinDriver(c, f)
	case opAcceptOrder:
		g.handleAcceptOrder(ctx, c, f)
	case opUpdateProgress:
		g.handleUpdateProgress(ctx, c, f)
	case opUpdateDriver:
		g.handleUpdateDriver(ctx, c, f)
	default:
		g.registry.Send(c, "ack", ack{Op: f.Op, Success: false, ErrorKind: "INVALID_INPUT", Message: "unknown op"})
	}
}

type joinDriverPayload struct {
	DriverID types.ID `json:"driver_id" validate:"required"`
}

func (g *Gateway) handleJoinDriver(c *Client, f frame) {
	var p joinDriverPayload
	if !g.decode(c, f, &p) {
		return
	}
	room := notify.RoomDriver(p.DriverID)
	g.registry.Register(room, string(p.DriverID), c)
	g.registry.Join(c, room)
	g.registry.Send(c, "ack", ack{Op: f.Op, Success: true, Data: gin.H{"room": room}})
}

type acceptOrderPayload struct {
	DriverID types.ID `json:"driver_id" validate:"required"`
	OrderID  types.ID `json:"order_id" validate:"required"`
}

func (g *Gateway) handleAcceptOrder(ctx context.Context, c *Client, f frame) {
	var p acceptOrderPayload
	if !g.decode(c, f, &p) {
		return
	}
	run, err := g.coord.AcceptOrder(ctx, p.DriverID, p.OrderID)
	if err != nil {
		g.fail(c, f.Op, err)
		return
	}
	g.registry.Send(c, "ack", ack{Op: f.Op, Success: true, Data: runView(run)})
}

type updateProgressPayload struct {
	RunID types.ID `json:"run_id" validate:"required"`
}

func (g *Gateway) handleUpdateProgress(ctx context.Context, c *Client, f frame) {
	var p updateProgressPayload
	if !g.decode(c, f, &p) {
		return
	}
	run, err := g.coord.AdvanceProgress(ctx, p.RunID)
	if err != nil {
		g.fail(c, f.Op, err)
		return
	}
	g.registry.Send(c, "ack", ack{Op: f.Op, Success: true, Data: runView(run)})
}

type updateDriverPayload struct {
	DriverID         types.ID        `json:"driver_id" validate:"required"`
	FirstName        *string         `json:"first_name"`
	LastName         *string         `json:"last_name"`
	Vehicle          *driver.Vehicle `json:"vehicle"`
	CurrentLocation  *types.Point    `json:"current_location"`
	AvailableForWork *bool           `json:"available_for_work"`
}

func (g *Gateway) handleUpdateDriver(ctx context.Context, c *Client, f frame) {
	var p updateDriverPayload
	if !g.decode(c, f, &p) {
		return
	}
	err := g.drivers.Update(ctx, p.DriverID, driver.UpdatePatch{
		FirstName:        p.FirstName,
		LastName:         p.LastName,
		Vehicle:          p.Vehicle,
		CurrentLocation:  p.CurrentLocation,
		AvailableForWork: p.AvailableForWork,
	})
	if err != nil {
		g.fail(c, f.Op, err)
		return
	}
	g.registry.Send(c, "ack", ack{Op: f.Op, Success: true})
	g.registry.Broadcast(notify.RoomDriver(p.DriverID), notify.EventDriverUpdated, p)
}

func (g *Gateway) decode(c *Client, f frame, out any) bool {
	if err := json.Unmarshal(f.Payload, out); err != nil {
		g.registry.Send(c, "ack", ack{Op: f.Op, Success: false, ErrorKind: "INVALID_INPUT", Message: "malformed payload"})
		return false
	}
	if err := g.validate.Struct(out); err != nil {
		g.registry.Send(c, "ack", ack{Op: f.Op, Success: false, ErrorKind: "INVALID_INPUT", Message: err.Error()})
		return false
	}
	return true
}

func (g *Gateway) fail(c *Client, op string, err error) {
	g.registry.Send(c, "ack", ack{Op: op, Success: false, ErrorKind: ErrorKind(err), Message: err.Error()})
}

func runView(r *progress.Run) notify.ProgressPayload {
	return notify.ProgressPayload{
		RunID:         r.ID,
		DriverID:      r.DriverID,
		CurrentState:  r.CurrentState,
		PreviousState: r.PreviousState,
		Stages:        r.Stages,
		OrderIDs:      r.OrderIDs,
		Events:        r.Events,
		UpdatedAt:     r.UpdatedAt,
	}
}

// ErrorKind maps coordinator errors to wire codes shared by the websocket and
// HTTP surfaces.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, delivery.ErrDriverBusy):
		return "DRIVER_BUSY"
	case errors.Is(err, delivery.ErrAlreadyProcessing):
		return "ALREADY_PROCESSING"
	case errors.Is(err, delivery.ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, delivery.ErrNotAccepting):
		return "RESTAURANT_CLOSED"
	case errors.Is(err, delivery.ErrCartExceeded):
		return "CART_EXCEEDED"
	case errors.Is(err, wallet.ErrInsufficientBalance):
		return "INSUFFICIENT_BALANCE"
	case errors.Is(err, progress.ErrAlreadyFinal), errors.Is(err, progress.ErrRunComplete):
		return "RUN_COMPLETE"
	case errors.Is(err, progress.ErrNoActiveStage):
		return "NO_ACTIVE_STAGE"
	case errors.Is(err, progress.ErrTooManyOrders):
		return "ORDER_LIMIT"
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, driver.ErrNotFound),
		errors.Is(err, progress.ErrNotFound),
		errors.Is(err, wallet.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, delivery.ErrTxFailed):
		return "TRANSACTION_FAILED"
	default:
		return "INTERNAL"
	}
}
