// README: Post-commit notification fanout. One order update goes to the
// driver, restaurant and customer rooms; an in-flight guard keeps concurrent
// duplicates from double-sending.
package notify

import (
	"context"
	"log"
	"sync"
	"time"

	"flashfood/internal/modules/order"
	"flashfood/internal/modules/progress"
	"flashfood/internal/types"
)

const (
	EventOrderStatusUpdated = "orderStatusUpdated"
	EventProgressUpdated    = "progressUpdated"
	EventDriverUpdated      = "driverUpdated"
	EventIncomingOrder      = "incomingOrderForDriver"
)

func RoomDriver(id types.ID) string     { return "driver_" + string(id) }
func RoomRestaurant(id types.ID) string { return "restaurant_" + string(id) }
func RoomCustomer(id types.ID) string   { return "customer_" + string(id) }

// Broadcaster delivers an event to every connection in a room. Implementations
// must not block; a slow consumer is the hub's problem, not the fanout's.
type Broadcaster interface {
	Broadcast(room, event string, payload any)
}

type OrderStatusPayload struct {
	OrderID      types.ID           `json:"order_id"`
	DriverID     *types.ID          `json:"driver_id,omitempty"`
	Status       order.Status       `json:"status"`
	TrackingInfo order.TrackingInfo `json:"tracking_info"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

type ProgressPayload struct {
	RunID         types.ID         `json:"run_id"`
	DriverID      types.ID         `json:"driver_id"`
	CurrentState  progress.State   `json:"current_state"`
	PreviousState *progress.State  `json:"previous_state,omitempty"`
	Stages        []progress.Stage `json:"stages"`
	OrderIDs      []types.ID       `json:"order_ids"`
	Events        []progress.Event `json:"events"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Fanout fans order and progress updates out to interested rooms,
// fire-and-forget. Safe for concurrent use.
type Fanout struct {
	b Broadcaster

	mu       sync.Mutex
	inflight map[string]string // guard key -> owner
	wg       sync.WaitGroup
}

func NewFanout(b Broadcaster) *Fanout {
	return &Fanout{b: b, inflight: make(map[string]string)}
}

// OrderStatusUpdated notifies the three parties of an order exactly once per
// update. A duplicate arriving while the first is still in flight is dropped.
func (f *Fanout) OrderStatusUpdated(o *order.Order) {
	key := "notify:order:" + string(o.ID)
	owner := ""
	if o.DriverID != nil {
		owner = string(*o.DriverID)
	}
	if !f.begin(key, owner) {
		log.Printf("notify: order %s update already in flight, dropping duplicate", o.ID)
		return
	}

	payload := OrderStatusPayload{
		OrderID:      o.ID,
		DriverID:     o.DriverID,
		Status:       o.Status,
		TrackingInfo: o.TrackingInfo,
		UpdatedAt:    o.UpdatedAt,
	}
	rooms := []string{RoomRestaurant(o.RestaurantID), RoomCustomer(o.CustomerID)}
	if o.DriverID != nil {
		rooms = append(rooms, RoomDriver(*o.DriverID))
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer f.end(key)
		for _, room := range rooms {
			f.b.Broadcast(room, EventOrderStatusUpdated, payload)
		}
	}()
}

// ProgressUpdated pushes the run snapshot to the driver's room.
func (f *Fanout) ProgressUpdated(driverID types.ID, run *progress.Run) {
	key := "notify:run:" + string(run.ID) + ":" + string(run.CurrentState)
	if !f.begin(key, string(driverID)) {
		log.Printf("notify: run %s update already in flight, dropping duplicate", run.ID)
		return
	}

	payload := ProgressPayload{
		RunID:         run.ID,
		DriverID:      run.DriverID,
		CurrentState:  run.CurrentState,
		PreviousState: run.PreviousState,
		Stages:        run.Stages,
		OrderIDs:      run.OrderIDs,
		Events:        run.Events,
		UpdatedAt:     run.UpdatedAt,
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer f.end(key)
		f.b.Broadcast(RoomDriver(driverID), EventProgressUpdated, payload)
	}()
}

// IncomingOrder offers an order to a driver; dispatch calls this when it
// proposes an assignment. Same dedup rules as the other notifications.
func (f *Fanout) IncomingOrder(driverID types.ID, o *order.Order) {
	key := "notify:offer:" + string(o.ID) + ":" + string(driverID)
	if !f.begin(key, string(driverID)) {
		log.Printf("notify: offer of %s to %s already in flight, dropping duplicate", o.ID, driverID)
		return
	}

	payload := OrderStatusPayload{
		OrderID:      o.ID,
		DriverID:     o.DriverID,
		Status:       o.Status,
		TrackingInfo: o.TrackingInfo,
		UpdatedAt:    o.UpdatedAt,
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer f.end(key)
		f.b.Broadcast(RoomDriver(driverID), EventIncomingOrder, payload)
	}()
}

// ReleaseOwner clears in-flight guards held on behalf of a driver; the
// connection registry calls this on reconnect.
func (f *Fanout) ReleaseOwner(_ context.Context, owner string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, o := range f.inflight {
		if o == owner {
			delete(f.inflight, k)
		}
	}
	return nil
}

// Flush blocks until every queued notification has been handed to the
// broadcaster. Used on shutdown and in tests.
func (f *Fanout) Flush() {
	f.wg.Wait()
}

func (f *Fanout) begin(key, owner string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, busy := f.inflight[key]; busy {
		return false
	}
	f.inflight[key] = owner
	return true
}

func (f *Fanout) end(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.inflight, key)
}
