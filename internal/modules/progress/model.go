// README: Driver progress run aggregate and the five-stage state machine.
package progress

import (
	"errors"
	"time"

	"flashfood/internal/types"
)

type State string

const (
	StateDriverReady       State = "driver_ready"
	StateWaitingForPickup  State = "waiting_for_pickup"
	StateRestaurantPickup  State = "restaurant_pickup"
	StateEnRouteToCustomer State = "en_route_to_customer"
	StateDeliveryComplete  State = "delivery_complete"
)

// StateSequence is the fixed per-batch stage order; no branching, no cycles.
var StateSequence = [5]State{
	StateDriverReady,
	StateWaitingForPickup,
	StateRestaurantPickup,
	StateEnRouteToCustomer,
	StateDeliveryComplete,
}

// Next returns the successor state, or false for the terminal state.
func Next(s State) (State, bool) {
	for i, st := range StateSequence {
		if st == s && i < len(StateSequence)-1 {
			return StateSequence[i+1], true
		}
	}
	return "", false
}

type StageStatus string

const (
	StagePending    StageStatus = "pending"
	StageInProgress StageStatus = "in_progress"
	StageCompleted  StageStatus = "completed"
	StageFailed     StageStatus = "failed"
)

type StageDetails struct {
	Location      *types.Point `json:"location"`
	EstimatedTime *int64       `json:"estimated_time"`
	ActualTime    *int64       `json:"actual_time"`
	Notes         *string      `json:"notes"`
	Tip           *int64       `json:"tip"`
	Weather       *string      `json:"weather"`
}

type Stage struct {
	State       State        `json:"state"`
	Status      StageStatus  `json:"status"`
	Timestamp   time.Time    `json:"timestamp"`
	DurationSec int64        `json:"duration"`
	Details     StageDetails `json:"details"`
}

type EventType string

const (
	EventDriverStart      EventType = "driver_start"
	EventPickupComplete   EventType = "pickup_complete"
	EventDeliveryComplete EventType = "delivery_complete"
)

type EventDetails struct {
	Location *types.Point `json:"location"`
	Notes    *string      `json:"notes"`
}

type Event struct {
	Type      EventType    `json:"event_type"`
	Timestamp time.Time    `json:"event_timestamp"`
	Details   EventDetails `json:"event_details"`
}

// MaxOrdersPerRun caps how many orders a single run may carry.
const MaxOrdersPerRun = 3

var (
	ErrNotFound      = errors.New("progress run not found")
	ErrNoActiveStage = errors.New("no in-progress stage found")
	ErrAlreadyFinal  = errors.New("run already reached delivery_complete")
	ErrTooManyOrders = errors.New("driver cannot carry more than 3 orders")
	ErrRunComplete   = errors.New("run is terminal and cannot be extended")
)

// Run is one driver's active multi-order delivery cycle. Mutated only by the
// acceptance coordinator inside its transaction.
type Run struct {
	ID            types.ID
	DriverID      types.ID
	CurrentState  State
	PreviousState *State
	Stages        []Stage
	OrderIDs      []types.ID
	Events        []Event
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewRun seeds a fresh run for the driver's first accepted order: five stages,
// driver_ready in progress, everything else pending.
func NewRun(driverID, orderID types.ID, now time.Time) *Run {
	r := &Run{
		ID:           types.NewID(types.PrefixRun),
		DriverID:     driverID,
		CurrentState: StateDriverReady,
		Stages:       newBatch(now, true),
		OrderIDs:     []types.ID{orderID},
		Events: []Event{{
			Type:      EventDriverStart,
			Timestamp: now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.normalizeTails()
	return r
}

// newBatch returns five ordered stages. Only the first batch of a run
// activates its driver_ready slot; appended batches stay fully pending.
func newBatch(now time.Time, active bool) []Stage {
	stages := make([]Stage, 0, len(StateSequence))
	for i, st := range StateSequence {
		status := StagePending
		if active && i == 0 {
			status = StageInProgress
		}
		stages = append(stages, Stage{State: st, Status: status, Timestamp: now})
	}
	return stages
}

func (r *Run) IsTerminal() bool {
	return r.CurrentState == StateDeliveryComplete
}

// ActiveStageIndex locates the single in-progress stage.
func (r *Run) ActiveStageIndex() (int, bool) {
	for i := range r.Stages {
		if r.Stages[i].Status == StageInProgress {
			return i, true
		}
	}
	return 0, false
}

// AppendBatch extends an active run with five pending stages for an extra
// order accepted before dispatch. The already-active stage stays the only
// in-progress one run-wide.
func (r *Run) AppendBatch(orderID types.ID, now time.Time) error {
	if r.IsTerminal() {
		return ErrRunComplete
	}
	if len(r.OrderIDs)+1 > MaxOrdersPerRun {
		return ErrTooManyOrders
	}
	r.OrderIDs = append(r.OrderIDs, orderID)
	r.Stages = append(r.Stages, newBatch(now, false)...)
	r.UpdatedAt = now
	r.normalizeTails()
	return nil
}

// Advance moves the run one step: the active stage completes with its
// duration, the next slot activates, and current/previous state roll forward.
// Reaching delivery_complete completes every stage in the run (orders in one
// run move in lockstep).
func (r *Run) Advance(now time.Time) error {
	idx, ok := r.ActiveStageIndex()
	if !ok {
		if r.IsTerminal() {
			return ErrAlreadyFinal
		}
		return ErrNoActiveStage
	}
	cur := &r.Stages[idx]
	next, ok := Next(cur.State)
	if !ok {
		return ErrAlreadyFinal
	}

	cur.Status = StageCompleted
	cur.DurationSec = durationSec(cur.Timestamp, now)

	prev := r.CurrentState
	r.PreviousState = &prev
	r.CurrentState = next
	r.UpdatedAt = now

	if next == StateDeliveryComplete {
		for i := range r.Stages {
			if r.Stages[i].Status != StageCompleted {
				r.Stages[i].Status = StageCompleted
				r.Stages[i].DurationSec = durationSec(r.Stages[i].Timestamp, now)
			}
		}
		r.Events = append(r.Events, Event{Type: EventDeliveryComplete, Timestamp: now})
		return nil
	}

	nxt := &r.Stages[idx+1]
	nxt.Status = StageInProgress
	nxt.Timestamp = now

	if next == StateRestaurantPickup {
		r.Events = append(r.Events, Event{Type: EventPickupComplete, Timestamp: now})
	}

	r.normalizeTails()
	return nil
}

// normalizeTails forces every 5th slot (one per order batch) back to pending
// unless the run itself is terminal, so a batch can never signal completion
// early regardless of how its stages were seeded.
func (r *Run) normalizeTails() {
	if r.IsTerminal() {
		return
	}
	for i := range r.Stages {
		if i%5 == 4 && r.Stages[i].Status != StagePending {
			r.Stages[i].Status = StagePending
			r.Stages[i].DurationSec = 0
		}
	}
}

func durationSec(from, to time.Time) int64 {
	d := to.Sub(from)
	if d < 0 {
		return 0
	}
	return int64(d.Seconds())
}
