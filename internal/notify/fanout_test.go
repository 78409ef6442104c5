package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flashfood/internal/modules/order"
	"flashfood/internal/modules/progress"
	"flashfood/internal/types"
)

type broadcastCall struct {
	room  string
	event string
}

type recordingBroadcaster struct {
	mu      sync.Mutex
	calls   []broadcastCall
	started chan struct{}
	release chan struct{}
}

func (r *recordingBroadcaster) Broadcast(room, event string, _ any) {
	if r.started != nil {
		select {
		case r.started <- struct{}{}:
		default:
		}
	}
	if r.release != nil {
		<-r.release
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, broadcastCall{room: room, event: event})
}

func (r *recordingBroadcaster) rooms() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = c.room
	}
	return out
}

func testOrder() *order.Order {
	d := types.ID("FF_DRI_d1")
	return &order.Order{
		ID:           types.ID("FF_ORD_o1"),
		CustomerID:   types.ID("FF_CUS_c1"),
		RestaurantID: types.ID("FF_RES_r1"),
		DriverID:     &d,
		Status:       order.StatusInProgress,
		TrackingInfo: order.TrackingInProgress,
	}
}

func TestOrderStatusUpdatedReachesAllRooms(t *testing.T) {
	b := &recordingBroadcaster{}
	f := NewFanout(b)

	f.OrderStatusUpdated(testOrder())
	f.Flush()

	assert.ElementsMatch(t,
		[]string{"driver_FF_DRI_d1", "restaurant_FF_RES_r1", "customer_FF_CUS_c1"},
		b.rooms(),
	)
	for _, c := range b.calls {
		assert.Equal(t, EventOrderStatusUpdated, c.event)
	}
}

func TestOrderStatusUpdatedWithoutDriverSkipsDriverRoom(t *testing.T) {
	b := &recordingBroadcaster{}
	f := NewFanout(b)

	o := testOrder()
	o.DriverID = nil
	f.OrderStatusUpdated(o)
	f.Flush()

	assert.ElementsMatch(t,
		[]string{"restaurant_FF_RES_r1", "customer_FF_CUS_c1"},
		b.rooms(),
	)
}

func TestOrderStatusUpdatedDropsConcurrentDuplicate(t *testing.T) {
	b := &recordingBroadcaster{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	f := NewFanout(b)

	o := testOrder()
	f.OrderStatusUpdated(o)
	select {
	case <-b.started:
	case <-time.After(time.Second):
		t.Fatal("first broadcast never started")
	}

	// second update while the first is still being sent
	f.OrderStatusUpdated(o)
	close(b.release)
	f.Flush()

	require.Len(t, b.rooms(), 3, "duplicate must be dropped, only one send per room")
}

func TestOrderStatusUpdatedAgainAfterFlush(t *testing.T) {
	b := &recordingBroadcaster{}
	f := NewFanout(b)

	o := testOrder()
	f.OrderStatusUpdated(o)
	f.Flush()
	f.OrderStatusUpdated(o)
	f.Flush()

	assert.Len(t, b.rooms(), 6, "sequential updates both go out")
}

func TestProgressUpdated(t *testing.T) {
	b := &recordingBroadcaster{}
	f := NewFanout(b)

	run := progress.NewRun(types.ID("FF_DRI_d1"), types.ID("FF_ORD_o1"), time.Now())
	f.ProgressUpdated(run.DriverID, run)
	f.Flush()

	require.Len(t, b.calls, 1)
	assert.Equal(t, "driver_FF_DRI_d1", b.calls[0].room)
	assert.Equal(t, EventProgressUpdated, b.calls[0].event)
}

func TestIncomingOrder(t *testing.T) {
	b := &recordingBroadcaster{}
	f := NewFanout(b)

	f.IncomingOrder(types.ID("FF_DRI_d2"), testOrder())
	f.Flush()

	require.Len(t, b.calls, 1)
	assert.Equal(t, "driver_FF_DRI_d2", b.calls[0].room)
	assert.Equal(t, EventIncomingOrder, b.calls[0].event)
}

func TestReleaseOwnerClearsGuards(t *testing.T) {
	b := &recordingBroadcaster{
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	f := NewFanout(b)

	o := testOrder()
	f.OrderStatusUpdated(o)
	<-b.started

	require.NoError(t, f.ReleaseOwner(context.Background(), "FF_DRI_d1"))

	// guard cleared, the same update may be re-sent even before the first lands
	f.OrderStatusUpdated(o)
	close(b.release)
	f.Flush()

	assert.Len(t, b.rooms(), 6)
}
