package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReleaser struct {
	mu     sync.Mutex
	owners []string
}

func (f *fakeReleaser) ReleaseOwner(_ context.Context, owner string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.owners = append(f.owners, owner)
	return nil
}

func receive(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case msg := <-c.send:
		var env Envelope
		require.NoError(t, json.Unmarshal(msg, &env))
		return env
	default:
		t.Fatal("no frame queued")
		return Envelope{}
	}
}

func TestBroadcastReachesRoomMembers(t *testing.T) {
	r := NewRegistry()
	a := newClient(r, nil)
	b := newClient(r, nil)
	r.Join(a, "driver_FF_DRI_d1")
	r.Join(b, "driver_FF_DRI_d1")

	r.Broadcast("driver_FF_DRI_d1", "progressUpdated", map[string]string{"x": "1"})

	for _, c := range []*Client{a, b} {
		env := receive(t, c)
		assert.Equal(t, "progressUpdated", env.Event)
	}
}

func TestBroadcastSkipsOtherRooms(t *testing.T) {
	r := NewRegistry()
	a := newClient(r, nil)
	r.Join(a, "customer_FF_CUS_c1")

	r.Broadcast("driver_FF_DRI_d1", "orderStatusUpdated", nil)

	assert.Empty(t, a.send)
}

func TestRegisterForceClosesStaleConnection(t *testing.T) {
	rel := &fakeReleaser{}
	r := NewRegistry(rel)

	stale := newClient(r, nil)
	r.Register("driver_FF_DRI_d1", "FF_DRI_d1", stale)
	r.Join(stale, "driver_FF_DRI_d1")
	require.False(t, stale.closed())

	fresh := newClient(r, nil)
	r.Register("driver_FF_DRI_d1", "FF_DRI_d1", fresh)

	assert.True(t, stale.closed(), "stale connection must be force-closed")
	assert.False(t, fresh.closed())
	assert.Equal(t, []string{"FF_DRI_d1"}, rel.owners, "guards must be released on reconnect")

	// the stale socket left its rooms; only the fresh one receives
	r.Join(fresh, "driver_FF_DRI_d1")
	r.Broadcast("driver_FF_DRI_d1", "orderStatusUpdated", nil)
	assert.Empty(t, stale.send)
	receive(t, fresh)
}

func TestRegisterFirstConnectionReleasesNothing(t *testing.T) {
	rel := &fakeReleaser{}
	r := NewRegistry(rel)

	r.Register("driver_FF_DRI_d1", "FF_DRI_d1", newClient(r, nil))

	assert.Empty(t, rel.owners)
}

func TestUnregisterLeavesRooms(t *testing.T) {
	r := NewRegistry()
	c := newClient(r, nil)
	r.Register("driver_FF_DRI_d1", "FF_DRI_d1", c)
	r.Join(c, "driver_FF_DRI_d1")

	r.Unregister(c)
	r.Broadcast("driver_FF_DRI_d1", "orderStatusUpdated", nil)

	assert.Empty(t, c.send)
}

func TestUnregisterKeepsNewerConnection(t *testing.T) {
	r := NewRegistry()
	old := newClient(r, nil)
	r.Register("driver_FF_DRI_d1", "FF_DRI_d1", old)
	fresh := newClient(r, nil)
	r.Register("driver_FF_DRI_d1", "FF_DRI_d1", fresh)
	r.Join(fresh, "driver_FF_DRI_d1")

	// the stale pump exiting must not evict the replacement
	r.Unregister(old)
	r.Broadcast("driver_FF_DRI_d1", "orderStatusUpdated", nil)

	receive(t, fresh)
}

func TestSlowClientDropped(t *testing.T) {
	r := NewRegistry()
	c := newClient(r, nil)
	r.Join(c, "driver_FF_DRI_d1")

	for i := 0; i < sendQueueSize; i++ {
		require.True(t, c.enqueue([]byte("x")))
	}
	r.Broadcast("driver_FF_DRI_d1", "orderStatusUpdated", nil)

	assert.True(t, c.closed(), "overflowing the queue must drop the connection")
}
