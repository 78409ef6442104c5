// README: Redis pub/sub bridge. Room events are republished on one channel so
// every API instance can deliver to its own local connections; origin ids keep
// an instance from re-delivering its own events.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const bridgeChannel = "flashfood:rooms"

type wireEvent struct {
	Origin string          `json:"origin"`
	Room   string          `json:"room"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
}

// Bridge wraps a local Broadcaster: every event goes to local connections and
// onto the Redis channel for the other instances.
type Bridge struct {
	client *redis.Client
	local  Broadcaster
	origin string
}

func NewBridge(client *redis.Client, local Broadcaster) *Bridge {
	return &Bridge{client: client, local: local, origin: uuid.NewString()}
}

func (b *Bridge) Broadcast(room, event string, payload any) {
	b.local.Broadcast(room, event, payload)

	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("notify: bridge marshal %s: %v", event, err)
		return
	}
	msg, err := json.Marshal(wireEvent{Origin: b.origin, Room: room, Event: event, Data: data})
	if err != nil {
		log.Printf("notify: bridge envelope %s: %v", event, err)
		return
	}
	if err := b.client.Publish(context.Background(), bridgeChannel, msg).Err(); err != nil {
		log.Printf("notify: bridge publish %s: %v", event, err)
	}
}

// Run subscribes to the bridge channel and replays foreign events into the
// local broadcaster until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, bridgeChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("bridge subscription closed")
			}
			b.handle([]byte(msg.Payload))
		}
	}
}

func (b *Bridge) handle(payload []byte) {
	var ev wireEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		log.Printf("notify: bridge decode: %v", err)
		return
	}
	if ev.Origin == b.origin {
		return
	}
	b.local.Broadcast(ev.Room, ev.Event, ev.Data)
}
