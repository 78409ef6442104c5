// README: Connection registry and room membership. One live connection per
// party: a reconnect force-closes the stale socket and clears any guards the
// old connection may still hold.
package realtime

import (
	"context"
	"encoding/json"
	"log"
	"sync"
)

// GuardReleaser clears in-flight locks held on behalf of an owner. The
// acceptance guard and the notification fanout both implement it.
type GuardReleaser interface {
	ReleaseOwner(ctx context.Context, owner string) error
}

type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type Registry struct {
	mu        sync.Mutex
	byParty   map[string]*Client
	rooms     map[string]map[*Client]bool
	releasers []GuardReleaser
}

func NewRegistry(releasers ...GuardReleaser) *Registry {
	return &Registry{
		byParty:   make(map[string]*Client),
		rooms:     make(map[string]map[*Client]bool),
		releasers: releasers,
	}
}

// AddReleaser registers a guard to clear on reconnect; wiring happens after
// construction because the fanout depends on the registry as broadcaster.
func (r *Registry) AddReleaser(g GuardReleaser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releasers = append(r.releasers, g)
}

// Register binds a connection to a party key. An existing connection for the
// same party is force-closed first and its guards released, so a reconnecting
// driver never competes with its own stale socket.
func (r *Registry) Register(party, owner string, c *Client) {
	r.mu.Lock()
	stale := r.byParty[party]
	r.byParty[party] = c
	if stale != nil {
		r.dropLocked(stale)
	}
	releasers := append([]GuardReleaser(nil), r.releasers...)
	r.mu.Unlock()

	c.identify(party, owner)
	if stale != nil {
		stale.close()
		for _, g := range releasers {
			if err := g.ReleaseOwner(context.Background(), owner); err != nil {
				log.Printf("realtime: release guards for %s: %v", owner, err)
			}
		}
	}
}

// Unregister removes a connection from the party map and every room. A newer
// connection registered under the same party stays untouched.
func (r *Registry) Unregister(c *Client) {
	party, _ := c.identity()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byParty[party] == c {
		delete(r.byParty, party)
	}
	r.dropLocked(c)
}

func (r *Registry) dropLocked(c *Client) {
	for room, members := range r.rooms {
		delete(members, c)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
}

func (r *Registry) Join(c *Client, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[*Client]bool)
		r.rooms[room] = members
	}
	members[c] = true
}

func (r *Registry) Leave(c *Client, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if members, ok := r.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(r.rooms, room)
		}
	}
}

// Broadcast sends an event to every member of a room. Implements
// notify.Broadcaster; never blocks on a slow connection.
func (r *Registry) Broadcast(room, event string, payload any) {
	msg, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		log.Printf("realtime: marshal %s: %v", event, err)
		return
	}

	r.mu.Lock()
	members := make([]*Client, 0, len(r.rooms[room]))
	for c := range r.rooms[room] {
		members = append(members, c)
	}
	r.mu.Unlock()

	for _, c := range members {
		c.enqueue(msg)
	}
}

// Send delivers an event to a single connection.
func (r *Registry) Send(c *Client, event string, payload any) {
	msg, err := json.Marshal(Envelope{Event: event, Data: payload})
	if err != nil {
		log.Printf("realtime: marshal %s: %v", event, err)
		return
	}
	c.enqueue(msg)
}
