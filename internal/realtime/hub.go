package realtime

import (
	"log"
	"sync"
)

// Subscriber is one deliverable endpoint, usually a websocket connection.
// Send must be safe for concurrent use.
type Subscriber interface {
	ID() string
	Send(Event) error
}

// Hub fans events out to subscribers, either per activity room or globally.
// Delivery is best-effort: a failed send is logged and skipped, never
// retried, so one dead peer cannot stall a broadcast.
type Hub struct {
	mu    sync.Mutex
	conns map[string]Subscriber
	rooms map[string]map[string]Subscriber
}

func NewHub() *Hub {
	return &Hub{
		conns: make(map[string]Subscriber),
		rooms: make(map[string]map[string]Subscriber),
	}
}

func (h *Hub) AddConn(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[sub.ID()] = sub
}

// RemoveConn drops the subscriber from the global set and from every room.
func (h *Hub) RemoveConn(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, connID)
	for activityID, members := range h.rooms {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, activityID)
		}
	}
}

func (h *Hub) JoinRoom(activityID string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[activityID]
	if !ok {
		members = make(map[string]Subscriber)
		h.rooms[activityID] = members
	}
	members[sub.ID()] = sub
}

func (h *Hub) LeaveRoom(activityID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[activityID]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(h.rooms, activityID)
	}
}

// DropRoom removes a whole room, used when its activity is deleted.
func (h *Hub) DropRoom(activityID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms, activityID)
}

// RoomSize returns the number of subscribers in the activity's room.
func (h *Hub) RoomSize(activityID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[activityID])
}

// ToRoom sends the event to every room member except excludeConnID. Pass an
// empty exclude id to include the originator.
func (h *Hub) ToRoom(activityID, excludeConnID string, ev Event) {
	h.mu.Lock()
	targets := make([]Subscriber, 0, len(h.rooms[activityID]))
	for connID, sub := range h.rooms[activityID] {
		if connID == excludeConnID {
			continue
		}
		targets = append(targets, sub)
	}
	h.mu.Unlock()

	for _, sub := range targets {
		if err := sub.Send(ev); err != nil {
			log.Printf("realtime: send %s to %s: %v", ev.Name, sub.ID(), err)
		}
	}
}

// ToAll sends the event to every connected subscriber regardless of room
// membership.
func (h *Hub) ToAll(ev Event) {
	h.mu.Lock()
	targets := make([]Subscriber, 0, len(h.conns))
	for _, sub := range h.conns {
		targets = append(targets, sub)
	}
	h.mu.Unlock()

	for _, sub := range targets {
		if err := sub.Send(ev); err != nil {
			log.Printf("realtime: send %s to %s: %v", ev.Name, sub.ID(), err)
		}
	}
}
