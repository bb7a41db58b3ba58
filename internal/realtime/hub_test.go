package realtime

import (
	"errors"
	"sync"
	"testing"
)

type fakeSubscriber struct {
	mu      sync.Mutex
	id      string
	events  []Event
	sendErr error
}

func newFakeSubscriber(id string) *fakeSubscriber {
	return &fakeSubscriber{id: id}
}

func (f *fakeSubscriber) ID() string { return f.id }

func (f *fakeSubscriber) Send(ev Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeSubscriber) named(name string) []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Event
	for _, ev := range f.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func (f *fakeSubscriber) count(name string) int {
	return len(f.named(name))
}

func TestHubRoomBroadcastExcludesOriginator(t *testing.T) {
	h := NewHub()
	a := newFakeSubscriber("a")
	b := newFakeSubscriber("b")
	h.AddConn(a)
	h.AddConn(b)
	h.JoinRoom("act-1", a)
	h.JoinRoom("act-1", b)

	h.ToRoom("act-1", "a", Event{Name: "tag_added"})

	if a.count("tag_added") != 0 {
		t.Error("originator should not receive its own broadcast")
	}
	if b.count("tag_added") != 1 {
		t.Errorf("expected b to receive 1 event, got %d", b.count("tag_added"))
	}
}

func TestHubRoomBroadcastSelfInclusive(t *testing.T) {
	h := NewHub()
	a := newFakeSubscriber("a")
	h.AddConn(a)
	h.JoinRoom("act-1", a)

	h.ToRoom("act-1", "", Event{Name: "participants_updated"})

	if a.count("participants_updated") != 1 {
		t.Error("empty exclude id should include every room member")
	}
}

func TestHubToAllIgnoresRooms(t *testing.T) {
	h := NewHub()
	inRoom := newFakeSubscriber("a")
	lobby := newFakeSubscriber("b")
	h.AddConn(inRoom)
	h.AddConn(lobby)
	h.JoinRoom("act-1", inRoom)

	h.ToAll(Event{Name: "activity_deleted"})

	for _, sub := range []*fakeSubscriber{inRoom, lobby} {
		if sub.count("activity_deleted") != 1 {
			t.Errorf("expected %s to receive the global event", sub.ID())
		}
	}
}

func TestHubDeadPeerDoesNotStallBroadcast(t *testing.T) {
	h := NewHub()
	dead := newFakeSubscriber("dead")
	dead.sendErr = errors.New("write: broken pipe")
	live := newFakeSubscriber("live")
	h.AddConn(dead)
	h.AddConn(live)
	h.JoinRoom("act-1", dead)
	h.JoinRoom("act-1", live)

	h.ToRoom("act-1", "", Event{Name: "tag_added"})

	if live.count("tag_added") != 1 {
		t.Error("expected live peer to receive the event despite the dead one")
	}
}

func TestHubRemoveConnLeavesAllRooms(t *testing.T) {
	h := NewHub()
	a := newFakeSubscriber("a")
	h.AddConn(a)
	h.JoinRoom("act-1", a)
	h.JoinRoom("act-2", a)

	h.RemoveConn("a")

	if h.RoomSize("act-1") != 0 || h.RoomSize("act-2") != 0 {
		t.Error("expected connection to be evicted from every room")
	}

	h.ToAll(Event{Name: "activity_created"})
	if a.count("activity_created") != 0 {
		t.Error("removed connection must not receive global events")
	}
}
