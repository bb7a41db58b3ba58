package realtime

import (
	"reflect"
	"testing"
)

func TestPresenceAddRemove(t *testing.T) {
	p := NewPresence()
	p.Add("act-1", "u2")
	p.Add("act-1", "u1")
	p.Add("act-1", "u1")

	if got := p.List("act-1"); !reflect.DeepEqual(got, []string{"u1", "u2"}) {
		t.Fatalf("expected sorted unique ids, got %v", got)
	}

	p.Remove("act-1", "u1")
	if p.Contains("act-1", "u1") {
		t.Error("expected u1 to be removed")
	}
	if !p.Contains("act-1", "u2") {
		t.Error("expected u2 to remain")
	}
}

func TestPresenceEmptyActivityEntryIsDropped(t *testing.T) {
	p := NewPresence()
	p.Add("act-1", "u1")
	p.Remove("act-1", "u1")

	p.mu.Lock()
	_, exists := p.byActivity["act-1"]
	p.mu.Unlock()
	if exists {
		t.Error("expected empty activity entry to be deleted")
	}
}

func TestPresenceUnknownActivity(t *testing.T) {
	p := NewPresence()
	if got := p.List("missing"); len(got) != 0 {
		t.Errorf("expected empty list, got %v", got)
	}
	p.Remove("missing", "u1")
	p.DropActivity("missing")
}
