package realtime

import (
	"testing"
	"time"
)

func TestDedupCollapsesConcurrentKeys(t *testing.T) {
	d := NewDeduplicator(time.Minute)
	defer d.Close()

	key := OpKey("join", "act-1", "u1")
	if !d.TryBegin(key) {
		t.Fatal("expected first begin to win")
	}
	if d.TryBegin(key) {
		t.Error("expected duplicate begin to lose")
	}

	d.End(key)
	if !d.TryBegin(key) {
		t.Error("expected begin to win again after end")
	}
}

func TestDedupKeysAreScoped(t *testing.T) {
	d := NewDeduplicator(time.Minute)
	defer d.Close()

	if !d.TryBegin(OpKey("join", "act-1", "u1")) {
		t.Fatal("unexpected collision")
	}
	// Different verb, activity, or participant never collides.
	if !d.TryBegin(OpKey("leave", "act-1", "u1")) {
		t.Error("verb should scope the key")
	}
	if !d.TryBegin(OpKey("join", "act-2", "u1")) {
		t.Error("activity should scope the key")
	}
	if !d.TryBegin(OpKey("join", "act-1", "u2")) {
		t.Error("participant should scope the key")
	}
}

func TestDedupSweepClearsStaleKeys(t *testing.T) {
	d := NewDeduplicator(20 * time.Millisecond)
	defer d.Close()

	d.TryBegin(OpKey("join", "act-1", "u1"))

	deadline := time.Now().Add(time.Second)
	for d.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("sweep never cleared the stale key")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDedupCloseIsIdempotent(t *testing.T) {
	d := NewDeduplicator(time.Minute)
	d.Close()
	d.Close()
}
