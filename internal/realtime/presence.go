package realtime

import (
	"sort"
	"sync"
)

// Presence maps an activity id to the set of currently-connected
// participant ids. It is derived state, rebuildable from the Registry, and
// never outlives the process.
type Presence struct {
	mu         sync.Mutex
	byActivity map[string]map[string]struct{}
}

func NewPresence() *Presence {
	return &Presence{byActivity: make(map[string]map[string]struct{})}
}

func (p *Presence) Add(activityID, participantID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	participants, ok := p.byActivity[activityID]
	if !ok {
		participants = make(map[string]struct{})
		p.byActivity[activityID] = participants
	}
	participants[participantID] = struct{}{}
}

// Remove drops the participant. The activity entry itself is removed once
// its participant set becomes empty, so abandoned activities do not
// accumulate.
func (p *Presence) Remove(activityID, participantID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	participants, ok := p.byActivity[activityID]
	if !ok {
		return
	}
	delete(participants, participantID)
	if len(participants) == 0 {
		delete(p.byActivity, activityID)
	}
}

// DropActivity removes the whole activity entry, used when the activity is
// deleted.
func (p *Presence) DropActivity(activityID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.byActivity, activityID)
}

// List returns the participant ids present in the activity, sorted for
// deterministic broadcasts. Empty when the activity is unknown, never an
// error.
func (p *Presence) List(activityID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	participants := p.byActivity[activityID]
	ids := make([]string, 0, len(participants))
	for id := range participants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Contains reports whether the participant is present in the activity.
func (p *Presence) Contains(activityID, participantID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.byActivity[activityID][participantID]
	return ok
}
