// Package realtime implements the presence and mutation-synchronization
// engine: connection lifecycle tracking, idempotent application of
// concurrent mutations, reconciliation between ephemeral and durable state,
// and admission control under load.
package realtime

import "sync"

// Connection is a snapshot of one registered transport session. The live
// records are owned exclusively by the Registry.
type Connection struct {
	ID            string
	ParticipantID string
	Activities    []string
}

type connRecord struct {
	participantID string
	activities    map[string]struct{}
}

// Registry maps active connection ids to the participant identity and the
// activities the connection has joined. All operations are total functions
// over possibly-absent keys.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*connRecord
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*connRecord)}
}

// Register creates an empty record for the connection.
func (r *Registry) Register(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[connID]; ok {
		return
	}
	r.conns[connID] = &connRecord{activities: make(map[string]struct{})}
}

// Bind associates the connection with a participant identity.
func (r *Registry) Bind(connID, participantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.conns[connID]
	if !ok {
		return
	}
	record.participantID = participantID
}

// RecordJoin marks the connection as a member of the activity. Returns
// false when the connection already claimed membership.
func (r *Registry) RecordJoin(connID, activityID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.conns[connID]
	if !ok {
		return false
	}
	if _, joined := record.activities[activityID]; joined {
		return false
	}
	record.activities[activityID] = struct{}{}
	return true
}

func (r *Registry) RecordLeave(connID, activityID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.conns[connID]
	if !ok {
		return
	}
	delete(record.activities, activityID)
}

// HasJoined reports whether the connection currently claims membership in
// the activity.
func (r *Registry) HasJoined(connID, activityID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.conns[connID]
	if !ok {
		return false
	}
	_, joined := record.activities[activityID]
	return joined
}

// ClaimCount returns how many registered connections bound to the
// participant still claim membership in the activity. Presence membership
// follows this count: a participant with multiple tabs stays present until
// the last claiming connection is gone.
func (r *Registry) ClaimCount(activityID, participantID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, record := range r.conns {
		if record.participantID != participantID {
			continue
		}
		if _, joined := record.activities[activityID]; joined {
			count++
		}
	}
	return count
}

// Unregister removes and returns the connection record for cleanup. It is
// a no-op when the connection was never registered; disconnect events may
// arrive without a prior join.
func (r *Registry) Unregister(connID string) (Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.conns[connID]
	if !ok {
		return Connection{}, false
	}
	delete(r.conns, connID)

	snapshot := Connection{ID: connID, ParticipantID: record.participantID}
	for activityID := range record.activities {
		snapshot.Activities = append(snapshot.Activities, activityID)
	}
	return snapshot, true
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
