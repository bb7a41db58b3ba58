package realtime

import (
	"sync"
	"time"
)

// Deduplicator tracks in-flight operation keys so duplicate concurrent
// requests for the same logical effect collapse to one. Keys are built as
// verb:activityId:participantId. A background sweep clears entries older
// than the sweep interval as a safety net against keys leaked by crashed
// handlers.
type Deduplicator struct {
	mu       sync.Mutex
	inflight map[string]time.Time
	interval time.Duration
	done     chan struct{}
	closeOne sync.Once
}

func NewDeduplicator(sweepInterval time.Duration) *Deduplicator {
	if sweepInterval <= 0 {
		sweepInterval = 30 * time.Second
	}
	d := &Deduplicator{
		inflight: make(map[string]time.Time),
		interval: sweepInterval,
		done:     make(chan struct{}),
	}
	go d.sweep()
	return d
}

// OpKey builds the deduplication key for one logical operation.
func OpKey(verb, activityID, participantID string) string {
	return verb + ":" + activityID + ":" + participantID
}

// TryBegin inserts the key and returns true, or returns false when the key
// is already in flight, in which case the caller must no-op.
func (d *Deduplicator) TryBegin(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, inflight := d.inflight[key]; inflight {
		return false
	}
	d.inflight[key] = time.Now()
	return true
}

// End removes the key unconditionally. Callers defer it so a failure
// mid-handler never permanently stalls an operation key.
func (d *Deduplicator) End(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inflight, key)
}

// Len reports the number of in-flight keys.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inflight)
}

func (d *Deduplicator) sweep() {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			d.mu.Lock()
			for key, started := range d.inflight {
				if now.Sub(started) >= d.interval {
					delete(d.inflight, key)
				}
			}
			d.mu.Unlock()
		case <-d.done:
			return
		}
	}
}

// Close stops the background sweeper.
func (d *Deduplicator) Close() {
	d.closeOne.Do(func() { close(d.done) })
}
