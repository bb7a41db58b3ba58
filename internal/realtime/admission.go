package realtime

import "sync"

// Admission bounds total concurrent connections. Below the soft limit
// connections are admitted normally; between soft and hard they are
// admitted with a capacity warning; at the hard limit they are rejected
// outright before any registration happens. The warning is advisory only
// and never throttles already-admitted connections.
type Admission struct {
	mu      sync.Mutex
	current int
	soft    int
	hard    int
}

// AdmitResult describes the outcome of one admission attempt.
type AdmitResult struct {
	Accepted  bool
	Saturated bool
	Current   int
	Max       int
	// RetryAfterSeconds is the suggested retry window on rejection.
	RetryAfterSeconds int
}

func NewAdmission(softLimit, hardLimit int) *Admission {
	if hardLimit <= 0 {
		hardLimit = 100
	}
	if softLimit <= 0 || softLimit > hardLimit {
		softLimit = hardLimit
	}
	return &Admission{soft: softLimit, hard: hardLimit}
}

// Admit evaluates the limits for a new connection. The count is only
// incremented on acceptance; a rejection leaves it unchanged.
func (a *Admission) Admit() AdmitResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current >= a.hard {
		return AdmitResult{
			Accepted:          false,
			Current:           a.current,
			Max:               a.hard,
			RetryAfterSeconds: 30,
		}
	}

	a.current++
	return AdmitResult{
		Accepted:  true,
		Saturated: a.current >= a.soft,
		Current:   a.current,
		Max:       a.hard,
	}
}

// Release returns a previously admitted connection's slot.
func (a *Admission) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current > 0 {
		a.current--
	}
}

// Snapshot returns the current count and configured limits.
func (a *Admission) Snapshot() (current, soft, hard int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current, a.soft, a.hard
}
