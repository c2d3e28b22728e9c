package onboarding

import "sync"

// Tracker holds one student's milestone flags. All methods are safe for
// concurrent use; the mutex covers every read-modify-write of the flags.
type Tracker struct {
	mu     sync.Mutex
	status Status
}

// NewTracker starts a tracker from an initial status (nil means all
// pending).
func NewTracker(initial Status) *Tracker {
	return &Tracker{status: initial.Clone()}
}

// Apply marks milestones complete and returns those that were pending
// before the call. Apply never clears a flag.
func (t *Tracker) Apply(ms []Milestone) []Milestone {
	t.mu.Lock()
	defer t.mu.Unlock()

	var newly []Milestone
	for _, m := range ms {
		if !m.Valid() || t.status[m] {
			continue
		}
		t.status[m] = true
		newly = append(newly, m)
	}
	return newly
}

// Snapshot returns a copy of the current flags.
func (t *Tracker) Snapshot() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status.Clone()
}

// Reset clears the given milestones, or every milestone when called with
// none. It is an administrative override and is never triggered by chat.
func (t *Tracker) Reset(ms ...Milestone) Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(ms) == 0 {
		ms = Milestones()
	}
	for _, m := range ms {
		if m.Valid() {
			t.status[m] = false
		}
	}
	return t.status.Clone()
}
