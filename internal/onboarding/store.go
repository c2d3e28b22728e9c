package onboarding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrNotFound is returned by [Store.Load] when a student has no record.
var ErrNotFound = errors.New("onboarding status not found")

// Store persists statuses keyed by student identifier. Implementations
// live in internal/progress.
type Store interface {
	// Load returns the stored status or ErrNotFound.
	Load(ctx context.Context, studentID string) (Status, error)
	// Save replaces the stored status. Last writer wins.
	Save(ctx context.Context, studentID string, status Status) error
	// List returns every stored status.
	List(ctx context.Context) (map[string]Status, error)
}

// LoadStatus reads a student's status, falling back to [DefaultStatus]
// when there is no store, no record, or the store fails. It never
// returns an error: an unreachable store must not block a conversation.
func LoadStatus(ctx context.Context, store Store, studentID string, logger *slog.Logger) Status {
	status, _ := FetchStatus(ctx, store, studentID, logger)
	return status
}

// FetchStatus is [LoadStatus] with a flag reporting whether the store
// answered. A missing record or a nil store counts as answered; a store
// error does not, and the returned defaults must not be saved over
// whatever the store holds.
func FetchStatus(ctx context.Context, store Store, studentID string, logger *slog.Logger) (Status, bool) {
	if store == nil {
		return DefaultStatus(), true
	}
	status, err := store.Load(ctx, studentID)
	switch {
	case errors.Is(err, ErrNotFound):
		return DefaultStatus(), true
	case err != nil:
		if logger != nil {
			logger.Warn("onboarding status unavailable, using defaults",
				"student_id", studentID,
				"error", err,
			)
		}
		return DefaultStatus(), false
	}
	return status.Clone(), true
}

// PersistResult reports the outcome of a best-effort save.
type PersistResult struct {
	StudentID string
	Err       error
}

// OK reports whether the save succeeded (or there was nothing to save to).
func (r PersistResult) OK() bool {
	return r.Err == nil
}

// Persist saves a status and reports the outcome instead of failing.
// A panicking store is converted to a failed result.
func Persist(ctx context.Context, store Store, studentID string, status Status) (res PersistResult) {
	res.StudentID = studentID
	if store == nil {
		return res
	}
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("persist %s: panic: %v", studentID, r)
		}
	}()
	if err := store.Save(ctx, studentID, status.Clone()); err != nil {
		res.Err = fmt.Errorf("persist %s: %w", studentID, err)
	}
	return res
}

// AggregateStats summarizes progress across students.
type AggregateStats struct {
	Total              int               `json:"total"`
	Completed          int               `json:"completed"`
	PendingByMilestone map[Milestone]int `json:"pending_by_milestone"`
}

// Aggregate counts completed students and, per milestone, how many
// students still have it pending.
func Aggregate(statuses map[string]Status) AggregateStats {
	stats := AggregateStats{
		Total:              len(statuses),
		PendingByMilestone: make(map[Milestone]int, len(Milestones())),
	}
	for _, m := range Milestones() {
		stats.PendingByMilestone[m] = 0
	}
	for _, s := range statuses {
		if s.Complete() {
			stats.Completed++
		}
		for _, m := range s.Pending() {
			stats.PendingByMilestone[m]++
		}
	}
	return stats
}
