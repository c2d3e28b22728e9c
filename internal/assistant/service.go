package assistant

import (
	"context"
	"log/slog"
	"sync"

	"github.com/n1dhiparate/admit-assist/internal/brochure"
	"github.com/n1dhiparate/admit-assist/internal/metrics"
	"github.com/n1dhiparate/admit-assist/internal/onboarding"
	"github.com/n1dhiparate/admit-assist/internal/retrieval"
)

// DefaultStudentID is used when a caller does not identify the student.
const DefaultStudentID = "default"

// ComposedAnswer is the per-message result returned to the caller.
type ComposedAnswer struct {
	Reply    string            `json:"reply"`
	Status   onboarding.Status `json:"status"`
	Source   string            `json:"source,omitempty"`
	Strategy Strategy          `json:"strategy"`
	// NewlyCompleted lists milestones this message completed.
	NewlyCompleted []onboarding.Milestone `json:"newly_completed,omitempty"`
}

// ServiceConfig holds the collaborators of a Service. Brochure, Store
// and Metrics may be nil: a nil brochure retrieves nothing, a nil store
// keeps progress in memory only.
type ServiceConfig struct {
	Brochure   *brochure.Store
	Composer   *Composer
	Store      onboarding.Store
	Classifier *onboarding.Classifier
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Service handles messages for any number of students. Each student has
// a tracker created on first use from the store. A tracker whose store
// read failed is never saved until a later read succeeds and its stored
// flags are merged in.
type Service struct {
	docs       *brochure.Store
	composer   *Composer
	store      onboarding.Store
	classifier *onboarding.Classifier
	metrics    *metrics.Metrics
	logger     *slog.Logger

	mu       sync.Mutex
	students map[string]*student
}

// student is a live tracker plus whether its stored status has been read.
// loaded is guarded by Service.mu.
type student struct {
	tracker *onboarding.Tracker
	loaded  bool
}

// NewService creates a Service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	classifier := cfg.Classifier
	if classifier == nil {
		classifier = onboarding.NewClassifier(nil)
	}
	composer := cfg.Composer
	if composer == nil {
		composer = NewComposer(nil, 0, cfg.Metrics, logger)
	}
	return &Service{
		docs:       cfg.Brochure,
		composer:   composer,
		store:      cfg.Store,
		classifier: classifier,
		metrics:    cfg.Metrics,
		logger:     logger,
		students:   make(map[string]*student),
	}
}

// SubmitMessage processes one chat message: classify, update the
// tracker, retrieve, persist, then compose the reply. It always returns
// a non-empty reply; an empty message is treated as an empty query.
func (s *Service) SubmitMessage(ctx context.Context, studentID, text string) ComposedAnswer {
	studentID = normalizeID(studentID)
	s.metrics.IncMessages()

	tr, loaded := s.tracker(ctx, studentID)
	newly := tr.Apply(s.classifier.Classify(text))
	for _, m := range newly {
		s.metrics.IncMilestoneCompleted(string(m))
	}
	if len(newly) > 0 {
		s.logger.Info("milestones completed",
			"student_id", studentID,
			"milestones", newly,
		)
	}

	var doc *brochure.Document
	if s.docs != nil {
		doc = s.docs.Document()
	}
	result := retrieval.Retrieve(text, doc)
	s.metrics.IncRetrieval(result.Found())
	if result.Found() {
		s.logger.Debug("brochure passage retrieved",
			"student_id", studentID,
			"passage", result.Passage.Index,
			"score", result.Score,
		)
	}

	status := tr.Snapshot()
	s.persist(ctx, studentID, status, loaded)

	answer := s.composer.Compose(ctx, text, result)
	s.metrics.IncAnswer(string(answer.Strategy))

	return ComposedAnswer{
		Reply:          answer.Reply,
		Status:         status,
		Source:         answer.Source,
		Strategy:       answer.Strategy,
		NewlyCompleted: newly,
	}
}

// Status returns the student's current milestones.
func (s *Service) Status(ctx context.Context, studentID string) onboarding.Status {
	tr, _ := s.tracker(ctx, normalizeID(studentID))
	return tr.Snapshot()
}

// AggregateStats summarizes every known student. Loaded trackers take
// precedence over stored values; a tracker whose store read failed is
// merged with the stored flags instead. A failing store degrades to the
// live view.
func (s *Service) AggregateStats(ctx context.Context) onboarding.AggregateStats {
	statuses := make(map[string]onboarding.Status)
	if s.store != nil {
		stored, err := s.store.List(ctx)
		if err != nil {
			s.logger.Warn("stored statuses unavailable, aggregating live trackers only", "error", err)
		}
		for id, st := range stored {
			statuses[id] = st
		}
	}

	s.mu.Lock()
	for id, st := range s.students {
		live := st.tracker.Snapshot()
		if stored, ok := statuses[id]; ok && !st.loaded {
			live = live.Merge(stored)
		}
		statuses[id] = live
	}
	s.mu.Unlock()

	return onboarding.Aggregate(statuses)
}

// Reset clears the given milestones (all when none are given) for a
// student and persists the result. This is the only way a completed
// milestone becomes pending again.
func (s *Service) Reset(ctx context.Context, studentID string, ms ...onboarding.Milestone) onboarding.Status {
	studentID = normalizeID(studentID)
	tr, loaded := s.tracker(ctx, studentID)
	status := tr.Reset(ms...)
	s.logger.Info("onboarding status reset",
		"student_id", studentID,
		"milestones", ms,
	)
	s.persist(ctx, studentID, status, loaded)
	return status
}

// tracker returns the student's tracker and whether its stored status
// has been read. The store is read on first use and again on every call
// until a read succeeds; the stored flags are then merged into the live
// tracker. The store read happens outside the map lock.
func (s *Service) tracker(ctx context.Context, studentID string) (*onboarding.Tracker, bool) {
	s.mu.Lock()
	st, ok := s.students[studentID]
	if ok && st.loaded {
		s.mu.Unlock()
		return st.tracker, true
	}
	s.mu.Unlock()

	stored, loaded := onboarding.FetchStatus(ctx, s.store, studentID, s.logger)

	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok = s.students[studentID]
	if !ok {
		st = &student{tracker: onboarding.NewTracker(stored), loaded: loaded}
		s.students[studentID] = st
		return st.tracker, st.loaded
	}
	if !st.loaded && loaded {
		st.tracker.Apply(stored.Done())
		st.loaded = true
		s.logger.Info("onboarding status recovered from store", "student_id", studentID)
	}
	return st.tracker, st.loaded
}

// persist saves status unless the student's stored status was never
// read, in which case the save would overwrite flags this process has
// not seen. Skipped saves count as failures.
func (s *Service) persist(ctx context.Context, studentID string, status onboarding.Status, loaded bool) {
	if !loaded {
		s.metrics.IncPersistFailure()
		s.logger.Warn("onboarding store unreadable, keeping progress in memory",
			"student_id", studentID,
		)
		return
	}
	res := onboarding.Persist(ctx, s.store, studentID, status)
	if !res.OK() {
		s.metrics.IncPersistFailure()
		s.logger.Warn("failed to persist onboarding status",
			"student_id", res.StudentID,
			"error", res.Err,
		)
	}
}

func normalizeID(id string) string {
	if id == "" {
		return DefaultStudentID
	}
	return id
}
