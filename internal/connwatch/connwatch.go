// Package connwatch probes the services Admit-Assist depends on (the
// onboarding store and the generation provider) and keeps their latest
// health for the /health endpoint.
//
// A watcher probes immediately, then retries with exponential backoff
// while the service is down and polls at a steady interval once it is
// up. Probing never blocks a conversation: the assistant already falls
// back when a dependency fails, so health is reported, not enforced.
package connwatch

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ProbeFunc checks whether a service is reachable. Return nil if healthy.
type ProbeFunc func(ctx context.Context) error

// Backoff controls probe timing. Zero fields take the values from
// [DefaultBackoff].
type Backoff struct {
	// InitialDelay is the first retry delay after a failed probe.
	InitialDelay time.Duration
	// MaxDelay caps retry growth.
	MaxDelay time.Duration
	// PollInterval is the delay between probes while healthy.
	PollInterval time.Duration
	// ProbeTimeout bounds each probe call.
	ProbeTimeout time.Duration
}

// DefaultBackoff returns 2s doubling to 60s while down, 60s polling
// while up, and a 10s probe timeout.
func DefaultBackoff() Backoff {
	return Backoff{
		InitialDelay: 2 * time.Second,
		MaxDelay:     60 * time.Second,
		PollInterval: 60 * time.Second,
		ProbeTimeout: 10 * time.Second,
	}
}

func (b Backoff) withDefaults() Backoff {
	d := DefaultBackoff()
	if b.InitialDelay <= 0 {
		b.InitialDelay = d.InitialDelay
	}
	if b.MaxDelay <= 0 {
		b.MaxDelay = d.MaxDelay
	}
	if b.PollInterval <= 0 {
		b.PollInterval = d.PollInterval
	}
	if b.ProbeTimeout <= 0 {
		b.ProbeTimeout = d.ProbeTimeout
	}
	return b
}

// Status is the health of one watched service.
type Status struct {
	Name      string    `json:"name"`
	Ready     bool      `json:"ready"`
	LastCheck time.Time `json:"last_check"`
	LastError string    `json:"last_error,omitempty"`
}

// Watcher probes a single service.
type Watcher struct {
	name    string
	probe   ProbeFunc
	backoff Backoff
	logger  *slog.Logger

	mu     sync.Mutex
	status Status
}

// NewWatcher creates a watcher. It does nothing until [Watcher.Run].
func NewWatcher(name string, probe ProbeFunc, b Backoff, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		name:    name,
		probe:   probe,
		backoff: b.withDefaults(),
		logger:  logger,
		status:  Status{Name: name},
	}
}

// Status returns the latest probe outcome.
func (w *Watcher) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Run probes until ctx is cancelled. It always returns nil so it can
// share an errgroup with the server.
func (w *Watcher) Run(ctx context.Context) error {
	delay := w.backoff.InitialDelay
	for {
		if err := w.check(ctx); err != nil {
			if !sleepCtx(ctx, delay) {
				return nil
			}
			delay = min(delay*2, w.backoff.MaxDelay)
			continue
		}
		delay = w.backoff.InitialDelay
		if !sleepCtx(ctx, w.backoff.PollInterval) {
			return nil
		}
	}
}

// check runs one probe, records it, and logs state transitions.
func (w *Watcher) check(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, w.backoff.ProbeTimeout)
	err := w.probe(probeCtx)
	cancel()

	w.mu.Lock()
	wasReady, checked := w.status.Ready, !w.status.LastCheck.IsZero()
	w.status.Ready = err == nil
	w.status.LastCheck = time.Now()
	w.status.LastError = ""
	if err != nil {
		w.status.LastError = err.Error()
	}
	w.mu.Unlock()

	switch {
	case err == nil && !wasReady:
		w.logger.Info("service reachable", "service", w.name)
	case err != nil && (wasReady || !checked):
		w.logger.Warn("service unreachable", "service", w.name, "error", err)
	case err != nil:
		w.logger.Debug("service still unreachable", "service", w.name, "error", err)
	}
	return err
}

// sleepCtx sleeps for d or until ctx is cancelled. Returns false if cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Manager groups the watchers of one process.
type Manager struct {
	logger *slog.Logger

	mu       sync.RWMutex
	watchers []*Watcher
}

// NewManager creates an empty manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger}
}

// Add registers a watcher for probe under name. It must be called before
// [Manager.Run]. Panics on an empty name or nil probe.
func (m *Manager) Add(name string, probe ProbeFunc, b Backoff) *Watcher {
	if name == "" || probe == nil {
		panic("connwatch: watcher needs a name and a probe")
	}
	w := NewWatcher(name, probe, b, m.logger)
	m.mu.Lock()
	m.watchers = append(m.watchers, w)
	m.mu.Unlock()
	return w
}

// Run runs every registered watcher until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.RLock()
	watchers := append([]*Watcher(nil), m.watchers...)
	m.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range watchers {
		g.Go(func() error { return w.Run(gctx) })
	}
	return g.Wait()
}

// Status returns the health of every watched service keyed by name.
func (m *Manager) Status() map[string]Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Status, len(m.watchers))
	for _, w := range m.watchers {
		out[w.name] = w.Status()
	}
	return out
}

// Names returns the watched service names in sorted order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.watchers))
	for _, w := range m.watchers {
		names = append(names, w.name)
	}
	sort.Strings(names)
	return names
}
