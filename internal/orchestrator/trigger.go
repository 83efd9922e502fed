package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"cadence/internal/models"
	"cadence/pkg/logging"
)

// ErrAlreadyRunning is returned when a run is requested while one is in progress.
var ErrAlreadyRunning = errors.New("already running")

// Cycler is what the trigger runs.
type Cycler interface {
	RunAction(ctx context.Context, action Action, opts Options) models.CycleReport
}

// Status is the externally visible trigger state.
type Status struct {
	Running    bool                `json:"currently_running"`
	LastRun    *time.Time          `json:"last_run"`
	RunCount   int                 `json:"total_runs"`
	LastReport *models.CycleReport `json:"last_report,omitempty"`
}

// Trigger guarantees at most one run at a time across the HTTP endpoint and the Runner.
type Trigger struct {
	cycler Cycler
	logger logging.Logger
	// base outlives individual HTTP requests; async runs derive from it.
	base context.Context
	now  func() time.Time

	running atomic.Bool
	wg      sync.WaitGroup

	mu         sync.Mutex
	lastRun    time.Time
	runCount   int
	lastReport *models.CycleReport
}

func NewTrigger(base context.Context, cycler Cycler, logger logging.Logger) *Trigger {
	return &Trigger{cycler: cycler, logger: logger, base: base, now: time.Now}
}

// TryRun runs synchronously, or returns ErrAlreadyRunning.
func (t *Trigger) TryRun(ctx context.Context, action Action, opts Options) (models.CycleReport, error) {
	if !t.running.CompareAndSwap(false, true) {
		return models.CycleReport{}, ErrAlreadyRunning
	}
	defer t.running.Store(false)
	return t.run(ctx, action, opts), nil
}

// Start launches a run in the background, or returns ErrAlreadyRunning.
func (t *Trigger) Start(action Action, opts Options) error {
	if !t.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer t.running.Store(false)
		t.run(t.base, action, opts)
	}()
	return nil
}

func (t *Trigger) run(ctx context.Context, action Action, opts Options) models.CycleReport {
	report := t.cycler.RunAction(ctx, action, opts)
	t.mu.Lock()
	t.lastRun = t.now()
	t.runCount++
	t.lastReport = &report
	t.mu.Unlock()
	return report
}

// Running reports whether a run is in progress.
func (t *Trigger) Running() bool { return t.running.Load() }

func (t *Trigger) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Status{Running: t.running.Load(), RunCount: t.runCount, LastReport: t.lastReport}
	if !t.lastRun.IsZero() {
		last := t.lastRun
		s.LastRun = &last
	}
	return s
}

// Wait blocks until background runs have finished.
func (t *Trigger) Wait() { t.wg.Wait() }
