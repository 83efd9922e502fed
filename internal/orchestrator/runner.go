package orchestrator

import (
	"context"
	"errors"

	"cadence/pkg/clients"
	"cadence/pkg/logging"
)

// Runner drives cycles on a fixed interval until its context is cancelled.
type Runner struct {
	trigger *Trigger
	orch    *Orchestrator
	logger  logging.Logger
	sleep   clients.SleepFunc
	opts    Options
}

func NewRunner(trigger *Trigger, orch *Orchestrator, logger logging.Logger, opts Options) *Runner {
	return &Runner{trigger: trigger, orch: orch, logger: logger, sleep: orch.sleep, opts: opts}
}

// Run loops until ctx is done, then persists state once more. Errors inside a
// cycle never stop the loop.
func (r *Runner) Run(ctx context.Context) error {
	interval := r.orch.cfg.TickInterval
	r.logger.WithField("interval", interval.String()).Info("Starting scheduler loop")

	for {
		if _, err := r.trigger.TryRun(ctx, ActionAuto, r.opts); errors.Is(err, ErrAlreadyRunning) {
			r.logger.Info("Cycle already in progress, skipping tick")
		}
		if err := r.sleep(ctx, interval); err != nil || ctx.Err() != nil {
			break
		}
	}

	r.trigger.Wait()
	if err := r.orch.Persist(ctx); err != nil {
		r.logger.WithError(err).Error("Failed to persist state on shutdown")
	}
	r.logger.Info("Scheduler loop stopped")
	return nil
}
