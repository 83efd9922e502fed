package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"cadence/internal/models"
)

type blockingCycler struct {
	started chan struct{}
	release chan struct{}
	runs    atomic.Int32
}

func newBlockingCycler() *blockingCycler {
	return &blockingCycler{started: make(chan struct{}, 10), release: make(chan struct{})}
}

func (b *blockingCycler) RunAction(ctx context.Context, _ Action, _ Options) models.CycleReport {
	b.runs.Add(1)
	b.started <- struct{}{}
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return models.CycleReport{ID: "r"}
}

func TestTrigger_SingleFlight(t *testing.T) {
	c := newBlockingCycler()
	tr := NewTrigger(context.Background(), c, quietLogger())

	require.NoError(t, tr.Start(ActionAuto, Options{}))
	<-c.started
	require.True(t, tr.Running())

	require.ErrorIs(t, tr.Start(ActionAuto, Options{}), ErrAlreadyRunning)
	_, err := tr.TryRun(context.Background(), ActionAuto, Options{})
	require.ErrorIs(t, err, ErrAlreadyRunning)

	close(c.release)
	tr.Wait()

	require.False(t, tr.Running())
	require.EqualValues(t, 1, c.runs.Load())
	st := tr.Status()
	require.Equal(t, 1, st.RunCount)
	require.NotNil(t, st.LastRun)
	require.Equal(t, "r", st.LastReport.ID)
}

func TestTrigger_ConcurrentStarts(t *testing.T) {
	c := newBlockingCycler()
	tr := NewTrigger(context.Background(), c, quietLogger())

	var wg sync.WaitGroup
	var accepted, rejected atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := tr.Start(ActionAuto, Options{}); err != nil {
				rejected.Add(1)
			} else {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()
	close(c.release)
	tr.Wait()

	require.EqualValues(t, 1, accepted.Load())
	require.EqualValues(t, 19, rejected.Load())
	require.EqualValues(t, 1, c.runs.Load())
}

func TestTrigger_StatusBeforeFirstRun(t *testing.T) {
	tr := NewTrigger(context.Background(), newBlockingCycler(), quietLogger())
	st := tr.Status()
	require.False(t, st.Running)
	require.Nil(t, st.LastRun)
	require.Zero(t, st.RunCount)
}

func TestRunner_StopsOnCancelAndPersists(t *testing.T) {
	h := newHarness(DefaultConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())

	ticks := 0
	h.orch.sleep = func(ctx context.Context, d time.Duration) error {
		if d == h.orch.cfg.TickInterval {
			ticks++
			if ticks == 2 {
				cancel()
				return ctx.Err()
			}
		}
		return nil
	}
	tr := NewTrigger(ctx, h.orch, quietLogger())
	r := NewRunner(tr, h.orch, quietLogger(), Options{})

	require.NoError(t, r.Run(ctx))

	require.Equal(t, 2, tr.Status().RunCount)
	require.Equal(t, 3, h.store.saves, "one save per cycle plus one on shutdown")
	require.Equal(t, 2, h.store.saved.RunCount)
}
