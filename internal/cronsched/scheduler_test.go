package cronsched

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhub/taskhub/internal/types"
)

// clock is a mutable time source for deterministic scheduler tests.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestSchedulerAddRejectsBadSpec(t *testing.T) {
	s := New(nil, nil, nil)
	err := s.Add(types.CronJob{ID: "bad", Spec: "garbage", Enabled: true})
	assert.Error(t, err)
}

func TestSchedulerTickFiresJobAtDueTime(t *testing.T) {
	c := &clock{now: time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)}
	s := New(nil, nil, nil, WithClock(c.Now))

	require.NoError(t, s.Add(types.CronJob{ID: "j1", Spec: "* * * * *", Enabled: true}))

	// Nothing due yet: the job's first NextTime is one minute out.
	_, due := s.tick()
	assert.Empty(t, due)

	c.Advance(time.Minute)
	_, due = s.tick()
	require.Len(t, due, 1)
	assert.Equal(t, "j1", due[0].ID)
}

// TestSchedulerCollapsesMissedTicksIntoOneFire covers spec §8's "cron
// fire-then-skip" scenario: a process that misses several intermediate
// fires (e.g. paused, or a slow tick loop) dispatches exactly once when it
// next observes the job as due, not once per missed interval.
func TestSchedulerCollapsesMissedTicksIntoOneFire(t *testing.T) {
	c := &clock{now: time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)}
	s := New(nil, nil, nil, WithClock(c.Now))

	require.NoError(t, s.Add(types.CronJob{ID: "j1", Spec: "* * * * *", Enabled: true}))

	// Five minutes pass without a single tick observing the job.
	c.Advance(5 * time.Minute)

	_, due := s.tick()
	require.Len(t, due, 1, "a single tick should collapse all missed fires into one dispatch")

	// The next tick, still at the same clock reading, must not re-fire.
	_, due = s.tick()
	assert.Empty(t, due)
}

func TestSchedulerSkipsDisabledJobs(t *testing.T) {
	c := &clock{now: time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)}
	s := New(nil, nil, nil, WithClock(c.Now))

	require.NoError(t, s.Add(types.CronJob{ID: "j1", Spec: "* * * * *", Enabled: false}))
	c.Advance(5 * time.Minute)

	_, due := s.tick()
	assert.Empty(t, due)
}

func TestSchedulerDispatchRoutesByTargetType(t *testing.T) {
	taskCh := make(chan string, 1)
	dagCh := make(chan string, 1)
	tmplCh := make(chan string, 1)

	s := New(
		func(cfg types.TaskConfig, runID string) { taskCh <- runID },
		func(payload types.CronDagPayload, runID string) { dagCh <- runID },
		func(payload types.CronTemplatePayload, runID string) { tmplCh <- runID },
	)

	s.dispatch(types.CronJob{ID: "task-job", TargetType: types.TargetSingleTask})
	select {
	case <-taskCh:
	case <-time.After(time.Second):
		t.Fatal("task dispatch was not called")
	}

	s.dispatch(types.CronJob{ID: "dag-job", TargetType: types.TargetDag})
	select {
	case <-dagCh:
	case <-time.After(time.Second):
		t.Fatal("dag dispatch was not called")
	}

	s.dispatch(types.CronJob{ID: "tmpl-job", TargetType: types.TargetTemplate})
	select {
	case <-tmplCh:
	case <-time.After(time.Second):
		t.Fatal("template dispatch was not called")
	}
}

func TestSchedulerRemoveStopsFutureDispatch(t *testing.T) {
	c := &clock{now: time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)}
	s := New(nil, nil, nil, WithClock(c.Now))

	require.NoError(t, s.Add(types.CronJob{ID: "j1", Spec: "* * * * *", Enabled: true}))
	s.Remove("j1")

	c.Advance(time.Minute)
	_, due := s.tick()
	assert.Empty(t, due)
	assert.Empty(t, s.List())
}

func TestSchedulerRunStopsPromptly(t *testing.T) {
	s := New(nil, nil, nil)
	done := make(chan struct{})
	go func() {
		s.Run()
		close(done)
	}()

	s.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}
