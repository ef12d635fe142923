package workerreg

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhub/taskhub/internal/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestParseSelectStrategy(t *testing.T) {
	assert.Equal(t, RoundRobin, ParseSelectStrategy("rr"))
	assert.Equal(t, LeastLoad, ParseSelectStrategy("least-load"))
	assert.Equal(t, LeastLoad, ParseSelectStrategy(""))
}

func TestPickForQueueLeastLoad(t *testing.T) {
	c := &fakeClock{now: time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)}
	r := New(LeastLoad, WithNow(c.Now))

	r.Upsert(types.WorkerInfo{ID: "w1", MaxRunningTasks: 10, RunningTasks: 5})
	r.Upsert(types.WorkerInfo{ID: "w2", MaxRunningTasks: 10, RunningTasks: 1})
	r.Upsert(types.WorkerInfo{ID: "w3", MaxRunningTasks: 10, RunningTasks: 8})

	picked, ok := r.PickForQueue("default", "")
	require.True(t, ok)
	assert.Equal(t, "w2", picked.ID)
}

func TestPickForQueueExcludesFullWorkers(t *testing.T) {
	c := &fakeClock{now: time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)}
	r := New(LeastLoad, WithNow(c.Now))

	r.Upsert(types.WorkerInfo{ID: "full", MaxRunningTasks: 2, RunningTasks: 2})
	r.Upsert(types.WorkerInfo{ID: "open", MaxRunningTasks: 2, RunningTasks: 1})

	picked, ok := r.PickForQueue("default", "")
	require.True(t, ok)
	assert.Equal(t, "open", picked.ID)
}

func TestPickForQueueExcludesDeadWorkers(t *testing.T) {
	c := &fakeClock{now: time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)}
	r := New(LeastLoad, WithNow(c.Now))
	r.Upsert(types.WorkerInfo{ID: "w1", MaxRunningTasks: 10})

	c.Advance(30 * time.Second) // exceeds aliveWindow
	_, ok := r.PickForQueue("default", "")
	assert.False(t, ok)
}

func TestPickForQueueMatchesDeclaredQueues(t *testing.T) {
	c := &fakeClock{now: time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)}
	r := New(LeastLoad, WithNow(c.Now))
	r.Upsert(types.WorkerInfo{ID: "gpu-worker", MaxRunningTasks: 10, Queues: []string{"gpu"}})
	r.Upsert(types.WorkerInfo{ID: "default-worker", MaxRunningTasks: 10})

	picked, ok := r.PickForQueue("gpu", "")
	require.True(t, ok)
	assert.Equal(t, "gpu-worker", picked.ID)

	_, ok = r.PickForQueue("other", "")
	assert.False(t, ok, "no worker declares the 'other' queue")
}

func TestPickForQueueExcludesSelf(t *testing.T) {
	c := &fakeClock{now: time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)}
	r := New(LeastLoad, WithNow(c.Now))
	r.Upsert(types.WorkerInfo{ID: "w1", MaxRunningTasks: 10})

	_, ok := r.PickForQueue("default", "w1")
	assert.False(t, ok)
}

func TestRoundRobinCyclesCandidates(t *testing.T) {
	c := &fakeClock{now: time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)}
	r := New(RoundRobin, WithNow(c.Now))
	r.Upsert(types.WorkerInfo{ID: "a", MaxRunningTasks: 10})
	r.Upsert(types.WorkerInfo{ID: "b", MaxRunningTasks: 10})

	first, _ := r.PickForQueue("default", "")
	second, _ := r.PickForQueue("default", "")
	third, _ := r.PickForQueue("default", "")
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.ID, third.ID)
}

// TestCooldownExcludesWorkerUntilItExpires covers the dispatch-failure
// cooldown: a worker that just failed dispatch is skipped in favor of any
// other healthy candidate, but is not permanently excluded.
func TestCooldownExcludesWorkerUntilItExpires(t *testing.T) {
	c := &fakeClock{now: time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)}
	r := New(LeastLoad, WithNow(c.Now))
	r.Upsert(types.WorkerInfo{ID: "flaky", MaxRunningTasks: 10})
	r.Upsert(types.WorkerInfo{ID: "stable", MaxRunningTasks: 10, RunningTasks: 5})

	r.MarkDispatchFailure("flaky", 5*time.Second)

	picked, ok := r.PickForQueue("default", "")
	require.True(t, ok)
	assert.Equal(t, "stable", picked.ID, "cooling-down worker should be skipped while an alternative exists")

	c.Advance(6 * time.Second)
	picked, ok = r.PickForQueue("default", "")
	require.True(t, ok)
	assert.Equal(t, "flaky", picked.ID, "flaky is least-loaded and is picked again once the cooldown lapses")
}

// TestCooldownIgnoredToAvoidStarvation: when every candidate is cooling
// down, cooldown is ignored rather than returning no worker at all.
func TestCooldownIgnoredToAvoidStarvation(t *testing.T) {
	c := &fakeClock{now: time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)}
	r := New(LeastLoad, WithNow(c.Now))
	r.Upsert(types.WorkerInfo{ID: "only", MaxRunningTasks: 10})
	r.MarkDispatchFailure("only", time.Minute)

	picked, ok := r.PickForQueue("default", "")
	require.True(t, ok)
	assert.Equal(t, "only", picked.ID)
}

func TestTouchHeartbeatUpdatesRunningTasks(t *testing.T) {
	c := &fakeClock{now: time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)}
	r := New(LeastLoad, WithNow(c.Now))
	r.Upsert(types.WorkerInfo{ID: "w1", MaxRunningTasks: 10})

	ok := r.TouchHeartbeat("w1", 4)
	require.True(t, ok)

	list := r.List()
	require.Len(t, list, 1)
	assert.Equal(t, 4, list[0].RunningTasks)
}

func TestTouchHeartbeatUnknownWorkerFails(t *testing.T) {
	r := New(LeastLoad)
	assert.False(t, r.TouchHeartbeat("missing", 1))
}

func TestSweeperPrunesDeadWorkers(t *testing.T) {
	c := &fakeClock{now: time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)}
	r := New(LeastLoad, WithNow(c.Now), WithPruneAfter(100*time.Millisecond))
	r.Upsert(types.WorkerInfo{ID: "w1", MaxRunningTasks: 10})

	r.StartSweeper()
	defer r.StopSweeper()

	c.Advance(time.Second)
	require.Eventually(t, func() bool {
		return len(r.List()) == 0
	}, 2*time.Second, 50*time.Millisecond, "sweeper should prune the stale worker")
}

func TestRemoveDeletesWorker(t *testing.T) {
	r := New(LeastLoad)
	r.Upsert(types.WorkerInfo{ID: "w1", MaxRunningTasks: 10})
	r.Remove("w1")
	assert.Empty(t, r.List())
}
