// Package workerreg implements the remote worker registry and selector
// (C12): health tracking, least-load/round-robin selection with cooldown,
// and a background sweeper that prunes dead workers.
package workerreg

import (
	"sort"
	"sync"
	"time"

	"github.com/taskhub/taskhub/internal/logger"
	"github.com/taskhub/taskhub/internal/types"
)

// SelectStrategy chooses among candidate workers for a queue.
type SelectStrategy int

const (
	LeastLoad SelectStrategy = iota
	RoundRobin
)

// ParseSelectStrategy parses the config string "least-load" / "rr".
func ParseSelectStrategy(s string) SelectStrategy {
	if s == "rr" {
		return RoundRobin
	}
	return LeastLoad
}

// Registry holds the live set of WorkerInfo, guarded by one mutex.
type Registry struct {
	mu       sync.Mutex
	workers  map[string]types.WorkerInfo
	strategy SelectStrategy
	rrCursor map[string]int // per-queue round-robin cursor

	log        logger.Logger
	pruneAfter time.Duration
	stopCh     chan struct{}
	stopOnce   sync.Once
	sweepDone  chan struct{}
	nowFn      func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

func WithLogger(l logger.Logger) Option { return func(r *Registry) { r.log = l } }
func WithPruneAfter(d time.Duration) Option { return func(r *Registry) { r.pruneAfter = d } }
// WithNow overrides the registry's clock; used by tests.
func WithNow(fn func() time.Time) Option { return func(r *Registry) { r.nowFn = fn } }

// New creates an empty Registry using the given selection strategy.
func New(strategy SelectStrategy, opts ...Option) *Registry {
	r := &Registry{
		workers:    make(map[string]types.WorkerInfo),
		strategy:   strategy,
		rrCursor:   make(map[string]int),
		log:        logger.Default,
		pruneAfter: 60 * time.Second,
		stopCh:     make(chan struct{}),
		sweepDone:  make(chan struct{}),
		nowFn:      time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Upsert adds or updates a worker and refreshes its heartbeat.
func (r *Registry) Upsert(info types.WorkerInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info.LastHeartbeat = r.nowFn()
	r.workers[info.ID] = info
}

// Remove deletes a worker from the registry.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.workers, id)
}

// TouchHeartbeat refreshes a worker's heartbeat and running-task count. ok
// is false if the worker is not registered.
func (r *Registry) TouchHeartbeat(id string, runningTasks int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[id]
	if !ok {
		return false
	}
	w.LastHeartbeat = r.nowFn()
	w.RunningTasks = runningTasks
	r.workers[id] = w
	return true
}

// List returns a snapshot of all registered workers.
func (r *Registry) List() []types.WorkerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.WorkerInfo, 0, len(r.workers))
	for _, w := range r.workers {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MarkDispatchFailure puts a worker into a dispatch-failure cooldown for the
// given duration.
func (r *Registry) MarkDispatchFailure(id string, cooldown time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.workers[id]
	if !ok {
		return
	}
	w.DispatchCooldownUntil = r.nowFn().Add(cooldown)
	r.workers[id] = w
}

// PickForQueue selects a worker for queue, excluding excludeID (never
// selects itself — used by the Remote strategy's own worker). A candidate
// must be alive, queue-matching and not full; cooldown is honored first and,
// if that yields no candidate, ignored to avoid starvation.
func (r *Registry) PickForQueue(queue, excludeID string) (types.WorkerInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.nowFn()

	candidates := r.candidates(queue, excludeID, now, true)
	if len(candidates) == 0 {
		candidates = r.candidates(queue, excludeID, now, false)
	}
	if len(candidates) == 0 {
		return types.WorkerInfo{}, false
	}

	switch r.strategy {
	case RoundRobin:
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
		idx := r.rrCursor[queue] % len(candidates)
		r.rrCursor[queue] = idx + 1
		return candidates[idx], true
	default: // LeastLoad
		best := candidates[0]
		for _, c := range candidates[1:] {
			if c.RunningTasks < best.RunningTasks || (c.RunningTasks == best.RunningTasks && c.ID < best.ID) {
				best = c
			}
		}
		return best, true
	}
}

func (r *Registry) candidates(queue, excludeID string, now time.Time, honorCooldown bool) []types.WorkerInfo {
	var out []types.WorkerInfo
	for _, w := range r.workers {
		if w.ID == excludeID {
			continue
		}
		if !w.IsAlive(now) || w.IsFull() || !w.MatchesQueue(queue) {
			continue
		}
		if honorCooldown && w.IsCoolingDown(now) {
			continue
		}
		out = append(out, w)
	}
	return out
}

// StartSweeper launches the background loop that deletes workers whose
// last heartbeat is older than pruneAfter. Sleep is sliced to
// <=200ms so StopSweeper returns promptly.
func (r *Registry) StartSweeper() {
	go r.sweepLoop()
}

func (r *Registry) sweepLoop() {
	defer close(r.sweepDone)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.sweepOnce()
		}
	}
}

func (r *Registry) sweepOnce() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.nowFn()
	for id, w := range r.workers {
		if now.Sub(w.LastHeartbeat) > r.pruneAfter {
			delete(r.workers, id)
			r.log.Info("pruned dead worker", "worker_id", id)
		}
	}
}

// StopSweeper signals the sweeper to exit and waits for it to do so.
func (r *Registry) StopSweeper() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.sweepDone
}
