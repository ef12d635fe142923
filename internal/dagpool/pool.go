// Package dagpool implements the DAG thread pool (C7): a priority job
// queue (internal/pqueue) shared by a dynamically-grown set of workers, so
// nested DAGs never starve waiting for a slot their own parent occupies.
package dagpool

import (
	"context"
	"sync"

	"github.com/taskhub/taskhub/internal/logger"
	"github.com/taskhub/taskhub/internal/pqueue"
	"github.com/taskhub/taskhub/internal/types"
)

// Job is one unit of work submitted to the pool.
type Job func(ctx context.Context)

type ctxKey struct{}

// IsPoolWorker reports whether ctx was created for a goroutine running
// inside this pool — used by the DAG executor to detect nested submissions
// and execute them synchronously in place instead of re-submitting.
func IsPoolWorker(ctx context.Context) bool {
	v, _ := ctx.Value(ctxKey{}).(bool)
	return v
}

// Pool is a priority work-stealing thread pool built on pqueue.Queue.
type Pool struct {
	jobs *pqueue.Queue[Job]

	mu           sync.Mutex
	workersTotal int
	busyWorkers  int
	initial      int
	maxWorkers   int
	stopped      bool
	wg           sync.WaitGroup
	ctx          context.Context
	cancel       context.CancelFunc
	log          logger.Logger
}

// New starts a Pool with initialWorkers workers and a hard cap of
// initialWorkers*4 (spec §4.4).
func New(initialWorkers int, log logger.Logger) *Pool {
	if initialWorkers < 1 {
		initialWorkers = 1
	}
	if log == nil {
		log = logger.Default
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		jobs:       pqueue.New[Job](),
		initial:    initialWorkers,
		maxWorkers: initialWorkers * 4,
		ctx:        ctx,
		cancel:     cancel,
		log:        log,
	}
	for i := 0; i < initialWorkers; i++ {
		p.spawnWorkerLocked()
	}
	return p
}

// Submit enqueues job at the given priority, growing the pool if it looks
// saturated.
func (p *Pool) Submit(priority types.TaskPriority, job Job) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.maybeSpawnWorkerLocked()
	p.mu.Unlock()
	p.jobs.Push(priority, job)
}

// maybeSpawnWorkerLocked starts a new worker when the pool is below its cap
// and has more queued jobs than idle workers. Must be called with mu held.
func (p *Pool) maybeSpawnWorkerLocked() {
	idle := p.workersTotal - p.busyWorkers
	if p.workersTotal < p.maxWorkers && p.jobs.Len() >= idle {
		p.spawnWorkerLocked()
	}
}

func (p *Pool) spawnWorkerLocked() {
	p.workersTotal++
	p.wg.Add(1)
	go p.workerLoop()
}

func (p *Pool) workerLoop() {
	defer p.wg.Done()
	workerCtx := context.WithValue(p.ctx, ctxKey{}, true)
	for {
		job, ok := p.jobs.Pop()
		if !ok {
			return
		}
		p.mu.Lock()
		p.busyWorkers++
		p.mu.Unlock()

		func() {
			defer func() {
				if r := recover(); r != nil {
					p.log.Error("dag pool job panicked", "recover", r)
				}
			}()
			job(workerCtx)
		}()

		p.mu.Lock()
		p.busyWorkers--
		p.mu.Unlock()
	}
}

// Stop rejects further Submits, closes the queue so every worker exits once
// the jobs still queued have run (with a canceled context), and blocks until
// all worker goroutines have returned.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.jobs.Close()
	p.cancel()
	p.wg.Wait()
}

// Stats is a point-in-time snapshot of pool load, surfaced via metrics.
type Stats struct {
	WorkersTotal int
	BusyWorkers  int
	QueuedJobs   int
}

// Stats returns a snapshot of the pool's current load.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{WorkersTotal: p.workersTotal, BusyWorkers: p.busyWorkers, QueuedJobs: p.jobs.Len()}
}
