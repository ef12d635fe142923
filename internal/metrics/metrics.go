// Package metrics implements the metrics surface (C20): hand-rolled
// sync/atomic counters for DAG/task throughput, plus the snapshot shape
// that combines them with pool load, worker count and host-level stats
// from gopsutil. The teacher's
// go.mod carries no Prometheus client, so the counters stay atomics rather
// than reaching for an out-of-pack dependency; see DESIGN.md.
package metrics

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"sync/atomic"
)

// Collector accumulates lifetime counters for task/DAG outcomes. All
// fields are written from arbitrary goroutines via the Inc* methods.
type Collector struct {
	tasksStarted   atomic.Int64
	tasksSucceeded atomic.Int64
	tasksFailed    atomic.Int64
	dagsStarted    atomic.Int64
	dagsSucceeded  atomic.Int64
	dagsFailed     atomic.Int64
}

// New returns a zeroed Collector.
func New() *Collector { return &Collector{} }

func (c *Collector) IncTaskStarted()   { c.tasksStarted.Add(1) }
func (c *Collector) IncTaskSucceeded() { c.tasksSucceeded.Add(1) }
func (c *Collector) IncTaskFailed()    { c.tasksFailed.Add(1) }
func (c *Collector) IncDagStarted()    { c.dagsStarted.Add(1) }
func (c *Collector) IncDagSucceeded()  { c.dagsSucceeded.Add(1) }
func (c *Collector) IncDagFailed()     { c.dagsFailed.Add(1) }

// Counters is a point-in-time snapshot of the lifetime counters.
type Counters struct {
	TasksStarted   int64 `json:"tasks_started"`
	TasksSucceeded int64 `json:"tasks_succeeded"`
	TasksFailed    int64 `json:"tasks_failed"`
	DagsStarted    int64 `json:"dags_started"`
	DagsSucceeded  int64 `json:"dags_succeeded"`
	DagsFailed     int64 `json:"dags_failed"`
}

func (c *Collector) Counters() Counters {
	return Counters{
		TasksStarted:   c.tasksStarted.Load(),
		TasksSucceeded: c.tasksSucceeded.Load(),
		TasksFailed:    c.tasksFailed.Load(),
		DagsStarted:    c.dagsStarted.Load(),
		DagsSucceeded:  c.dagsSucceeded.Load(),
		DagsFailed:     c.dagsFailed.Load(),
	}
}

// PoolStats mirrors dagpool.Stats without importing it, avoiding a
// metrics->dagpool dependency for a three-field struct.
type PoolStats struct {
	WorkersTotal int `json:"workers_total"`
	BusyWorkers  int `json:"busy_workers"`
	QueuedJobs   int `json:"queued_jobs"`
}

// HostStats is a snapshot of host-level CPU/memory load, sourced from
// gopsutil so the metrics surface reflects real node pressure rather than
// only in-process counters.
type HostStats struct {
	CPUPercent  float64 `json:"cpu_percent"`
	MemUsedPct  float64 `json:"mem_used_percent"`
	MemTotalMB  uint64  `json:"mem_total_mb"`
	CollectedAt int64   `json:"collected_at_ms"`
}

// CollectHostStats samples instantaneous CPU percent (over a short window)
// and current memory usage. Errors from either probe degrade to a zero
// value rather than failing the whole snapshot.
func CollectHostStats(ctx context.Context) HostStats {
	stats := HostStats{}
	if pcts, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, false); err == nil && len(pcts) > 0 {
		stats.CPUPercent = pcts[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		stats.MemUsedPct = vm.UsedPercent
		stats.MemTotalMB = vm.Total / (1024 * 1024)
	}
	return stats
}

// Snapshot is the full payload served at GET /api/metrics.
type Snapshot struct {
	Counters    Counters  `json:"counters"`
	Pool        PoolStats `json:"pool"`
	WorkerCount int       `json:"worker_count"`
	Host        HostStats `json:"host"`
}
