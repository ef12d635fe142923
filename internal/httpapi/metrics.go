package httpapi

import (
	"net/http"

	"github.com/taskhub/taskhub/internal/metrics"
)

// handleMetrics implements GET /api/metrics: lifetime task/DAG counters,
// current pool load, worker count and a host stats sample.
func (a *API) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		poolStats := a.svc.Pool().Stats()
		snap := metrics.Snapshot{
			Counters: a.svc.Metrics().Counters(),
			Pool: metrics.PoolStats{
				WorkersTotal: poolStats.WorkersTotal,
				BusyWorkers:  poolStats.BusyWorkers,
				QueuedJobs:   poolStats.QueuedJobs,
			},
			WorkerCount: len(a.svc.WorkerRegistry().List()),
			Host:        metrics.CollectHostStats(r.Context()),
		}
		ok(w, snap)
	}
}
