package httpapi

import (
	"net/http"

	"github.com/taskhub/taskhub/internal/strategy"
	"github.com/taskhub/taskhub/internal/types"
)

// handleWorkerExecute implements POST /api/worker/execute: the endpoint a
// Remote-strategy dispatch on the master calls against this node when it
// runs as a worker.
func (a *API) handleWorkerExecute() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req strategy.RemoteRequest
		if err := decodeJSON(r, &req); err != nil {
			badRequest(w, err)
			return
		}
		result := a.svc.ExecuteRemoteRequest(r.Context(), req.ID, req.Name, req.ExecType, req.ExecCommand, req.ExecParams, req.TimeoutMs, req.CaptureOutput)
		ok(w, result)
	}
}

// handleWorkerRegister implements POST /api/workers/register.
func (a *API) handleWorkerRegister() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var info types.WorkerInfo
		if err := decodeJSON(r, &info); err != nil {
			badRequest(w, err)
			return
		}
		if info.ID == "" {
			badRequest(w, errString("worker id is required"))
			return
		}
		a.svc.WorkerRegistry().Upsert(info)
		if err := a.svc.Store().UpsertWorker(r.Context(), info); err != nil {
			a.log.Warn("persist worker registration failed", "worker_id", info.ID, "error", err)
		}
		ok(w, map[string]bool{"registered": true})
	}
}

type heartbeatRequest struct {
	WorkerID     string `json:"worker_id"`
	RunningTasks int    `json:"running_tasks"`
}

// handleWorkerHeartbeat implements POST /api/workers/heartbeat.
func (a *API) handleWorkerHeartbeat() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req heartbeatRequest
		if err := decodeJSON(r, &req); err != nil {
			badRequest(w, err)
			return
		}
		if !a.svc.WorkerRegistry().TouchHeartbeat(req.WorkerID, req.RunningTasks) {
			notFound(w, "worker not registered")
			return
		}
		ok(w, map[string]bool{"ok": true})
	}
}

// handleWorkerList implements GET /api/workers.
func (a *API) handleWorkerList() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ok(w, a.svc.WorkerRegistry().List())
	}
}
