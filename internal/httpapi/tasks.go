package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taskhub/taskhub/internal/types"
)

// handlePostTask implements POST /api/tasks: enqueue a single command task.
func (a *API) handlePostTask() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var wire types.TaskConfigWire
		if err := decodeJSON(r, &wire); err != nil {
			badRequest(w, err)
			return
		}
		cfg, err := wire.ToConfig()
		if err != nil {
			badRequest(w, err)
			return
		}
		if cfg.ID == "" {
			badRequest(w, errMissingID)
			return
		}
		runID := a.svc.ScheduleTask(cfg)
		ok(w, map[string]string{"run_id": runID, "task_id": cfg.ID})
	}
}

var errMissingID = errString("task id is required")

type errString string

func (e errString) Error() string { return string(e) }

// handleCancelTask implements POST /api/tasks/{id}/cancel.
func (a *API) handleCancelTask() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !a.svc.CancelTask(id) {
			notFound(w, "no running task with that id")
			return
		}
		ok(w, map[string]bool{"canceled": true})
	}
}

// handleListTaskRuns implements GET /api/tasks.
func (a *API) handleListTaskRuns() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := runQueryFromRequest(r, 100, 1000)
		recs, err := a.svc.Store().QueryTaskRuns(r.Context(), q)
		if err != nil {
			internalErr(w, err)
			return
		}
		ok(w, recs)
	}
}

// handleGetTaskRun implements GET /api/tasks/{id}: {id} is the run_id
// returned by POST /api/tasks.
func (a *API) handleGetTaskRun() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		recs, err := a.svc.Store().QueryTaskRuns(r.Context(), runQueryByRunID(id))
		if err != nil {
			internalErr(w, err)
			return
		}
		if len(recs) == 0 {
			notFound(w, "no task run with that id")
			return
		}
		ok(w, recs[0])
	}
}

// handleTaskLogs implements GET /api/tasks/logs.
func (a *API) handleTaskLogs() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taskID := r.URL.Query().Get("task_id")
		if taskID == "" {
			badRequest(w, errString("task_id is required"))
			return
		}
		runID := r.URL.Query().Get("run_id")
		from := uint64(queryInt64(r, "from", 0))
		limit := clamp(queryInt(r, "limit", 200), 1, 2000)

		result := a.svc.Logs().Buffer.Query(taskID, runID, from, limit)
		ok(w, map[string]any{
			"records":   result.Records,
			"next_from": result.NextFrom,
		})
	}
}
