package httpapi

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/taskhub/taskhub/internal/service"
	"github.com/taskhub/taskhub/internal/types"
)

func decodeDagRequest(r *http.Request) (service.DagPayload, error) {
	var wire types.DagRunRequestWire
	if err := decodeJSON(r, &wire); err != nil {
		return service.DagPayload{}, err
	}
	specs, dagCfg, err := wire.ToTasksAndConfig()
	if err != nil {
		return service.DagPayload{}, err
	}
	return service.DagPayload{Name: wire.Name, Config: dagCfg, Tasks: specs}, nil
}

// handleDagRun implements POST /api/dag/run: runs synchronously and returns
// the aggregate result.
func (a *API) handleDagRun() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := decodeDagRequest(r)
		if err != nil {
			badRequest(w, err)
			return
		}
		runID := uuid.NewString()
		result, taskIDs := a.svc.RunDag(r.Context(), payload, runID, "http")
		ok(w, map[string]any{
			"run_id":   runID,
			"task_ids": taskIDs,
			"status":   result.Status.String(),
			"message":  result.Message,
		})
	}
}

// handleDagRunAsync implements POST /api/dag/run_async: launches the DAG on
// a goroutine and returns immediately with {run_id, task_ids}.
func (a *API) handleDagRunAsync() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := decodeDagRequest(r)
		if err != nil {
			badRequest(w, err)
			return
		}
		runID := uuid.NewString()
		taskIDs := a.svc.RunDagAsync(payload, runID, "http")
		ok(w, map[string]any{"run_id": runID, "task_ids": taskIDs})
	}
}

// handleDagRuns implements GET /api/dag/runs.
func (a *API) handleDagRuns() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := runQueryFromRequest(r, 100, 500)
		recs, err := a.svc.Store().QueryDagRuns(r.Context(), q)
		if err != nil {
			internalErr(w, err)
			return
		}
		ok(w, recs)
	}
}

// handleDagTaskRuns implements GET /api/dag/task_runs.
func (a *API) handleDagTaskRuns() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := runQueryFromRequest(r, 200, 1000)
		recs, err := a.svc.Store().QueryTaskRuns(r.Context(), q)
		if err != nil {
			internalErr(w, err)
			return
		}
		ok(w, recs)
	}
}

// handleDagEvents implements GET /api/dag/events.
func (a *API) handleDagEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := runQueryFromRequest(r, 200, 1000)
		recs, err := a.svc.Store().QueryTaskEvents(r.Context(), q)
		if err != nil {
			internalErr(w, err)
			return
		}
		ok(w, recs)
	}
}
