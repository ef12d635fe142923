package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taskhub/taskhub/internal/types"
)

// handleCronCreate implements POST /api/cron/jobs.
func (a *API) handleCronCreate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var wire types.CronJobWire
		if err := decodeJSON(r, &wire); err != nil {
			badRequest(w, err)
			return
		}
		cj, err := wire.ToJob()
		if err != nil {
			badRequest(w, err)
			return
		}
		if cj.ID == "" {
			cj.ID = newHTTPRunID()
		}
		if err := a.svc.RegisterCron(r.Context(), cj); err != nil {
			badRequest(w, err)
			return
		}
		ok(w, types.FromJob(cj))
	}
}

// handleCronList implements GET /api/cron/jobs.
func (a *API) handleCronList() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs := a.svc.ListCron()
		out := make([]types.CronJobWire, 0, len(jobs))
		for _, cj := range jobs {
			out = append(out, types.FromJob(cj))
		}
		ok(w, out)
	}
}

// handleCronDelete implements DELETE /api/cron/jobs/{id}.
func (a *API) handleCronDelete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := a.svc.RemoveCron(r.Context(), id); err != nil {
			internalErr(w, err)
			return
		}
		ok(w, map[string]bool{"deleted": true})
	}
}
