package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/taskhub/taskhub/internal/types"
)

// handleTemplateCreate implements POST /template.
func (a *API) handleTemplateCreate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var tpl types.TaskTemplate
		if err := decodeJSON(r, &tpl); err != nil {
			badRequest(w, err)
			return
		}
		if tpl.TemplateID == "" {
			badRequest(w, errString("template_id is required"))
			return
		}
		if err := a.svc.RegisterTemplate(r.Context(), tpl); err != nil {
			internalErr(w, err)
			return
		}
		ok(w, tpl)
	}
}

// handleTemplateUpdate implements PUT /template/{id}.
func (a *API) handleTemplateUpdate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var tpl types.TaskTemplate
		if err := decodeJSON(r, &tpl); err != nil {
			badRequest(w, err)
			return
		}
		tpl.TemplateID = id
		if err := a.svc.RegisterTemplate(r.Context(), tpl); err != nil {
			internalErr(w, err)
			return
		}
		ok(w, tpl)
	}
}

// handleTemplateGet implements GET /template/{id}.
func (a *API) handleTemplateGet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		tpl, found, err := a.svc.GetTemplate(r.Context(), id)
		if err != nil {
			internalErr(w, err)
			return
		}
		if !found {
			notFound(w, "no template with that id")
			return
		}
		ok(w, tpl)
	}
}

// handleTemplateList implements GET /templates.
func (a *API) handleTemplateList() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tpls, err := a.svc.ListTemplates(r.Context())
		if err != nil {
			internalErr(w, err)
			return
		}
		ok(w, tpls)
	}
}

// handleTemplateDelete implements DELETE /template/{id}.
func (a *API) handleTemplateDelete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := a.svc.DeleteTemplate(r.Context(), id); err != nil {
			internalErr(w, err)
			return
		}
		ok(w, map[string]bool{"deleted": true})
	}
}

type templateActionRequest struct {
	TemplateID string         `json:"template_id"`
	Params     map[string]any `json:"params"`
}

// handleTemplateRender implements POST /template/render: renders without
// executing.
func (a *API) handleTemplateRender() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req templateActionRequest
		if err := decodeJSON(r, &req); err != nil {
			badRequest(w, err)
			return
		}
		result, err := a.svc.RenderTemplate(r.Context(), req.TemplateID, req.Params)
		if err != nil {
			badRequest(w, err)
			return
		}
		ok(w, map[string]any{"rendered": result.Rendered})
	}
}

// handleTemplateRun implements POST /template/run: renders and executes.
func (a *API) handleTemplateRun() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req templateActionRequest
		if err := decodeJSON(r, &req); err != nil {
			badRequest(w, err)
			return
		}
		runID := newHTTPRunID()
		result := a.svc.RunTemplateAsync(req.TemplateID, req.Params, runID)
		ok(w, map[string]any{"run_id": runID, "status": result})
	}
}
