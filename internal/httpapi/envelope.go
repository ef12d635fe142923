// Package httpapi is the HTTP Frontend (C16): a go-chi/chi router
// implementing spec §6's surface over the Service Facade.
package httpapi

import (
	"encoding/json"
	"net/http"
)

// Business codes returned in the envelope's code field. 0 is success. The
// HTTP status is chosen per call site: badRequest, notFound and internalErr
// send 400, 404 and 500; a bad login sends codeBadCredential with HTTP 200,
// and the bearer-auth middleware sends it with HTTP 401.
const (
	codeOK            = 0
	codeBadRequest    = 1001
	codeNotFound      = 1002
	codeInternal      = 1003
	codeBadCredential = 1004
)

// envelope is the {code, message, data} wire shape every handler returns.
type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func ok(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Code: codeOK, Data: data})
}

func fail(w http.ResponseWriter, status, code int, message string) {
	writeJSON(w, status, envelope{Code: code, Message: message})
}

func badRequest(w http.ResponseWriter, err error) {
	fail(w, http.StatusBadRequest, codeBadRequest, err.Error())
}

func notFound(w http.ResponseWriter, message string) {
	fail(w, http.StatusNotFound, codeNotFound, message)
}

func internalErr(w http.ResponseWriter, err error) {
	fail(w, http.StatusInternalServerError, codeInternal, err.Error())
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}
