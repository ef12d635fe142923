package httpapi

import (
	"net/http"

	"github.com/coder/websocket"

	"github.com/taskhub/taskhub/internal/auth"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleLogin implements POST /api/login.
func (a *API) handleLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decodeJSON(r, &req); err != nil {
			badRequest(w, err)
			return
		}
		token, err := a.issuer.Authenticate(r.Context(), req.Username, req.Password)
		if err != nil {
			if err == auth.ErrBadCredentials {
				fail(w, http.StatusOK, codeBadCredential, "invalid username or password")
				return
			}
			internalErr(w, err)
			return
		}
		ok(w, map[string]string{"token": token})
	}
}

// handleWebSocket upgrades to the WS surface described in spec §6,
// delegating the handshake and read loop entirely to wshub.Hub.
func (a *API) handleWebSocket() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, websocketAcceptOptions)
		if err != nil {
			a.log.Warn("websocket accept failed", "error", err)
			return
		}
		a.hub.AcceptAndServe(r.Context(), conn, a.authenticateWS)
	}
}
