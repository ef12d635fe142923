package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/coder/websocket"

	"github.com/taskhub/taskhub/internal/auth"
	"github.com/taskhub/taskhub/internal/logger"
	"github.com/taskhub/taskhub/internal/service"
	"github.com/taskhub/taskhub/internal/wshub"
)

// API owns the chi router and its dependencies: the Service Facade, the
// auth Issuer and the WS Hub.
type API struct {
	svc    *service.Service
	issuer *auth.Issuer
	hub    *wshub.Hub
	log    logger.Logger
	router chi.Router
}

// New builds the chi router with every route from spec §6 mounted.
func New(svc *service.Service, issuer *auth.Issuer, hub *wshub.Hub, log logger.Logger) *API {
	if log == nil {
		log = logger.Default
	}
	a := &API{svc: svc, issuer: issuer, hub: hub, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	}))

	r.Post("/api/login", a.handleLogin())

	// Master-to-worker dispatch, unauthenticated by user bearer token: the
	// master reaches this node directly over its registered host:port.
	r.Post("/api/worker/execute", a.handleWorkerExecute())

	r.Group(func(r chi.Router) {
		r.Use(a.bearerAuth())

		r.Post("/api/tasks", a.handlePostTask())
		r.Get("/api/tasks", a.handleListTaskRuns())
		r.Get("/api/tasks/{id}", a.handleGetTaskRun())
		r.Post("/api/tasks/{id}/cancel", a.handleCancelTask())
		r.Get("/api/tasks/logs", a.handleTaskLogs())

		r.Post("/api/dag/run", a.handleDagRun())
		r.Post("/api/dag/run_async", a.handleDagRunAsync())
		r.Get("/api/dag/runs", a.handleDagRuns())
		r.Get("/api/dag/task_runs", a.handleDagTaskRuns())
		r.Get("/api/dag/events", a.handleDagEvents())

		r.Post("/template", a.handleTemplateCreate())
		r.Get("/templates", a.handleTemplateList())
		r.Get("/template/{id}", a.handleTemplateGet())
		r.Put("/template/{id}", a.handleTemplateUpdate())
		r.Delete("/template/{id}", a.handleTemplateDelete())
		r.Post("/template/render", a.handleTemplateRender())
		r.Post("/template/run", a.handleTemplateRun())

		r.Post("/api/workers/register", a.handleWorkerRegister())
		r.Post("/api/workers/heartbeat", a.handleWorkerHeartbeat())
		r.Get("/api/workers", a.handleWorkerList())

		r.Post("/api/cron/jobs", a.handleCronCreate())
		r.Get("/api/cron/jobs", a.handleCronList())
		r.Delete("/api/cron/jobs/{id}", a.handleCronDelete())

		r.Get("/api/metrics", a.handleMetrics())
	})

	a.router = r
	return a
}

// ServeHTTP implements http.Handler.
func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

// WSHandler returns the standalone WebSocket upgrade handler, served on
// spec §6's separate WS port rather than mounted on the main API router.
func (a *API) WSHandler() http.Handler {
	return a.handleWebSocket()
}

func requestLogger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Debug("http request", "method", r.Method, "path", r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}
}

// websocketAcceptOptions is split out so tests can override it; production
// always allows the configured origins via CORS, not the WS handshake.
var websocketAcceptOptions = &websocket.AcceptOptions{InsecureSkipVerify: true}
