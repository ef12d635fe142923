package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskhub/taskhub/internal/auth"
	"github.com/taskhub/taskhub/internal/localreg"
	"github.com/taskhub/taskhub/internal/service"
	"github.com/taskhub/taskhub/internal/store"
	"github.com/taskhub/taskhub/internal/workerreg"
	"github.com/taskhub/taskhub/internal/wshub"
)

// testAPI wires a full Service + API against an in-memory store, mirroring
// how cmd/taskhub assembles the real binary.
func testAPI(t *testing.T) (*API, *service.Service, string) {
	t.Helper()
	svc := service.New(service.Deps{
		Store:        store.NewMemStore(),
		LogMaxRecords: 1000,
		PoolWorkers:  2,
		WorkerSelect: workerreg.LeastLoad,
	})
	t.Cleanup(svc.Shutdown)

	hash, err := auth.HashPassword("s3cret")
	require.NoError(t, err)
	issuer := auth.NewIssuer([]byte("test-secret"), time.Hour, auth.StaticUserStore{"alice": hash})

	a := New(svc, issuer, wshub.New(nil), nil)

	token, err := issuer.Authenticate(context.Background(), "alice", "s3cret")
	require.NoError(t, err)
	return a, svc, token
}

func doRequest(t *testing.T, a *API, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestLoginSucceedsAndIssuesBearerToken(t *testing.T) {
	a, _, _ := testAPI(t)
	rec := doRequest(t, a, http.MethodPost, "/api/login", "", loginRequest{Username: "alice", Password: "s3cret"})
	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, codeOK, env.Code)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	a, _, _ := testAPI(t)
	rec := doRequest(t, a, http.MethodPost, "/api/login", "", loginRequest{Username: "alice", Password: "wrong"})
	require.Equal(t, http.StatusOK, rec.Code) // business code, not HTTP status, carries the failure
	env := decodeEnvelope(t, rec)
	assert.Equal(t, codeBadCredential, env.Code)
}

func TestProtectedRouteRejectsMissingToken(t *testing.T) {
	a, _, _ := testAPI(t)
	rec := doRequest(t, a, http.MethodGet, "/api/tasks", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProtectedRouteAcceptsValidToken(t *testing.T) {
	a, _, token := testAPI(t)
	rec := doRequest(t, a, http.MethodGet, "/api/tasks", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPostTaskRunsThroughLocalHandlerAndIsQueryable(t *testing.T) {
	a, svc, token := testAPI(t)
	svc.LocalHandlers().Register("greet", func(ctx context.Context, isCanceled localreg.CancelFunc) (string, error) {
		return "done", nil
	})

	body := map[string]any{"id": "t1", "exec_type": "local", "exec_command": "greet"}
	rec := doRequest(t, a, http.MethodPost, "/api/tasks", token, body)
	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	require.Equal(t, codeOK, env.Code)

	data := env.Data.(map[string]any)
	runID := data["run_id"].(string)
	require.NotEmpty(t, runID)

	require.Eventually(t, func() bool {
		rec := doRequest(t, a, http.MethodGet, "/api/tasks/"+runID, token, nil)
		return rec.Code == http.StatusOK && decodeEnvelope(t, rec).Code == codeOK
	}, 2*time.Second, 10*time.Millisecond, "task run should become queryable once scheduled")
}

func TestPostTaskRejectsMissingID(t *testing.T) {
	a, _, token := testAPI(t)
	rec := doRequest(t, a, http.MethodPost, "/api/tasks", token, map[string]any{"exec_type": "local"})
	env := decodeEnvelope(t, rec)
	assert.Equal(t, codeBadRequest, env.Code)
}

func TestCronJobLifecycle(t *testing.T) {
	a, _, token := testAPI(t)

	body := map[string]any{
		"name":        "nightly",
		"spec":        "0 0 * * *",
		"target_type": "task",
		"task":        map[string]any{"id": "cron-task", "exec_type": "local", "exec_command": "noop"},
	}
	rec := doRequest(t, a, http.MethodPost, "/api/cron/jobs", token, body)
	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	require.Equal(t, codeOK, env.Code)
	id := env.Data.(map[string]any)["id"].(string)
	require.NotEmpty(t, id)

	rec = doRequest(t, a, http.MethodGet, "/api/cron/jobs", token, nil)
	env = decodeEnvelope(t, rec)
	list := env.Data.([]any)
	assert.Len(t, list, 1)

	rec = doRequest(t, a, http.MethodDelete, "/api/cron/jobs/"+id, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, a, http.MethodGet, "/api/cron/jobs", token, nil)
	env = decodeEnvelope(t, rec)
	assert.Empty(t, env.Data.([]any))
}

func TestWorkerRegisterHeartbeatAndList(t *testing.T) {
	a, _, token := testAPI(t)

	rec := doRequest(t, a, http.MethodPost, "/api/workers/register", token, map[string]any{
		"id": "w1", "host": "10.0.0.5", "port": 9090, "max_running_tasks": 4,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, a, http.MethodPost, "/api/workers/heartbeat", token, map[string]any{
		"worker_id": "w1", "running_tasks": 2,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, codeOK, decodeEnvelope(t, rec).Code)

	rec = doRequest(t, a, http.MethodGet, "/api/workers", token, nil)
	env := decodeEnvelope(t, rec)
	list := env.Data.([]any)
	require.Len(t, list, 1)
	assert.Equal(t, "w1", list[0].(map[string]any)["id"])
}

func TestWorkerHeartbeatUnknownWorkerIsNotFound(t *testing.T) {
	a, _, token := testAPI(t)
	rec := doRequest(t, a, http.MethodPost, "/api/workers/heartbeat", token, map[string]any{
		"worker_id": "ghost", "running_tasks": 0,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpointReportsTaskCounters(t *testing.T) {
	a, svc, token := testAPI(t)
	svc.LocalHandlers().Register("noop", func(ctx context.Context, isCanceled localreg.CancelFunc) (string, error) {
		return "ok", nil
	})
	doRequest(t, a, http.MethodPost, "/api/tasks", token, map[string]any{
		"id": "m1", "exec_type": "local", "exec_command": "noop",
	})

	require.Eventually(t, func() bool {
		rec := doRequest(t, a, http.MethodGet, "/api/metrics", token, nil)
		env := decodeEnvelope(t, rec)
		data := env.Data.(map[string]any)
		counters := data["counters"].(map[string]any)
		return counters["tasks_started"].(float64) >= 1
	}, 2*time.Second, 10*time.Millisecond, "metrics should reflect the scheduled task")
}
